// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/student-portal/internal/model"
)

// UserRepository provides access to profile rows.
type UserRepository interface {
	// Create inserts a profile keyed by the provider-issued identity id and returns the stored row.
	Create(ctx context.Context, u *model.User) (*model.User, error)
	// GetByEmail loads exactly one profile by exact email match.
	GetByEmail(ctx context.Context, email string) (*model.User, error)
}
