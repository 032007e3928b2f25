package postgres

import (
	"context"

	"github.com/and161185/student-portal/internal/model"
)

// NewsRepo implements NewsRepository using PostgreSQL.
type NewsRepo struct{ db *DB }

// NewNewsRepo constructs a news repository.
func NewNewsRepo(db *DB) *NewsRepo { return &NewsRepo{db: db} }

// ListActive selects active items, newest first.
func (r *NewsRepo) ListActive(ctx context.Context) ([]model.NewsItem, error) {
	const q = `
SELECT id::text, title, content, is_active, created_at
FROM news WHERE is_active ORDER BY created_at DESC`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.NewsItem, 0)
	for rows.Next() {
		var (
			n  model.NewsItem
			id string
		)
		if err := rows.Scan(&id, &n.Title, &n.Content, &n.IsActive, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.ID = model.ID(id)
		out = append(out, n)
	}
	return out, rows.Err()
}
