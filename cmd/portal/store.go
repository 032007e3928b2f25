package main

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/and161185/student-portal/internal/auth"
	"github.com/and161185/student-portal/internal/baas/gotrue"
	"github.com/and161185/student-portal/internal/model"
)

// ---- config/session store ----

type sessionFile struct {
	AccessToken  string            `json:"access_token"`
	RefreshToken string            `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time         `json:"expires_at"`
	UserID       string            `json:"user_id"`
	Email        string            `json:"email"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "student-portal")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "student-portal")
}

func sessionPath() string { return filepath.Join(cfgDir(), "session.json") }

// fileStore keeps the provider session between invocations.
type fileStore struct{ path string }

var _ gotrue.SessionStore = fileStore{}

func (f fileStore) Load() (*auth.Session, error) {
	b, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var sf sessionFile
	if err := json.Unmarshal(b, &sf); err != nil {
		// a corrupt file is treated as signed out
		return nil, nil
	}
	if sf.AccessToken == "" {
		return nil, nil
	}
	return &auth.Session{
		AccessToken:  sf.AccessToken,
		RefreshToken: sf.RefreshToken,
		ExpiresAt:    sf.ExpiresAt,
		Identity:     auth.Identity{ID: model.ID(sf.UserID), Email: sf.Email, Metadata: sf.Metadata},
	}, nil
}

func (f fileStore) Save(s *auth.Session) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(sessionFile{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		ExpiresAt:    s.ExpiresAt,
		UserID:       s.Identity.ID.String(),
		Email:        s.Identity.Email,
		Metadata:     s.Identity.Metadata,
	}, "", "  ")
	if err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

func (f fileStore) Clear() error {
	err := os.Remove(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
