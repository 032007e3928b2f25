package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var keys = []string{
	"SUPABASE_URL", "SUPABASE_ANON_KEY", "SUPABASE_BUCKET", "PORTAL_BACKEND",
	"DATABASE_URL", "HTTP_ADDR", "SESSION_TTL", "SESSION_TTL_SECONDS",
	"AMQP_URL", "RABBITMQ_URL", "LOGIN_MAX_FAILS", "COOKIE_SECURE",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	clearEnv(t)
	c := FromEnv()
	require.Equal(t, BackendMemory, c.Backend)
	require.Equal(t, "files", c.Bucket)
	require.Equal(t, ":8080", c.HTTPAddr)
	require.Equal(t, 30*time.Minute, c.SessionTTL)
	require.Equal(t, 5, c.LoginMaxFails)
	require.NoError(t, c.Validate())
}

func TestFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("SUPABASE_URL", "https://x.supabase.co/")
	t.Setenv("SUPABASE_ANON_KEY", "anon")
	t.Setenv("SESSION_TTL_SECONDS", "90")
	t.Setenv("RABBITMQ_URL", "amqp://guest@localhost/")
	t.Setenv("LOGIN_MAX_FAILS", "nope")
	t.Setenv("COOKIE_SECURE", "true")

	c := FromEnv()
	require.Equal(t, "https://x.supabase.co", c.SupabaseURL)
	require.Equal(t, BackendSupabase, c.Backend)
	require.Equal(t, 90*time.Second, c.SessionTTL)
	require.Equal(t, "amqp://guest@localhost/", c.AMQPURL)
	require.Equal(t, 5, c.LoginMaxFails)
	require.True(t, c.Secure)

	t.Setenv("AMQP_URL", "amqp://primary/")
	require.Equal(t, "amqp://primary/", FromEnv().AMQPURL)

	t.Setenv("DATABASE_URL", "postgres://localhost/portal")
	require.Equal(t, BackendPostgres, FromEnv().Backend)
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	require.Error(t, Config{Backend: BackendPostgres, SupabaseURL: "u", AnonKey: "k", LoginMaxFails: 1}.Validate())
	require.Error(t, Config{Backend: "mongo", LoginMaxFails: 1}.Validate())
	require.Error(t, Config{Backend: BackendMemory}.Validate())
	require.NoError(t, Config{Backend: BackendSupabase, SupabaseURL: "u", AnonKey: "k", LoginMaxFails: 1}.Validate())
}

func TestValidate_MissingProjectSettingsDegrade(t *testing.T) {
	clearEnv(t)
	c := Config{Backend: BackendSupabase, LoginMaxFails: 1}
	require.NoError(t, c.Validate())
	require.False(t, c.BaaSConfigured())
	require.NoError(t, Config{Backend: BackendPostgres, DatabaseURL: "postgres://x", LoginMaxFails: 1}.Validate())

	c.SupabaseURL = "u"
	require.False(t, c.BaaSConfigured())
	c.AnonKey = "k"
	require.True(t, c.BaaSConfigured())
}

func TestLoad_DotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "portal.env")
	require.NoError(t, os.WriteFile(path, []byte("PORTAL_BACKEND=memory\nHTTP_ADDR=:9999\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("PORTAL_BACKEND")
		os.Unsetenv("HTTP_ADDR")
	})
	// godotenv does not override variables that are already set, even to "".
	os.Unsetenv("PORTAL_BACKEND")
	os.Unsetenv("HTTP_ADDR")

	c, err := Load(path, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)
	require.Equal(t, BackendMemory, c.Backend)
	require.Equal(t, ":9999", c.HTTPAddr)
}
