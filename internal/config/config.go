// Package config reads process settings from the environment and an optional .env file.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Backend selects the data and auth implementation.
type Backend string

const (
	BackendSupabase Backend = "supabase"
	BackendPostgres Backend = "postgres"
	BackendMemory   Backend = "memory"
)

// Config holds every setting the binaries read.
type Config struct {
	SupabaseURL string
	AnonKey     string
	Bucket      string

	Backend     Backend
	DatabaseURL string

	HTTPAddr   string
	GRPCAddr   string
	SessionKey string
	SessionTTL time.Duration
	Secure     bool

	RedisAddr     string
	RedisPassword string

	AMQPURL     string
	NotifyQueue string

	LoginWindow   time.Duration
	LoginMaxFails int
	LoginBlockFor time.Duration
}

// Load reads files (".env" when none is given) into the environment and
// builds a Config. Missing files are ignored; variables already set win.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, err
		}
	}
	return FromEnv(), nil
}

// FromEnv builds a Config from the current environment only.
func FromEnv() Config {
	c := Config{
		SupabaseURL: strings.TrimRight(getenv("SUPABASE_URL", ""), "/"),
		AnonKey:     getenv("SUPABASE_ANON_KEY", ""),
		Bucket:      getenv("SUPABASE_BUCKET", "files"),

		DatabaseURL: getenv("DATABASE_URL", ""),

		HTTPAddr:   getenv("HTTP_ADDR", ":8080"),
		GRPCAddr:   getenv("GRPC_ADDR", ":9090"),
		SessionKey: getenv("SESSION_KEY", ""),
		SessionTTL: envDur("SESSION_TTL", 30*time.Minute),
		Secure:     envBool("COOKIE_SECURE", false),

		RedisAddr:     getenv("REDIS_ADDR", ""),
		RedisPassword: getenv("REDIS_PASSWORD", ""),

		AMQPURL:     getenv("AMQP_URL", getenv("RABBITMQ_URL", "")),
		NotifyQueue: getenv("NOTIFY_QUEUE", "portal.notifications"),

		LoginWindow:   envDur("LOGIN_WINDOW", 15*time.Minute),
		LoginMaxFails: envInt("LOGIN_MAX_FAILS", 5),
		LoginBlockFor: envDur("LOGIN_BLOCK_FOR", 15*time.Minute),
	}
	c.Backend = Backend(strings.ToLower(getenv("PORTAL_BACKEND", "")))
	if c.Backend == "" {
		c.Backend = defaultBackend(c)
	}
	return c
}

// Validate reports settings that make the chosen backend unusable. Missing
// project settings are not among them; see BaaSConfigured.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendMemory, BackendSupabase:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL is required for the postgres backend")
		}
	default:
		return errors.New("config: unknown PORTAL_BACKEND " + strconv.Quote(string(c.Backend)))
	}
	if c.LoginMaxFails < 1 {
		return errors.New("config: LOGIN_MAX_FAILS must be positive")
	}
	return nil
}

// BaaSConfigured reports whether SUPABASE_URL and SUPABASE_ANON_KEY are both
// set. Without them the supabase and postgres backends still start, and every
// auth, table and storage call fails with errs.ErrNotConfigured.
func (c Config) BaaSConfigured() bool {
	return c.SupabaseURL != "" && c.AnonKey != ""
}

func defaultBackend(c Config) Backend {
	switch {
	case c.DatabaseURL != "" && c.SupabaseURL != "":
		return BackendPostgres
	case c.SupabaseURL != "":
		return BackendSupabase
	default:
		return BackendMemory
	}
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return fallback
}

func envDur(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	if val := os.Getenv(key + "_SECONDS"); val != "" {
		if s, err := strconv.Atoi(val); err == nil {
			return time.Duration(s) * time.Second
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}
