package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/and161185/student-portal/internal/auth"
	"github.com/and161185/student-portal/internal/baas"
	"github.com/and161185/student-portal/internal/baas/gotrue"
	"github.com/and161185/student-portal/internal/baas/memory"
	"github.com/and161185/student-portal/internal/baas/storage"
	"github.com/and161185/student-portal/internal/config"
	"github.com/and161185/student-portal/internal/limiter"
	"github.com/and161185/student-portal/internal/migrate"
	"github.com/and161185/student-portal/internal/model"
	"github.com/and161185/student-portal/internal/notify"
	"github.com/and161185/student-portal/internal/repository/postgres"
	"github.com/and161185/student-portal/internal/repository/postgrest"
	grpcserver "github.com/and161185/student-portal/internal/server/grpc"
	httpserver "github.com/and161185/student-portal/internal/server/http"
)

// app is everything main starts and later releases.
type app struct {
	backend httpserver.Backend
	limiter limiter.Limiter
	probe   grpcserver.Probe
	closers []func()
	// jobs run until the server context ends.
	jobs []func(ctx context.Context)
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// wire builds the backend selected by cfg.Backend plus the limiter and notifier.
func wire(ctx context.Context, cfg config.Config, migrateDB bool, log *zap.Logger) (*app, error) {
	a := &app{}
	var pg *limiter.PG

	switch cfg.Backend {
	case config.BackendMemory:
		b := memory.New()
		b.SeedNews(model.NewsItem{
			Title:     "مرحباً بكم في بوابة الخدمات الطلابية",
			Content:   "يمكنكم الآن تقديم طلبات الخدمات ومتابعتها عبر الإنترنت.",
			IsActive:  true,
			CreatedAt: time.Now().UTC(),
		})
		a.backend = httpserver.Backend{
			Store:       b.Store(),
			Blobs:       b,
			NewProvider: func() auth.Provider { return b.NewAuthClient() },
		}
		log.Warn("using the in-process backend; data is lost on exit")

	case config.BackendSupabase, config.BackendPostgres:
		if !cfg.BaaSConfigured() {
			log.Warn("SUPABASE_URL or SUPABASE_ANON_KEY is not set; auth, tables and storage will fail until configured")
		}
		bc := baas.New(baas.Config{URL: cfg.SupabaseURL, APIKey: cfg.AnonKey, Bucket: cfg.Bucket})
		a.backend = httpserver.Backend{
			Store:       postgrest.NewStore(bc),
			Blobs:       storage.New(bc),
			NewProvider: func() auth.Provider { return gotrue.New(bc, &gotrue.MemoryStore{}) },
		}
		a.probe = bc.Ping

		if cfg.Backend == config.BackendPostgres {
			if migrateDB {
				if err := migrate.Up(ctx, cfg.DatabaseURL); err != nil {
					return nil, fmt.Errorf("migrate up: %w", err)
				}
			}
			db, err := postgres.New(ctx, cfg.DatabaseURL)
			if err != nil {
				return nil, fmt.Errorf("postgres: %w", err)
			}
			a.closers = append(a.closers, db.Close)
			a.backend.Store = postgres.NewStore(db)
			pg = limiter.NewPG(db.Pool, cfg.LoginWindow, cfg.LoginMaxFails, cfg.LoginBlockFor)
			a.limiter = pg
			a.probe = func(ctx context.Context) error {
				if err := db.Pool.Ping(ctx); err != nil {
					return err
				}
				return bc.Ping(ctx)
			}
		}

	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		a.limiter = limiter.NewRedis(rdb, cfg.LoginWindow, cfg.LoginMaxFails, cfg.LoginBlockFor)
		log.Info("login limiter: redis", zap.String("addr", cfg.RedisAddr))
	}
	if a.limiter == nil {
		a.limiter = limiter.Nop{}
	}
	if pg != nil && a.limiter == limiter.Limiter(pg) {
		keep := max(cfg.LoginWindow, cfg.LoginBlockFor)
		a.jobs = append(a.jobs, func(ctx context.Context) { pruneLimiter(ctx, pg, keep, time.Hour, log) })
	}

	if cfg.AMQPURL != "" {
		pub := notify.NewPublisher(cfg.AMQPURL, cfg.NotifyQueue, log)
		a.closers = append(a.closers, func() { _ = pub.Close() })
		a.backend.Notifier = pub
		log.Info("notifications: amqp", zap.String("queue", cfg.NotifyQueue))
	} else {
		a.backend.Notifier = notify.NewLogNotifier(log)
	}
	return a, nil
}

// pruneLimiter clears stale login_limiter rows every interval.
func pruneLimiter(ctx context.Context, pg *limiter.PG, keep, every time.Duration, log *zap.Logger) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := pg.Prune(ctx, keep)
			if err != nil {
				log.Warn("prune login limiter", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Debug("login limiter pruned", zap.Int64("rows", n))
			}
		}
	}
}

// sessionKey returns the configured cookie key, or a random one in memory mode.
func sessionKey(cfg config.Config, log *zap.Logger) ([]byte, error) {
	if cfg.SessionKey != "" {
		return []byte(cfg.SessionKey), nil
	}
	if cfg.Backend != config.BackendMemory {
		return nil, fmt.Errorf("SESSION_KEY is required for the %s backend", cfg.Backend)
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	log.Warn("SESSION_KEY not set; cookies will not survive a restart")
	return key, nil
}
