// Command portal-server serves the student portal API over HTTP and an
// operational gRPC health port.
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/student-portal/internal/config"
	grpcserver "github.com/and161185/student-portal/internal/server/grpc"
	httpserver "github.com/and161185/student-portal/internal/server/http"
	"github.com/and161185/student-portal/internal/service"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() { os.Exit(run()) }

// run loads configuration, wires the selected backend and serves until
// SIGINT or SIGTERM. It returns the process exit code.
func run() int {
	// Flags override the environment.
	envFile := flag.String("env", ".env", "dotenv file to load (ignored when missing)")
	httpAddr := flag.String("http", "", "HTTP listen address (HTTP_ADDR)")
	grpcAddr := flag.String("grpc", "", "gRPC health listen address (GRPC_ADDR)")
	backend := flag.String("backend", "", "supabase|postgres|memory (PORTAL_BACKEND)")
	noMigrate := flag.Bool("no-migrate", false, "skip goose migrations in postgres mode")
	dev := flag.Bool("dev", false, "development logging and gRPC reflection")
	flag.Parse()

	logger := newLogger(*dev)
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load(*envFile)
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if *httpAddr != "" {
		cfg.HTTPAddr = *httpAddr
	}
	if *grpcAddr != "" {
		cfg.GRPCAddr = *grpcAddr
	}
	if *backend != "" {
		cfg.Backend = config.Backend(*backend)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("backend", string(cfg.Backend)),
		zap.String("http", cfg.HTTPAddr),
		zap.String("grpc", cfg.GRPCAddr),
	)

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := wire(ctx, cfg, !*noMigrate, logger)
	if err != nil {
		logger.Error("wire backend", zap.Error(err))
		return 1
	}
	defer a.close()
	for _, job := range a.jobs {
		go job(ctx)
	}

	key, err := sessionKey(cfg, logger)
	if err != nil {
		logger.Error("session key", zap.Error(err))
		return 1
	}

	reg := httpserver.NewRegistry(a.backend, cfg.SessionTTL, logger)
	defer reg.Close()
	go reg.Run(ctx)

	anon := service.NewDataService(a.backend.Store, a.backend.Blobs, nil, logger)
	api, err := httpserver.New(httpserver.Config{
		SessionKey: key,
		Secure:     cfg.Secure,
		MaxAge:     cfg.SessionTTL,
	}, reg, anon, a.limiter, logger)
	if err != nil {
		logger.Error("http server", zap.Error(err))
		return 1
	}
	hs := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ops := grpcserver.NewOps(logger, *dev)
	go ops.Watch(ctx, a.probe, 15*time.Second)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		logger.Error("listen", zap.Error(err))
		return 1
	}

	errCh := make(chan error, 2)
	go func() { errCh <- ops.Serve(lis) }()
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
		if err := hs.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for stop
	code := 0
	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		code = 1
	}

	// graceful shutdown
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := hs.Shutdown(sctx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	ops.Shutdown(5 * time.Second)
	logger.Info("shutdown complete")
	return code
}

func newLogger(dev bool) *zap.Logger {
	var (
		l   *zap.Logger
		err error
	)
	if dev {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return l
}
