// Command portal is a terminal client for the student services portal.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/student-portal/internal/baas"
	"github.com/and161185/student-portal/internal/baas/gotrue"
	"github.com/and161185/student-portal/internal/baas/storage"
	"github.com/and161185/student-portal/internal/config"
	"github.com/and161185/student-portal/internal/forms"
	"github.com/and161185/student-portal/internal/notify"
	"github.com/and161185/student-portal/internal/repository"
	"github.com/and161185/student-portal/internal/repository/postgres"
	"github.com/and161185/student-portal/internal/repository/postgrest"
	"github.com/and161185/student-portal/internal/service"
	"github.com/and161185/student-portal/internal/session"
)

func usage() {
	fmt.Fprintf(os.Stderr, `portal CLI
Usage:
  portal [-env file] [-v] <cmd> [args]

Commands:
  version
  signup     -name <name> -email <e-mail> -p <password> [-confirm <password>]
  login      -email <e-mail> -p <password>            (saves session)
  logout
  whoami
  services                                         (service catalog)
  submit     -service <slug> -file <path> [-university <u> -major <m> -notes <n> -date YYYY-MM-DD]
  requests                                         (own requests)
  files      -number <REQ-YYYY-NNNN>
  track      -number <REQ-YYYY-NNNN> [-date YYYY-MM-DD]
  news
`)
	os.Exit(2)
}

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

// main dispatches subcommands against the configured Supabase project.
func main() {
	// global flags
	envFile := flag.String("env", ".env", "dotenv file to load (ignored when missing)")
	verbose := flag.Bool("v", false, "debug logging to stderr")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}
	cmd := flag.Arg(0)
	if cmd == "version" {
		fmt.Printf("portal %s (%s)\n", version, buildDate)
		return
	}
	run, ok := commands[cmd]
	if !ok {
		usage()
	}

	log := newLogger(*verbose)
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fail(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	e, closeEnv, err := newEnv(ctx, cfg, os.Stdin, os.Stdout, log)
	if err != nil {
		fail(err)
	}
	err = run(ctx, e, flag.Args()[1:])
	closeEnv()
	if err != nil {
		fail(err)
	}
}

// newEnv connects to the project with the session persisted under cfgDir.
// An unconfigured project still yields an env whose calls fail with errs.ErrNotConfigured.
func newEnv(ctx context.Context, cfg config.Config, in io.Reader, out io.Writer, log *zap.Logger) (*env, func(), error) {
	if !cfg.BaaSConfigured() {
		log.Warn("SUPABASE_URL or SUPABASE_ANON_KEY is not set; every backend call will fail")
	}
	bc := baas.New(baas.Config{URL: cfg.SupabaseURL, APIKey: cfg.AnonKey, Bucket: cfg.Bucket})
	prov := gotrue.New(bc, fileStore{path: sessionPath()})

	var (
		store   repository.Store
		closers []func()
	)
	if cfg.Backend == config.BackendPostgres {
		db, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		store = postgres.NewStore(db)
		closers = append(closers, db.Close)
	} else {
		store = postgrest.NewStore(bc)
	}

	var n notify.Notifier = notify.NewLogNotifier(log)
	if cfg.AMQPURL != "" {
		pub := notify.NewPublisher(cfg.AMQPURL, cfg.NotifyQueue, log)
		closers = append(closers, func() { _ = pub.Close() })
		n = pub
	}

	data := service.NewDataService(store, storage.New(bc), prov, log)
	m := session.New(session.Deps{Auth: prov, Data: data, Notifier: n, Log: log})
	if err := m.Start(ctx); err != nil {
		return nil, nil, err
	}
	// restoration is queued by Start; wait for it
	if err := m.Ready(ctx); err != nil {
		m.Close()
		return nil, nil, err
	}

	e := &env{
		m:      m,
		data:   data,
		in:     bufio.NewReader(in),
		out:    out,
		errOut: os.Stderr,
		now:    time.Now,
	}
	closeAll := func() {
		m.Close()
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	return e, closeAll, nil
}

func newLogger(verbose bool) *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	l, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

func fail(err error) {
	var fe *forms.Error
	if errors.As(err, &fe) {
		fmt.Fprintf(os.Stderr, "%s: %s\n", fe.Title, fe.Message)
		os.Exit(1)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
