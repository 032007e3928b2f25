// Command portal-notifier drains the notification queue and delivers each
// message. Delivery is simulated: the e-mail is written to the log.
package main

import (
	"context"
	"errors"
	"flag"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/and161185/student-portal/internal/config"
	"github.com/and161185/student-portal/internal/notify"
)

var version = "dev"

func main() {
	envFile := flag.String("env", ".env", "dotenv file to load (ignored when missing)")
	amqpURL := flag.String("amqp", "", "broker URL (AMQP_URL / RABBITMQ_URL)")
	queue := flag.String("queue", "", "queue name (NOTIFY_QUEUE)")
	dev := flag.Bool("dev", false, "development logging")
	flag.Parse()

	var logger *zap.Logger
	if *dev {
		logger, _ = zap.NewDevelopment()
	} else {
		logger, _ = zap.NewProduction()
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load(*envFile)
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if *amqpURL != "" {
		cfg.AMQPURL = *amqpURL
	}
	if *queue != "" {
		cfg.NotifyQueue = *queue
	}
	if cfg.AMQPURL == "" {
		logger.Fatal("missing broker URL (--amqp or AMQP_URL)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting", zap.String("version", version), zap.String("queue", cfg.NotifyQueue))
	c := &notify.Consumer{
		URL:     cfg.AMQPURL,
		Queue:   cfg.NotifyQueue,
		Deliver: notify.NewLogNotifier(logger),
		Log:     logger,
	}
	if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("consumer stopped", zap.Error(err))
		return
	}
	logger.Info("shutdown complete")
}
