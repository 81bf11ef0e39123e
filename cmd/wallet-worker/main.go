package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/googlepaypasses/internal/adapters/rabbit"
	redisadapter "github.com/robertarktes/googlepaypasses/internal/adapters/redis"
	"github.com/robertarktes/googlepaypasses/internal/app"
	"github.com/robertarktes/googlepaypasses/internal/config"
	"github.com/robertarktes/googlepaypasses/internal/domain"
	"github.com/robertarktes/googlepaypasses/internal/hooks"
	"github.com/robertarktes/googlepaypasses/internal/idempotency"
	"github.com/robertarktes/googlepaypasses/internal/jobs"
	"github.com/robertarktes/googlepaypasses/internal/observability"
	"github.com/robertarktes/googlepaypasses/internal/webhook"
)

// Nonces are remembered longer than any callback stays valid.
const nonceTTL = 24 * time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg, "googlepaypasses-worker")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLoggerForMode(cfg.Development)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stores, err := app.OpenStores(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("failed to open stores: %v", err)
	}
	defer stores.Close(context.Background())

	w, err := app.NewWallet(ctx, cfg, stores, logger)
	if err != nil {
		log.Fatalf("failed to set up wallet: %v", err)
	}
	if w.Synchronizer == nil {
		log.Fatalf("cannot start worker: %v", domain.ErrNotConfigured)
	}

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()

	bindings := append(append([]string{}, hooks.Bindings...), jobs.RoutingPrefix+"#")
	consumer, err := rabbit.NewConsumer(conn, cfg.RabbitExchange, cfg.RabbitQueue, bindings, cfg.WorkerConcurrency*2)
	if err != nil {
		log.Fatalf("failed to create consumer: %v", err)
	}
	defer consumer.Close()

	enqueuer := jobs.NewOutboxEnqueuer(stores.Repo)
	verifier := webhook.NewVerifier(cfg.WebhookRootKeysURL, stores.Cache, logger)
	guard := idempotency.NewReplayGuard(redisadapter.NewIdempotency(stores.Redis), nonceTTL)

	processor := jobs.NewProcessor(w.Synchronizer, verifier, stores.Repo, guard, enqueuer, w.Installation.IssuerID, logger)
	hostEvents := hooks.NewHandler(enqueuer, stores.Repo, cfg.DebounceWindow, logger)
	worker := jobs.NewWorker(processor, hostEvents, cfg.WorkerConcurrency, logger)

	deliveries, err := consumer.Consume(ctx)
	if err != nil {
		log.Fatalf("failed to consume: %v", err)
	}

	logger.WithField("queue", cfg.RabbitQueue).Info("wallet worker started")
	if err := worker.Run(ctx, deliveries); err != nil {
		logger.Error("worker stopped: ", err)
	}
	logger.Info("Shutdown wallet worker")
}
