package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/googlepaypasses/internal/adapters/crdb"
	"github.com/robertarktes/googlepaypasses/internal/adapters/rabbit"
	"github.com/robertarktes/googlepaypasses/internal/config"
	"github.com/robertarktes/googlepaypasses/internal/observability"
	"github.com/robertarktes/googlepaypasses/internal/outbox"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg, "googlepaypasses-outbox")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLoggerForMode(cfg.Development)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Only the outbox table belongs to this service; the host owns the rest of the schema.
	pool, err := pgxpool.New(ctx, cfg.CRDBDSN)
	if err != nil {
		log.Fatalf("failed to connect to crdb: %v", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)
	if err := repo.MigrateOutbox(ctx); err != nil {
		log.Fatalf("failed to migrate outbox: %v", err)
	}

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()
	publisher, err := rabbit.NewPublisher(conn, cfg.RabbitExchange)
	if err != nil {
		log.Fatalf("failed to create publisher: %v", err)
	}
	defer publisher.Close()

	logger.WithField("interval", cfg.OutboxInterval.String()).Info("outbox relay started")
	outbox.NewRelay(repo, publisher, cfg.OutboxInterval, logger).Run(ctx)
	logger.Info("Shutdown outbox publisher")
}
