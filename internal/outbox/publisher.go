package outbox

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/googlepaypasses/internal/adapters/crdb"
	"github.com/robertarktes/googlepaypasses/internal/observability"
)

const batchSize = 50

type Store interface {
	WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error
	ClaimDue(ctx context.Context, tx pgx.Tx, now time.Time, limit int) ([]crdb.OutboxRecord, error)
	MarkPublished(ctx context.Context, tx pgx.Tx, id uuid.UUID, publishedAt time.Time) error
}

type Broker interface {
	Publish(ctx context.Context, key string, msg amqp.Publishing) error
}

// Relay moves due jobs from the outbox to the broker.
type Relay struct {
	store    Store
	broker   Broker
	interval time.Duration
	logger   observability.Logger
	now      func() time.Time
}

func NewRelay(store Store, broker Broker, interval time.Duration, logger observability.Logger) *Relay {
	return &Relay{store: store, broker: broker, interval: interval, logger: logger, now: time.Now}
}

func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := r.RelayOnce(ctx)
			if err != nil {
				r.logger.Error("outbox relay failed: ", err)
				continue
			}
			if n > 0 {
				r.logger.WithField("count", n).Debug("outbox records published")
			}
		}
	}
}

// RelayOnce publishes one batch of due records and returns how many were published.
// A publish failure ends the batch; records published before it are still marked.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	published := 0
	err := r.store.WithTx(ctx, func(tx pgx.Tx) error {
		now := r.now()
		records, err := r.store.ClaimDue(ctx, tx, now, batchSize)
		if err != nil {
			return errors.Wrap(err, "claim outbox records")
		}
		if len(records) > 0 {
			observability.OutboxLag.Set(now.Sub(records[0].AvailableAt).Seconds())
		}

		for _, rec := range records {
			msg := amqp.Publishing{
				MessageId:    rec.ID.String(),
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent,
				Timestamp:    now,
				Body:         rec.Payload,
			}
			if err := r.broker.Publish(ctx, rec.EventType, msg); err != nil {
				r.logger.WithField("outbox_id", rec.ID.String()).Error("publish failed: ", err)
				break
			}
			if err := r.store.MarkPublished(ctx, tx, rec.ID, now); err != nil {
				return errors.Wrapf(err, "mark outbox record %s", rec.ID)
			}
			published++
		}
		return nil
	})
	return published, err
}
