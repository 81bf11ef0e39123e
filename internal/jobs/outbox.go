package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/googlepaypasses/internal/adapters/crdb"
)

type OutboxWriter interface {
	InsertOutbox(ctx context.Context, rec crdb.OutboxRecord) error
}

// OutboxEnqueuer stores jobs in the CockroachDB outbox; the relay publishes them once due.
type OutboxEnqueuer struct {
	outbox OutboxWriter
	now    func() time.Time
}

func NewOutboxEnqueuer(outbox OutboxWriter) *OutboxEnqueuer {
	return &OutboxEnqueuer{outbox: outbox, now: time.Now}
}

func (e *OutboxEnqueuer) Enqueue(ctx context.Context, job Job, delay time.Duration) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return errors.Wrap(err, "encode job")
	}
	rec := crdb.OutboxRecord{
		ID:          job.ID,
		EventType:   string(job.Kind),
		Payload:     payload,
		AvailableAt: e.now().Add(delay),
		DedupeKey:   job.DedupeKey(),
	}
	if err := e.outbox.InsertOutbox(ctx, rec); err != nil {
		return errors.Wrapf(err, "enqueue %s", job.Kind)
	}
	return nil
}
