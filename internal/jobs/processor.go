package jobs

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/googlepaypasses/internal/observability"
	"github.com/robertarktes/googlepaypasses/internal/webhook"
)

type Synchronizer interface {
	RefreshClass(ctx context.Context, eventID uuid.UUID) (bool, error)
	RefreshObject(ctx context.Context, positionID uuid.UUID) (bool, error)
	Shred(ctx context.Context, positionID uuid.UUID) error
}

type Unsealer interface {
	Unseal(ctx context.Context, env *webhook.Envelope, issuerID string) (*webhook.Message, error)
}

// MarkerLookup finds the position whose stored object id equals objectID exactly.
type MarkerLookup interface {
	FindPositionByWalletObjectID(ctx context.Context, objectID string) (uuid.UUID, bool, error)
}

type NonceGuard interface {
	First(ctx context.Context, scope, nonce string) (bool, error)
	Forget(ctx context.Context, scope, nonce string) error
}

type Processor struct {
	sync     Synchronizer
	unsealer Unsealer
	lookup   MarkerLookup
	guard    NonceGuard
	enqueuer Enqueuer
	issuerID string
	logger   observability.Logger
}

// NewProcessor wires the job handlers. guard may be nil.
func NewProcessor(sync Synchronizer, unsealer Unsealer, lookup MarkerLookup, guard NonceGuard, enqueuer Enqueuer, issuerID string, logger observability.Logger) *Processor {
	return &Processor{
		sync:     sync,
		unsealer: unsealer,
		lookup:   lookup,
		guard:    guard,
		enqueuer: enqueuer,
		issuerID: issuerID,
		logger:   logger,
	}
}

func (p *Processor) Handle(ctx context.Context, job Job) (err error) {
	start := time.Now()
	log := p.logger.WithFields(map[string]interface{}{"job_id": job.ID.String(), "kind": string(job.Kind)})
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
			log.Error("job failed: ", err)
		} else {
			log.WithField("took", time.Since(start).String()).Debug("job done")
		}
		observability.JobsProcessed.WithLabelValues(string(job.Kind), result).Inc()
	}()

	switch job.Kind {
	case KindClassRefresh:
		_, err = p.sync.RefreshClass(ctx, job.EventID)
	case KindObjectRefresh:
		_, err = p.sync.RefreshObject(ctx, job.PositionID)
	case KindObjectShred:
		err = p.sync.Shred(ctx, job.PositionID)
	case KindWebhook:
		err = p.handleWebhook(ctx, job, log)
	default:
		err = errors.Newf("unknown job kind %q", job.Kind)
	}
	return err
}

func (p *Processor) handleWebhook(ctx context.Context, job Job, log observability.Logger) error {
	env, err := webhook.ParseEnvelope(job.Body)
	if err != nil {
		observability.WebhooksReceived.WithLabelValues("malformed").Inc()
		return err
	}
	msg, err := p.unsealer.Unseal(ctx, env, p.issuerID)
	if err != nil {
		observability.WebhooksReceived.WithLabelValues("rejected").Inc()
		return errors.Wrap(err, "unseal webhook")
	}

	if p.guard != nil {
		first, err := p.guard.First(ctx, job.Organizer, msg.Nonce)
		if err != nil {
			return err
		}
		if !first {
			observability.WebhooksReceived.WithLabelValues("replayed").Inc()
			log.WithField("nonce", msg.Nonce).Info("ignoring replayed webhook")
			return nil
		}
	}

	switch msg.EventType {
	case webhook.EventSave:
		observability.WebhooksReceived.WithLabelValues("save").Inc()
		log.WithField("object_id", msg.ObjectID).Info("wallet object saved by holder")
		return nil
	case webhook.EventDelete:
		observability.WebhooksReceived.WithLabelValues("del").Inc()
		if err := p.shredByObjectID(ctx, msg.ObjectID, log); err != nil {
			p.forget(ctx, job.Organizer, msg.Nonce, log)
			return err
		}
		return nil
	default:
		observability.WebhooksReceived.WithLabelValues("malformed").Inc()
		return errors.Mark(errors.Newf("unknown webhook event type %q", msg.EventType), webhook.ErrMalformed)
	}
}

func (p *Processor) shredByObjectID(ctx context.Context, objectID string, log observability.Logger) error {
	if objectID == "" {
		return errors.Mark(errors.New("webhook carries no object id"), webhook.ErrMalformed)
	}
	positionID, found, err := p.lookup.FindPositionByWalletObjectID(ctx, objectID)
	if err != nil {
		return errors.Wrapf(err, "find position for object %s", objectID)
	}
	if !found {
		log.WithField("object_id", objectID).Info("deleted wallet object matches no position")
		return nil
	}
	return p.enqueuer.Enqueue(ctx, Shred(positionID), 0)
}

func (p *Processor) forget(ctx context.Context, scope, nonce string, log observability.Logger) {
	if p.guard == nil {
		return
	}
	if err := p.guard.Forget(ctx, scope, nonce); err != nil {
		log.Warn("releasing webhook nonce failed: ", err)
	}
}
