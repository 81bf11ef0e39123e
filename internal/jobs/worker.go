package jobs

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/googlepaypasses/internal/observability"
	"golang.org/x/sync/errgroup"
)

type JobHandler interface {
	Handle(ctx context.Context, job Job) error
}

// HostEventHandler turns host mutation events into jobs.
type HostEventHandler interface {
	Handle(ctx context.Context, routingKey string, body []byte) error
}

type Worker struct {
	jobs        JobHandler
	hooks       HostEventHandler
	concurrency int
	logger      observability.Logger
}

func NewWorker(jobs JobHandler, hooks HostEventHandler, concurrency int, logger observability.Logger) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Worker{jobs: jobs, hooks: hooks, concurrency: concurrency, logger: logger}
}

// Run processes deliveries until ctx is done or the channel closes. Failed deliveries
// are rejected without requeue; redelivery is left to the broker's dead-letter policy.
func (w *Worker) Run(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case d, ok := <-deliveries:
					if !ok {
						return nil
					}
					w.process(gctx, d)
				}
			}
		})
	}
	return g.Wait()
}

func (w *Worker) process(ctx context.Context, d amqp.Delivery) {
	log := w.logger.WithField("routing_key", d.RoutingKey)

	if err := w.dispatch(ctx, d); err != nil {
		log.Error("delivery failed: ", err)
		if err := d.Nack(false, false); err != nil {
			log.Error("nack failed: ", err)
		}
		return
	}
	if err := d.Ack(false); err != nil {
		log.Error("ack failed: ", err)
	}
}

func (w *Worker) dispatch(ctx context.Context, d amqp.Delivery) error {
	if !strings.HasPrefix(d.RoutingKey, RoutingPrefix) {
		return w.hooks.Handle(ctx, d.RoutingKey, d.Body)
	}
	var job Job
	if err := json.Unmarshal(d.Body, &job); err != nil {
		return errors.Wrap(err, "decode job")
	}
	return w.jobs.Handle(ctx, job)
}
