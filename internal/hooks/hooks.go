// Package hooks turns host mutation events into wallet jobs.
package hooks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/googlepaypasses/internal/domain"
	"github.com/robertarktes/googlepaypasses/internal/jobs"
	"github.com/robertarktes/googlepaypasses/internal/observability"
	"golang.org/x/sync/errgroup"
)

// Routing keys published by the host application.
const (
	EventChanged          = "event.changed"
	PositionChanged       = "position.changed"
	PositionSecretChanged = "position.secret_changed"
	PositionDeleted       = "position.deleted"
	OrderCanceled         = "order.canceled"
	OrderSplit            = "order.split"
)

// Bindings lists the host routing keys the worker queue subscribes to.
var Bindings = []string{EventChanged, PositionChanged, PositionSecretChanged, PositionDeleted, OrderCanceled, OrderSplit}

type OrderPositions interface {
	ListPositionIDsByOrder(ctx context.Context, orderID uuid.UUID) ([]uuid.UUID, error)
}

type payload struct {
	EventID     uuid.UUID   `json:"event_id"`
	PositionID  uuid.UUID   `json:"position_id"`
	OrderID     uuid.UUID   `json:"order_id"`
	PositionIDs []uuid.UUID `json:"position_ids"`
}

type Handler struct {
	enqueuer jobs.Enqueuer
	orders   OrderPositions
	debounce time.Duration
	logger   observability.Logger
}

func NewHandler(enqueuer jobs.Enqueuer, orders OrderPositions, debounce time.Duration, logger observability.Logger) *Handler {
	return &Handler{enqueuer: enqueuer, orders: orders, debounce: debounce, logger: logger}
}

// Handle schedules the wallet work implied by one host event. Refreshes are delayed by
// the debounce window so a burst of edits results in a single remote update.
func (h *Handler) Handle(ctx context.Context, routingKey string, body []byte) error {
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return errors.Wrapf(domain.ErrInvalidInput, "decode %s: %v", routingKey, err)
	}

	switch routingKey {
	case EventChanged:
		if p.EventID == uuid.Nil {
			return errors.Wrapf(domain.ErrInvalidInput, "%s without event_id", routingKey)
		}
		return h.enqueuer.Enqueue(ctx, jobs.ClassRefresh(p.EventID), h.debounce)
	case PositionChanged:
		if p.PositionID == uuid.Nil {
			return errors.Wrapf(domain.ErrInvalidInput, "%s without position_id", routingKey)
		}
		return h.enqueuer.Enqueue(ctx, jobs.ObjectRefresh(p.PositionID), h.debounce)
	case PositionSecretChanged, PositionDeleted:
		if p.PositionID == uuid.Nil {
			return errors.Wrapf(domain.ErrInvalidInput, "%s without position_id", routingKey)
		}
		return h.enqueuer.Enqueue(ctx, jobs.Shred(p.PositionID), 0)
	case OrderCanceled, OrderSplit:
		return h.shredOrder(ctx, p)
	default:
		h.logger.WithField("routing_key", routingKey).Debug("ignoring host event")
		return nil
	}
}

// shredOrder shreds the listed positions, or every position of the order when none are listed.
func (h *Handler) shredOrder(ctx context.Context, p payload) error {
	ids := p.PositionIDs
	if len(ids) == 0 {
		if p.OrderID == uuid.Nil {
			return errors.Wrap(domain.ErrInvalidInput, "order event without order_id")
		}
		var err error
		ids, err = h.orders.ListPositionIDsByOrder(ctx, p.OrderID)
		if err != nil {
			return errors.Wrapf(err, "list positions of order %s", p.OrderID)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			return h.enqueuer.Enqueue(gctx, jobs.Shred(id), 0)
		})
	}
	return g.Wait()
}
