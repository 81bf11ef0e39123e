// Package jobs defines the asynchronous wallet work items and the worker that runs them.
package jobs

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindClassRefresh  Kind = "wallet.class.refresh"
	KindObjectRefresh Kind = "wallet.object.refresh"
	KindObjectShred   Kind = "wallet.object.shred"
	KindWebhook       Kind = "wallet.webhook"
)

// RoutingPrefix is shared by every job routing key.
const RoutingPrefix = "wallet."

type Job struct {
	ID         uuid.UUID       `json:"id"`
	Kind       Kind            `json:"kind"`
	EventID    uuid.UUID       `json:"event_id,omitempty"`
	PositionID uuid.UUID       `json:"position_id,omitempty"`
	Organizer  string          `json:"organizer,omitempty"`
	Body       json.RawMessage `json:"body,omitempty"`
}

func ClassRefresh(eventID uuid.UUID) Job {
	return Job{ID: uuid.New(), Kind: KindClassRefresh, EventID: eventID}
}

func ObjectRefresh(positionID uuid.UUID) Job {
	return Job{ID: uuid.New(), Kind: KindObjectRefresh, PositionID: positionID}
}

func Shred(positionID uuid.UUID) Job {
	return Job{ID: uuid.New(), Kind: KindObjectShred, PositionID: positionID}
}

// Webhook carries the raw callback body; verification happens when the job runs.
func Webhook(organizer string, body []byte) Job {
	return Job{ID: uuid.New(), Kind: KindWebhook, Organizer: organizer, Body: json.RawMessage(body)}
}

// DedupeKey collapses refresh jobs for the same target while one is still pending.
// Other kinds are never collapsed.
func (j Job) DedupeKey() string {
	switch j.Kind {
	case KindClassRefresh:
		return string(j.Kind) + ":" + j.EventID.String()
	case KindObjectRefresh:
		return string(j.Kind) + ":" + j.PositionID.String()
	default:
		return ""
	}
}

// Enqueuer schedules a job to run no earlier than delay from now.
type Enqueuer interface {
	Enqueue(ctx context.Context, job Job, delay time.Duration) error
}
