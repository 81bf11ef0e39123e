package idempotency

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
)

// Claimer is backed by the Redis adapter.
type Claimer interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// ReplayGuard remembers webhook nonces so a redelivered callback is processed once.
type ReplayGuard struct {
	store Claimer
	ttl   time.Duration
}

func NewReplayGuard(store Claimer, ttl time.Duration) *ReplayGuard {
	return &ReplayGuard{store: store, ttl: ttl}
}

// First reports whether nonce is seen for the first time within the guard's window.
// An empty nonce is always treated as new.
func (g *ReplayGuard) First(ctx context.Context, scope, nonce string) (bool, error) {
	if nonce == "" {
		return true, nil
	}
	ok, err := g.store.Claim(ctx, "nonce:"+scope+":"+nonce, g.ttl)
	if err != nil {
		return false, errors.Wrap(err, "claim webhook nonce")
	}
	return ok, nil
}

// Forget releases a nonce whose processing failed, so a redelivery is not dropped.
func (g *ReplayGuard) Forget(ctx context.Context, scope, nonce string) error {
	if nonce == "" {
		return nil
	}
	return g.store.Release(ctx, "nonce:"+scope+":"+nonce)
}
