package geocode

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/robertarktes/googlepaypasses/internal/observability"
)

const (
	matchTTL   = 30 * 24 * time.Hour
	noMatchTTL = 24 * time.Hour
)

// Lookuper is anything that resolves an address, usually a *Geocoder.
type Lookuper interface {
	Lookup(ctx context.Context, address string) (float64, float64, bool, error)
}

// Cache stores resolved addresses. The Redis cache adapter satisfies it.
type Cache interface {
	GetBytes(ctx context.Context, key string) ([]byte, bool, error)
	SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type point struct {
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	Found bool    `json:"found"`
}

// Cached remembers lookups per address so class refreshes do not hit the Maps API again.
// Failed lookups are not cached. Cache errors fall through to the wrapped Lookuper.
type Cached struct {
	next   Lookuper
	cache  Cache
	logger observability.Logger
}

func NewCached(next Lookuper, cache Cache, logger observability.Logger) *Cached {
	return &Cached{next: next, cache: cache, logger: logger}
}

func (c *Cached) Lookup(ctx context.Context, address string) (float64, float64, bool, error) {
	key := cacheKey(address)
	if raw, ok, err := c.cache.GetBytes(ctx, key); err != nil {
		c.logger.WithField("key", key).Warn("geocode cache read failed: ", err)
	} else if ok {
		var p point
		if err := json.Unmarshal(raw, &p); err == nil {
			return p.Lat, p.Lon, p.Found, nil
		}
	}

	lat, lon, found, err := c.next.Lookup(ctx, address)
	if err != nil {
		return 0, 0, false, err
	}

	ttl := matchTTL
	if !found {
		ttl = noMatchTTL
	}
	raw, _ := json.Marshal(point{Lat: lat, Lon: lon, Found: found})
	if err := c.cache.SetBytes(ctx, key, raw, ttl); err != nil {
		c.logger.WithField("key", key).Warn("geocode cache write failed: ", err)
	}
	return lat, lon, found, nil
}

func cacheKey(address string) string {
	sum := sha256.Sum256([]byte(address))
	return "geocode:" + hex.EncodeToString(sum[:])
}
