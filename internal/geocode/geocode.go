// Package geocode resolves venue addresses with the Google Maps Geocoding API.
package geocode

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/googlepaypasses/internal/observability"
	"googlemaps.github.io/maps"
)

type Geocoder struct {
	client *maps.Client
	logger observability.Logger
}

// New returns a Geocoder for apiKey. Extra options (base URL, HTTP client) are passed
// through to the Maps client.
func New(apiKey string, logger observability.Logger, opts ...maps.ClientOption) (*Geocoder, error) {
	opts = append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)
	client, err := maps.NewClient(opts...)
	if err != nil {
		return nil, errors.Wrap(err, "create maps client")
	}
	return &Geocoder{client: client, logger: logger}, nil
}

// Lookup returns the coordinates of the best match. ok is false when Google knows no
// match for the address.
func (g *Geocoder) Lookup(ctx context.Context, address string) (float64, float64, bool, error) {
	results, err := g.client.Geocode(ctx, &maps.GeocodingRequest{Address: address})
	if err != nil {
		return 0, 0, false, errors.Wrapf(err, "geocode %q", address)
	}
	if len(results) == 0 {
		g.logger.WithField("address", address).Debug("no geocoding result")
		return 0, 0, false, nil
	}
	loc := results[0].Geometry.Location
	return loc.Lat, loc.Lng, true, nil
}
