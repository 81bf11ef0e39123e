package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/robertarktes/googlepaypasses/internal/observability"
	"googlemaps.github.io/maps"
)

func newTestGeocoder(t *testing.T, body string) (*Geocoder, *string) {
	t.Helper()
	var gotAddress string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAddress = r.URL.Query().Get("address")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	g, err := New("test-key", observability.NopLogger(), maps.WithBaseURL(srv.URL), maps.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatal(err)
	}
	return g, &gotAddress
}

func TestLookup_Match(t *testing.T) {
	g, addr := newTestGeocoder(t, `{"status":"OK","results":[{"geometry":{"location":{"lat":52.52,"lng":13.405}}}]}`)

	lat, lon, ok, err := g.Lookup(context.Background(), "Town Hall, Main Street 1")
	if err != nil {
		t.Fatal(err)
	}
	if !ok || lat != 52.52 || lon != 13.405 {
		t.Errorf("unexpected result %v %v %v", lat, lon, ok)
	}
	if *addr != "Town Hall, Main Street 1" {
		t.Errorf("unexpected address sent: %q", *addr)
	}
}

func TestLookup_NoMatch(t *testing.T) {
	g, _ := newTestGeocoder(t, `{"status":"ZERO_RESULTS","results":[]}`)

	_, _, ok, err := g.Lookup(context.Background(), "nowhere")
	if err != nil || ok {
		t.Errorf("expected no match without error, got ok=%v err=%v", ok, err)
	}
}

func TestLookup_Denied(t *testing.T) {
	g, _ := newTestGeocoder(t, `{"status":"REQUEST_DENIED","error_message":"bad key","results":[]}`)

	if _, _, _, err := g.Lookup(context.Background(), "anywhere"); err == nil {
		t.Error("expected an error for a denied request")
	}
}
