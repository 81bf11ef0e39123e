package wallet

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/googlepaypasses/internal/domain"
	"github.com/robertarktes/googlepaypasses/internal/observability"
	"github.com/shopspring/decimal"
)

type apiCall struct {
	Method   string
	Resource ResourceType
	ID       string
	Body     json.RawMessage
}

// fakeAPI is an in-memory Wallet Objects API.
type fakeAPI struct {
	mu        sync.Mutex
	resources map[string]json.RawMessage
	calls     []apiCall
	fail      map[string]int // "METHOD resource" -> status
	pageSize  int
	bearer    string
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()
	f := &fakeAPI{resources: map[string]json.RawMessage{}, fail: map[string]int{}}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeAPI) failWith(method string, resource ResourceType, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[method+" "+string(resource)] = status
}

func (f *fakeAPI) put(resource ResourceType, id string, v interface{}) {
	data, _ := json.Marshal(v)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resources[string(resource)+"/"+id] = data
}

func (f *fakeAPI) stored(resource ResourceType, id string) (map[string]interface{}, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.resources[string(resource)+"/"+id]
	if !ok {
		return nil, false
	}
	var m map[string]interface{}
	_ = json.Unmarshal(raw, &m)
	return m, true
}

func (f *fakeAPI) count(method string, resource ResourceType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Method == method && c.Resource == resource {
			n++
		}
	}
	return n
}

func (f *fakeAPI) writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Method != http.MethodGet {
			n++
		}
	}
	return n
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.bearer != "" && r.Header.Get("Authorization") != "Bearer "+f.bearer {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	parts := strings.SplitN(strings.TrimPrefix(r.URL.Path, "/v1/"), "/", 2)
	resource := ResourceType(parts[0])
	id := ""
	if len(parts) == 2 {
		id, _ = url.PathUnescape(parts[1])
	}
	body, _ := io.ReadAll(r.Body)
	f.calls = append(f.calls, apiCall{Method: r.Method, Resource: resource, ID: id, Body: body})

	if status, ok := f.fail[r.Method+" "+string(resource)]; ok {
		http.Error(w, `{"error":{"message":"boom"}}`, status)
		return
	}

	key := string(resource) + "/" + id
	switch {
	case r.Method == http.MethodGet && id == "":
		f.list(w, r, resource)
	case r.Method == http.MethodGet:
		raw, ok := f.resources[key]
		if !ok {
			http.Error(w, `{"error":{"code":404}}`, http.StatusNotFound)
			return
		}
		w.Write(raw)
	case r.Method == http.MethodPost:
		var obj struct {
			ID string `json:"id"`
		}
		_ = json.Unmarshal(body, &obj)
		if _, exists := f.resources[string(resource)+"/"+obj.ID]; exists {
			http.Error(w, `{"error":{"code":409}}`, http.StatusConflict)
			return
		}
		f.resources[string(resource)+"/"+obj.ID] = body
		w.Write(body)
	case r.Method == http.MethodPut:
		if r.URL.Query().Get("strict") != "true" {
			http.Error(w, "strict mode expected", http.StatusBadRequest)
			return
		}
		if _, ok := f.resources[key]; !ok {
			http.Error(w, `{"error":{"code":404}}`, http.StatusNotFound)
			return
		}
		f.resources[key] = body
		w.Write(body)
	default:
		http.Error(w, "unsupported", http.StatusMethodNotAllowed)
	}
}

func (f *fakeAPI) list(w http.ResponseWriter, r *http.Request, resource ResourceType) {
	q := r.URL.Query()
	var keys []string
	for k := range f.resources {
		if strings.HasPrefix(k, string(resource)+"/") {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var matched []json.RawMessage
	for _, k := range keys {
		raw := f.resources[k]
		var m map[string]interface{}
		_ = json.Unmarshal(raw, &m)
		if classID := q.Get("classId"); classID != "" && m["classId"] != classID {
			continue
		}
		if issuer := q.Get("issuerId"); issuer != "" && !strings.HasPrefix(m["id"].(string), issuer+".") {
			continue
		}
		matched = append(matched, raw)
	}

	start, _ := strconv.Atoi(q.Get("token"))
	end := len(matched)
	next := ""
	if f.pageSize > 0 && start+f.pageSize < len(matched) {
		end = start + f.pageSize
		next = strconv.Itoa(end)
	}
	resp := map[string]interface{}{"resources": matched[start:end]}
	if next != "" {
		resp["pagination"] = map[string]string{"nextPageToken": next}
	}
	json.NewEncoder(w).Encode(resp)
}

func newTestClient(srv *httptest.Server) *Client {
	return NewClient(context.Background(), nil, WithBaseURL(srv.URL+"/v1"), WithHTTPClient(srv.Client()))
}

// testCredentials returns a service account JSON whose token_uri points at tokenURL.
func testCredentials(t *testing.T, tokenURL string) ([]byte, *rsa.PrivateKey) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
	raw, err := json.Marshal(map[string]string{
		"type":           "service_account",
		"project_id":     "passes-test",
		"private_key_id": "key-1",
		"private_key":    string(pemKey),
		"client_email":   "passes@passes-test.iam.gserviceaccount.com",
		"client_id":      "1234567890",
		"token_uri":      tokenURL,
	})
	if err != nil {
		t.Fatal(err)
	}
	return raw, key
}

type memPositions struct {
	mu     sync.Mutex
	m      map[uuid.UUID]*domain.Position
	sets   int
	clears int
}

func newMemPositions(positions ...*domain.Position) *memPositions {
	s := &memPositions{m: map[uuid.UUID]*domain.Position{}}
	for _, p := range positions {
		s.m[p.ID] = p
	}
	return s
}

func (s *memPositions) GetPosition(_ context.Context, id uuid.UUID) (*domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.m[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	cp.MetaInfo = domain.MetaInfo{}
	for k, v := range p.MetaInfo {
		cp.MetaInfo[k] = v
	}
	return &cp, nil
}

func (s *memPositions) SetWalletObjectID(_ context.Context, id uuid.UUID, objectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.m[id]
	if !ok {
		return domain.ErrNotFound
	}
	if p.MetaInfo == nil {
		p.MetaInfo = domain.MetaInfo{}
	}
	raw, _ := json.Marshal(objectID)
	p.MetaInfo[domain.WalletMetaKey] = raw
	s.sets++
	return nil
}

func (s *memPositions) ClearWalletObjectID(_ context.Context, id uuid.UUID, objectID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.m[id]
	if !ok {
		return domain.ErrNotFound
	}
	if p.MetaInfo.WalletObjectID() == objectID {
		delete(p.MetaInfo, domain.WalletMetaKey)
	}
	s.clears++
	return nil
}

func (s *memPositions) marker(id uuid.UUID) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m[id].MetaInfo.WalletObjectID()
}

type memEvents map[uuid.UUID]*domain.Event

func (m memEvents) GetEvent(_ context.Context, id uuid.UUID) (*domain.Event, error) {
	ev, ok := m[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return ev, nil
}

type fakeGeocoder struct {
	calls    int
	lat, lon float64
}

func (g *fakeGeocoder) Lookup(_ context.Context, _ string) (float64, float64, bool, error) {
	g.calls++
	return g.lat, g.lon, true, nil
}

var testNamespace = Namespace{IssuerID: "ISSUER", Salt: "SALT"}

func testEvent() *domain.Event {
	from := time.Date(2026, 11, 20, 19, 0, 0, 0, time.UTC)
	to := from.Add(3 * time.Hour)
	admission := from.Add(-time.Hour)
	return &domain.Event{
		ID:            uuid.New(),
		OrganizerSlug: "org",
		OrganizerName: "Example Org",
		Slug:          "evt",
		Name:          domain.I18n{"en": "Autumn Concert", "de": "Herbstkonzert"},
		Locale:        "en",
		Locales:       []string{"en", "de"},
		Currency:      "EUR",
		DateFrom:      &from,
		DateTo:        &to,
		DateAdmission: &admission,
		Location:      domain.I18n{"en": "Town Hall\nMain Street 1\nSpringfield"},
		PrimaryColor:  "#8E44B3",
		Wallet:        domain.WalletSettings{DataProtectionApproval: true},
	}
}

func testPosition(ev *domain.Event) *domain.Position {
	return &domain.Position{
		ID:           uuid.New(),
		PositionNo:   1,
		OrderCode:    "ORDERCODE",
		OrderSecret:  "ordersecret",
		EventID:      ev.ID,
		Secret:       "s3cr3tqr",
		AttendeeName: "Jo Doe",
		ItemName:     domain.I18n{"en": "Ticket", "de": "Eintritt"},
		Price:        decimal.RequireFromString("12.50"),
		MetaInfo:     domain.MetaInfo{},
	}
}

func newTestSynchronizer(t *testing.T, ev *domain.Event, positions ...*domain.Position) (*Synchronizer, *fakeAPI, *memPositions) {
	t.Helper()
	api, srv := newFakeAPI(t)
	store := newMemPositions(positions...)
	builder := NewBuilder(testNamespace, "https://tickets.example.org", nil, observability.NopLogger())
	s := NewSynchronizer(newTestClient(srv), store, memEvents{ev.ID: ev}, builder, nil, observability.NopLogger())
	return s, api, store
}
