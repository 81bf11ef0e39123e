package http

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/robertarktes/googlepaypasses/internal/domain"
	"github.com/robertarktes/googlepaypasses/internal/jobs"
	"github.com/robertarktes/googlepaypasses/internal/observability"
	"github.com/robertarktes/googlepaypasses/internal/wallet"
	"github.com/robertarktes/googlepaypasses/internal/webhook"
)

const maxWebhookBody = 64 << 10

type Organizers interface {
	OrganizerExists(ctx context.Context, slug string) (bool, error)
}

type Positions interface {
	GetOrderPosition(ctx context.Context, orderCode string, positionNo int) (*domain.Position, error)
}

type Events interface {
	GetEvent(ctx context.Context, id uuid.UUID) (*domain.Event, error)
}

// Generator issues the wallet object for a position.
type Generator interface {
	Generate(ctx context.Context, positionID uuid.UUID) (string, error)
}

type Limiter interface {
	Allow(ctx context.Context, key string, rate int, period time.Duration) bool
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handlers struct {
	organizers Organizers
	positions  Positions
	events     Events
	generator  Generator
	enqueuer   jobs.Enqueuer
	limiter    Limiter
	creds      *wallet.Credentials
	siteURL    string
	userAgent  string
	checks     map[string]Pinger
	logger     observability.Logger
}

type Deps struct {
	Organizers Organizers
	Positions  Positions
	Events     Events
	// Generator and Credentials are nil until the installation is configured.
	Generator   Generator
	Credentials *wallet.Credentials
	Enqueuer    jobs.Enqueuer
	Limiter     Limiter
	SiteURL     string
	// UserAgent is the only user agent accepted on webhook calls; empty accepts any.
	UserAgent string
	Checks    map[string]Pinger
	Logger    observability.Logger
}

func NewHandlers(d Deps) *Handlers {
	return &Handlers{
		organizers: d.Organizers,
		positions:  d.Positions,
		events:     d.Events,
		generator:  d.Generator,
		enqueuer:   d.Enqueuer,
		limiter:    d.Limiter,
		creds:      d.Credentials,
		siteURL:    d.SiteURL,
		userAgent:  d.UserAgent,
		checks:     d.Checks,
		logger:     d.Logger,
	}
}

// Webhook accepts a pass callback for an organizer and queues it. Signatures are
// checked by the worker, so a 200 only means the envelope was well-formed.
func (h *Handlers) Webhook(w http.ResponseWriter, r *http.Request) {
	log := loggerFrom(r.Context(), h.logger)
	organizer := chi.URLParam(r, "organizer")

	if h.userAgent != "" && r.UserAgent() != h.userAgent {
		observability.WebhooksReceived.WithLabelValues("forbidden").Inc()
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	if mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err != nil || mt != "application/json" {
		observability.WebhooksReceived.WithLabelValues("bad_request").Inc()
		http.Error(w, "expected application/json", http.StatusBadRequest)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}
	if _, err := webhook.ParseEnvelope(body); err != nil {
		observability.WebhooksReceived.WithLabelValues("malformed").Inc()
		log.WithField("organizer", organizer).Debug("rejecting webhook: ", err)
		http.Error(w, "malformed envelope", http.StatusBadRequest)
		return
	}

	exists, err := h.organizers.OrganizerExists(r.Context(), organizer)
	if err != nil {
		log.WithField("organizer", organizer).Error("organizer lookup failed: ", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !exists {
		observability.WebhooksReceived.WithLabelValues("unknown_organizer").Inc()
		http.NotFound(w, r)
		return
	}

	if h.limiter != nil {
		if !h.limiter.Allow(r.Context(), "webhook:org:"+organizer, 600, time.Minute) ||
			!h.limiter.Allow(r.Context(), "webhook:ip:"+clientIP(r), 120, time.Minute) {
			observability.WebhooksReceived.WithLabelValues("rate_limited").Inc()
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
	}

	if err := h.enqueuer.Enqueue(r.Context(), jobs.Webhook(organizer, body), 0); err != nil {
		log.WithField("organizer", organizer).Error("queueing webhook failed: ", err)
		http.Error(w, "try again later", http.StatusServiceUnavailable)
		return
	}
	observability.WebhooksReceived.WithLabelValues("accepted").Inc()
	w.WriteHeader(http.StatusOK)
}

type disclaimerResponse struct {
	Disclaimer string `json:"disclaimer"`
	AcceptURL  string `json:"accept_url"`
}

// SaveToPhone uploads the position's pass and redirects the buyer to the save link.
func (h *Handlers) SaveToPhone(w http.ResponseWriter, r *http.Request) {
	log := loggerFrom(r.Context(), h.logger)
	code := chi.URLParam(r, "code")
	positionNo, err := strconv.Atoi(chi.URLParam(r, "position"))
	if err != nil {
		http.NotFound(w, r)
		return
	}

	pos, err := h.positions.GetOrderPosition(r.Context(), code, positionNo)
	if errors.Is(err, domain.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		log.WithField("order", code).Error("position lookup failed: ", err)
		http.Error(w, "try again later", http.StatusServiceUnavailable)
		return
	}
	if subtle.ConstantTimeCompare([]byte(pos.OrderSecret), []byte(chi.URLParam(r, "secret"))) != 1 {
		http.NotFound(w, r)
		return
	}

	ev, err := h.events.GetEvent(r.Context(), pos.EventID)
	if err != nil {
		log.WithField("event_id", pos.EventID).Error("event lookup failed: ", err)
		http.Error(w, "try again later", http.StatusServiceUnavailable)
		return
	}
	if !ev.Wallet.DataProtectionApproval {
		http.NotFound(w, r)
		return
	}

	if ev.Wallet.ShowDisclaimer && r.URL.Query().Get("accept") != "1" {
		locale := r.URL.Query().Get("locale")
		if locale == "" {
			locale = ev.Locale
		}
		accept := *r.URL
		q := url.Values{"accept": {"1"}}
		if l := r.URL.Query().Get("locale"); l != "" {
			q.Set("locale", l)
		}
		accept.RawQuery = q.Encode()
		writeJSON(w, http.StatusOK, disclaimerResponse{
			Disclaimer: ev.Wallet.DisclaimerText.Localize(locale),
			AcceptURL:  accept.RequestURI(),
		})
		return
	}

	if h.generator == nil || h.creds == nil {
		log.Warn("save requested but wallet credentials are not configured")
		http.Error(w, "try again later", http.StatusServiceUnavailable)
		return
	}

	objectID, err := h.generator.Generate(r.Context(), pos.ID)
	if err != nil {
		log.WithField("position_id", pos.ID).Error("generating pass failed: ", err)
		http.Error(w, "try again later", http.StatusServiceUnavailable)
		return
	}
	link, err := wallet.SaveURL(h.creds, []string{h.siteURL}, objectID)
	if err != nil {
		log.WithField("object_id", objectID).Error("signing save link failed: ", err)
		http.Error(w, "try again later", http.StatusServiceUnavailable)
		return
	}
	http.Redirect(w, r, link, http.StatusFound)
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// Readyz pings every backing store and reports the ones that failed.
func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failed := map[string]string{}
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"status": "unavailable", "failed": failed})
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
