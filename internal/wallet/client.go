package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/googlepaypasses/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const DefaultBaseURL = "https://walletobjects.googleapis.com/walletobjects/v1"

// APIError is any response other than 200, or 404 on a read.
type APIError struct {
	Resource   ResourceType
	Method     string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("wallet api %s %s: status %d: %s", e.Method, e.Resource, e.StatusCode, e.Body)
}

type Client struct {
	http   *http.Client
	base   string
	logger observability.Logger
}

type Option func(*Client)

func WithBaseURL(base string) Option {
	return func(c *Client) { c.base = base }
}

// WithHTTPClient replaces the authenticated session. Tests use it to talk to a fake API.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(logger observability.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient builds a client whose requests carry bearer tokens minted from creds.
// creds may be nil when WithHTTPClient supplies the transport.
func NewClient(ctx context.Context, creds *Credentials, opts ...Option) *Client {
	c := &Client{base: DefaultBaseURL, logger: observability.NopLogger()}
	if creds != nil {
		c.http = creds.HTTPClient(ctx)
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = http.DefaultClient
	}
	return c
}

// Get fetches a resource. A 404 is reported as found == false with a nil error.
func (c *Client) Get(ctx context.Context, resource ResourceType, id string) (json.RawMessage, bool, error) {
	status, body, err := c.do(ctx, http.MethodGet, resource, c.resourceURL(resource, id, nil), nil)
	if err != nil {
		return nil, false, err
	}
	switch status {
	case http.StatusOK:
		return body, true, nil
	case http.StatusNotFound:
		return nil, false, nil
	default:
		return nil, false, c.apiError(resource, http.MethodGet, status, body)
	}
}

// Insert creates a resource and returns the id echoed by the API.
func (c *Client) Insert(ctx context.Context, resource ResourceType, payload interface{}) (string, error) {
	status, body, err := c.do(ctx, http.MethodPost, resource, c.base+"/"+string(resource), payload)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", c.apiError(resource, http.MethodPost, status, body)
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return "", errors.Wrapf(err, "decode %s insert response", resource)
	}
	if created.ID == "" {
		return "", errors.Newf("%s insert response carries no id", resource)
	}
	return created.ID, nil
}

// Update replaces a resource in strict mode.
func (c *Client) Update(ctx context.Context, resource ResourceType, id string, payload interface{}) error {
	u := c.resourceURL(resource, id, url.Values{"strict": {"true"}})
	status, body, err := c.do(ctx, http.MethodPut, resource, u, payload)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return c.apiError(resource, http.MethodPut, status, body)
	}
	return nil
}

// List returns every resource matching filter (issuerId for classes, classId for objects),
// following pagination tokens.
func (c *Client) List(ctx context.Context, resource ResourceType, filter url.Values) ([]json.RawMessage, error) {
	var out []json.RawMessage
	token := ""
	for {
		q := url.Values{}
		for k, v := range filter {
			q[k] = v
		}
		if token != "" {
			q.Set("token", token)
		}
		status, body, err := c.do(ctx, http.MethodGet, resource, c.base+"/"+string(resource)+"?"+q.Encode(), nil)
		if err != nil {
			return nil, err
		}
		if status != http.StatusOK {
			return nil, c.apiError(resource, http.MethodGet, status, body)
		}
		var page struct {
			Resources  []json.RawMessage `json:"resources"`
			Pagination struct {
				NextPageToken string `json:"nextPageToken"`
			} `json:"pagination"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, errors.Wrapf(err, "decode %s list", resource)
		}
		out = append(out, page.Resources...)
		if page.Pagination.NextPageToken == "" {
			return out, nil
		}
		token = page.Pagination.NextPageToken
	}
}

func (c *Client) resourceURL(resource ResourceType, id string, q url.Values) string {
	u := c.base + "/" + string(resource) + "/" + url.PathEscape(id)
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func (c *Client) do(ctx context.Context, method string, resource ResourceType, u string, payload interface{}) (int, []byte, error) {
	ctx, span := otel.Tracer("wallet").Start(ctx, method+" "+string(resource))
	defer span.End()

	start := time.Now()
	defer func() {
		observability.WalletAPIDuration.WithLabelValues(string(resource), method).Observe(time.Since(start).Seconds())
	}()

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, errors.Wrapf(err, "encode %s payload", resource)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return 0, nil, errors.Wrap(err, "build wallet request")
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport")
		observability.WalletAPICalls.WithLabelValues(string(resource), method, "session_error").Inc()
		return 0, nil, errors.Mark(errors.Wrapf(err, "wallet api %s %s", method, resource), ErrSession)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, errors.Mark(errors.Wrap(err, "read wallet response"), ErrSession)
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	observability.WalletAPICalls.WithLabelValues(string(resource), method, strconv.Itoa(resp.StatusCode)).Inc()
	return resp.StatusCode, data, nil
}

func (c *Client) apiError(resource ResourceType, method string, status int, body []byte) error {
	c.logger.WithFields(map[string]interface{}{
		"resource": resource,
		"method":   method,
		"status":   status,
		"body":     string(body),
	}).Error("wallet api request failed")
	return &APIError{Resource: resource, Method: method, StatusCode: status, Body: string(body)}
}
