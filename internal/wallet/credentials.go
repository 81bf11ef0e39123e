package wallet

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2/google"
	oauth2jwt "golang.org/x/oauth2/jwt"
)

// Scope is the OAuth2 scope required for issuer operations.
const Scope = "https://www.googleapis.com/auth/wallet_object.issuer"

var (
	// ErrInvalidCredentials marks configuration problems: the service account JSON
	// cannot be parsed or lacks a usable key. Retrying will not help.
	ErrInvalidCredentials = errors.New("invalid service account credentials")
	// ErrSession marks failures to obtain or use an authenticated session
	// (token exchange rejected, network down). These may succeed later.
	ErrSession = errors.New("wallet session failure")
)

// Credentials is a parsed Google service account.
type Credentials struct {
	ClientEmail  string
	PrivateKeyID string
	PrivateKey   *rsa.PrivateKey

	jwtConfig *oauth2jwt.Config
}

type serviceAccountFile struct {
	Type         string `json:"type"`
	ClientEmail  string `json:"client_email"`
	PrivateKeyID string `json:"private_key_id"`
	PrivateKey   string `json:"private_key"`
}

// ParseCredentials validates a service account JSON blob. Every failure is marked
// with ErrInvalidCredentials.
func ParseCredentials(raw []byte) (*Credentials, error) {
	var f serviceAccountFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decode service account json"), ErrInvalidCredentials)
	}
	if f.Type != "service_account" {
		return nil, errors.Mark(errors.Newf("unexpected credentials type %q", f.Type), ErrInvalidCredentials)
	}
	if f.ClientEmail == "" {
		return nil, errors.Mark(errors.New("client_email is missing"), ErrInvalidCredentials)
	}

	cfg, err := google.JWTConfigFromJSON(raw, Scope)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "build jwt config"), ErrInvalidCredentials)
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(f.PrivateKey))
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "parse private key"), ErrInvalidCredentials)
	}

	return &Credentials{
		ClientEmail:  f.ClientEmail,
		PrivateKeyID: f.PrivateKeyID,
		PrivateKey:   key,
		jwtConfig:    cfg,
	}, nil
}

// HTTPClient returns a client that exchanges the service account assertion for
// bearer tokens on demand.
func (c *Credentials) HTTPClient(ctx context.Context) *http.Client {
	return c.jwtConfig.Client(ctx)
}
