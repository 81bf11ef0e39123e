package webhook

import (
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/googlepaypasses/internal/observability"
)

const (
	rootKeysCacheKey = "googlepaypasses:rootkeys"
	rootKeysTTL      = time.Hour
)

// KeyCache keeps the fetched root key document between verifications.
type KeyCache interface {
	GetBytes(ctx context.Context, key string) ([]byte, bool, error)
	SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type Verifier struct {
	keysURL string
	http    *http.Client
	cache   KeyCache
	logger  observability.Logger
	now     func() time.Time
}

type VerifierOption func(*Verifier)

func WithHTTPClient(hc *http.Client) VerifierOption {
	return func(v *Verifier) { v.http = hc }
}

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) VerifierOption {
	return func(v *Verifier) { v.now = now }
}

// NewVerifier returns a Verifier fetching root keys from keysURL. cache may be nil.
func NewVerifier(keysURL string, cache KeyCache, logger observability.Logger, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		keysURL: keysURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		cache:   cache,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

type rootKeys struct {
	Keys []struct {
		KeyValue        string `json:"keyValue"`
		ProtocolVersion string `json:"protocolVersion"`
		KeyExpiration   string `json:"keyExpiration"`
	} `json:"keys"`
}

type signedKey struct {
	KeyValue      string `json:"keyValue"`
	KeyExpiration string `json:"keyExpiration"`
}

// Unseal verifies env for issuerID and returns the signed message.
func (v *Verifier) Unseal(ctx context.Context, env *Envelope, issuerID string) (*Message, error) {
	if env.ProtocolVersion != ProtocolVersion {
		return nil, errors.Mark(errors.Newf("unsupported protocol %q", env.ProtocolVersion), ErrMalformed)
	}

	roots, err := v.rootKeys(ctx)
	if err != nil {
		return nil, err
	}

	intermediate, err := v.verifyIntermediate(roots, env.IntermediateSigningKey)
	if err != nil {
		return nil, err
	}

	sig, err := base64.StdEncoding.DecodeString(env.Signature)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decode message signature"), ErrMalformed)
	}
	signed := signedBytes(senderID, issuerID, ProtocolVersion, env.SignedMessage)
	if !verify(intermediate, signed, sig) {
		return nil, errors.Mark(errors.New("message signature does not match"), ErrSignature)
	}

	var msg Message
	if err := json.Unmarshal([]byte(env.SignedMessage), &msg); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decode signed message"), ErrMalformed)
	}
	if msg.ExpTimeMillis != 0 && v.now().UnixMilli() > msg.ExpTimeMillis {
		return nil, errors.Mark(errors.New("message expired"), ErrSignature)
	}
	return &msg, nil
}

func (v *Verifier) verifyIntermediate(roots []*ecdsa.PublicKey, isk IntermediateSigningKey) (*ecdsa.PublicKey, error) {
	signed := signedBytes(senderID, ProtocolVersion, isk.SignedKey)
	ok := false
	for _, encoded := range isk.Signatures {
		sig, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			continue
		}
		for _, root := range roots {
			if verify(root, signed, sig) {
				ok = true
				break
			}
		}
		if ok {
			break
		}
	}
	if !ok {
		return nil, errors.Mark(errors.New("intermediate key is not signed by a root key"), ErrSignature)
	}

	var key signedKey
	if err := json.Unmarshal([]byte(isk.SignedKey), &key); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decode intermediate key"), ErrMalformed)
	}
	if expired(key.KeyExpiration, v.now()) {
		return nil, errors.Mark(errors.New("intermediate key expired"), ErrSignature)
	}
	pub, err := parsePublicKey(key.KeyValue)
	if err != nil {
		return nil, errors.Mark(err, ErrMalformed)
	}
	return pub, nil
}

func (v *Verifier) rootKeys(ctx context.Context) ([]*ecdsa.PublicKey, error) {
	raw, err := v.rootKeyDocument(ctx)
	if err != nil {
		return nil, err
	}
	var doc rootKeys
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(err, "decode root keys")
	}

	now := v.now()
	var keys []*ecdsa.PublicKey
	for _, k := range doc.Keys {
		if k.ProtocolVersion != ProtocolVersion || expired(k.KeyExpiration, now) {
			continue
		}
		pub, err := parsePublicKey(k.KeyValue)
		if err != nil {
			v.logger.Warn("skipping unusable root key: ", err)
			continue
		}
		keys = append(keys, pub)
	}
	if len(keys) == 0 {
		return nil, errors.New("no usable root keys")
	}
	return keys, nil
}

func (v *Verifier) rootKeyDocument(ctx context.Context) ([]byte, error) {
	if v.cache != nil {
		if raw, ok, err := v.cache.GetBytes(ctx, rootKeysCacheKey); err == nil && ok {
			return raw, nil
		} else if err != nil {
			v.logger.Warn("root key cache unavailable: ", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.keysURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build root keys request")
	}
	resp, err := v.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "fetch root keys")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("fetch root keys: status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read root keys")
	}

	if v.cache != nil {
		if err := v.cache.SetBytes(ctx, rootKeysCacheKey, raw, rootKeysTTL); err != nil {
			v.logger.Warn("caching root keys failed: ", err)
		}
	}
	return raw, nil
}

// signedBytes concatenates parts, each prefixed with its 4-byte little-endian length.
func signedBytes(parts ...string) []byte {
	size := 0
	for _, p := range parts {
		size += 4 + len(p)
	}
	out := make([]byte, 0, size)
	for _, p := range parts {
		out = binary.LittleEndian.AppendUint32(out, uint32(len(p)))
		out = append(out, p...)
	}
	return out
}

func verify(pub *ecdsa.PublicKey, data, sig []byte) bool {
	digest := sha256.Sum256(data)
	return ecdsa.VerifyASN1(pub, digest[:], sig)
}

func parsePublicKey(encoded string) (*ecdsa.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.Wrap(err, "decode public key")
	}
	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, errors.Wrap(err, "parse public key")
	}
	pub, ok := key.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not ECDSA")
	}
	return pub, nil
}

// expired treats a missing expiration as non-expiring.
func expired(millis string, now time.Time) bool {
	if millis == "" {
		return false
	}
	ms, err := strconv.ParseInt(millis, 10, 64)
	if err != nil {
		return true
	}
	return now.UnixMilli() > ms
}
