// Package webhook verifies pass callbacks posted by Google.
//
// Callbacks arrive as an ECv2SigningOnly envelope: a message signed by an intermediate
// key, which is itself signed by one of Google's published root keys.
package webhook

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

const (
	ProtocolVersion = "ECv2SigningOnly"
	senderID        = "GooglePayPasses"
)

const (
	EventSave   = "save"
	EventDelete = "del"
)

var (
	// ErrMalformed marks bodies that are not a well-formed callback envelope.
	ErrMalformed = errors.New("malformed webhook payload")
	// ErrSignature marks envelopes whose signatures or expiry do not check out.
	ErrSignature = errors.New("webhook signature verification failed")
)

type Envelope struct {
	Signature              string                 `json:"signature"`
	IntermediateSigningKey IntermediateSigningKey `json:"intermediateSigningKey"`
	ProtocolVersion        string                 `json:"protocolVersion"`
	SignedMessage          string                 `json:"signedMessage"`
}

type IntermediateSigningKey struct {
	SignedKey  string   `json:"signedKey"`
	Signatures []string `json:"signatures"`
}

// Message is the verified content of a callback.
type Message struct {
	ClassID       string `json:"classId"`
	ObjectID      string `json:"objectId"`
	EventType     string `json:"eventType"`
	ExpTimeMillis int64  `json:"expTimeMillis"`
	Count         int    `json:"count"`
	Nonce         string `json:"nonce"`
}

// ParseEnvelope checks that body carries every envelope field. It does not verify anything.
func ParseEnvelope(body []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decode envelope"), ErrMalformed)
	}
	switch {
	case env.Signature == "":
		return nil, errors.Mark(errors.New("signature is missing"), ErrMalformed)
	case env.SignedMessage == "":
		return nil, errors.Mark(errors.New("signedMessage is missing"), ErrMalformed)
	case env.ProtocolVersion == "":
		return nil, errors.Mark(errors.New("protocolVersion is missing"), ErrMalformed)
	case env.IntermediateSigningKey.SignedKey == "" || len(env.IntermediateSigningKey.Signatures) == 0:
		return nil, errors.Mark(errors.New("intermediateSigningKey is incomplete"), ErrMalformed)
	}
	return &env, nil
}
