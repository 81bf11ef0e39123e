package domain

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotConfigured means the installation has no issuer id or service account yet.
	ErrNotConfigured = errors.New("wallet passes are not configured")

	// ErrSerializationFailure is returned when CockroachDB aborted a transaction that
	// may succeed if retried.
	ErrSerializationFailure = errors.New("serialization failure")
)
