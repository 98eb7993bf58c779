package shared

import "errors"

var (
	// ErrActorMissing indicates the request carries no actor identity.
	ErrActorMissing = errors.New("actor identity missing")
	// ErrIdempotencyKeyInvalid indicates a malformed Idempotency-Key.
	ErrIdempotencyKeyInvalid = errors.New("idempotency key must be a UUID")
)
