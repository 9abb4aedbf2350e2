package api

import "errors"

// Sentinel kinds for API errors.
var (
	ErrBadRequest  = errors.New("bad request")
	ErrRateLimited = errors.New("rate limit exceeded")
	ErrKeyReused   = errors.New("idempotency key reused with a different request")
	ErrKeyInFlight = errors.New("request with this idempotency key is in progress")
)
