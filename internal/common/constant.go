// Package common contains shared constants and sentinel errors used across
// the CRADLE5 sync client and the reference forms server.
package common

const (
	// AuthorizationHeaderName carries the bearer access token on API requests.
	AuthorizationHeaderName = "Authorization"

	// IdempotencyKeyHeaderName carries the record's client reference on form
	// POSTs so the server can recognise a repeated submission.
	IdempotencyKeyHeaderName = "Idempotency-Key"

	// BearerPrefix precedes the access token in the Authorization header.
	BearerPrefix = "Bearer "
)
