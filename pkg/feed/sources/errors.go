// Package sources provides the provider adapter capability and implementations.
package sources

import "errors"

var (
	// ErrSourceTimeout indicates an adapter call exceeded its timeout.
	ErrSourceTimeout = errors.New("source timeout")
	// ErrSourceUnavailable indicates a connection or authentication failure.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrMalformedResponse indicates the adapter returned an unusable payload.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrAllSourcesExhausted indicates every configured source failed to produce a usable price.
	ErrAllSourcesExhausted = errors.New("all sources exhausted")
	// ErrConfiguration indicates missing or invalid per-symbol configuration.
	ErrConfiguration = errors.New("configuration error")
	// ErrUnknownAdapter indicates the adapter type is not registered.
	ErrUnknownAdapter = errors.New("unknown adapter")
	// ErrInvalidConfig indicates that the adapter configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrUnknownSymbol indicates the adapter has no mapping for the requested symbol.
	ErrUnknownSymbol = errors.New("unknown symbol")
	// ErrRateLimitExceeded indicates that an upstream rate limit has been exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrUnexpectedStatus indicates an unexpected HTTP status code.
	ErrUnexpectedStatus = errors.New("unexpected HTTP status code")
)
