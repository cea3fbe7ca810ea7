package storage

import "errors"

// Sentinel errors returned by store implementations. The protocol engine
// matches on these with errors.Is to distinguish a definitive miss (invalid
// client, invalid grant) from a backend fault, which it surfaces as
// server_error instead.
var (
	// ErrClientNotFound indicates no client is registered under the given ID.
	ErrClientNotFound = errors.New("client not found")

	// ErrInvalidClientSecret indicates the presented secret does not match
	// the registered one.
	ErrInvalidClientSecret = errors.New("invalid client secret")

	// ErrCodeNotFound indicates the authorization code does not exist for the
	// given client: never issued, expired, or already consumed.
	ErrCodeNotFound = errors.New("authorization code not found")

	// ErrTokenNotFound indicates the access or refresh token does not exist:
	// never issued, rotated away, or revoked.
	ErrTokenNotFound = errors.New("token not found")

	// ErrTokenExpired indicates the token exists but its lifetime has elapsed.
	ErrTokenExpired = errors.New("token expired")
)
