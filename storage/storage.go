package storage

import (
	"context"
	"time"
)

// ClientStore is the client registry as seen by the protocol engine. The
// registry itself is owned elsewhere; the engine only reads it to validate
// authorization and token requests.
// All methods accept context.Context for tracing and cancellation.
type ClientStore interface {
	// GetClient retrieves a registered client by ID.
	// Returns ErrClientNotFound if no such client exists.
	GetClient(ctx context.Context, clientID string) (*Client, error)

	// ValidateClientSecret checks the presented secret against the registered
	// one. Returns ErrClientNotFound or ErrInvalidClientSecret on failure.
	// Implementations must take the same time whether or not the client
	// exists, so response timing does not reveal registered client IDs.
	ValidateClientSecret(ctx context.Context, clientID, clientSecret string) error

	// SaveClient registers or replaces a client. Used by registry glue and
	// tests, not by the engine.
	SaveClient(ctx context.Context, client *Client) error
}

// FlowStore persists authorization codes for the window between issuance and
// exchange.
// All methods accept context.Context for tracing and cancellation.
type FlowStore interface {
	// SaveAuthorizationCode persists an issued code under (ClientID, Code)
	// with a TTL derived from ExpiresAt.
	SaveAuthorizationCode(ctx context.Context, code *AuthorizationCode) error

	// TakeAuthorizationCode retrieves and deletes a code in one indivisible
	// step. When two exchanges race on the same code, at most one observes
	// the grant; every other caller gets ErrCodeNotFound.
	// SECURITY: This operation MUST be atomic. A read followed by an
	// unconditional delete reopens the double-spend race this closes.
	TakeAuthorizationCode(ctx context.Context, clientID, code string) (*Grant, error)

	// DeleteAuthorizationCode removes a code without returning it.
	DeleteAuthorizationCode(ctx context.Context, clientID, code string) error
}

// TokenStore persists access and refresh tokens.
// All methods accept context.Context for tracing and cancellation.
type TokenStore interface {
	// SaveAccessToken persists an access token with a TTL derived from
	// expiresAt. The token must not validate before this write completes.
	SaveAccessToken(ctx context.Context, token string, grant *Grant, expiresAt time.Time) error

	// GetAccessToken retrieves the grant behind an access token along with
	// its expiry. Returns ErrTokenNotFound or ErrTokenExpired on a miss.
	// Never mutates the record.
	GetAccessToken(ctx context.Context, token string) (*Grant, time.Time, error)

	// DeleteAccessToken removes an access token before its TTL elapses.
	DeleteAccessToken(ctx context.Context, token string) error

	// SaveRefreshToken persists a refresh token under (clientID, token) with
	// no TTL. It lives until taken by rotation or bulk-revoked.
	SaveRefreshToken(ctx context.Context, clientID, token string, grant *Grant) error

	// TakeRefreshToken retrieves and deletes a refresh token in one
	// indivisible step, so a rotation can never hand out two successors for
	// one token. Returns ErrTokenNotFound when absent or already taken.
	TakeRefreshToken(ctx context.Context, clientID, token string) (*Grant, error)
}

// RevocationStore maintains the client-user token index: every token issued
// to a (client, user) pair is recorded so the whole set can be discarded at
// once.
// All methods accept context.Context for tracing and cancellation.
type RevocationStore interface {
	// IndexTokens records freshly issued token keys under (clientID, userID).
	IndexTokens(ctx context.Context, clientID, userID string, tokenKeys ...string) error

	// ListClientUserTokens returns the indexed token keys for a pair.
	// Primarily for tests and debugging.
	ListClientUserTokens(ctx context.Context, clientID, userID string) ([]string, error)

	// RevokeClientUserTokens deletes every indexed token for the pair and
	// clears the index. Returns the number of tokens removed.
	RevokeClientUserTokens(ctx context.Context, clientID, userID string) (int, error)
}

// Client is a registered application. The engine treats it as read-only;
// the ID is unique and immutable once registered.
type Client struct {
	// ID is the public client identifier.
	ID string

	// SecretHash is the bcrypt hash of the client secret.
	SecretHash string

	// RedirectURI is the registered redirect target. Authorization requests
	// must present a redirect URI whose path and authority match it.
	RedirectURI string

	// Scope is the registered permission set, granted when a request omits
	// an explicit scope.
	Scope string
}

// Grant is the session payload carried from authorization through token
// issuance: it is stored with the code, copied to the tokens minted from it,
// and read back during resource validation.
type Grant struct {
	ClientID    string `json:"client_id"`
	UserID      string `json:"user_id,omitempty"`
	Scope       string `json:"scope"`
	RedirectURI string `json:"redirect_uri,omitempty"`
}

// AuthorizationCode is an issued, not-yet-exchanged code.
type AuthorizationCode struct {
	Code      string
	Grant     Grant
	CreatedAt time.Time
	ExpiresAt time.Time
}
