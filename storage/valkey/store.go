package valkey

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"time"

	valkeygo "github.com/valkey-io/valkey-go"

	"github.com/helixauth/helix/storage"
)

const (
	// DefaultKeyPrefix is the default prefix for all Valkey keys.
	DefaultKeyPrefix = "helix:"

	// tokenIDLogLength is the number of characters to include when logging
	// token material.
	tokenIDLogLength = 8

	// connectionVerifyTimeout is the timeout for initial connection
	// verification.
	connectionVerifyTimeout = 5 * time.Second
)

// luaTakeAndDelete retrieves a key's value and deletes it in one atomic
// server-side step. Returns 'NOT_FOUND' when the key does not exist; stored
// values are JSON objects, so the sentinel cannot collide with data.
const luaTakeAndDelete = `
local data = redis.call('GET', KEYS[1])
if not data then
    return 'NOT_FOUND'
end
redis.call('DEL', KEYS[1])
return data
`

// Config holds configuration for the Valkey storage backend.
type Config struct {
	// Address is the Valkey server address (required), e.g. "localhost:6379".
	Address string

	// Password is the optional password for Valkey authentication.
	Password string

	// DB is the optional database number (default 0).
	DB int

	// KeyPrefix is the prefix for all keys (default "helix:").
	KeyPrefix string

	// TLS is the optional TLS configuration for encrypted connections.
	TLS *tls.Config

	// Logger is the optional structured logger (default slog.Default()).
	Logger *slog.Logger
}

// Store is a Valkey-backed implementation of all storage interfaces.
type Store struct {
	client valkeygo.Client
	prefix string
	logger *slog.Logger
}

// Compile-time interface checks.
var (
	_ storage.ClientStore     = (*Store)(nil)
	_ storage.FlowStore       = (*Store)(nil)
	_ storage.TokenStore      = (*Store)(nil)
	_ storage.RevocationStore = (*Store)(nil)
)

// New creates a new Valkey-backed storage instance.
// Returns an error if the connection cannot be established.
func New(cfg Config) (*Store, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("valkey address is required")
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	opts := valkeygo.ClientOption{
		InitAddress: []string{cfg.Address},
		SelectDB:    cfg.DB,
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.TLS != nil {
		opts.TLSConfig = cfg.TLS
	}

	client, err := valkeygo.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectionVerifyTimeout)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	logger.Info("Connected to Valkey storage",
		"address", cfg.Address,
		"db", cfg.DB,
		"prefix", prefix)

	return &Store{
		client: client,
		prefix: prefix,
		logger: logger,
	}, nil
}

// Close closes the Valkey client connection.
func (s *Store) Close() error {
	s.client.Close()
	s.logger.Info("Valkey storage connection closed")
	return nil
}

// SetLogger sets a custom logger for the store.
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// takeAndDelete runs the atomic retrieve-and-delete script against a key.
// Returns ("", false, nil) when the key does not exist.
func (s *Store) takeAndDelete(ctx context.Context, key string) (string, bool, error) {
	result, err := s.client.Do(ctx,
		s.client.B().Eval().Script(luaTakeAndDelete).
			Numkeys(1).
			Key(key).
			Build(),
	).ToString()
	if err != nil {
		return "", false, fmt.Errorf("failed to execute atomic take: %w", err)
	}
	if result == "NOT_FOUND" {
		return "", false, nil
	}
	return result, true, nil
}

// Key helpers. Access and refresh keys are the index member forms under the
// store prefix, so bulk revocation can delete records straight from the
// client-user set.

func (s *Store) clientKey(clientID string) string {
	return s.prefix + "client:" + clientID
}

func (s *Store) codeKey(clientID, code string) string {
	return s.prefix + "code:" + clientID + ":" + code
}

func (s *Store) accessTokenKey(token string) string {
	return s.prefix + storage.AccessTokenKey(token)
}

func (s *Store) refreshTokenKey(clientID, token string) string {
	return s.prefix + storage.RefreshTokenKey(clientID, token)
}

func (s *Store) clientUserKey(clientID, userID string) string {
	return s.prefix + "clientuser:" + clientID + ":" + userID
}

// isNilError checks if the error indicates a nil/not-found result from
// Valkey.
func isNilError(err error) bool {
	return valkeygo.IsValkeyNil(err)
}

// calculateTTL calculates the TTL for a key based on expiry time.
// Returns 0 if the key has already expired.
func calculateTTL(expiresAt time.Time) time.Duration {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return 0
	}
	return ttl
}
