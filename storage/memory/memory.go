package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/helixauth/helix/internal/util"
	"github.com/helixauth/helix/security"
	"github.com/helixauth/helix/storage"
)

// tokenIDLogLength is the number of characters to include when logging token
// material. Enough uniqueness for debugging while keeping logs safe.
const tokenIDLogLength = 8

// dummySecretHash is a pre-computed bcrypt hash compared against when the
// client does not exist, so validation takes the same time either way.
const dummySecretHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// accessRecord is a stored access token with its expiry.
type accessRecord struct {
	grant     storage.Grant
	expiresAt time.Time
}

// Store is an in-memory implementation of all storage interfaces.
type Store struct {
	mu sync.RWMutex

	// Client registry.
	clients map[string]*storage.Client

	// Authorization codes, keyed by clientID:code.
	codes map[string]*storage.AuthorizationCode

	// Access tokens keyed by token, refresh tokens keyed by clientID:token.
	accessTokens  map[string]*accessRecord
	refreshTokens map[string]*storage.Grant

	// Client-user token index, keyed by clientID:userID. Members are the
	// storage.AccessTokenKey / storage.RefreshTokenKey forms.
	index map[string]map[string]struct{}

	// Cleanup.
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
	logger          *slog.Logger
}

// Compile-time interface checks.
var (
	_ storage.ClientStore     = (*Store)(nil)
	_ storage.FlowStore       = (*Store)(nil)
	_ storage.TokenStore      = (*Store)(nil)
	_ storage.RevocationStore = (*Store)(nil)
)

// New creates a new in-memory store with the default cleanup interval
// (1 minute).
func New() *Store {
	return NewWithInterval(time.Minute)
}

// NewWithInterval creates a new in-memory store with a custom cleanup
// interval. If cleanupInterval is 0 or negative, the default of 1 minute is
// used.
func NewWithInterval(cleanupInterval time.Duration) *Store {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	s := &Store{
		clients:         make(map[string]*storage.Client),
		codes:           make(map[string]*storage.AuthorizationCode),
		accessTokens:    make(map[string]*accessRecord),
		refreshTokens:   make(map[string]*storage.Grant),
		index:           make(map[string]map[string]struct{}),
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
		logger:          slog.Default(),
	}

	go s.cleanupLoop()

	return s
}

// SetLogger sets a custom logger.
func (s *Store) SetLogger(logger *slog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if logger != nil {
		s.logger = logger
	}
}

// Close stops the background cleanup goroutine.
func (s *Store) Close() error {
	s.stopOnce.Do(func() { close(s.stopCleanup) })
	return nil
}

// pairKey joins two identifiers into one map key. Generated codes and tokens
// are base62, so the separator cannot collide.
func pairKey(a, b string) string {
	return a + ":" + b
}

// ============================================================
// ClientStore
// ============================================================

// GetClient retrieves a registered client by ID.
func (s *Store) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	client, ok := s.clients[clientID]
	if !ok {
		return nil, storage.ErrClientNotFound
	}

	c := *client
	return &c, nil
}

// ValidateClientSecret validates a client's secret using bcrypt.
// A bcrypt comparison is performed whether or not the client exists, so
// response timing does not reveal registered client IDs.
func (s *Store) ValidateClientSecret(ctx context.Context, clientID, clientSecret string) error {
	client, err := s.GetClient(ctx, clientID)

	hashToCompare := dummySecretHash
	if err == nil && client.SecretHash != "" {
		hashToCompare = client.SecretHash
	}

	cmpErr := bcrypt.CompareHashAndPassword([]byte(hashToCompare), []byte(clientSecret))

	if err != nil {
		return storage.ErrClientNotFound
	}
	if cmpErr != nil {
		return storage.ErrInvalidClientSecret
	}
	return nil
}

// SaveClient registers or replaces a client. The SecretHash must already be
// a bcrypt hash; see security.HashClientSecret.
func (s *Store) SaveClient(ctx context.Context, client *storage.Client) error {
	if client == nil || client.ID == "" {
		return fmt.Errorf("invalid client")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := *client
	s.clients[client.ID] = &c
	return nil
}

// ============================================================
// FlowStore
// ============================================================

// SaveAuthorizationCode persists an issued code under (ClientID, Code).
func (s *Store) SaveAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) error {
	if code == nil || code.Code == "" || code.Grant.ClientID == "" {
		return fmt.Errorf("invalid authorization code")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := *code
	s.codes[pairKey(code.Grant.ClientID, code.Code)] = &c

	s.logger.Debug("Saved authorization code",
		"client_id", code.Grant.ClientID,
		"code_prefix", util.SafeTruncate(code.Code, tokenIDLogLength),
		"expires_at", code.ExpiresAt)
	return nil
}

// TakeAuthorizationCode retrieves and deletes a code under the write lock, so
// concurrent exchanges of the same code yield exactly one grant.
func (s *Store) TakeAuthorizationCode(ctx context.Context, clientID, code string) (*storage.Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey(clientID, code)
	rec, ok := s.codes[key]
	if !ok {
		return nil, storage.ErrCodeNotFound
	}
	delete(s.codes, key)

	if security.IsTokenExpired(rec.ExpiresAt) {
		return nil, storage.ErrCodeNotFound
	}

	grant := rec.Grant
	return &grant, nil
}

// DeleteAuthorizationCode removes a code without returning it.
func (s *Store) DeleteAuthorizationCode(ctx context.Context, clientID, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.codes, pairKey(clientID, code))
	return nil
}

// ============================================================
// TokenStore
// ============================================================

// SaveAccessToken persists an access token until expiresAt.
func (s *Store) SaveAccessToken(ctx context.Context, token string, grant *storage.Grant, expiresAt time.Time) error {
	if token == "" || grant == nil {
		return fmt.Errorf("invalid access token")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.accessTokens[token] = &accessRecord{grant: *grant, expiresAt: expiresAt}
	return nil
}

// GetAccessToken retrieves the grant behind an access token.
func (s *Store) GetAccessToken(ctx context.Context, token string) (*storage.Grant, time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.accessTokens[token]
	if !ok {
		return nil, time.Time{}, storage.ErrTokenNotFound
	}
	if security.IsTokenExpired(rec.expiresAt) {
		return nil, time.Time{}, storage.ErrTokenExpired
	}

	grant := rec.grant
	return &grant, rec.expiresAt, nil
}

// DeleteAccessToken removes an access token before its TTL elapses.
func (s *Store) DeleteAccessToken(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.accessTokens, token)
	return nil
}

// SaveRefreshToken persists a refresh token under (clientID, token) with no
// expiry.
func (s *Store) SaveRefreshToken(ctx context.Context, clientID, token string, grant *storage.Grant) error {
	if clientID == "" || token == "" || grant == nil {
		return fmt.Errorf("invalid refresh token")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	g := *grant
	s.refreshTokens[pairKey(clientID, token)] = &g
	return nil
}

// TakeRefreshToken retrieves and deletes a refresh token under the write
// lock, so a rotation never hands out two successors for one token.
func (s *Store) TakeRefreshToken(ctx context.Context, clientID, token string) (*storage.Grant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := pairKey(clientID, token)
	grant, ok := s.refreshTokens[key]
	if !ok {
		return nil, storage.ErrTokenNotFound
	}
	delete(s.refreshTokens, key)

	g := *grant
	return &g, nil
}

// ============================================================
// RevocationStore
// ============================================================

// IndexTokens records issued token keys under (clientID, userID).
func (s *Store) IndexTokens(ctx context.Context, clientID, userID string, tokenKeys ...string) error {
	if clientID == "" || userID == "" {
		return fmt.Errorf("invalid client-user pair")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pair := pairKey(clientID, userID)
	set, ok := s.index[pair]
	if !ok {
		set = make(map[string]struct{})
		s.index[pair] = set
	}
	for _, key := range tokenKeys {
		set[key] = struct{}{}
	}
	return nil
}

// ListClientUserTokens returns the indexed token keys for a pair.
func (s *Store) ListClientUserTokens(ctx context.Context, clientID, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set := s.index[pairKey(clientID, userID)]
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	return keys, nil
}

// RevokeClientUserTokens deletes every indexed token for the pair and clears
// the index. Returns the number of token records removed.
func (s *Store) RevokeClientUserTokens(ctx context.Context, clientID, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pair := pairKey(clientID, userID)
	set := s.index[pair]

	removed := 0
	for key := range set {
		if token, ok := strings.CutPrefix(key, "access:"); ok {
			if _, present := s.accessTokens[token]; present {
				delete(s.accessTokens, token)
				removed++
			}
		} else if rest, ok := strings.CutPrefix(key, "refresh:"); ok {
			if _, present := s.refreshTokens[rest]; present {
				delete(s.refreshTokens, rest)
				removed++
			}
		}
	}
	delete(s.index, pair)

	s.logger.Debug("Revoked client-user tokens",
		"client_id", clientID,
		"user_id", userID,
		"removed", removed)
	return removed, nil
}

// ============================================================
// Cleanup
// ============================================================

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

// cleanup removes expired codes and access tokens. Refresh tokens have no
// TTL and survive until rotated or revoked, matching the storage contract.
// Expiry checks apply a clock skew grace so a sweep never races a request
// observing the exact expiry instant.
func (s *Store) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	cleaned := 0

	for key, rec := range s.codes {
		if security.IsTokenExpiredWithGracePeriod(rec.ExpiresAt, security.DefaultClockSkewGracePeriod) {
			delete(s.codes, key)
			cleaned++
		}
	}

	for token, rec := range s.accessTokens {
		if security.IsTokenExpiredWithGracePeriod(rec.expiresAt, security.DefaultClockSkewGracePeriod) {
			delete(s.accessTokens, token)
			cleaned++
		}
	}

	if cleaned > 0 {
		s.logger.Debug("Cleaned up expired records", "count", cleaned)
	}
}
