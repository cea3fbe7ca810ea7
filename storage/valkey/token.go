package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/helixauth/helix/internal/util"
	"github.com/helixauth/helix/storage"
)

// accessTokenJSON is the stored representation of an access token.
type accessTokenJSON struct {
	Grant     storage.Grant `json:"grant"`
	ExpiresAt int64         `json:"expires_at"`
}

// refreshTokenJSON is the stored representation of a refresh token. Refresh
// tokens carry no expiry; they live until rotated or revoked.
type refreshTokenJSON struct {
	Grant storage.Grant `json:"grant"`
}

// ============================================================
// TokenStore Implementation
// ============================================================

// SaveAccessToken persists an access token with a TTL derived from expiresAt.
func (s *Store) SaveAccessToken(ctx context.Context, token string, grant *storage.Grant, expiresAt time.Time) error {
	if token == "" || grant == nil {
		return fmt.Errorf("invalid access token")
	}

	ttl := calculateTTL(expiresAt)
	if ttl <= 0 {
		return fmt.Errorf("access token already expired")
	}

	data, err := json.Marshal(&accessTokenJSON{
		Grant:     *grant,
		ExpiresAt: expiresAt.Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal access token: %w", err)
	}

	if err := s.client.Do(ctx,
		s.client.B().Set().Key(s.accessTokenKey(token)).Value(string(data)).Ex(ttl).Build(),
	).Error(); err != nil {
		return fmt.Errorf("failed to save access token: %w", err)
	}

	s.logger.Debug("Saved access token",
		"client_id", grant.ClientID,
		"token_prefix", util.SafeTruncate(token, tokenIDLogLength),
		"ttl", ttl)
	return nil
}

// GetAccessToken retrieves the grant behind an access token along with its
// expiry. The TTL usually evicts expired tokens before this is reached; the
// stored timestamp is checked as well so a token never validates past its
// expiry even under clock drift.
func (s *Store) GetAccessToken(ctx context.Context, token string) (*storage.Grant, time.Time, error) {
	data, err := s.client.Do(ctx, s.client.B().Get().Key(s.accessTokenKey(token)).Build()).ToString()
	if err != nil {
		if isNilError(err) {
			return nil, time.Time{}, storage.ErrTokenNotFound
		}
		return nil, time.Time{}, fmt.Errorf("failed to get access token: %w", err)
	}

	var j accessTokenJSON
	if err := json.Unmarshal([]byte(data), &j); err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to unmarshal access token: %w", err)
	}

	expiresAt := time.Unix(j.ExpiresAt, 0)
	if time.Now().Unix() > j.ExpiresAt {
		return nil, time.Time{}, storage.ErrTokenExpired
	}

	grant := j.Grant
	return &grant, expiresAt, nil
}

// DeleteAccessToken removes an access token before its TTL elapses.
func (s *Store) DeleteAccessToken(ctx context.Context, token string) error {
	if err := s.client.Do(ctx,
		s.client.B().Del().Key(s.accessTokenKey(token)).Build(),
	).Error(); err != nil {
		return fmt.Errorf("failed to delete access token: %w", err)
	}
	return nil
}

// SaveRefreshToken persists a refresh token under (clientID, token) with no
// TTL.
func (s *Store) SaveRefreshToken(ctx context.Context, clientID, token string, grant *storage.Grant) error {
	if clientID == "" || token == "" || grant == nil {
		return fmt.Errorf("invalid refresh token")
	}

	data, err := json.Marshal(&refreshTokenJSON{Grant: *grant})
	if err != nil {
		return fmt.Errorf("failed to marshal refresh token: %w", err)
	}

	if err := s.client.Do(ctx,
		s.client.B().Set().Key(s.refreshTokenKey(clientID, token)).Value(string(data)).Build(),
	).Error(); err != nil {
		return fmt.Errorf("failed to save refresh token: %w", err)
	}

	s.logger.Debug("Saved refresh token",
		"client_id", clientID,
		"token_prefix", util.SafeTruncate(token, tokenIDLogLength))
	return nil
}

// TakeRefreshToken retrieves and deletes a refresh token in one atomic Lua
// step, so a rotation never hands out two successors for one token.
func (s *Store) TakeRefreshToken(ctx context.Context, clientID, token string) (*storage.Grant, error) {
	data, found, err := s.takeAndDelete(ctx, s.refreshTokenKey(clientID, token))
	if err != nil {
		return nil, fmt.Errorf("failed to take refresh token: %w", err)
	}
	if !found {
		return nil, storage.ErrTokenNotFound
	}

	var j refreshTokenJSON
	if err := json.Unmarshal([]byte(data), &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal refresh token: %w", err)
	}

	s.logger.Debug("Took refresh token",
		"client_id", clientID,
		"token_prefix", util.SafeTruncate(token, tokenIDLogLength))

	grant := j.Grant
	return &grant, nil
}

// ============================================================
// RevocationStore Implementation
// ============================================================

// IndexTokens records issued token keys in the client-user set. Members are
// the storage.AccessTokenKey / storage.RefreshTokenKey forms, which become
// full Valkey keys when the store prefix is applied.
func (s *Store) IndexTokens(ctx context.Context, clientID, userID string, tokenKeys ...string) error {
	if clientID == "" || userID == "" {
		return fmt.Errorf("invalid client-user pair")
	}
	if len(tokenKeys) == 0 {
		return nil
	}

	if err := s.client.Do(ctx,
		s.client.B().Sadd().Key(s.clientUserKey(clientID, userID)).Member(tokenKeys...).Build(),
	).Error(); err != nil {
		return fmt.Errorf("failed to index tokens: %w", err)
	}
	return nil
}

// ListClientUserTokens returns the indexed token keys for a pair.
func (s *Store) ListClientUserTokens(ctx context.Context, clientID, userID string) ([]string, error) {
	members, err := s.client.Do(ctx,
		s.client.B().Smembers().Key(s.clientUserKey(clientID, userID)).Build(),
	).AsStrSlice()
	if err != nil {
		return nil, fmt.Errorf("failed to list client-user tokens: %w", err)
	}
	return members, nil
}

// RevokeClientUserTokens deletes every indexed token for the pair and clears
// the index. Returns the number of token records removed; records whose TTL
// already evicted them are not counted.
func (s *Store) RevokeClientUserTokens(ctx context.Context, clientID, userID string) (int, error) {
	setKey := s.clientUserKey(clientID, userID)

	members, err := s.client.Do(ctx, s.client.B().Smembers().Key(setKey).Build()).AsStrSlice()
	if err != nil {
		return 0, fmt.Errorf("failed to read client-user token index: %w", err)
	}

	removed := 0
	if len(members) > 0 {
		keys := make([]string, len(members))
		for i, member := range members {
			keys[i] = s.prefix + member
		}

		deleted, err := s.client.Do(ctx, s.client.B().Del().Key(keys...).Build()).AsInt64()
		if err != nil {
			return 0, fmt.Errorf("failed to delete indexed tokens: %w", err)
		}
		removed = int(deleted)
	}

	if err := s.client.Do(ctx, s.client.B().Del().Key(setKey).Build()).Error(); err != nil {
		return removed, fmt.Errorf("failed to clear client-user token index: %w", err)
	}

	s.logger.Debug("Revoked client-user tokens",
		"client_id", clientID,
		"user_id", userID,
		"removed", removed)
	return removed, nil
}
