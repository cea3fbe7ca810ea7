package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/helixauth/helix/internal/util"
	"github.com/helixauth/helix/storage"
)

// authorizationCodeJSON is the stored representation of an issued code.
type authorizationCodeJSON struct {
	Grant     storage.Grant `json:"grant"`
	CreatedAt int64         `json:"created_at"`
	ExpiresAt int64         `json:"expires_at"`
}

// ============================================================
// FlowStore Implementation
// ============================================================

// SaveAuthorizationCode persists an issued code under (ClientID, Code) with a
// TTL derived from ExpiresAt, so the backend evicts unexchanged codes on its
// own.
func (s *Store) SaveAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) error {
	if code == nil || code.Code == "" || code.Grant.ClientID == "" {
		return fmt.Errorf("invalid authorization code")
	}

	ttl := calculateTTL(code.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("authorization code already expired")
	}

	data, err := json.Marshal(&authorizationCodeJSON{
		Grant:     code.Grant,
		CreatedAt: code.CreatedAt.Unix(),
		ExpiresAt: code.ExpiresAt.Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal authorization code: %w", err)
	}

	key := s.codeKey(code.Grant.ClientID, code.Code)
	if err := s.client.Do(ctx,
		s.client.B().Set().Key(key).Value(string(data)).Ex(ttl).Build(),
	).Error(); err != nil {
		return fmt.Errorf("failed to save authorization code: %w", err)
	}

	s.logger.Debug("Saved authorization code",
		"client_id", code.Grant.ClientID,
		"code_prefix", util.SafeTruncate(code.Code, tokenIDLogLength),
		"ttl", ttl)
	return nil
}

// TakeAuthorizationCode retrieves and deletes a code in one atomic Lua step,
// so only ONE of any number of concurrent exchanges can succeed. The TTL set
// at save time evicts expired codes, but the expiry is double-checked against
// the stored timestamp in case of clock drift.
func (s *Store) TakeAuthorizationCode(ctx context.Context, clientID, code string) (*storage.Grant, error) {
	data, found, err := s.takeAndDelete(ctx, s.codeKey(clientID, code))
	if err != nil {
		return nil, fmt.Errorf("failed to take authorization code: %w", err)
	}
	if !found {
		return nil, storage.ErrCodeNotFound
	}

	var j authorizationCodeJSON
	if err := json.Unmarshal([]byte(data), &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal authorization code: %w", err)
	}

	if time.Now().Unix() > j.ExpiresAt {
		return nil, storage.ErrCodeNotFound
	}

	s.logger.Debug("Took authorization code",
		"client_id", clientID,
		"code_prefix", util.SafeTruncate(code, tokenIDLogLength))

	grant := j.Grant
	return &grant, nil
}

// DeleteAuthorizationCode removes a code without returning it.
func (s *Store) DeleteAuthorizationCode(ctx context.Context, clientID, code string) error {
	if err := s.client.Do(ctx,
		s.client.B().Del().Key(s.codeKey(clientID, code)).Build(),
	).Error(); err != nil {
		return fmt.Errorf("failed to delete authorization code: %w", err)
	}
	return nil
}
