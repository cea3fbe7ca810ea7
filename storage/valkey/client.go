package valkey

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/helixauth/helix/storage"
)

// dummySecretHash is a pre-computed bcrypt hash compared against when the
// client does not exist, so validation takes the same time either way.
const dummySecretHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// clientJSON is the stored representation of a registered client.
type clientJSON struct {
	ID          string `json:"id"`
	SecretHash  string `json:"secret_hash"`
	RedirectURI string `json:"redirect_uri"`
	Scope       string `json:"scope"`
}

// ============================================================
// ClientStore Implementation
// ============================================================

// GetClient retrieves a registered client by ID.
func (s *Store) GetClient(ctx context.Context, clientID string) (*storage.Client, error) {
	data, err := s.client.Do(ctx, s.client.B().Get().Key(s.clientKey(clientID)).Build()).ToString()
	if err != nil {
		if isNilError(err) {
			return nil, storage.ErrClientNotFound
		}
		return nil, fmt.Errorf("failed to get client: %w", err)
	}

	var j clientJSON
	if err := json.Unmarshal([]byte(data), &j); err != nil {
		return nil, fmt.Errorf("failed to unmarshal client: %w", err)
	}

	return &storage.Client{
		ID:          j.ID,
		SecretHash:  j.SecretHash,
		RedirectURI: j.RedirectURI,
		Scope:       j.Scope,
	}, nil
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
		return err
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

	data, err := json.Marshal(&clientJSON{
		ID:          client.ID,
		SecretHash:  client.SecretHash,
		RedirectURI: client.RedirectURI,
		Scope:       client.Scope,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal client: %w", err)
	}

	if err := s.client.Do(ctx,
		s.client.B().Set().Key(s.clientKey(client.ID)).Value(string(data)).Build(),
	).Error(); err != nil {
		return fmt.Errorf("failed to save client: %w", err)
	}

	s.logger.Debug("Saved client", "client_id", client.ID)
	return nil
}
