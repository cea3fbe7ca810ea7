package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/helixauth/helix/instrumentation"
	"github.com/helixauth/helix/security"
	"github.com/helixauth/helix/storage"
)

const (
	// DefaultCodeTTL is the lifetime of an issued authorization code.
	DefaultCodeTTL = 60 * time.Second

	// DefaultAccessTokenTTL is the lifetime of an issued access token.
	DefaultAccessTokenTTL = 3600 * time.Second

	// DefaultTokenType is the access token type reported to clients.
	DefaultTokenType = "Bearer"

	// tokenIDLogLength is the number of characters of token material that may
	// appear in logs.
	tokenIDLogLength = 8
)

// Config holds the dependencies and settings of an AuthorizationProvider.
// Clients, Flows, Tokens, and Revocations are required; everything else has
// a working default.
type Config struct {
	// Clients is the client registry (required).
	Clients storage.ClientStore

	// Flows persists authorization codes (required).
	Flows storage.FlowStore

	// Tokens persists access and refresh tokens (required).
	Tokens storage.TokenStore

	// Revocations maintains the client-user token index (required).
	Revocations storage.RevocationStore

	// Generator produces codes and tokens (default: 40-char base62).
	Generator *security.TokenGenerator

	// Auditor records security events (default: disabled).
	Auditor *security.Auditor

	// Metrics records domain metrics (optional).
	Metrics *instrumentation.Metrics

	// Logger is the structured logger (default slog.Default()).
	Logger *slog.Logger

	// CodeTTL is the authorization code lifetime (default 60s).
	CodeTTL time.Duration

	// AccessTokenTTL is the access token lifetime (default 3600s).
	AccessTokenTTL time.Duration

	// TokenType is the token type reported to clients (default "Bearer").
	TokenType string
}

// AuthorizationProvider is the authorization-server state machine. It issues
// authorization codes, exchanges them for tokens, rotates refresh tokens,
// and revokes token sets. All state lives in the injected stores.
type AuthorizationProvider struct {
	clients     storage.ClientStore
	flows       storage.FlowStore
	tokens      storage.TokenStore
	revocations storage.RevocationStore
	generator   *security.TokenGenerator
	auditor     *security.Auditor
	metrics     *instrumentation.Metrics

	codeTTL        time.Duration
	accessTokenTTL time.Duration
	tokenType      string
	logger         *slog.Logger
}

// New creates an AuthorizationProvider from cfg.
func New(cfg Config) (*AuthorizationProvider, error) {
	if cfg.Clients == nil {
		return nil, fmt.Errorf("client store is required")
	}
	if cfg.Flows == nil {
		return nil, fmt.Errorf("flow store is required")
	}
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("token store is required")
	}
	if cfg.Revocations == nil {
		return nil, fmt.Errorf("revocation store is required")
	}

	generator := cfg.Generator
	if generator == nil {
		generator = security.NewTokenGenerator()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	codeTTL := cfg.CodeTTL
	if codeTTL <= 0 {
		codeTTL = DefaultCodeTTL
	}
	accessTokenTTL := cfg.AccessTokenTTL
	if accessTokenTTL <= 0 {
		accessTokenTTL = DefaultAccessTokenTTL
	}
	tokenType := cfg.TokenType
	if tokenType == "" {
		tokenType = DefaultTokenType
	}

	return &AuthorizationProvider{
		clients:        cfg.Clients,
		flows:          cfg.Flows,
		tokens:         cfg.Tokens,
		revocations:    cfg.Revocations,
		generator:      generator,
		auditor:        cfg.Auditor,
		metrics:        cfg.Metrics,
		codeTTL:        codeTTL,
		accessTokenTTL: accessTokenTTL,
		tokenType:      tokenType,
		logger:         logger,
	}, nil
}

// validateClient checks the client's credentials. Lookup and secret failures
// both surface as invalid_client so responses do not reveal which part
// failed.
func (p *AuthorizationProvider) validateClient(ctx context.Context, clientID, clientSecret string) error {
	err := p.clients.ValidateClientSecret(ctx, clientID, clientSecret)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, storage.ErrClientNotFound), errors.Is(err, storage.ErrInvalidClientSecret):
		p.auditor.LogAuthFailure("", clientID, "", "client authentication failed")
		return newError(KindInvalidClient, "client authentication failed")
	default:
		return p.serverError(ctx, "client validation failed", err)
	}
}

// serverError logs a backend fault and wraps it as server_error. The detail
// stays in the log; clients only see the kind.
func (p *AuthorizationProvider) serverError(ctx context.Context, msg string, err error) *Error {
	p.logger.ErrorContext(ctx, msg, "error", err)
	if p.metrics != nil {
		p.metrics.RecordProtocolError(ctx, string(KindServerError))
	}
	return &Error{Kind: KindServerError, reason: msg, cause: err}
}
