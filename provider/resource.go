package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/helixauth/helix/instrumentation"
	"github.com/helixauth/helix/internal/util"
	"github.com/helixauth/helix/storage"
)

// ResourceAuthorization is the result of validating a bearer credential.
// A fresh value is constructed per request; it is never shared or reused.
//
// A request without a Bearer credential is unauthenticated, not an error:
// Valid is false and ErrorKind is empty. A presented token that fails
// validation sets ErrorKind.
type ResourceAuthorization struct {
	// IsOAuth reports whether a Bearer credential was presented at all.
	IsOAuth bool

	// Valid reports whether the presented token resolved to a live grant.
	Valid bool

	// Token is the presented access token, when one was presented.
	Token string

	// ClientID, UserID, and Scope come from the grant behind a valid token.
	ClientID string
	UserID   string
	Scope    string

	// ExpiresIn is the remaining lifetime in seconds of a valid token.
	ExpiresIn int64

	// ErrorKind is set when a presented token failed validation.
	ErrorKind ErrorKind
}

// Err implements the hard-failure half of the contract: callers that
// require authentication propagate the returned error, callers that accept
// anonymous access check Valid instead. For an invalid result without an
// ErrorKind (no credential presented) the error reports access_denied.
func (a *ResourceAuthorization) Err() error {
	if a.Valid {
		return nil
	}
	kind := a.ErrorKind
	if kind == "" {
		kind = KindAccessDenied
	}
	return newError(kind, "resource authorization is not valid")
}

// ResourceConfig holds the dependencies of a ResourceProvider. Tokens is
// required.
type ResourceConfig struct {
	Tokens  storage.TokenStore
	Metrics *instrumentation.Metrics
	Logger  *slog.Logger
}

// ResourceProvider validates inbound bearer credentials against the token
// store. It never mutates store state.
type ResourceProvider struct {
	tokens  storage.TokenStore
	metrics *instrumentation.Metrics
	logger  *slog.Logger
}

// NewResourceProvider creates a ResourceProvider from cfg.
func NewResourceProvider(cfg ResourceConfig) (*ResourceProvider, error) {
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("token store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ResourceProvider{
		tokens:  cfg.Tokens,
		metrics: cfg.Metrics,
		logger:  logger,
	}, nil
}

// Authorize validates the value of an Authorization header. An absent or
// malformed header yields an invalid result with no error kind; a presented
// token that is unknown or expired yields access_denied; a store fault
// yields server_error.
func (p *ResourceProvider) Authorize(ctx context.Context, authorizationHeader string) *ResourceAuthorization {
	auth := &ResourceAuthorization{}

	fields := strings.Fields(authorizationHeader)
	if len(fields) < 2 || fields[0] != "Bearer" {
		if p.metrics != nil {
			p.metrics.RecordResourceValidation(ctx, "invalid")
		}
		return auth
	}

	auth.IsOAuth = true
	auth.Token = fields[1]

	grant, expiresAt, err := p.tokens.GetAccessToken(ctx, auth.Token)
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) || errors.Is(err, storage.ErrTokenExpired) {
			auth.ErrorKind = KindAccessDenied
			p.logger.DebugContext(ctx, "Rejected bearer token",
				"token_prefix", util.SafeTruncate(auth.Token, tokenIDLogLength),
				"error", err)
			if p.metrics != nil {
				p.metrics.RecordResourceValidation(ctx, "denied")
			}
			return auth
		}

		auth.ErrorKind = KindServerError
		p.logger.ErrorContext(ctx, "Bearer token validation failed", "error", err)
		if p.metrics != nil {
			p.metrics.RecordResourceValidation(ctx, "error")
		}
		return auth
	}

	auth.Valid = true
	auth.ClientID = grant.ClientID
	auth.UserID = grant.UserID
	auth.Scope = grant.Scope
	auth.ExpiresIn = int64(time.Until(expiresAt).Seconds())

	if p.metrics != nil {
		p.metrics.RecordResourceValidation(ctx, "valid")
	}
	return auth
}
