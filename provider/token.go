package provider

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/helixauth/helix/internal/util"
	"github.com/helixauth/helix/storage"
)

// TokenRequest carries the parameters of a token request.
type TokenRequest struct {
	GrantType    string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Code         string
	RefreshToken string
	Scope        string
}

// TokenResponse is the success body of the token endpoint.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

// Exchange handles the authorization_code grant: it authenticates the
// client, consumes the code in one atomic take, verifies the stored redirect
// URI association, and mints a fresh access/refresh token pair.
//
// The take is what makes codes single-use. When two exchanges race on the
// same code, at most one observes the grant; the loser, like any caller
// presenting a consumed, expired, or never-issued code, fails with
// invalid_grant.
func (p *AuthorizationProvider) Exchange(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	if req.GrantType != "authorization_code" {
		return nil, newError(KindUnsupportedGrantType, "grant_type must be \"authorization_code\"")
	}

	if err := p.validateClient(ctx, req.ClientID, req.ClientSecret); err != nil {
		return nil, err
	}

	grant, err := p.flows.TakeAuthorizationCode(ctx, req.ClientID, req.Code)
	if err != nil {
		if errors.Is(err, storage.ErrCodeNotFound) {
			p.auditor.LogAuthFailure("", req.ClientID, "", "authorization code rejected")
			if p.metrics != nil {
				p.metrics.RecordCodeExchanged(ctx, req.ClientID, string(KindInvalidGrant))
			}
			return nil, newError(KindInvalidGrant, "authorization code is invalid, expired, or already used")
		}
		return nil, p.serverError(ctx, "taking authorization code failed", err)
	}

	if stripQuery(grant.RedirectURI) != stripQuery(req.RedirectURI) {
		// The code is already consumed; a mismatched redirect URI burns it.
		p.auditor.LogAuthFailure(grant.UserID, req.ClientID, "", "redirect URI mismatch on exchange")
		if p.metrics != nil {
			p.metrics.RecordCodeExchanged(ctx, req.ClientID, string(KindInvalidGrant))
		}
		return nil, newError(KindInvalidGrant, "redirect URI does not match the authorization request")
	}

	resp, err := p.issueTokens(ctx, grant)
	if err != nil {
		return nil, err
	}

	p.auditor.LogTokenIssued(grant.UserID, grant.ClientID, grant.Scope)
	if p.metrics != nil {
		p.metrics.RecordCodeExchanged(ctx, req.ClientID, "success")
	}
	p.logger.InfoContext(ctx, "Exchanged authorization code",
		"client_id", grant.ClientID,
		"code_prefix", util.SafeTruncate(req.Code, tokenIDLogLength),
		"scope", grant.Scope)

	return resp, nil
}

// Refresh handles the refresh_token grant: it authenticates the client,
// consumes the presented refresh token in one atomic take, validates the
// recorded scope and client association, and mints a fresh token pair. The
// consumed token never validates again.
func (p *AuthorizationProvider) Refresh(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	if req.GrantType != "refresh_token" {
		return nil, newError(KindUnsupportedGrantType, "grant_type must be \"refresh_token\"")
	}

	if err := p.validateClient(ctx, req.ClientID, req.ClientSecret); err != nil {
		return nil, err
	}

	grant, err := p.tokens.TakeRefreshToken(ctx, req.ClientID, req.RefreshToken)
	if err != nil {
		if errors.Is(err, storage.ErrTokenNotFound) {
			p.auditor.LogAuthFailure("", req.ClientID, "", "refresh token rejected")
			if p.metrics != nil {
				p.metrics.RecordTokenRefreshed(ctx, req.ClientID, string(KindInvalidGrant))
			}
			return nil, newError(KindInvalidGrant, "refresh token is invalid or already rotated")
		}
		return nil, p.serverError(ctx, "taking refresh token failed", err)
	}

	// The take already removed the token. A validation failure past this
	// point restores it so a scope typo does not burn the credential.
	if req.Scope != "" && req.Scope != grant.Scope {
		p.restoreRefreshToken(ctx, req.ClientID, req.RefreshToken, grant)
		return nil, newError(KindInvalidScope, "scope does not match the recorded grant")
	}
	if grant.ClientID != req.ClientID {
		p.restoreRefreshToken(ctx, req.ClientID, req.RefreshToken, grant)
		return nil, newError(KindInvalidGrant, "refresh token does not belong to this client")
	}

	resp, err := p.issueTokens(ctx, grant)
	if err != nil {
		return nil, err
	}

	p.auditor.LogTokenRefreshed(grant.UserID, grant.ClientID, grant.Scope)
	if p.metrics != nil {
		p.metrics.RecordTokenRefreshed(ctx, req.ClientID, "success")
	}
	p.logger.InfoContext(ctx, "Rotated refresh token",
		"client_id", grant.ClientID,
		"token_prefix", util.SafeTruncate(req.RefreshToken, tokenIDLogLength))

	return resp, nil
}

// restoreRefreshToken puts back a token taken by a refresh attempt that then
// failed validation. Best effort: a failure here leaves the token rotated
// out, which is safe, just stricter than intended.
func (p *AuthorizationProvider) restoreRefreshToken(ctx context.Context, clientID, token string, grant *storage.Grant) {
	if err := p.tokens.SaveRefreshToken(ctx, clientID, token, grant); err != nil {
		p.logger.WarnContext(ctx, "Failed to restore refresh token after rejected refresh",
			"client_id", clientID,
			"token_prefix", util.SafeTruncate(token, tokenIDLogLength),
			"error", err)
	}
}

// issueTokens mints and persists a fresh access/refresh token pair for a
// grant and records both under the client-user index. The three writes are
// sequenced so a token can never validate before its own write completes;
// an index write failing after the token writes leaves a narrow window
// where the pair exists unindexed.
func (p *AuthorizationProvider) issueTokens(ctx context.Context, grant *storage.Grant) (*TokenResponse, error) {
	accessToken := p.generator.Generate()
	refreshToken := p.generator.Generate()
	expiresAt := time.Now().Add(p.accessTokenTTL)

	if err := p.tokens.SaveAccessToken(ctx, accessToken, grant, expiresAt); err != nil {
		return nil, p.serverError(ctx, "persisting access token failed", err)
	}
	if err := p.tokens.SaveRefreshToken(ctx, grant.ClientID, refreshToken, grant); err != nil {
		return nil, p.serverError(ctx, "persisting refresh token failed", err)
	}

	if grant.UserID != "" {
		err := p.revocations.IndexTokens(ctx, grant.ClientID, grant.UserID,
			storage.AccessTokenKey(accessToken),
			storage.RefreshTokenKey(grant.ClientID, refreshToken))
		if err != nil {
			return nil, p.serverError(ctx, "indexing issued tokens failed", err)
		}
	}

	return &TokenResponse{
		AccessToken:  accessToken,
		TokenType:    p.tokenType,
		ExpiresIn:    int64(p.accessTokenTTL / time.Second),
		RefreshToken: refreshToken,
	}, nil
}

// TokenFromForm parses a token request from form parameters. grant_type,
// client_id, and client_secret are always required; a request carrying
// refresh_token goes to Refresh, anything else additionally requires
// redirect_uri and code and goes to Exchange. Missing parameters fail with
// invalid_request before any validation runs.
func (p *AuthorizationProvider) TokenFromForm(ctx context.Context, form url.Values) (*TokenResponse, error) {
	for _, name := range []string{"grant_type", "client_id", "client_secret"} {
		if form.Get(name) == "" {
			return nil, newError(KindInvalidRequest, "missing parameter "+name)
		}
	}

	req := TokenRequest{
		GrantType:    form.Get("grant_type"),
		ClientID:     form.Get("client_id"),
		ClientSecret: form.Get("client_secret"),
		Scope:        form.Get("scope"),
	}

	if rt := form.Get("refresh_token"); rt != "" {
		req.RefreshToken = rt
		return p.Refresh(ctx, req)
	}

	for _, name := range []string{"redirect_uri", "code"} {
		if form.Get(name) == "" {
			return nil, newError(KindInvalidRequest, "missing parameter "+name)
		}
	}
	req.RedirectURI = form.Get("redirect_uri")
	req.Code = form.Get("code")
	return p.Exchange(ctx, req)
}

// RevokeClientUserTokens discards every outstanding access and refresh token
// issued to a (client, user) pair. Returns the number of tokens removed.
func (p *AuthorizationProvider) RevokeClientUserTokens(ctx context.Context, clientID, userID string) (int, error) {
	removed, err := p.revocations.RevokeClientUserTokens(ctx, clientID, userID)
	if err != nil {
		return 0, p.serverError(ctx, "bulk revocation failed", err)
	}

	p.auditor.LogTokensRevoked(userID, clientID, removed)
	if p.metrics != nil {
		p.metrics.RecordTokensRevoked(ctx, clientID, removed)
	}
	p.logger.InfoContext(ctx, "Revoked client-user tokens",
		"client_id", clientID,
		"removed", removed)

	return removed, nil
}
