package provider

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/helixauth/helix/internal/util"
	"github.com/helixauth/helix/storage"
)

// protocolParams are stripped from every echoed query string.
var protocolParams = []string{"response_type", "client_id", "redirect_uri"}

// AuthorizationRequest carries the parameters of an authorization request.
type AuthorizationRequest struct {
	ResponseType string
	ClientID     string
	RedirectURI  string
	Scope        string

	// UserID is the authenticated session user recorded with the issued
	// grant. It is supplied by the embedding application, never by request
	// parameters.
	UserID string

	// Extra holds the original request's remaining parameters; they are
	// echoed on the success redirect with the protocol parameters stripped.
	Extra url.Values
}

// AuthorizationGrant is the redirect descriptor returned on successful code
// issuance.
type AuthorizationGrant struct {
	// Code is the issued authorization code.
	Code string

	// RedirectURI is the full redirect target: the caller's redirect URI
	// with code appended and the original non-protocol parameters preserved.
	RedirectURI string
}

// AuthorizeCode handles an authorization request: it validates the client,
// the redirect URI, and the scope, then issues and persists a single-use
// code with the configured TTL. Validation failures perform no store write.
//
// Failures that happen while the supplied redirect URI is still plausible
// carry it for redirect delivery; a redirect URI that does not match the
// registration is not a trustworthy target, so that failure is a plain
// invalid_request.
func (p *AuthorizationProvider) AuthorizeCode(ctx context.Context, req AuthorizationRequest) (*AuthorizationGrant, error) {
	if req.ResponseType != "code" {
		return nil, newRedirectError(KindUnsupportedResponseType, req.RedirectURI, "response_type must be \"code\"")
	}

	client, err := p.clients.GetClient(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, storage.ErrClientNotFound) {
			p.auditor.LogAuthFailure(req.UserID, req.ClientID, "", "unknown client")
			return nil, newRedirectError(KindUnauthorizedClient, req.RedirectURI, "unknown client")
		}
		return nil, p.serverError(ctx, "client lookup failed", err)
	}

	if !redirectURIMatches(client.RedirectURI, req.RedirectURI) {
		p.auditor.LogAuthFailure(req.UserID, req.ClientID, "", "redirect URI mismatch")
		return nil, newError(KindInvalidRequest, "redirect URI does not match registration")
	}

	// An omitted scope means "use the registered default"; a supplied scope
	// must equal the registration exactly.
	scope := req.Scope
	if scope == "" {
		scope = client.Scope
	} else if scope != client.Scope {
		p.auditor.LogAuthFailure(req.UserID, req.ClientID, "", "scope mismatch")
		return nil, newRedirectError(KindInvalidScope, req.RedirectURI, "scope does not match registration")
	}

	code := p.generator.Generate()
	now := time.Now()

	authCode := &storage.AuthorizationCode{
		Code: code,
		Grant: storage.Grant{
			ClientID:    client.ID,
			UserID:      req.UserID,
			Scope:       scope,
			RedirectURI: req.RedirectURI,
		},
		CreatedAt: now,
		ExpiresAt: now.Add(p.codeTTL),
	}
	if err := p.flows.SaveAuthorizationCode(ctx, authCode); err != nil {
		return nil, p.serverError(ctx, "persisting authorization code failed", err)
	}

	target, err := buildRedirectURL(req.RedirectURI, req.Extra, url.Values{"code": {code}})
	if err != nil {
		// The code is already persisted but undeliverable; let it expire.
		return nil, newError(KindInvalidRequest, "redirect URI is not a valid URL")
	}

	p.auditor.LogCodeIssued(req.UserID, client.ID, scope)
	if p.metrics != nil {
		p.metrics.RecordCodeIssued(ctx, client.ID)
	}
	p.logger.InfoContext(ctx, "Issued authorization code",
		"client_id", client.ID,
		"code_prefix", util.SafeTruncate(code, tokenIDLogLength),
		"scope", scope)

	return &AuthorizationGrant{Code: code, RedirectURI: target}, nil
}

// AuthorizeFromURI parses an authorization request from a request URI's
// query string. Missing response_type, client_id, or redirect_uri fails with
// invalid_request before any further validation runs.
func (p *AuthorizationProvider) AuthorizeFromURI(ctx context.Context, uri string) (*AuthorizationGrant, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, newError(KindInvalidRequest, "request URI is not parseable")
	}
	params := u.Query()

	redirectURI := params.Get("redirect_uri")
	for _, name := range []string{"response_type", "client_id", "redirect_uri"} {
		if params.Get(name) == "" {
			if redirectURI != "" {
				return nil, newRedirectError(KindInvalidRequest, redirectURI, "missing parameter "+name)
			}
			return nil, newError(KindInvalidRequest, "missing parameter "+name)
		}
	}

	return p.AuthorizeCode(ctx, AuthorizationRequest{
		ResponseType: params.Get("response_type"),
		ClientID:     params.Get("client_id"),
		RedirectURI:  redirectURI,
		Scope:        params.Get("scope"),
		Extra:        params,
	})
}

// redirectURIMatches reports whether a supplied redirect URI matches the
// registered one. The supplied value's query string is ignored: clients
// append per-request parameters (state and the like), so only the
// authority/path portion is compared.
func redirectURIMatches(registered, supplied string) bool {
	return registered != "" && registered == stripQuery(supplied)
}

// stripQuery drops everything from the first '?' on.
func stripQuery(uri string) string {
	if i := strings.IndexByte(uri, '?'); i >= 0 {
		return uri[:i]
	}
	return uri
}

// buildRedirectURL builds a delivery target from a redirect URI: the URI's
// own query and extra are merged, the protocol parameters are stripped, and
// set (code or error) is applied last.
func buildRedirectURL(redirectURI string, extra url.Values, set url.Values) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", err
	}

	q := u.Query()
	for k, vs := range extra {
		q[k] = vs
	}
	for _, k := range protocolParams {
		q.Del(k)
	}
	for k, vs := range set {
		q[k] = vs
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// RedirectURL builds the redirect-error delivery target for a protocol
// error carrying a redirect URI: error=<kind> appended with the protocol
// parameters stripped. Returns false when the error has no redirect target
// or the target is not a valid URL; such errors are delivered as JSON.
func (e *Error) RedirectURL() (string, bool) {
	if e.RedirectURI == "" {
		return "", false
	}
	target, err := buildRedirectURL(e.RedirectURI, nil, url.Values{"error": {string(e.Kind)}})
	if err != nil {
		return "", false
	}
	return target, true
}
