package provider

import (
	"context"
	"net/url"
	"strings"
	"testing"
)

func TestAuthorizeCode_Success(t *testing.T) {
	p, _ := newTestProvider(t)
	ctx := context.Background()

	grant, err := p.AuthorizeCode(ctx, AuthorizationRequest{
		ResponseType: "code",
		ClientID:     testClientID,
		RedirectURI:  testRedirectURI,
		Scope:        testScope,
	})
	if err != nil {
		t.Fatalf("AuthorizeCode() error = %v", err)
	}

	if len(grant.Code) != 40 {
		t.Errorf("code length = %d, want 40", len(grant.Code))
	}

	u, err := url.Parse(grant.RedirectURI)
	if err != nil {
		t.Fatalf("redirect URI is not parseable: %v", err)
	}
	if got := u.Scheme + "://" + u.Host + u.Path; got != testRedirectURI {
		t.Errorf("redirect target = %q, want %q", got, testRedirectURI)
	}
	if u.Query().Get("code") != grant.Code {
		t.Errorf("redirect code param = %q, want %q", u.Query().Get("code"), grant.Code)
	}
}

func TestAuthorizeCode_PassthroughParams(t *testing.T) {
	p, _ := newTestProvider(t)
	ctx := context.Background()

	grant, err := p.AuthorizeCode(ctx, AuthorizationRequest{
		ResponseType: "code",
		ClientID:     testClientID,
		RedirectURI:  testRedirectURI,
		Scope:        testScope,
		Extra: url.Values{
			"state":         {"xyz"},
			"response_type": {"code"},
			"client_id":     {testClientID},
			"redirect_uri":  {testRedirectURI},
		},
	})
	if err != nil {
		t.Fatalf("AuthorizeCode() error = %v", err)
	}

	q, err := url.ParseQuery(strings.SplitN(grant.RedirectURI, "?", 2)[1])
	if err != nil {
		t.Fatalf("parsing redirect query: %v", err)
	}
	if q.Get("state") != "xyz" {
		t.Errorf("state param = %q, want xyz", q.Get("state"))
	}
	for _, name := range []string{"response_type", "client_id", "redirect_uri"} {
		if q.Has(name) {
			t.Errorf("protocol param %s leaked into redirect", name)
		}
	}
}

func TestAuthorizeCode_DefaultScope(t *testing.T) {
	p, store := newTestProvider(t)
	ctx := context.Background()

	// Omitted scope means "use the registered default".
	grant, err := p.AuthorizeCode(ctx, AuthorizationRequest{
		ResponseType: "code",
		ClientID:     testClientID,
		RedirectURI:  testRedirectURI,
	})
	if err != nil {
		t.Fatalf("AuthorizeCode() error = %v", err)
	}

	stored, err := store.TakeAuthorizationCode(ctx, testClientID, grant.Code)
	if err != nil {
		t.Fatalf("TakeAuthorizationCode() error = %v", err)
	}
	if stored.Scope != testScope {
		t.Errorf("stored scope = %q, want registered default %q", stored.Scope, testScope)
	}
}

func TestAuthorizeCode_Failures(t *testing.T) {
	tests := []struct {
		name         string
		req          AuthorizationRequest
		wantKind     ErrorKind
		wantRedirect bool
	}{
		{
			name: "wrong response type",
			req: AuthorizationRequest{
				ResponseType: "token",
				ClientID:     testClientID,
				RedirectURI:  testRedirectURI,
			},
			wantKind:     KindUnsupportedResponseType,
			wantRedirect: true,
		},
		{
			name: "unknown client",
			req: AuthorizationRequest{
				ResponseType: "code",
				ClientID:     "ghost",
				RedirectURI:  testRedirectURI,
			},
			wantKind:     KindUnauthorizedClient,
			wantRedirect: true,
		},
		{
			name: "redirect URI mismatch",
			req: AuthorizationRequest{
				ResponseType: "code",
				ClientID:     testClientID,
				RedirectURI:  "https://evil.example/cb",
			},
			wantKind:     KindInvalidRequest,
			wantRedirect: false,
		},
		{
			name: "scope mismatch",
			req: AuthorizationRequest{
				ResponseType: "code",
				ClientID:     testClientID,
				RedirectURI:  testRedirectURI,
				Scope:        "write",
			},
			wantKind:     KindInvalidScope,
			wantRedirect: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := newTestProvider(t)
			_, err := p.AuthorizeCode(context.Background(), tt.req)
			pe := wantKind(t, err, tt.wantKind)
			if got := pe.RedirectURI != ""; got != tt.wantRedirect {
				t.Errorf("redirect target present = %v, want %v", got, tt.wantRedirect)
			}
		})
	}
}

func TestAuthorizeCode_NoWriteOnFailure(t *testing.T) {
	p, store := newTestProvider(t)
	ctx := context.Background()

	_, err := p.AuthorizeCode(ctx, AuthorizationRequest{
		ResponseType: "code",
		ClientID:     testClientID,
		RedirectURI:  testRedirectURI,
		Scope:        "write",
	})
	wantKind(t, err, KindInvalidScope)

	// A failed validation must not have persisted anything the exchange
	// path could consume; nothing to take under any plausible key.
	if _, err := store.TakeAuthorizationCode(ctx, testClientID, ""); err == nil {
		t.Error("failed authorization left a code in the store")
	}
}

func TestRedirectURIMatching(t *testing.T) {
	tests := []struct {
		registered string
		supplied   string
		want       bool
	}{
		{"https://client.example/cb", "https://client.example/cb", true},
		{"https://client.example/cb", "https://client.example/cb?state=1", true},
		{"https://client.example/cb", "https://client.example/cb?a=1&b=2", true},
		{"https://client.example/cb", "https://client.example/other", false},
		{"https://client.example/cb", "https://evil.example/cb", false},
		{"https://client.example/cb", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		if got := redirectURIMatches(tt.registered, tt.supplied); got != tt.want {
			t.Errorf("redirectURIMatches(%q, %q) = %v, want %v", tt.registered, tt.supplied, got, tt.want)
		}
	}
}

func TestAuthorizeFromURI(t *testing.T) {
	p, _ := newTestProvider(t)
	ctx := context.Background()

	grant, err := p.AuthorizeFromURI(ctx,
		"/oauth2/authorize?response_type=code&client_id="+testClientID+
			"&redirect_uri="+url.QueryEscape(testRedirectURI)+"&scope=read&state=xyz")
	if err != nil {
		t.Fatalf("AuthorizeFromURI() error = %v", err)
	}

	u, _ := url.Parse(grant.RedirectURI)
	if u.Query().Get("code") == "" {
		t.Error("redirect is missing the code parameter")
	}
	if u.Query().Get("state") != "xyz" {
		t.Error("redirect dropped the state parameter")
	}
}

func TestAuthorizeFromURI_MissingParams(t *testing.T) {
	p, _ := newTestProvider(t)
	ctx := context.Background()

	// Missing redirect_uri: no trustworthy target, JSON shape.
	_, err := p.AuthorizeFromURI(ctx, "/oauth2/authorize?response_type=code&client_id="+testClientID)
	pe := wantKind(t, err, KindInvalidRequest)
	if pe.RedirectURI != "" {
		t.Error("missing redirect_uri should not produce a redirect error")
	}

	// Missing response_type with redirect_uri present: redirect shape.
	_, err = p.AuthorizeFromURI(ctx,
		"/oauth2/authorize?client_id="+testClientID+"&redirect_uri="+url.QueryEscape(testRedirectURI))
	pe = wantKind(t, err, KindInvalidRequest)
	if pe.RedirectURI == "" {
		t.Error("missing response_type with redirect_uri present should carry the redirect target")
	}
}

func TestErrorRedirectURL(t *testing.T) {
	pe := newRedirectError(KindInvalidScope, testRedirectURI+"?state=1", "mismatch")
	target, ok := pe.RedirectURL()
	if !ok {
		t.Fatal("RedirectURL() should succeed for a redirect error")
	}
	u, err := url.Parse(target)
	if err != nil {
		t.Fatalf("parsing redirect error target: %v", err)
	}
	if u.Query().Get("error") != "invalid_scope" {
		t.Errorf("error param = %q, want invalid_scope", u.Query().Get("error"))
	}
	if u.Query().Get("state") != "1" {
		t.Error("redirect error dropped the caller's state parameter")
	}

	if _, ok := newError(KindInvalidRequest, "x").RedirectURL(); ok {
		t.Error("RedirectURL() should fail without a redirect target")
	}
}
