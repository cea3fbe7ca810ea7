package provider

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/helixauth/helix/storage"
)

// issueCode runs a full authorization request and returns the issued code.
func issueCode(t *testing.T, p *AuthorizationProvider) string {
	t.Helper()
	grant, err := p.AuthorizeCode(context.Background(), AuthorizationRequest{
		ResponseType: "code",
		ClientID:     testClientID,
		RedirectURI:  testRedirectURI,
		Scope:        testScope,
		UserID:       "u1",
	})
	if err != nil {
		t.Fatalf("AuthorizeCode() error = %v", err)
	}
	return grant.Code
}

func exchangeRequest(code string) TokenRequest {
	return TokenRequest{
		GrantType:    "authorization_code",
		ClientID:     testClientID,
		ClientSecret: testSecret,
		RedirectURI:  testRedirectURI,
		Code:         code,
	}
}

func TestExchange_Success(t *testing.T) {
	p, _ := newTestProvider(t)
	ctx := context.Background()

	resp, err := p.Exchange(ctx, exchangeRequest(issueCode(t, p)))
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}

	if len(resp.AccessToken) != 40 {
		t.Errorf("access token length = %d, want 40", len(resp.AccessToken))
	}
	if len(resp.RefreshToken) != 40 {
		t.Errorf("refresh token length = %d, want 40", len(resp.RefreshToken))
	}
	if resp.TokenType != "Bearer" {
		t.Errorf("token type = %q, want Bearer", resp.TokenType)
	}
	if resp.ExpiresIn != 3600 {
		t.Errorf("expires_in = %d, want 3600", resp.ExpiresIn)
	}
}

func TestExchange_SingleUse(t *testing.T) {
	p, _ := newTestProvider(t)
	ctx := context.Background()

	code := issueCode(t, p)
	if _, err := p.Exchange(ctx, exchangeRequest(code)); err != nil {
		t.Fatalf("first Exchange() error = %v", err)
	}

	_, err := p.Exchange(ctx, exchangeRequest(code))
	wantKind(t, err, KindInvalidGrant)
}

func TestExchange_Concurrent(t *testing.T) {
	p, _ := newTestProvider(t)
	ctx := context.Background()
	code := issueCode(t, p)

	const attempts = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.Exchange(ctx, exchangeRequest(code)); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			} else if KindOf(err) != KindInvalidGrant {
				t.Errorf("unexpected exchange error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 {
		t.Errorf("concurrent exchanges succeeded %d times, want exactly 1", successes)
	}
}

func TestExchange_Failures(t *testing.T) {
	p, _ := newTestProvider(t)
	ctx := context.Background()

	t.Run("wrong grant type", func(t *testing.T) {
		req := exchangeRequest(issueCode(t, p))
		req.GrantType = "password"
		_, err := p.Exchange(ctx, req)
		wantKind(t, err, KindUnsupportedGrantType)
	})

	t.Run("wrong secret", func(t *testing.T) {
		req := exchangeRequest(issueCode(t, p))
		req.ClientSecret = "wrong"
		_, err := p.Exchange(ctx, req)
		wantKind(t, err, KindInvalidClient)
	})

	t.Run("unknown code", func(t *testing.T) {
		_, err := p.Exchange(ctx, exchangeRequest("neverissued"))
		wantKind(t, err, KindInvalidGrant)
	})

	t.Run("redirect URI mismatch", func(t *testing.T) {
		req := exchangeRequest(issueCode(t, p))
		req.RedirectURI = "https://evil.example/cb"
		_, err := p.Exchange(ctx, req)
		wantKind(t, err, KindInvalidGrant)
	})
}

func TestExchange_ExpiredCode(t *testing.T) {
	p, store := newTestProvider(t)
	ctx := context.Background()

	now := time.Now()
	err := store.SaveAuthorizationCode(ctx, &storage.AuthorizationCode{
		Code: "expiredcode",
		Grant: storage.Grant{
			ClientID:    testClientID,
			Scope:       testScope,
			RedirectURI: testRedirectURI,
		},
		CreatedAt: now.Add(-2 * time.Minute),
		ExpiresAt: now.Add(-time.Minute),
	})
	if err != nil {
		t.Fatalf("SaveAuthorizationCode() error = %v", err)
	}

	_, err = p.Exchange(ctx, exchangeRequest("expiredcode"))
	wantKind(t, err, KindInvalidGrant)
}

func TestRefresh_Rotation(t *testing.T) {
	p, _ := newTestProvider(t)
	ctx := context.Background()

	first, err := p.Exchange(ctx, exchangeRequest(issueCode(t, p)))
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}

	second, err := p.Refresh(ctx, TokenRequest{
		GrantType:    "refresh_token",
		ClientID:     testClientID,
		ClientSecret: testSecret,
		RefreshToken: first.RefreshToken,
	})
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	if second.RefreshToken == first.RefreshToken {
		t.Error("rotation returned the same refresh token")
	}
	if second.AccessToken == first.AccessToken {
		t.Error("rotation returned the same access token")
	}

	// The rotated-out token never validates again.
	_, err = p.Refresh(ctx, TokenRequest{
		GrantType:    "refresh_token",
		ClientID:     testClientID,
		ClientSecret: testSecret,
		RefreshToken: first.RefreshToken,
	})
	wantKind(t, err, KindInvalidGrant)
}

func TestRefresh_Failures(t *testing.T) {
	p, _ := newTestProvider(t)
	ctx := context.Background()

	resp, err := p.Exchange(ctx, exchangeRequest(issueCode(t, p)))
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}

	t.Run("wrong grant type", func(t *testing.T) {
		_, err := p.Refresh(ctx, TokenRequest{
			GrantType:    "authorization_code",
			ClientID:     testClientID,
			ClientSecret: testSecret,
			RefreshToken: resp.RefreshToken,
		})
		wantKind(t, err, KindUnsupportedGrantType)
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, err := p.Refresh(ctx, TokenRequest{
			GrantType:    "refresh_token",
			ClientID:     testClientID,
			ClientSecret: "wrong",
			RefreshToken: resp.RefreshToken,
		})
		wantKind(t, err, KindInvalidClient)
	})

	t.Run("scope mismatch keeps the token alive", func(t *testing.T) {
		_, err := p.Refresh(ctx, TokenRequest{
			GrantType:    "refresh_token",
			ClientID:     testClientID,
			ClientSecret: testSecret,
			RefreshToken: resp.RefreshToken,
			Scope:        "write",
		})
		wantKind(t, err, KindInvalidScope)

		// The rejected attempt must not have consumed the token.
		if _, err := p.Refresh(ctx, TokenRequest{
			GrantType:    "refresh_token",
			ClientID:     testClientID,
			ClientSecret: testSecret,
			RefreshToken: resp.RefreshToken,
			Scope:        testScope,
		}); err != nil {
			t.Errorf("refresh after rejected scope error = %v", err)
		}
	})

	t.Run("unknown token", func(t *testing.T) {
		_, err := p.Refresh(ctx, TokenRequest{
			GrantType:    "refresh_token",
			ClientID:     testClientID,
			ClientSecret: testSecret,
			RefreshToken: "neverissued",
		})
		wantKind(t, err, KindInvalidGrant)
	})
}

func TestTokenFromForm(t *testing.T) {
	p, _ := newTestProvider(t)
	ctx := context.Background()

	t.Run("missing required params", func(t *testing.T) {
		for _, form := range []url.Values{
			{},
			{"grant_type": {"authorization_code"}},
			{"grant_type": {"authorization_code"}, "client_id": {testClientID}},
			{"grant_type": {"authorization_code"}, "client_id": {testClientID}, "client_secret": {testSecret}},
			{"grant_type": {"authorization_code"}, "client_id": {testClientID}, "client_secret": {testSecret}, "redirect_uri": {testRedirectURI}},
		} {
			_, err := p.TokenFromForm(ctx, form)
			wantKind(t, err, KindInvalidRequest)
		}
	})

	t.Run("exchange path", func(t *testing.T) {
		code := issueCode(t, p)
		resp, err := p.TokenFromForm(ctx, url.Values{
			"grant_type":    {"authorization_code"},
			"client_id":     {testClientID},
			"client_secret": {testSecret},
			"redirect_uri":  {testRedirectURI},
			"code":          {code},
		})
		if err != nil {
			t.Fatalf("TokenFromForm() error = %v", err)
		}
		if resp.AccessToken == "" {
			t.Error("exchange returned no access token")
		}
	})

	t.Run("refresh path", func(t *testing.T) {
		first, err := p.Exchange(ctx, exchangeRequest(issueCode(t, p)))
		if err != nil {
			t.Fatalf("Exchange() error = %v", err)
		}

		resp, err := p.TokenFromForm(ctx, url.Values{
			"grant_type":    {"refresh_token"},
			"client_id":     {testClientID},
			"client_secret": {testSecret},
			"refresh_token": {first.RefreshToken},
		})
		if err != nil {
			t.Fatalf("TokenFromForm() refresh error = %v", err)
		}
		if resp.RefreshToken == first.RefreshToken {
			t.Error("refresh path did not rotate the token")
		}
	})
}

func TestRevokeClientUserTokens(t *testing.T) {
	p, store := newTestProvider(t)
	ctx := context.Background()

	first, err := p.Exchange(ctx, exchangeRequest(issueCode(t, p)))
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
	second, err := p.Exchange(ctx, exchangeRequest(issueCode(t, p)))
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}

	removed, err := p.RevokeClientUserTokens(ctx, testClientID, "u1")
	if err != nil {
		t.Fatalf("RevokeClientUserTokens() error = %v", err)
	}
	if removed != 4 {
		t.Errorf("removed = %d, want 4 (two access + two refresh)", removed)
	}

	for _, token := range []string{first.AccessToken, second.AccessToken} {
		if _, _, err := store.GetAccessToken(ctx, token); err == nil {
			t.Error("access token survived bulk revocation")
		}
	}
	for _, rt := range []string{first.RefreshToken, second.RefreshToken} {
		_, err := p.Refresh(ctx, TokenRequest{
			GrantType:    "refresh_token",
			ClientID:     testClientID,
			ClientSecret: testSecret,
			RefreshToken: rt,
		})
		wantKind(t, err, KindInvalidGrant)
	}
}
