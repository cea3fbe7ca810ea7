package provider

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/helixauth/helix/security"
	"github.com/helixauth/helix/storage"
	"github.com/helixauth/helix/storage/memory"
)

const (
	testClientID    = "app123"
	testSecret      = "s3cr3t"
	testRedirectURI = "https://client.example/cb"
	testScope       = "read"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestProvider builds a provider over a fresh in-memory store with the
// standard test client registered.
func newTestProvider(t *testing.T) (*AuthorizationProvider, *memory.Store) {
	t.Helper()

	store := memory.NewWithInterval(time.Hour)
	store.SetLogger(testLogger())
	t.Cleanup(func() { store.Close() })

	hash, err := security.HashClientSecret(testSecret)
	if err != nil {
		t.Fatalf("HashClientSecret() error = %v", err)
	}
	err = store.SaveClient(context.Background(), &storage.Client{
		ID:          testClientID,
		SecretHash:  hash,
		RedirectURI: testRedirectURI,
		Scope:       testScope,
	})
	if err != nil {
		t.Fatalf("SaveClient() error = %v", err)
	}

	p, err := New(Config{
		Clients:     store,
		Flows:       store,
		Tokens:      store,
		Revocations: store,
		Logger:      testLogger(),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p, store
}

// wantKind asserts that err is a protocol error of the given kind.
func wantKind(t *testing.T, err error, kind ErrorKind) *Error {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	pe, ok := AsError(err)
	if !ok {
		t.Fatalf("expected protocol error, got %v", err)
	}
	if pe.Kind != kind {
		t.Fatalf("error kind = %s, want %s", pe.Kind, kind)
	}
	return pe
}

func TestNew_RequiresStores(t *testing.T) {
	store := memory.NewWithInterval(time.Hour)
	t.Cleanup(func() { store.Close() })

	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing clients", Config{Flows: store, Tokens: store, Revocations: store}},
		{"missing flows", Config{Clients: store, Tokens: store, Revocations: store}},
		{"missing tokens", Config{Clients: store, Flows: store, Revocations: store}},
		{"missing revocations", Config{Clients: store, Flows: store, Tokens: store}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); err == nil {
				t.Error("New() should fail when a store is missing")
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	if got := KindOf(nil); got != "" {
		t.Errorf("KindOf(nil) = %q, want empty", got)
	}
	if got := KindOf(newError(KindInvalidGrant, "x")); got != KindInvalidGrant {
		t.Errorf("KindOf = %s, want invalid_grant", got)
	}
	if got := KindOf(io.ErrUnexpectedEOF); got != KindServerError {
		t.Errorf("KindOf(non-protocol) = %s, want server_error", got)
	}
}
