package security

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	// DefaultTokenLength is the length of generated codes and tokens.
	// 40 base62 characters carry ~238 bits of entropy, far beyond any
	// realistic collision risk over a store's retention window.
	DefaultTokenLength = 40

	// base62Alphabet is safe for URLs, query strings, and HTTP headers
	// without escaping.
	base62Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// TokenGenerator produces unguessable random identifiers used as
// authorization codes, access tokens, and refresh tokens. It holds no state;
// every call is independent.
type TokenGenerator struct {
	length   int
	alphabet string
}

// NewTokenGenerator creates a generator with the default length and alphabet.
func NewTokenGenerator() *TokenGenerator {
	return &TokenGenerator{length: DefaultTokenLength, alphabet: base62Alphabet}
}

// NewTokenGeneratorWithConfig creates a generator with a custom length and
// alphabet. Zero values fall back to the defaults.
func NewTokenGeneratorWithConfig(length int, alphabet string) *TokenGenerator {
	if length <= 0 {
		length = DefaultTokenLength
	}
	if alphabet == "" {
		alphabet = base62Alphabet
	}
	return &TokenGenerator{length: length, alphabet: alphabet}
}

// Length returns the configured token length.
func (g *TokenGenerator) Length() int {
	return g.length
}

// Generate returns a fresh random token drawn from crypto/rand.
// Panics if the system RNG fails.
func (g *TokenGenerator) Generate() string {
	max := big.NewInt(int64(len(g.alphabet)))
	out := make([]byte, g.length)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(fmt.Sprintf("crypto/rand failed: %v", err))
		}
		out[i] = g.alphabet[n.Int64()]
	}
	return string(out)
}
