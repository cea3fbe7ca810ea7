package security

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"regexp"
)

// requestIDContextKey is the context key for storing request IDs.
type requestIDContextKey struct{}

// RequestIDHeader is the HTTP header for request IDs.
const RequestIDHeader = "X-Request-ID"

// requestIDPattern validates inbound request IDs to prevent header
// injection. Allows alphanumerics, hyphens, and underscores (1-128 chars),
// which covers the formats common proxies emit.
var requestIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,128}$`)

// GenerateRequestID generates a random request ID: 16 bytes of entropy as a
// 22-character unpadded base64url string. Panics if the system RNG fails.
func GenerateRequestID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand.Read failed: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// ValidRequestID reports whether an inbound request ID is safe to propagate.
func ValidRequestID(id string) bool {
	return requestIDPattern.MatchString(id)
}

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDContextKey{}, requestID)
}

// GetRequestID retrieves the request ID from the context, or "" if unset.
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDContextKey{}).(string); ok {
		return requestID
	}
	return ""
}
