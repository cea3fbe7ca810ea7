package security

import "net/http"

// SetTokenResponseHeaders sets the headers required on every token-endpoint
// and error response: no caching anywhere (RFC 6749 section 5.1), plus a
// conservative set of browser protections.
func SetTokenResponseHeaders(w http.ResponseWriter) {
	h := w.Header()

	// OAuth responses carry credentials; they must never be cached.
	h.Set("Cache-Control", "no-store")
	h.Set("Pragma", "no-cache")

	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Frame-Options", "DENY")
	h.Set("Referrer-Policy", "no-referrer")
}
