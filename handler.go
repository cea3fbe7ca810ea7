package helix

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/helixauth/helix/instrumentation"
	"github.com/helixauth/helix/provider"
	"github.com/helixauth/helix/security"
)

// authContextKey is the context key for a request's resource authorization.
type authContextKey struct{}

// HandlerConfig holds the dependencies of a Handler. Authorization and
// Resource are required.
type HandlerConfig struct {
	// Authorization is the protocol engine (required).
	Authorization *provider.AuthorizationProvider

	// Resource validates bearer credentials (required).
	Resource *provider.ResourceProvider

	// RateLimiter applies per-IP limits to the endpoints (optional).
	RateLimiter *security.RateLimiter

	// Auditor records security events (optional).
	Auditor *security.Auditor

	// Metrics records HTTP metrics (optional).
	Metrics *instrumentation.Metrics

	// Logger is the structured logger (default slog.Default()).
	Logger *slog.Logger
}

// Handler serves the authorization and token endpoints and provides bearer
// middleware for protected resources.
type Handler struct {
	auth     *provider.AuthorizationProvider
	resource *provider.ResourceProvider
	limiter  *security.RateLimiter
	auditor  *security.Auditor
	metrics  *instrumentation.Metrics
	logger   *slog.Logger
}

// NewHandler creates a Handler from cfg.
func NewHandler(cfg HandlerConfig) (*Handler, error) {
	if cfg.Authorization == nil {
		return nil, fmt.Errorf("authorization provider is required")
	}
	if cfg.Resource == nil {
		return nil, fmt.Errorf("resource provider is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		auth:     cfg.Authorization,
		resource: cfg.Resource,
		limiter:  cfg.RateLimiter,
		auditor:  cfg.Auditor,
		metrics:  cfg.Metrics,
		logger:   logger,
	}, nil
}

// ServeAuthorize handles the authorization endpoint: a GET whose query
// carries response_type, client_id, redirect_uri, and optional scope.
// Success is a 302 to the client's redirect URI with the code appended;
// failures follow the redirect-or-JSON error shapes.
func (h *Handler) ServeAuthorize(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	sw := &statusWriter{ResponseWriter: w}
	w = sw
	defer func() { h.recordRequest(r, "/authorize", sw.Status(), start) }()

	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		h.writeJSONError(w, provider.KindInvalidRequest, http.StatusMethodNotAllowed)
		return
	}
	if h.rateLimited(w, r) {
		return
	}

	grant, err := h.auth.AuthorizeFromURI(r.Context(), r.URL.RequestURI())
	if err != nil {
		h.writeProtocolError(w, r, err)
		return
	}

	security.SetTokenResponseHeaders(w)
	http.Redirect(w, r, grant.RedirectURI, http.StatusFound)
}

// ServeToken handles the token endpoint: a POST form carrying grant_type,
// client credentials, and either redirect_uri+code or refresh_token.
func (h *Handler) ServeToken(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	sw := &statusWriter{ResponseWriter: w}
	w = sw
	defer func() { h.recordRequest(r, "/token", sw.Status(), start) }()

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		h.writeJSONError(w, provider.KindInvalidRequest, http.StatusMethodNotAllowed)
		return
	}
	if h.rateLimited(w, r) {
		return
	}

	if err := r.ParseForm(); err != nil {
		h.writeJSONError(w, provider.KindInvalidRequest, http.StatusBadRequest)
		return
	}

	resp, err := h.auth.TokenFromForm(r.Context(), r.PostForm)
	if err != nil {
		h.writeProtocolError(w, r, err)
		return
	}

	h.writeJSON(w, resp, http.StatusOK)
}

// RequireAuthorization is bearer middleware for endpoints that demand a
// valid token: requests without one are rejected with a JSON error. The
// authorization is available to the wrapped handler via
// AuthorizationFromContext.
func (h *Handler) RequireAuthorization(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := h.resource.Authorize(r.Context(), r.Header.Get("Authorization"))
		if !auth.Valid {
			status := http.StatusUnauthorized
			kind := auth.ErrorKind
			if kind == "" {
				kind = provider.KindAccessDenied
			}
			if kind == provider.KindServerError {
				status = http.StatusInternalServerError
			}
			w.Header().Set("WWW-Authenticate", "Bearer")
			h.writeJSONError(w, kind, status)
			return
		}
		next.ServeHTTP(w, r.WithContext(withAuthorization(r.Context(), auth)))
	})
}

// OptionalAuthorization is bearer middleware for endpoints that accept
// anonymous access: the request proceeds either way, and the wrapped handler
// inspects the authorization's Valid flag.
func (h *Handler) OptionalAuthorization(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := h.resource.Authorize(r.Context(), r.Header.Get("Authorization"))
		next.ServeHTTP(w, r.WithContext(withAuthorization(r.Context(), auth)))
	})
}

// RequestID is middleware that assigns each request an ID, propagating a
// valid inbound X-Request-ID and generating one otherwise.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(security.RequestIDHeader)
		if !security.ValidRequestID(id) {
			id = security.GenerateRequestID()
		}
		w.Header().Set(security.RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(security.WithRequestID(r.Context(), id)))
	})
}

func withAuthorization(ctx context.Context, auth *provider.ResourceAuthorization) context.Context {
	return context.WithValue(ctx, authContextKey{}, auth)
}

// AuthorizationFromContext returns the resource authorization stashed by the
// bearer middleware, or nil outside of one.
func AuthorizationFromContext(ctx context.Context) *provider.ResourceAuthorization {
	auth, _ := ctx.Value(authContextKey{}).(*provider.ResourceAuthorization)
	return auth
}

// rateLimited applies the per-IP limiter. Returns true when the request was
// rejected.
func (h *Handler) rateLimited(w http.ResponseWriter, r *http.Request) bool {
	if h.limiter == nil {
		return false
	}
	ip := clientIP(r)
	if h.limiter.Allow(ip) {
		return false
	}

	h.logger.Warn("Rate limit exceeded", "ip", ip, "path", r.URL.Path)
	h.auditor.LogRateLimitExceeded(ip)
	h.writeJSONError(w, provider.KindInvalidRequest, http.StatusTooManyRequests)
	return true
}

// writeProtocolError delivers a protocol error in its proper shape: a 302 to
// the error's redirect target when it has one, a JSON body otherwise.
func (h *Handler) writeProtocolError(w http.ResponseWriter, r *http.Request, err error) {
	pe, ok := provider.AsError(err)
	if !ok {
		h.logger.Error("Non-protocol error reached the transport layer", "error", err)
		h.writeJSONError(w, provider.KindServerError, http.StatusInternalServerError)
		return
	}

	if h.metrics != nil {
		h.metrics.RecordProtocolError(r.Context(), string(pe.Kind))
	}
	h.logger.Info("Request rejected",
		"kind", pe.Kind,
		"reason", pe.Reason(),
		"path", r.URL.Path)

	if target, ok := pe.RedirectURL(); ok {
		http.Redirect(w, r, target, http.StatusFound)
		return
	}
	h.writeJSONError(w, pe.Kind, statusForKind(pe.Kind))
}

func statusForKind(kind provider.ErrorKind) int {
	switch kind {
	case provider.KindServerError:
		return http.StatusInternalServerError
	case provider.KindAccessDenied:
		return http.StatusUnauthorized
	default:
		return http.StatusBadRequest
	}
}

// writeJSONError writes the {"error": kind} body with cache-disabling
// headers.
func (h *Handler) writeJSONError(w http.ResponseWriter, kind provider.ErrorKind, status int) {
	h.writeJSON(w, map[string]string{"error": string(kind)}, status)
}

func (h *Handler) writeJSON(w http.ResponseWriter, body any, status int) {
	security.SetTokenResponseHeaders(w)
	w.Header().Set("Content-Type", "application/json;charset=UTF-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response body", "error", err)
	}
}

func (h *Handler) recordRequest(r *http.Request, endpoint string, status int, start time.Time) {
	if h.metrics == nil {
		return
	}
	h.metrics.RecordHTTPRequest(r.Context(), endpoint, r.Method, status, time.Since(start))
}

// statusWriter captures the response status for metrics.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Status returns the written status, defaulting to 200 when the handler
// never called WriteHeader explicitly.
func (w *statusWriter) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

// clientIP extracts the connection's IP address. Deployments behind a proxy
// should wrap handlers with middleware that rewrites RemoteAddr (chi's
// RealIP, for instance) before rate limiting by it.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
