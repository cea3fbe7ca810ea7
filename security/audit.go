package security

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"
)

// Auditor handles security event logging with PII protection. User IDs are
// hashed before they reach the log stream; token values never reach it at
// all (callers log prefixes only).
type Auditor struct {
	logger  *slog.Logger
	enabled bool
}

// NewAuditor creates a new security auditor.
func NewAuditor(logger *slog.Logger, enabled bool) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{logger: logger, enabled: enabled}
}

// Event represents a security audit event.
type Event struct {
	Type      string
	UserID    string
	ClientID  string
	IPAddress string
	Details   map[string]any
	Timestamp time.Time
}

// LogEvent logs a security event with hashed PII.
func (a *Auditor) LogEvent(event Event) {
	if a == nil || !a.enabled {
		return
	}

	event.Timestamp = time.Now()

	a.logger.Info("security_audit",
		"event_type", event.Type,
		"user_id_hash", hashForLogging(event.UserID),
		"client_id", event.ClientID,
		"ip_address", event.IPAddress,
		"details", event.Details,
		"timestamp", event.Timestamp,
	)
}

// LogCodeIssued logs issuance of an authorization code.
func (a *Auditor) LogCodeIssued(userID, clientID, scope string) {
	a.LogEvent(Event{
		Type:     "authorization_code_issued",
		UserID:   userID,
		ClientID: clientID,
		Details: map[string]any{
			"scope": scope,
		},
	})
}

// LogTokenIssued logs issuance of an access/refresh token pair.
func (a *Auditor) LogTokenIssued(userID, clientID, scope string) {
	a.LogEvent(Event{
		Type:     "token_issued",
		UserID:   userID,
		ClientID: clientID,
		Details: map[string]any{
			"scope": scope,
		},
	})
}

// LogTokenRefreshed logs a refresh-token rotation.
func (a *Auditor) LogTokenRefreshed(userID, clientID, scope string) {
	a.LogEvent(Event{
		Type:     "token_refreshed",
		UserID:   userID,
		ClientID: clientID,
		Details: map[string]any{
			"scope":   scope,
			"rotated": true,
		},
	})
}

// LogTokensRevoked logs a bulk revocation for a (client, user) pair.
func (a *Auditor) LogTokensRevoked(userID, clientID string, count int) {
	a.LogEvent(Event{
		Type:     "tokens_revoked",
		UserID:   userID,
		ClientID: clientID,
		Details: map[string]any{
			"tokens_revoked": count,
		},
	})
}

// LogAuthFailure logs a failed validation step.
func (a *Auditor) LogAuthFailure(userID, clientID, ipAddress, reason string) {
	a.LogEvent(Event{
		Type:      "auth_failure",
		UserID:    userID,
		ClientID:  clientID,
		IPAddress: ipAddress,
		Details: map[string]any{
			"reason": reason,
		},
	})
}

// LogRateLimitExceeded logs a rate limit violation.
func (a *Auditor) LogRateLimitExceeded(ipAddress string) {
	a.LogEvent(Event{
		Type:      "rate_limit_exceeded",
		IPAddress: ipAddress,
	})
}

// hashForLogging creates a SHA256 hash of sensitive data for logging.
func hashForLogging(sensitive string) string {
	if sensitive == "" {
		return "<empty>"
	}
	hash := sha256.Sum256([]byte(sensitive))
	return hex.EncodeToString(hash[:])[:16]
}
