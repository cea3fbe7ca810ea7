package security

import "time"

// DefaultClockSkewGracePeriod is the grace applied by background cleanup
// before physically removing an expired record. Validation is strict; the
// grace only keeps sweeps from racing a request that is observing the exact
// expiry instant on a host with NTP drift.
const DefaultClockSkewGracePeriod = 5 * time.Second

// IsTokenExpired reports whether expiresAt has passed. A zero time means the
// record never expires.
func IsTokenExpired(expiresAt time.Time) bool {
	if expiresAt.IsZero() {
		return false
	}
	return time.Now().After(expiresAt)
}

// IsTokenExpiredWithGracePeriod reports whether expiresAt passed more than
// gracePeriod ago.
func IsTokenExpiredWithGracePeriod(expiresAt time.Time, gracePeriod time.Duration) bool {
	if expiresAt.IsZero() {
		return false
	}
	return time.Now().After(expiresAt.Add(gracePeriod))
}
