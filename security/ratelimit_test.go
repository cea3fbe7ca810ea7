package security

import "testing"

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(1, 2, nil)
	t.Cleanup(rl.Stop)

	// Burst of 2 should be allowed immediately.
	if !rl.Allow("10.0.0.1") {
		t.Error("first request should be allowed")
	}
	if !rl.Allow("10.0.0.1") {
		t.Error("second request (within burst) should be allowed")
	}
	if rl.Allow("10.0.0.1") {
		t.Error("third request should be rejected")
	}

	// Independent identifier has its own bucket.
	if !rl.Allow("10.0.0.2") {
		t.Error("request from a different identifier should be allowed")
	}
}

func TestRateLimiter_Eviction(t *testing.T) {
	rl := NewRateLimiter(1, 1, nil)
	t.Cleanup(rl.Stop)
	rl.maxEntries = 3

	for _, id := range []string{"a", "b", "c"} {
		rl.Allow(id)
	}
	// Exhaust "a" so a non-evicted entry would reject.
	if rl.Allow("a") {
		t.Fatal("identifier a should be out of tokens")
	}

	// Adding a fourth identifier evicts the LRU entry ("b").
	rl.Allow("d")

	rl.mu.Lock()
	_, aPresent := rl.entries["a"]
	_, bPresent := rl.entries["b"]
	rl.mu.Unlock()

	if !aPresent {
		t.Error("recently used identifier a should not be evicted")
	}
	if bPresent {
		t.Error("least recently used identifier b should be evicted")
	}
}
