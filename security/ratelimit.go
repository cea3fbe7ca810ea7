package security

import (
	"container/list"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultMaxLimiterEntries   = 10000
	limiterCleanupInterval     = 5 * time.Minute
	limiterIdleEvictionTimeout = 10 * time.Minute
)

// limiterEntry tracks one identifier's token bucket and its last use.
type limiterEntry struct {
	identifier string
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter provides per-identifier (usually per-IP) rate limiting using a
// token bucket per identifier, with LRU eviction so an attacker rotating
// identifiers cannot grow memory without bound.
type RateLimiter struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	lru        *list.List
	rps        rate.Limit
	burst      int
	maxEntries int
	logger     *slog.Logger
	stop       chan struct{}
	stopOnce   sync.Once
}

// NewRateLimiter creates a rate limiter allowing requestsPerSecond sustained
// with the given burst, tracking at most defaultMaxLimiterEntries
// identifiers. Idle entries are evicted by a background sweep; call Stop when
// done.
func NewRateLimiter(requestsPerSecond, burst int, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}

	rl := &RateLimiter{
		entries:    make(map[string]*list.Element),
		lru:        list.New(),
		rps:        rate.Limit(requestsPerSecond),
		burst:      burst,
		maxEntries: defaultMaxLimiterEntries,
		logger:     logger,
		stop:       make(chan struct{}),
	}

	go rl.sweepLoop()

	return rl
}

// Allow reports whether the identifier may proceed, consuming one token.
func (rl *RateLimiter) Allow(identifier string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	elem, ok := rl.entries[identifier]
	if !ok {
		if len(rl.entries) >= rl.maxEntries {
			rl.evictOldestLocked()
		}
		entry := &limiterEntry{
			identifier: identifier,
			limiter:    rate.NewLimiter(rl.rps, rl.burst),
			lastAccess: time.Now(),
		}
		elem = rl.lru.PushFront(entry)
		rl.entries[identifier] = elem
		return entry.limiter.Allow()
	}

	entry := elem.Value.(*limiterEntry)
	entry.lastAccess = time.Now()
	rl.lru.MoveToFront(elem)
	return entry.limiter.Allow()
}

// Stop terminates the background sweep goroutine.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

// evictOldestLocked removes the least recently used entry. Caller holds mu.
func (rl *RateLimiter) evictOldestLocked() {
	back := rl.lru.Back()
	if back == nil {
		return
	}
	entry := back.Value.(*limiterEntry)
	rl.lru.Remove(back)
	delete(rl.entries, entry.identifier)
	rl.logger.Debug("Evicted rate limiter entry", "identifier", entry.identifier)
}

func (rl *RateLimiter) sweepLoop() {
	ticker := time.NewTicker(limiterCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.sweepIdle()
		}
	}
}

// sweepIdle drops entries that have not been used recently.
func (rl *RateLimiter) sweepIdle() {
	cutoff := time.Now().Add(-limiterIdleEvictionTimeout)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for elem := rl.lru.Back(); elem != nil; {
		entry := elem.Value.(*limiterEntry)
		if entry.lastAccess.After(cutoff) {
			// LRU order: everything further forward is more recent.
			break
		}
		prev := elem.Prev()
		rl.lru.Remove(elem)
		delete(rl.entries, entry.identifier)
		removed++
		elem = prev
	}

	if removed > 0 {
		rl.logger.Debug("Swept idle rate limiter entries", "removed", removed, "remaining", len(rl.entries))
	}
}
