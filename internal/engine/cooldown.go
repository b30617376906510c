package engine

import (
	"sync"
	"time"
)

// DefaultCooldown applies to any metric kind without an override.
const DefaultCooldown = 5 * time.Minute

// CooldownKey identifies one (host, metric) pair. Cooldowns for the same
// metric on different hosts are independent, as are cooldowns for different
// metrics on the same host.
type CooldownKey struct {
	HostID string
	Metric MetricKind
}

// CooldownTracker suppresses repeat firings for a (host, metric) pair until
// its cooldown window has elapsed. State is held only as the last fire time
// per key; whether a key may fire is derived lazily from the clock, so no
// background timers run and restarts reset all windows.
type CooldownTracker struct {
	mu        sync.Mutex
	def       time.Duration
	overrides map[MetricKind]time.Duration
	lastFired map[CooldownKey]time.Time
}

func NewCooldownTracker(def time.Duration, overrides map[MetricKind]time.Duration) *CooldownTracker {
	if def <= 0 {
		def = DefaultCooldown
	}
	return &CooldownTracker{
		def:       def,
		overrides: overrides,
		lastFired: make(map[CooldownKey]time.Time),
	}
}

// TryFire reports whether the key may fire at the given instant and, if so,
// records the firing. Check and record happen under one lock so concurrent
// callers for the same key cannot both fire.
func (t *CooldownTracker) TryFire(key CooldownKey, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if last, ok := t.lastFired[key]; ok && now.Sub(last) < t.window(key.Metric) {
		return false
	}
	t.lastFired[key] = now
	return true
}

// Remaining returns how long until the key may fire again; zero if armed.
func (t *CooldownTracker) Remaining(key CooldownKey, now time.Time) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	last, ok := t.lastFired[key]
	if !ok {
		return 0
	}
	rem := t.window(key.Metric) - now.Sub(last)
	if rem < 0 {
		return 0
	}
	return rem
}

func (t *CooldownTracker) window(kind MetricKind) time.Duration {
	if d, ok := t.overrides[kind]; ok && d > 0 {
		return d
	}
	return t.def
}
