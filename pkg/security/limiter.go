package security

import (
	"sync"
	"time"
)

// LoginLimiter tracks failed login attempts per (ip, identity) pair over a
// sliding window. It is in-memory only; a multi-replica deployment would
// need to move this to redis.
// sweepEvery is how many limiter operations pass between full-map sweeps of
// abandoned keys.
const sweepEvery = 256

type LoginLimiter struct {
	mu       sync.Mutex
	window   time.Duration
	max      int
	attempts map[string][]time.Time
	ops      int
	now      func() time.Time
}

func NewLoginLimiter(max int, window time.Duration) *LoginLimiter {
	return &LoginLimiter{
		window:   window,
		max:      max,
		attempts: make(map[string][]time.Time),
		now:      time.Now,
	}
}

func key(ip, identity string) string {
	return ip + "|" + identity
}

// Allow reports whether another attempt is permitted right now.
func (l *LoginLimiter) Allow(ip, identity string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.maybeSweep()
	return len(l.prune(key(ip, identity))) < l.max
}

// RecordFailure registers a failed attempt.
func (l *LoginLimiter) RecordFailure(ip, identity string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.maybeSweep()
	k := key(ip, identity)
	l.attempts[k] = append(l.prune(k), l.now())
}

// Reset clears the counter after a successful login.
func (l *LoginLimiter) Reset(ip, identity string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.attempts, key(ip, identity))
}

// maybeSweep walks the whole map every sweepEvery operations and drops keys
// whose newest attempt has aged out of the window. prune only runs on
// re-access, so without this a key never touched again would be retained
// forever.
func (l *LoginLimiter) maybeSweep() {
	l.ops++
	if l.ops < sweepEvery {
		return
	}
	l.ops = 0

	cutoff := l.now().Add(-l.window)
	for k, times := range l.attempts {
		if len(times) == 0 || !times[len(times)-1].After(cutoff) {
			delete(l.attempts, k)
		}
	}
}

func (l *LoginLimiter) prune(k string) []time.Time {
	cutoff := l.now().Add(-l.window)
	recent := l.attempts[k][:0]
	for _, t := range l.attempts[k] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	if len(recent) == 0 {
		delete(l.attempts, k)
		return nil
	}
	l.attempts[k] = recent
	return recent
}
