package api

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterIdleTimeout   = time.Hour
	limiterCleanupPeriod = time.Hour
)

// rateLimiterEntry holds a rate limiter with last seen time
type rateLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ipRateLimiter keeps one token bucket per client IP. A non-positive rate
// disables limiting.
type ipRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rateLimiterEntry
	rps      float64
	burst    int

	stopCh   chan struct{}
	stopOnce sync.Once
	started  sync.Once
	wg       sync.WaitGroup
	now      func() time.Time
}

func newIPRateLimiter(rps float64, burst int) *ipRateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &ipRateLimiter{
		limiters: make(map[string]*rateLimiterEntry),
		rps:      rps,
		burst:    burst,
		stopCh:   make(chan struct{}),
		now:      time.Now,
	}
}

// Allow reports whether a request from ip may proceed.
func (l *ipRateLimiter) Allow(ip string) bool {
	l.mu.Lock()
	if l.rps <= 0 {
		l.mu.Unlock()
		return true
	}
	entry, ok := l.limiters[ip]
	if !ok {
		entry = &rateLimiterEntry{limiter: rate.NewLimiter(rate.Limit(l.rps), l.burst)}
		l.limiters[ip] = entry
	}
	entry.lastSeen = l.now()
	// Capture limiter reference while holding lock
	limiter := entry.limiter
	l.mu.Unlock()

	return limiter.Allow()
}

// SetLimits changes the rate for existing and future clients.
func (l *ipRateLimiter) SetLimits(rps float64, burst int) {
	if burst < 1 {
		burst = 1
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rps = rps
	l.burst = burst
	for _, entry := range l.limiters {
		entry.limiter.SetLimit(rate.Limit(rps))
		entry.limiter.SetBurst(burst)
	}
}

// cleanup removes limiters idle for longer than limiterIdleTimeout.
func (l *ipRateLimiter) cleanup() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	cutoff := l.now().Add(-limiterIdleTimeout)
	for ip, entry := range l.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(l.limiters, ip)
			removed++
		}
	}
	return removed
}

func (l *ipRateLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// StartCleanup runs the hourly cleanup until Stop.
func (l *ipRateLimiter) StartCleanup() {
	l.started.Do(func() {
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			ticker := time.NewTicker(limiterCleanupPeriod)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					l.cleanup()
				case <-l.stopCh:
					return
				}
			}
		}()
	})
}

// Stop ends the cleanup goroutine.
func (l *ipRateLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
	l.wg.Wait()
}
