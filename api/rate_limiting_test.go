package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIPRateLimiter_PerIP(t *testing.T) {
	l := newIPRateLimiter(1, 1)

	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"), "each IP has its own bucket")
	assert.Equal(t, 2, l.size())
}

func TestIPRateLimiter_DisabledWhenRateNotPositive(t *testing.T) {
	l := newIPRateLimiter(0, 0)
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow("10.0.0.1"))
	}
	assert.Zero(t, l.size())
}

func TestIPRateLimiter_Cleanup(t *testing.T) {
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	l := newIPRateLimiter(10, 10)
	l.now = func() time.Time { return now }

	l.Allow("10.0.0.1")
	now = now.Add(30 * time.Minute)
	l.Allow("10.0.0.2")
	now = now.Add(45 * time.Minute)

	assert.Equal(t, 1, l.cleanup())
	assert.Equal(t, 1, l.size())
}

func TestIPRateLimiter_StartStop(t *testing.T) {
	l := newIPRateLimiter(10, 10)
	l.StartCleanup()
	l.StartCleanup()
	l.Stop()
	l.Stop()
}
