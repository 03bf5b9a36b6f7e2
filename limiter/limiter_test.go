package limiter

import (
	"fmt"
	"testing"
	gotime "time"

	"github.com/fleetwatch/core/time"

	"github.com/stretchr/testify/assert"
)

func newLimiter(cooldown gotime.Duration, maxAlerts int) (*Limiter, *time.TestSource) {
	ts := &time.TestSource{}
	ts.Set(1000, 0)

	l := New(Config{
		Cooldown:    cooldown,
		MaxAlerts:   maxAlerts,
		Window:      gotime.Minute,
		Granularity: gotime.Second,
		Source:      ts,
	})

	return l, ts
}

func TestCooldownByFingerprint(t *testing.T) {
	l, ts := newLimiter(10*gotime.Minute, 0)
	defer l.Close()

	d := l.Allow("radarr", "Connection refused")
	assert.True(t, d.Allowed)

	d = l.Allow("radarr", "connection REFUSED  ")
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonCooldown, d.Reason)

	// A different message is a different fingerprint.
	d = l.Allow("radarr", "disk full")
	assert.True(t, d.Allowed)

	// Same message on another workload passes too.
	d = l.Allow("sonarr", "connection refused")
	assert.True(t, d.Allowed)

	// After the cooldown a second alert is emitted.
	ts.Advance(10 * gotime.Minute)

	d = l.Allow("radarr", "connection refused")
	assert.True(t, d.Allowed)
}

func TestPeekHasNoSideEffects(t *testing.T) {
	l, _ := newLimiter(10*gotime.Minute, 0)
	defer l.Close()

	d := l.Peek("radarr", "connection refused")
	assert.True(t, d.Allowed)

	d = l.Peek("radarr", "connection refused")
	assert.True(t, d.Allowed, "Peek must not record an emission")

	l.Allow("radarr", "connection refused")

	d = l.Peek("radarr", "connection refused")
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonCooldown, d.Reason)
}

func TestRateCeiling(t *testing.T) {
	l, _ := newLimiter(gotime.Millisecond, 3)
	defer l.Close()

	allowed := 0
	for i := 0; i < 10; i++ {
		d := l.Allow("radarr", fmt.Sprintf("distinct message %d", i))
		if d.Allowed {
			allowed++
		} else {
			assert.Equal(t, ReasonRate, d.Reason)
		}
	}

	assert.Equal(t, 3, allowed)

	// The ceiling is per workload.
	d := l.Allow("sonarr", "distinct message")
	assert.True(t, d.Allowed)
}

func TestSuppressedCountOnDrain(t *testing.T) {
	ts := &time.TestSource{}
	ts.Set(1000, 0)

	l := New(Config{
		Cooldown:    gotime.Millisecond,
		MaxAlerts:   2,
		Window:      600 * gotime.Millisecond,
		Granularity: 100 * gotime.Millisecond,
		Source:      ts,
	})
	defer l.Close()

	assert.True(t, l.Allow("radarr", "a").Allowed)
	ts.Advance(gotime.Second)
	assert.True(t, l.Allow("radarr", "b").Allowed)
	ts.Advance(gotime.Second)

	for i := 0; i < 5; i++ {
		assert.False(t, l.Allow("radarr", "c").Allowed)
	}

	// Let the rolling window drain.
	assert.Eventually(t, func() bool {
		ts.Advance(gotime.Second)
		d := l.Allow("radarr", "d")
		if !d.Allowed {
			return false
		}

		assert.GreaterOrEqual(t, d.Suppressed, uint64(5))
		return true
	}, 3*gotime.Second, 100*gotime.Millisecond)
}

func TestNoCeilingWhenDisabled(t *testing.T) {
	l, ts := newLimiter(gotime.Millisecond, 0)
	defer l.Close()

	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow("radarr", "msg").Allowed)
		ts.Advance(gotime.Millisecond)
	}
}
