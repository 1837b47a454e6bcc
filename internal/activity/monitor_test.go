package activity

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type fakeTimer struct {
	clock    *fakeClock
	deadline time.Time
	f        func()
	stopped  bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, deadline: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.deadline.After(c.now) {
			t.stopped = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	for _, t := range due {
		t.f()
	}
}

func TestPulseRearmsSingleCountdown(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	fired := 0
	m := NewMonitor(clock, 5*time.Minute, func() { fired++ }, zap.NewNop())

	m.Pulse()
	clock.Advance(4 * time.Minute)
	m.Pulse()
	clock.Advance(4 * time.Minute)
	assert.Equal(t, 0, fired, "re-armed countdown must cancel the prior one")

	clock.Advance(time.Minute)
	assert.Equal(t, 1, fired)

	// The fired countdown is spent; time passing alone does not re-fire.
	clock.Advance(time.Hour)
	assert.Equal(t, 1, fired)
}

func TestStopCancelsCountdown(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	fired := 0
	m := NewMonitor(clock, time.Minute, func() { fired++ }, zap.NewNop())

	m.Pulse()
	m.Stop()
	clock.Advance(time.Hour)
	assert.Equal(t, 0, fired)

	// Stop without a pending countdown is a no-op.
	m.Stop()
}

func TestTimeout(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	m := NewMonitor(clock, 5*time.Minute, func() {}, zap.NewNop())
	assert.Equal(t, 5*time.Minute, m.Timeout())
}
