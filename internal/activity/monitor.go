package activity

import (
	"time"

	"go.uber.org/zap"
)

// Monitor owns the abandonment countdown. At most one countdown is
// outstanding; arming a new one always cancels the previous one first, so a
// stale timer can never fire a duplicate detection.
//
// The monitor does no locking of its own: callers serialize Pulse, Stop and
// the expiry callback the same way all engine mutation is serialized.
type Monitor struct {
	clock    Clock
	timeout  time.Duration
	onExpire func()
	log      *zap.Logger

	timer Timer
}

// NewMonitor builds a monitor firing onExpire after timeout of inactivity.
func NewMonitor(clock Clock, timeout time.Duration, onExpire func(), log *zap.Logger) *Monitor {
	return &Monitor{
		clock:    clock,
		timeout:  timeout,
		onExpire: onExpire,
		log:      log,
	}
}

// Timeout returns the configured inactivity window.
func (m *Monitor) Timeout() time.Duration {
	return m.timeout
}

// Pulse registers an activity signal: it cancels any pending countdown and
// starts a fresh one.
func (m *Monitor) Pulse() {
	m.cancel()
	m.timer = m.clock.AfterFunc(m.timeout, m.onExpire)
	m.log.Debug("countdown armed", zap.Duration("timeout", m.timeout))
}

// Stop cancels the pending countdown, if any.
func (m *Monitor) Stop() {
	m.cancel()
}

func (m *Monitor) cancel() {
	if m.timer == nil {
		return
	}
	m.timer.Stop()
	m.timer = nil
}
