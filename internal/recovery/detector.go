// Package recovery detects the transition back to active use of a previously
// abandoned session.
package recovery

import (
	"time"

	"go.uber.org/zap"

	"github.com/verte-zerg/carttrack/internal/model"
)

// Detector applies the recovery transition.
type Detector struct {
	window time.Duration
	log    *zap.Logger
}

// NewDetector builds a detector with the restore recency window.
func NewDetector(window time.Duration, log *zap.Logger) *Detector {
	return &Detector{window: window, log: log}
}

// WithinWindow reports whether an abandoned session is still young enough to
// recover at restore time.
func (d *Detector) WithinWindow(s model.CartSession, now time.Time) bool {
	if s.AbandonedAt == nil {
		return false
	}
	return now.Sub(*s.AbandonedAt) <= d.window
}

// OnRestore recovers an abandoned session restored within the recency window.
// Sessions abandoned longer ago stay abandoned.
func (d *Detector) OnRestore(s *model.CartSession, now time.Time) bool {
	if !d.WithinWindow(*s, now) {
		return false
	}
	return d.recover(s, now)
}

// OnPulse recovers an abandoned session on a fresh activity signal. The
// recency window does not apply here: the user is demonstrably back.
func (d *Detector) OnPulse(s *model.CartSession, now time.Time) bool {
	if s.AbandonedAt == nil {
		return false
	}
	return d.recover(s, now)
}

func (d *Detector) recover(s *model.CartSession, now time.Time) bool {
	if len(s.Items) == 0 {
		return false
	}
	stamp := now
	s.RecoveredAt = &stamp
	s.AbandonedAt = nil
	s.RecoveryAttempts++
	s.LastActivityAt = now
	d.log.Info("session recovered",
		zap.String("session_id", s.ID.String()),
		zap.Int("attempts", s.RecoveryAttempts))
	return true
}
