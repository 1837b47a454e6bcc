// Package abandon decides when a session counts as abandoned and freezes the
// event snapshot handed to analytics and recovery consumers.
package abandon

import (
	"time"

	"go.uber.org/zap"

	"github.com/verte-zerg/carttrack/internal/model"
)

// ShouldAbandon is the abandonment decision: a non-empty cart, not already
// abandoned, with no activity for at least the timeout window.
func ShouldAbandon(s model.CartSession, now time.Time, timeout time.Duration) bool {
	if len(s.Items) == 0 || s.AbandonedAt != nil {
		return false
	}
	return now.Sub(s.LastActivityAt) >= timeout
}

// Detector builds abandonment events and stamps the session.
type Detector struct {
	emailTriggers bool
	log           *zap.Logger
}

// NewDetector builds a detector; emailTriggers gates the email descriptor.
func NewDetector(emailTriggers bool, log *zap.Logger) *Detector {
	return &Detector{emailTriggers: emailTriggers, log: log}
}

// Detect marks the session abandoned and returns the frozen event snapshot.
// An empty cart is never abandoned, and a session already marked abandoned is
// not detected again, so analytics never double-counts a timeout racing a
// page exit.
func (d *Detector) Detect(s *model.CartSession, now time.Time, reason model.ExitReason) (model.AbandonmentEvent, bool) {
	if len(s.Items) == 0 {
		return model.AbandonmentEvent{}, false
	}
	if s.AbandonedAt != nil {
		d.log.Debug("abandonment already detected",
			zap.String("session_id", s.ID.String()),
			zap.String("reason", string(reason)))
		return model.AbandonmentEvent{}, false
	}

	event := model.AbandonmentEvent{
		SessionID:  s.ID,
		UserID:     s.UserID,
		CartValue:  s.TotalValue,
		ItemCount:  s.ItemCount(),
		SessionAge: now.Sub(s.CreatedAt),
		Reason:     reason,
		Triggers:   d.buildTriggers(s.UserID != ""),
		CreatedAt:  now,
	}

	stamp := now
	s.AbandonedAt = &stamp
	s.RecoveredAt = nil

	d.log.Info("abandonment detected",
		zap.String("session_id", s.ID.String()),
		zap.String("reason", string(reason)),
		zap.String("cart_value", event.CartValue.String()),
		zap.Int("items", event.ItemCount))
	return event, true
}

// buildTriggers assembles the recovery-trigger descriptor set. The email
// sequence requires both configuration and an authenticated user.
func (d *Detector) buildTriggers(authenticated bool) []model.RecoveryTrigger {
	triggers := []model.RecoveryTrigger{
		{Type: model.TriggerImmediateModal},
		{Type: model.TriggerExitIntent},
	}
	if d.emailTriggers && authenticated {
		triggers = append(triggers, model.RecoveryTrigger{Type: model.TriggerEmailSequence})
	}
	triggers = append(triggers, model.RecoveryTrigger{Type: model.TriggerReturningBanner})
	return triggers
}
