package model

import (
	"time"

	"github.com/google/uuid"
)

// ExitReason tags how an abandonment was detected.
type ExitReason string

// Abandonment detection paths.
const (
	ReasonTimeout  ExitReason = "timeout"
	ReasonPageExit ExitReason = "page_exit"
)

// TriggerType names a recovery mechanism eligible after abandonment.
type TriggerType string

// Recovery trigger kinds.
const (
	TriggerImmediateModal  TriggerType = "immediate_modal"
	TriggerExitIntent      TriggerType = "exit_intent"
	TriggerEmailSequence   TriggerType = "email_sequence"
	TriggerReturningBanner TriggerType = "returning_banner"
)

// RecoveryTrigger tracks fire and conversion status for one trigger.
// The consumer flips these flags on its working copy; the event's own set
// stays frozen at detection time.
type RecoveryTrigger struct {
	Type        TriggerType
	Fired       bool
	FiredAt     *time.Time
	Converted   bool
	ConvertedAt *time.Time
}

// FireTrigger marks the first matching un-fired trigger in the consumer's
// working copy. It reports whether a trigger was marked.
func FireTrigger(triggers []RecoveryTrigger, t TriggerType, now time.Time) bool {
	for i := range triggers {
		if triggers[i].Type == t && !triggers[i].Fired {
			stamp := now
			triggers[i].Fired = true
			triggers[i].FiredAt = &stamp
			return true
		}
	}
	return false
}

// ConvertTrigger marks a fired trigger as converted in the consumer's working
// copy. It reports whether a trigger was marked.
func ConvertTrigger(triggers []RecoveryTrigger, t TriggerType, now time.Time) bool {
	for i := range triggers {
		if triggers[i].Type == t && triggers[i].Fired && !triggers[i].Converted {
			stamp := now
			triggers[i].Converted = true
			triggers[i].ConvertedAt = &stamp
			return true
		}
	}
	return false
}

// CloneTriggers returns the consumer's mutable working copy of the trigger
// set; the event's own set stays frozen.
func CloneTriggers(triggers []RecoveryTrigger) []RecoveryTrigger {
	out := make([]RecoveryTrigger, len(triggers))
	copy(out, triggers)
	return out
}

// AbandonmentEvent is an immutable snapshot taken at detection time.
type AbandonmentEvent struct {
	SessionID  uuid.UUID
	UserID     string
	CartValue  Money
	ItemCount  int
	SessionAge time.Duration
	Reason     ExitReason
	Triggers   []RecoveryTrigger
	CreatedAt  time.Time
}
