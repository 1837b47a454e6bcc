// Package model defines shared data structures.
package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the derived lifecycle state of a cart session.
type SessionStatus string

// Session lifecycle states.
const (
	StatusActive    SessionStatus = "active"
	StatusAbandoned SessionStatus = "abandoned"
	StatusRecovered SessionStatus = "recovered"
)

// CartLineItem is one product line inside a cart session.
type CartLineItem struct {
	ItemID     string
	MaterialID string
	Name       string
	UnitPrice  Money
	Quantity   int
	AddedAt    time.Time
	ModifiedAt time.Time
}

// Subtotal returns unit price times quantity.
func (li CartLineItem) Subtotal() Money {
	return li.UnitPrice.MulInt(li.Quantity)
}

// CartSession is the session aggregate tracked across page loads.
type CartSession struct {
	ID               uuid.UUID
	UserID           string // empty when anonymous
	Items            []CartLineItem
	TotalValue       Money
	CreatedAt        time.Time
	LastActivityAt   time.Time
	AbandonedAt      *time.Time
	RecoveredAt      *time.Time
	RecoveryAttempts int
	Source           string
}

// Status derives the lifecycle state from the abandonment and recovery stamps.
func (s CartSession) Status() SessionStatus {
	switch {
	case s.AbandonedAt != nil:
		return StatusAbandoned
	case s.RecoveredAt != nil:
		return StatusRecovered
	default:
		return StatusActive
	}
}

// ItemCount returns the total quantity across line items.
func (s CartSession) ItemCount() int {
	count := 0
	for _, li := range s.Items {
		count += li.Quantity
	}
	return count
}

// RecomputeTotal rebuilds TotalValue as the sum of line subtotals.
// The currency of the first item wins; an empty cart keeps the prior currency
// with a zero amount.
func (s *CartSession) RecomputeTotal() {
	if len(s.Items) == 0 {
		s.TotalValue = s.TotalValue.Zero()
		return
	}
	total := s.Items[0].UnitPrice.Zero()
	for _, li := range s.Items {
		total = total.Add(li.Subtotal())
	}
	s.TotalValue = total
}

// Clone returns a deep copy safe to hand to display layers.
func (s CartSession) Clone() CartSession {
	out := s
	out.Items = make([]CartLineItem, len(s.Items))
	copy(out.Items, s.Items)
	if s.AbandonedAt != nil {
		t := *s.AbandonedAt
		out.AbandonedAt = &t
	}
	if s.RecoveredAt != nil {
		t := *s.RecoveredAt
		out.RecoveredAt = &t
	}
	return out
}
