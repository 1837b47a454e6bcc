// Package session owns the canonical cart session record: creation,
// restoration from the durable store, mutation, and total recomputation.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/text/currency"

	"github.com/verte-zerg/carttrack/internal/model"
	"github.com/verte-zerg/carttrack/internal/store"
)

// Store is the slice of the durable store the manager needs.
type Store interface {
	LoadSession(ctx context.Context) (model.CartSession, error)
	SaveSession(ctx context.Context, session model.CartSession) error
}

// Options configure session creation.
type Options struct {
	Currency currency.Unit
	Source   string
}

// Manager holds the single in-memory session and keeps it persisted.
// In-memory state stays authoritative for the page lifetime even when a save
// fails; save errors are logged and swallowed.
type Manager struct {
	store Store
	opts  Options
	now   func() time.Time
	log   *zap.Logger

	session model.CartSession
}

// NewManager builds a manager; now supplies timestamps for all mutations.
func NewManager(st Store, opts Options, now func() time.Time, log *zap.Logger) *Manager {
	return &Manager{
		store: st,
		opts:  opts,
		now:   now,
		log:   log,
	}
}

// Initialize restores the persisted session or creates a fresh one.
// A corrupt or missing record degrades to a brand-new empty session.
// It reports whether an existing record was restored.
func (m *Manager) Initialize(ctx context.Context) (model.CartSession, bool) {
	restored, err := m.store.LoadSession(ctx)
	switch {
	case err == nil:
		m.session = restored
		m.log.Debug("session restored",
			zap.String("session_id", restored.ID.String()),
			zap.Int("items", len(restored.Items)))
		return m.session.Clone(), true
	case errors.Is(err, store.ErrNotFound):
		// First visit on this profile.
	default:
		m.log.Warn("discarding unreadable session record", zap.Error(err))
	}

	now := m.now()
	m.session = model.CartSession{
		ID:             uuid.New(),
		TotalValue:     model.Money{Amount: decimal.Zero, Currency: m.opts.Currency},
		CreatedAt:      now,
		LastActivityAt: now,
		Source:         m.opts.Source,
	}
	m.persist(ctx)
	return m.session.Clone(), false
}

// Session returns a pointer to the owned record for the detectors.
func (m *Manager) Session() *model.CartSession {
	return &m.session
}

// Snapshot returns a copy safe for display layers.
func (m *Manager) Snapshot() model.CartSession {
	return m.session.Clone()
}

// SetUserID attaches the authenticated user to the session.
func (m *Manager) SetUserID(ctx context.Context, userID string) {
	m.session.UserID = userID
	m.persist(ctx)
}

// AddItem merges the item into an existing line with the same material
// identifier or appends a new line, then recomputes the total.
func (m *Manager) AddItem(ctx context.Context, item model.CartLineItem) model.CartSession {
	now := m.now()
	merged := false
	for i := range m.session.Items {
		if m.session.Items[i].MaterialID == item.MaterialID {
			m.session.Items[i].Quantity += item.Quantity
			m.session.Items[i].ModifiedAt = now
			merged = true
			break
		}
	}
	if !merged {
		if item.ItemID == "" {
			item.ItemID = uuid.NewString()
		}
		item.AddedAt = now
		item.ModifiedAt = now
		m.session.Items = append(m.session.Items, item)
	}
	m.session.RecomputeTotal()
	m.persist(ctx)
	return m.session.Clone()
}

// RemoveItem drops the line with the given material identifier.
// It reports whether a line was removed.
func (m *Manager) RemoveItem(ctx context.Context, materialID string) bool {
	kept := m.session.Items[:0]
	removed := false
	for _, li := range m.session.Items {
		if li.MaterialID == materialID {
			removed = true
			continue
		}
		kept = append(kept, li)
	}
	m.session.Items = kept
	if len(m.session.Items) == 0 {
		m.session.Items = nil
	}
	m.session.RecomputeTotal()
	m.persist(ctx)
	return removed
}

// UpdateQuantity sets a new quantity for the line; zero or negative values
// route through removal rather than failing.
func (m *Manager) UpdateQuantity(ctx context.Context, materialID string, quantity int) {
	if quantity <= 0 {
		m.RemoveItem(ctx, materialID)
		return
	}
	now := m.now()
	for i := range m.session.Items {
		if m.session.Items[i].MaterialID == materialID {
			if m.session.Items[i].Quantity != quantity {
				m.session.Items[i].Quantity = quantity
				m.session.Items[i].ModifiedAt = now
			}
			break
		}
	}
	m.session.RecomputeTotal()
	m.persist(ctx)
}

// MarkConversion clears the cart and stamps the recovery timestamp, resetting
// the session to an empty active cart for the next cycle. It reports whether
// the session had been abandoned before converting.
func (m *Manager) MarkConversion(ctx context.Context) bool {
	wasAbandoned := m.session.AbandonedAt != nil
	now := m.now()
	m.session.Items = nil
	m.session.RecomputeTotal()
	m.session.AbandonedAt = nil
	m.session.RecoveredAt = &now
	m.session.LastActivityAt = now
	m.persist(ctx)
	m.log.Info("conversion recorded",
		zap.String("session_id", m.session.ID.String()),
		zap.Bool("was_abandoned", wasAbandoned))
	return wasAbandoned
}

// Touch stamps the last-activity time.
func (m *Manager) Touch(ctx context.Context) {
	m.session.LastActivityAt = m.now()
	m.persist(ctx)
}

// Persist writes the current session, logging and swallowing failures.
func (m *Manager) Persist(ctx context.Context) {
	m.persist(ctx)
}

func (m *Manager) persist(ctx context.Context) {
	if err := m.store.SaveSession(ctx, m.session); err != nil {
		m.log.Warn("session save failed; in-memory state remains authoritative", zap.Error(err))
	}
}
