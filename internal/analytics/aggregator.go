// Package analytics maintains the rolling behavioral aggregate: session
// counters, derived rates, the blended average cart value, and the conversion
// funnel. Every update is persisted to the durable store.
package analytics

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/verte-zerg/carttrack/internal/model"
	"github.com/verte-zerg/carttrack/internal/store"
)

// Store is the slice of the durable store the aggregator needs.
type Store interface {
	LoadAnalytics(ctx context.Context) (model.CartAnalytics, error)
	SaveAnalytics(ctx context.Context, analytics model.CartAnalytics) error
}

// Aggregator updates the aggregate incrementally. Counters only grow; the
// two rates are always recomputed from their counters.
type Aggregator struct {
	store Store
	blend decimal.Decimal
	log   *zap.Logger

	state model.CartAnalytics
}

// NewAggregator loads the persisted aggregate, degrading to a fresh record
// when none exists or the stored one cannot be decoded. The blend weight w
// (0..1) controls the recency bias of the running average:
// avg = (1-w)*avg + w*value. 0.5 reproduces the classic two-point blend.
func NewAggregator(ctx context.Context, st Store, blend float64, log *zap.Logger) *Aggregator {
	a := &Aggregator{
		store: st,
		blend: decimal.NewFromFloat(blend),
		log:   log,
	}
	state, err := st.LoadAnalytics(ctx)
	switch {
	case err == nil:
		a.state = state
	case errors.Is(err, store.ErrNotFound):
		// First write creates the record.
	default:
		log.Warn("discarding unreadable analytics record", zap.Error(err))
	}
	if a.state.TopReasons == nil {
		a.state.TopReasons = map[string]int64{}
	}
	return a
}

// RecordAbandonment folds one abandonment event into the aggregate.
func (a *Aggregator) RecordAbandonment(ctx context.Context, event model.AbandonmentEvent) {
	a.state.TotalSessions++
	a.state.AbandonedSessions++
	a.state.TopReasons[string(event.Reason)]++
	a.state.Funnel.CartVisited++
	a.blendAverage(event.CartValue.Amount)
	a.recomputeRates()
	a.persist(ctx)
}

// RecordRecovery counts a recovered session and recomputes the recovery rate.
func (a *Aggregator) RecordRecovery(ctx context.Context) {
	a.state.RecoveredSessions++
	a.recomputeRates()
	a.persist(ctx)
}

// RecordConversion counts a completed order; wasAbandoned also counts the
// session as recovered.
func (a *Aggregator) RecordConversion(ctx context.Context, wasAbandoned bool) {
	a.state.Funnel.OrdersCompleted++
	if wasAbandoned {
		a.state.RecoveredSessions++
	}
	a.recomputeRates()
	a.persist(ctx)
}

// RecordItemViewed counts a product view.
func (a *Aggregator) RecordItemViewed(ctx context.Context) {
	a.state.Funnel.ItemsViewed++
	a.persist(ctx)
}

// RecordItemAdded counts a successful add-to-cart.
func (a *Aggregator) RecordItemAdded(ctx context.Context) {
	a.state.Funnel.ItemsAdded++
	a.persist(ctx)
}

// RecordCartVisited counts an explicit cart view. Abandonment detection also
// counts the stage on its own path.
func (a *Aggregator) RecordCartVisited(ctx context.Context) {
	a.state.Funnel.CartVisited++
	a.persist(ctx)
}

// RecordCheckoutStarted counts entry into checkout.
func (a *Aggregator) RecordCheckoutStarted(ctx context.Context) {
	a.state.Funnel.CheckoutStarted++
	a.persist(ctx)
}

// Snapshot returns a copy of the aggregate for display layers.
func (a *Aggregator) Snapshot() model.CartAnalytics {
	return a.state.Clone()
}

// blendAverage folds value into the running average. The first observation
// seeds the average exactly; later ones blend with the configured weight.
func (a *Aggregator) blendAverage(value decimal.Decimal) {
	if a.state.AbandonedSessions <= 1 {
		a.state.AverageCartValue = value
		return
	}
	keep := decimal.NewFromInt(1).Sub(a.blend)
	a.state.AverageCartValue = a.state.AverageCartValue.Mul(keep).Add(value.Mul(a.blend))
}

func (a *Aggregator) recomputeRates() {
	a.state.AbandonmentRate = 0
	if a.state.TotalSessions > 0 {
		a.state.AbandonmentRate = float64(a.state.AbandonedSessions) / float64(a.state.TotalSessions)
	}
	a.state.RecoveryRate = 0
	if a.state.AbandonedSessions > 0 {
		a.state.RecoveryRate = float64(a.state.RecoveredSessions) / float64(a.state.AbandonedSessions)
	}
}

func (a *Aggregator) persist(ctx context.Context) {
	if err := a.store.SaveAnalytics(ctx, a.state); err != nil {
		a.log.Warn("analytics save failed; in-memory aggregate remains authoritative", zap.Error(err))
	}
}
