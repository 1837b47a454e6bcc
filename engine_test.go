package carttrack

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/carttrack/internal/activity"
	"github.com/verte-zerg/carttrack/internal/model"
	"github.com/verte-zerg/carttrack/internal/store"
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

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) activity.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, deadline: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock and fires due timers outside the clock lock, the
// way runtime timers fire on their own goroutine.
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

type capture struct {
	mu         sync.Mutex
	events     []model.AbandonmentEvent
	recoveries []uuid.UUID
}

func (c *capture) callbacks() Callbacks {
	return Callbacks{
		OnAbandonmentDetected: func(event model.AbandonmentEvent) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.events = append(c.events, event)
		},
		OnRecoveryOpportunity: func(sessionID uuid.UUID, _ model.Money) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.recoveries = append(c.recoveries, sessionID)
		},
	}
}

func (c *capture) eventCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Timeout = 300 * time.Second
	return cfg
}

func newTestEngine(t *testing.T) (*Engine, *store.Store, *fakeClock, *capture) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "carttrack.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = st.Close()
	})
	clock := newFakeClock()
	hooks := &capture{}
	engine := New(context.Background(), st, testConfig(), clock, nil, hooks.callbacks())
	return engine, st, clock, hooks
}

func lineItem(t *testing.T, materialID, price string, qty int) model.CartLineItem {
	t.Helper()
	money, err := model.NewMoney(price, "USD")
	require.NoError(t, err)
	return model.CartLineItem{MaterialID: materialID, Name: materialID, UnitPrice: money, Quantity: qty}
}

func TestTimeoutAbandonment(t *testing.T) {
	engine, _, clock, hooks := newTestEngine(t)
	ctx := context.Background()

	engine.Start(ctx)
	engine.AddItem(ctx, lineItem(t, "m1", "50", 1))

	clock.Advance(300 * time.Second)

	require.Equal(t, 1, hooks.eventCount())
	event := hooks.events[0]
	assert.Equal(t, "50", event.CartValue.Amount.String())
	assert.Equal(t, model.ReasonTimeout, event.Reason)

	session := engine.Session()
	assert.Equal(t, model.StatusAbandoned, session.Status())

	analytics := engine.Analytics()
	assert.Equal(t, int64(1), analytics.AbandonedSessions)
	assert.Equal(t, int64(1), analytics.TotalSessions)
	assert.Equal(t, int64(1), analytics.TopReasons["timeout"])
}

func TestActivityResetsCountdown(t *testing.T) {
	engine, _, clock, hooks := newTestEngine(t)
	ctx := context.Background()

	engine.Start(ctx)
	engine.AddItem(ctx, lineItem(t, "m1", "50", 1))

	clock.Advance(200 * time.Second)
	engine.Pulse(ctx)
	clock.Advance(200 * time.Second)

	// 400s elapsed in total, but never 300s without activity.
	assert.Equal(t, 0, hooks.eventCount())
	assert.Equal(t, model.StatusActive, engine.Session().Status())

	clock.Advance(100 * time.Second)
	assert.Equal(t, 1, hooks.eventCount())
}

func TestDuplicateDetectionSuppressed(t *testing.T) {
	engine, _, clock, hooks := newTestEngine(t)
	ctx := context.Background()

	engine.Start(ctx)
	engine.AddItem(ctx, lineItem(t, "m1", "50", 1))
	clock.Advance(300 * time.Second)
	require.Equal(t, 1, hooks.eventCount())

	// Page exit right after the timeout fired must not double-count.
	engine.Close(ctx)
	assert.Equal(t, 1, hooks.eventCount())
	assert.Equal(t, int64(1), engine.Analytics().AbandonedSessions)
}

func TestPageExitDetection(t *testing.T) {
	engine, _, _, hooks := newTestEngine(t)
	ctx := context.Background()

	engine.Start(ctx)
	engine.AddItem(ctx, lineItem(t, "m1", "30", 2))
	engine.Close(ctx)

	require.Equal(t, 1, hooks.eventCount())
	assert.Equal(t, model.ReasonPageExit, hooks.events[0].Reason)
	assert.Equal(t, "60", hooks.events[0].CartValue.Amount.String())
}

func TestPageExitEmptyCartNoDetection(t *testing.T) {
	engine, _, _, hooks := newTestEngine(t)
	ctx := context.Background()

	engine.Start(ctx)
	engine.Close(ctx)
	assert.Equal(t, 0, hooks.eventCount())
}

func TestPulseRecoversAbandonedSession(t *testing.T) {
	engine, _, clock, hooks := newTestEngine(t)
	ctx := context.Background()

	engine.Start(ctx)
	engine.AddItem(ctx, lineItem(t, "m1", "50", 1))
	clock.Advance(300 * time.Second)
	require.Equal(t, model.StatusAbandoned, engine.Session().Status())

	engine.Pulse(ctx)

	session := engine.Session()
	assert.Equal(t, model.StatusRecovered, session.Status())
	assert.Nil(t, session.AbandonedAt)
	assert.Equal(t, 1, session.RecoveryAttempts)
	assert.Equal(t, int64(1), engine.Analytics().RecoveredSessions)
	assert.Len(t, hooks.recoveries, 1)
}

func TestRestoreRecoversRecentAbandonment(t *testing.T) {
	engine, st, clock, hooks := newTestEngine(t)
	ctx := context.Background()

	seedAbandonedSession(t, st, clock.Now().Add(-2*time.Hour))
	require.NoError(t, st.SaveAnalytics(ctx, model.CartAnalytics{TotalSessions: 2, AbandonedSessions: 2}))

	// A fresh engine picks up the seeded aggregate.
	engine = New(ctx, st, testConfig(), clock, nil, hooks.callbacks())
	session := engine.Start(ctx)

	assert.Equal(t, model.StatusRecovered, session.Status())
	assert.Equal(t, 1, session.RecoveryAttempts)
	require.NotNil(t, session.RecoveredAt)

	analytics := engine.Analytics()
	assert.Equal(t, int64(1), analytics.RecoveredSessions)
	assert.Equal(t, 0.5, analytics.RecoveryRate)
	assert.Len(t, hooks.recoveries, 1)
}

func TestRestoreOutsideRecoveryWindow(t *testing.T) {
	engine, st, clock, hooks := newTestEngine(t)
	ctx := context.Background()

	seedAbandonedSession(t, st, clock.Now().Add(-80*time.Hour))

	engine = New(ctx, st, testConfig(), clock, nil, hooks.callbacks())
	session := engine.Start(ctx)

	assert.Equal(t, model.StatusAbandoned, session.Status())
	assert.Equal(t, 0, session.RecoveryAttempts)
	assert.Equal(t, int64(0), engine.Analytics().RecoveredSessions)
	assert.Empty(t, hooks.recoveries)
}

func TestConversionResetsCartAndCountsOrder(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	ctx := context.Background()

	engine.Start(ctx)
	engine.AddItem(ctx, lineItem(t, "m1", "40", 3))
	require.Equal(t, "120", engine.Session().TotalValue.Amount.String())

	session := engine.MarkConversion(ctx)
	assert.Empty(t, session.Items)
	assert.True(t, session.TotalValue.Amount.IsZero())
	assert.Equal(t, int64(1), engine.Analytics().Funnel.OrdersCompleted)
}

func TestFunnelCounters(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)
	ctx := context.Background()

	engine.Start(ctx)
	engine.ViewItem(ctx)
	engine.ViewItem(ctx)
	engine.AddItem(ctx, lineItem(t, "m1", "10", 1))
	engine.VisitCart(ctx)
	engine.StartCheckout(ctx)
	engine.MarkConversion(ctx)

	funnel := engine.Analytics().Funnel
	assert.Equal(t, int64(2), funnel.ItemsViewed)
	assert.Equal(t, int64(1), funnel.ItemsAdded)
	assert.Equal(t, int64(1), funnel.CartVisited)
	assert.Equal(t, int64(1), funnel.CheckoutStarted)
	assert.Equal(t, int64(1), funnel.OrdersCompleted)
}

func TestEmailTriggerGatedOnUser(t *testing.T) {
	engine, _, clock, hooks := newTestEngine(t)
	ctx := context.Background()

	engine.Start(ctx)
	engine.SetUserID(ctx, "u-7")
	engine.AddItem(ctx, lineItem(t, "m1", "50", 1))
	clock.Advance(300 * time.Second)

	require.Equal(t, 1, hooks.eventCount())
	types := make([]model.TriggerType, 0, len(hooks.events[0].Triggers))
	for _, tr := range hooks.events[0].Triggers {
		types = append(types, tr.Type)
	}
	assert.Contains(t, types, model.TriggerEmailSequence)
}

func seedAbandonedSession(t *testing.T, st *store.Store, abandonedAt time.Time) {
	t.Helper()
	money, err := model.NewMoney("50", "USD")
	require.NoError(t, err)
	s := model.CartSession{
		ID: uuid.New(),
		Items: []model.CartLineItem{
			{ItemID: uuid.NewString(), MaterialID: "m1", Name: "m1", UnitPrice: money, Quantity: 1,
				AddedAt: abandonedAt.Add(-time.Hour), ModifiedAt: abandonedAt.Add(-time.Hour)},
		},
		CreatedAt:      abandonedAt.Add(-time.Hour),
		LastActivityAt: abandonedAt,
		AbandonedAt:    &abandonedAt,
		Source:         "direct",
	}
	s.RecomputeTotal()
	require.NoError(t, st.SaveSession(context.Background(), s))
}
