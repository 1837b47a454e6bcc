// Package carttrack implements a client-local session activity and
// cart-abandonment tracking engine: a durable cart session, inactivity
// detection through a re-armable countdown, abandonment and recovery
// transitions, and incrementally aggregated funnel analytics.
package carttrack

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/currency"

	"github.com/verte-zerg/carttrack/internal/abandon"
	"github.com/verte-zerg/carttrack/internal/activity"
	"github.com/verte-zerg/carttrack/internal/analytics"
	"github.com/verte-zerg/carttrack/internal/model"
	"github.com/verte-zerg/carttrack/internal/recovery"
	"github.com/verte-zerg/carttrack/internal/session"
)

// Config carries the engine's tunable settings.
type Config struct {
	// Timeout is the inactivity window before abandonment detection.
	Timeout time.Duration
	// EmailTriggers enables the email-sequence recovery trigger for
	// authenticated users.
	EmailTriggers bool
	// RecoveryWindow bounds how old an abandonment may be and still be
	// recovered at restore time.
	RecoveryWindow time.Duration
	// AverageBlend is the recency weight of the running average cart value.
	AverageBlend float64
	// Currency is the unit new sessions price in.
	Currency currency.Unit
	// Source is the acquisition tag stamped on new sessions.
	Source string
}

// DefaultConfig returns the stock settings.
func DefaultConfig() Config {
	return Config{
		Timeout:        5 * time.Minute,
		EmailTriggers:  true,
		RecoveryWindow: 72 * time.Hour,
		AverageBlend:   0.5,
		Currency:       currency.USD,
		Source:         "direct",
	}
}

// Callbacks are the hooks the display layer registers. Either may be nil.
type Callbacks struct {
	OnAbandonmentDetected func(event model.AbandonmentEvent)
	OnRecoveryOpportunity func(sessionID uuid.UUID, cartValue model.Money)
}

// Store is the durable store surface the engine needs.
type Store interface {
	session.Store
	analytics.Store
}

// Engine wires the session manager, activity monitor, detectors, and the
// analytics aggregator behind one handle. All mutation is serialized through
// its mutex; the countdown timer contends on the same lock, so activity
// stamps and detections apply in lock-acquisition order.
type Engine struct {
	mu sync.Mutex

	cfg       Config
	clock     activity.Clock
	log       *zap.Logger
	callbacks Callbacks

	manager    *session.Manager
	monitor    *activity.Monitor
	detector   *abandon.Detector
	recoverer  *recovery.Detector
	aggregator *analytics.Aggregator

	started bool
	closed  bool
}

// New builds an engine over the given store. The clock may be nil, in which
// case runtime timers are used.
func New(ctx context.Context, st Store, cfg Config, clock activity.Clock, log *zap.Logger, cb Callbacks) *Engine {
	if clock == nil {
		clock = activity.SystemClock()
	}
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{
		cfg:       cfg,
		clock:     clock,
		log:       log,
		callbacks: cb,
	}
	e.manager = session.NewManager(st,
		session.Options{Currency: cfg.Currency, Source: cfg.Source},
		clock.Now,
		log.Named("session"))
	e.monitor = activity.NewMonitor(clock, cfg.Timeout, e.handleTimeout, log.Named("activity"))
	e.detector = abandon.NewDetector(cfg.EmailTriggers, log.Named("abandon"))
	e.recoverer = recovery.NewDetector(cfg.RecoveryWindow, log.Named("recovery"))
	e.aggregator = analytics.NewAggregator(ctx, st, cfg.AverageBlend, log.Named("analytics"))
	return e
}

// Start restores or creates the session, runs the restore-time recovery
// check, and arms the countdown. It returns the resulting session.
func (e *Engine) Start(ctx context.Context) model.CartSession {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.started {
		return e.manager.Snapshot()
	}
	e.started = true

	_, restored := e.manager.Initialize(ctx)
	if restored {
		s := e.manager.Session()
		if e.recoverer.OnRestore(s, e.clock.Now()) {
			e.manager.Persist(ctx)
			e.aggregator.RecordRecovery(ctx)
			e.notifyRecovery(s.ID, s.TotalValue)
		}
	}
	e.monitor.Pulse()
	return e.manager.Snapshot()
}

// Pulse registers a raw interaction signal: stamps last activity, recovers an
// abandoned session, and re-arms the countdown.
func (e *Engine) Pulse(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pulseLocked(ctx)
}

// AddItem merges the item into the cart and counts the funnel add.
func (e *Engine) AddItem(ctx context.Context, item model.CartLineItem) model.CartSession {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.manager.AddItem(ctx, item)
	e.aggregator.RecordItemAdded(ctx)
	e.pulseLocked(ctx)
	return e.manager.Snapshot()
}

// RemoveItem drops the line with the given material identifier.
func (e *Engine) RemoveItem(ctx context.Context, materialID string) model.CartSession {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.manager.RemoveItem(ctx, materialID)
	e.pulseLocked(ctx)
	return e.manager.Snapshot()
}

// UpdateQuantity sets a line's quantity; zero or negative removes the line.
func (e *Engine) UpdateQuantity(ctx context.Context, materialID string, quantity int) model.CartSession {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.manager.UpdateQuantity(ctx, materialID, quantity)
	e.pulseLocked(ctx)
	return e.manager.Snapshot()
}

// MarkConversion completes the order: the cart empties, the session resets
// for its next cycle, and the funnel and recovery counters update.
func (e *Engine) MarkConversion(ctx context.Context) model.CartSession {
	e.mu.Lock()
	defer e.mu.Unlock()
	wasAbandoned := e.manager.MarkConversion(ctx)
	e.aggregator.RecordConversion(ctx, wasAbandoned)
	e.monitor.Pulse()
	return e.manager.Snapshot()
}

// SetUserID attaches an authenticated user to the session.
func (e *Engine) SetUserID(ctx context.Context, userID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.manager.SetUserID(ctx, userID)
}

// ViewItem counts a product view in the funnel.
func (e *Engine) ViewItem(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.aggregator.RecordItemViewed(ctx)
	e.pulseLocked(ctx)
}

// VisitCart counts an explicit cart view in the funnel.
func (e *Engine) VisitCart(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.aggregator.RecordCartVisited(ctx)
	e.pulseLocked(ctx)
}

// StartCheckout counts entry into checkout in the funnel.
func (e *Engine) StartCheckout(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.aggregator.RecordCheckoutStarted(ctx)
	e.pulseLocked(ctx)
}

// Session returns a copy of the current session.
func (e *Engine) Session() model.CartSession {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.manager.Snapshot()
}

// Analytics returns a copy of the rolling aggregate.
func (e *Engine) Analytics() model.CartAnalytics {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.aggregator.Snapshot()
}

// IdleRemaining reports the time left on the countdown, clamped to zero.
func (e *Engine) IdleRemaining() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	remaining := e.cfg.Timeout - e.clock.Now().Sub(e.manager.Session().LastActivityAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Close is the page-exit path: it stops the countdown and, when the cart is
// non-empty, synchronously runs abandonment detection before teardown.
func (e *Engine) Close(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	e.monitor.Stop()
	e.detectLocked(ctx, model.ReasonPageExit)
}

func (e *Engine) pulseLocked(ctx context.Context) {
	if e.closed {
		return
	}
	e.manager.Touch(ctx)
	s := e.manager.Session()
	if e.recoverer.OnPulse(s, e.clock.Now()) {
		e.manager.Persist(ctx)
		e.aggregator.RecordRecovery(ctx)
		e.notifyRecovery(s.ID, s.TotalValue)
	}
	e.monitor.Pulse()
}

// handleTimeout runs when the countdown elapses with no further activity.
// A pulse that won the lock against the firing timer re-stamped the session,
// so the decision is re-checked against the clock before detecting.
func (e *Engine) handleTimeout() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	if !abandon.ShouldAbandon(*e.manager.Session(), e.clock.Now(), e.cfg.Timeout) {
		return
	}
	e.detectLocked(context.Background(), model.ReasonTimeout)
}

func (e *Engine) detectLocked(ctx context.Context, reason model.ExitReason) {
	s := e.manager.Session()
	event, ok := e.detector.Detect(s, e.clock.Now(), reason)
	if !ok {
		return
	}
	e.manager.Persist(ctx)
	e.aggregator.RecordAbandonment(ctx, event)
	if e.callbacks.OnAbandonmentDetected != nil {
		e.callbacks.OnAbandonmentDetected(event)
	}
}

func (e *Engine) notifyRecovery(id uuid.UUID, value model.Money) {
	if e.callbacks.OnRecoveryOpportunity != nil {
		e.callbacks.OnRecoveryOpportunity(id, value)
	}
}
