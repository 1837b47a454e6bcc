package recovery

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/verte-zerg/carttrack/internal/model"
)

func abandonedSession(t *testing.T, age time.Duration) (model.CartSession, time.Time) {
	t.Helper()
	money, err := model.NewMoney("50", "USD")
	require.NoError(t, err)
	now := time.Date(2026, 3, 12, 15, 0, 0, 0, time.UTC)
	abandoned := now.Add(-age)
	s := model.CartSession{
		ID: uuid.New(),
		Items: []model.CartLineItem{
			{MaterialID: "m1", Name: "m1", UnitPrice: money, Quantity: 1},
		},
		CreatedAt:      abandoned.Add(-time.Hour),
		LastActivityAt: abandoned,
		AbandonedAt:    &abandoned,
	}
	s.RecomputeTotal()
	return s, now
}

func TestOnRestoreWithinWindow(t *testing.T) {
	d := NewDetector(72*time.Hour, zap.NewNop())
	s, now := abandonedSession(t, 2*time.Hour)

	require.True(t, d.OnRestore(&s, now))
	require.NotNil(t, s.RecoveredAt)
	assert.Equal(t, now, *s.RecoveredAt)
	assert.Nil(t, s.AbandonedAt)
	assert.Equal(t, 1, s.RecoveryAttempts)
	assert.Equal(t, now, s.LastActivityAt)
}

func TestOnRestoreOutsideWindow(t *testing.T) {
	d := NewDetector(72*time.Hour, zap.NewNop())
	s, now := abandonedSession(t, 80*time.Hour)

	assert.False(t, d.OnRestore(&s, now))
	assert.NotNil(t, s.AbandonedAt)
	assert.Nil(t, s.RecoveredAt)
	assert.Equal(t, 0, s.RecoveryAttempts)
	assert.Equal(t, model.StatusAbandoned, s.Status())
}

func TestOnPulseIgnoresWindow(t *testing.T) {
	d := NewDetector(72*time.Hour, zap.NewNop())
	s, now := abandonedSession(t, 80*time.Hour)

	// A live activity signal recovers regardless of how old the abandonment is.
	require.True(t, d.OnPulse(&s, now))
	assert.Nil(t, s.AbandonedAt)
	assert.Equal(t, 1, s.RecoveryAttempts)
}

func TestOnPulseActiveSessionNoop(t *testing.T) {
	d := NewDetector(72*time.Hour, zap.NewNop())
	s, now := abandonedSession(t, time.Hour)
	s.AbandonedAt = nil

	assert.False(t, d.OnPulse(&s, now))
	assert.Equal(t, 0, s.RecoveryAttempts)
}

func TestRecoverRequiresItems(t *testing.T) {
	d := NewDetector(72*time.Hour, zap.NewNop())
	s, now := abandonedSession(t, time.Hour)
	s.Items = nil

	assert.False(t, d.OnRestore(&s, now))
	assert.NotNil(t, s.AbandonedAt)
}

func TestRecoveryStampLaterThanAbandonment(t *testing.T) {
	d := NewDetector(72*time.Hour, zap.NewNop())
	s, now := abandonedSession(t, 2*time.Hour)
	abandonedAt := *s.AbandonedAt

	require.True(t, d.OnRestore(&s, now))
	assert.True(t, s.RecoveredAt.After(abandonedAt))
}
