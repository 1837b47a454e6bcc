package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/verte-zerg/carttrack/internal/model"
)

// Serialized record layouts. Timestamps marshal as RFC 3339 strings; money
// amounts as decimal strings with an ISO currency code alongside.

type lineItemRecord struct {
	ItemID     string    `json:"itemId"`
	MaterialID string    `json:"materialId"`
	Name       string    `json:"name"`
	Price      string    `json:"price"`
	Currency   string    `json:"currency"`
	Quantity   int       `json:"quantity"`
	AddedAt    time.Time `json:"addedAt"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

type sessionRecord struct {
	ID               string           `json:"id"`
	UserID           string           `json:"userId,omitempty"`
	Items            []lineItemRecord `json:"items"`
	TotalValue       string           `json:"totalValue"`
	Currency         string           `json:"currency"`
	CreatedAt        time.Time        `json:"createdAt"`
	LastActivityAt   time.Time        `json:"lastActivityAt"`
	AbandonedAt      *time.Time       `json:"abandonedAt,omitempty"`
	RecoveredAt      *time.Time       `json:"recoveredAt,omitempty"`
	RecoveryAttempts int              `json:"recoveryAttempts"`
	Source           string           `json:"source"`
}

type funnelRecord struct {
	ItemsViewed     int64 `json:"itemsViewed"`
	ItemsAdded      int64 `json:"itemsAdded"`
	CartVisited     int64 `json:"cartVisited"`
	CheckoutStarted int64 `json:"checkoutStarted"`
	OrdersCompleted int64 `json:"ordersCompleted"`
}

type analyticsRecord struct {
	TotalSessions     int64            `json:"totalSessions"`
	AbandonedSessions int64            `json:"abandonedSessions"`
	RecoveredSessions int64            `json:"recoveredSessions"`
	AbandonmentRate   float64          `json:"abandonmentRate"`
	RecoveryRate      float64          `json:"recoveryRate"`
	AverageCartValue  string           `json:"averageCartValue"`
	TopReasons        map[string]int64 `json:"topReasons,omitempty"`
	Funnel            funnelRecord     `json:"funnel"`
}

func newSessionRecord(s model.CartSession) sessionRecord {
	items := make([]lineItemRecord, 0, len(s.Items))
	for _, li := range s.Items {
		items = append(items, lineItemRecord{
			ItemID:     li.ItemID,
			MaterialID: li.MaterialID,
			Name:       li.Name,
			Price:      li.UnitPrice.Amount.String(),
			Currency:   li.UnitPrice.Currency.String(),
			Quantity:   li.Quantity,
			AddedAt:    li.AddedAt,
			ModifiedAt: li.ModifiedAt,
		})
	}
	return sessionRecord{
		ID:               s.ID.String(),
		UserID:           s.UserID,
		Items:            items,
		TotalValue:       s.TotalValue.Amount.String(),
		Currency:         s.TotalValue.Currency.String(),
		CreatedAt:        s.CreatedAt,
		LastActivityAt:   s.LastActivityAt,
		AbandonedAt:      s.AbandonedAt,
		RecoveredAt:      s.RecoveredAt,
		RecoveryAttempts: s.RecoveryAttempts,
		Source:           s.Source,
	}
}

func (r sessionRecord) toDomain() (model.CartSession, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return model.CartSession{}, fmt.Errorf("session id[%s] is not valid: %w", r.ID, err)
	}
	total, err := model.NewMoney(r.TotalValue, r.Currency)
	if err != nil {
		return model.CartSession{}, fmt.Errorf("total value: %w", err)
	}
	items := make([]model.CartLineItem, 0, len(r.Items))
	for _, rec := range r.Items {
		item, err := rec.toDomain()
		if err != nil {
			return model.CartSession{}, err
		}
		items = append(items, item)
	}
	return model.CartSession{
		ID:               id,
		UserID:           r.UserID,
		Items:            items,
		TotalValue:       total,
		CreatedAt:        r.CreatedAt,
		LastActivityAt:   r.LastActivityAt,
		AbandonedAt:      r.AbandonedAt,
		RecoveredAt:      r.RecoveredAt,
		RecoveryAttempts: r.RecoveryAttempts,
		Source:           r.Source,
	}, nil
}

func (r lineItemRecord) toDomain() (model.CartLineItem, error) {
	price, err := model.NewMoney(r.Price, r.Currency)
	if err != nil {
		return model.CartLineItem{}, fmt.Errorf("item %s price: %w", r.MaterialID, err)
	}
	return model.CartLineItem{
		ItemID:     r.ItemID,
		MaterialID: r.MaterialID,
		Name:       r.Name,
		UnitPrice:  price,
		Quantity:   r.Quantity,
		AddedAt:    r.AddedAt,
		ModifiedAt: r.ModifiedAt,
	}, nil
}

func newAnalyticsRecord(a model.CartAnalytics) analyticsRecord {
	return analyticsRecord{
		TotalSessions:     a.TotalSessions,
		AbandonedSessions: a.AbandonedSessions,
		RecoveredSessions: a.RecoveredSessions,
		AbandonmentRate:   a.AbandonmentRate,
		RecoveryRate:      a.RecoveryRate,
		AverageCartValue:  a.AverageCartValue.String(),
		TopReasons:        a.TopReasons,
		Funnel: funnelRecord{
			ItemsViewed:     a.Funnel.ItemsViewed,
			ItemsAdded:      a.Funnel.ItemsAdded,
			CartVisited:     a.Funnel.CartVisited,
			CheckoutStarted: a.Funnel.CheckoutStarted,
			OrdersCompleted: a.Funnel.OrdersCompleted,
		},
	}
}

func (r analyticsRecord) toDomain() (model.CartAnalytics, error) {
	avg, err := decimal.NewFromString(r.AverageCartValue)
	if err != nil {
		return model.CartAnalytics{}, fmt.Errorf("average cart value[%s] is not valid: %w", r.AverageCartValue, err)
	}
	return model.CartAnalytics{
		TotalSessions:     r.TotalSessions,
		AbandonedSessions: r.AbandonedSessions,
		RecoveredSessions: r.RecoveredSessions,
		AbandonmentRate:   r.AbandonmentRate,
		RecoveryRate:      r.RecoveryRate,
		AverageCartValue:  avg,
		TopReasons:        r.TopReasons,
		Funnel: model.FunnelCounts{
			ItemsViewed:     r.Funnel.ItemsViewed,
			ItemsAdded:      r.Funnel.ItemsAdded,
			CartVisited:     r.Funnel.CartVisited,
			CheckoutStarted: r.Funnel.CheckoutStarted,
			OrdersCompleted: r.Funnel.OrdersCompleted,
		},
	}, nil
}
