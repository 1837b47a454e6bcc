package model

import "github.com/shopspring/decimal"

// FunnelCounts approximates the conversion pipeline with five counters.
type FunnelCounts struct {
	ItemsViewed     int64
	ItemsAdded      int64
	CartVisited     int64
	CheckoutStarted int64
	OrdersCompleted int64
}

// CartAnalytics is the rolling aggregate persisted after every update.
// Rates are derived from their counters and never stored independently.
type CartAnalytics struct {
	TotalSessions     int64
	AbandonedSessions int64
	RecoveredSessions int64
	AbandonmentRate   float64
	RecoveryRate      float64
	AverageCartValue  decimal.Decimal
	TopReasons        map[string]int64
	Funnel            FunnelCounts
}

// Clone returns a copy with its own reasons map.
func (a CartAnalytics) Clone() CartAnalytics {
	out := a
	if a.TopReasons != nil {
		out.TopReasons = make(map[string]int64, len(a.TopReasons))
		for k, v := range a.TopReasons {
			out.TopReasons[k] = v
		}
	}
	return out
}
