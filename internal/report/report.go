// Package report renders the rolling analytics as plain text.
package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/verte-zerg/carttrack/internal/model"
)

// RenderSummary prints the aggregate counters and rates.
func RenderSummary(w io.Writer, a model.CartAnalytics) error {
	if a.TotalSessions == 0 {
		_, err := fmt.Fprintln(w, "No sessions tracked yet.")
		return err
	}
	lines := []string{
		"Summary",
		fmt.Sprintf("Sessions: %d", a.TotalSessions),
		fmt.Sprintf("Abandoned: %d", a.AbandonedSessions),
		fmt.Sprintf("Recovered: %d", a.RecoveredSessions),
		fmt.Sprintf("Abandonment rate: %.1f%%", a.AbandonmentRate*100),
		fmt.Sprintf("Recovery rate: %.1f%%", a.RecoveryRate*100),
		fmt.Sprintf("Avg cart value: %s", a.AverageCartValue.StringFixed(2)),
		"",
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// RenderFunnel prints the conversion funnel table.
func RenderFunnel(w io.Writer, f model.FunnelCounts) error {
	rows := [][]string{
		{"viewed", fmt.Sprintf("%d", f.ItemsViewed)},
		{"added", fmt.Sprintf("%d", f.ItemsAdded)},
		{"cart visited", fmt.Sprintf("%d", f.CartVisited)},
		{"checkout started", fmt.Sprintf("%d", f.CheckoutStarted)},
		{"orders completed", fmt.Sprintf("%d", f.OrdersCompleted)},
	}
	if _, err := fmt.Fprintln(w, "Funnel"); err != nil {
		return err
	}
	for _, line := range formatTable([]string{"Stage", "Count"}, rows, map[int]bool{1: true}) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}

// RenderReasons prints abandonment reasons sorted by count, descending.
func RenderReasons(w io.Writer, reasons map[string]int64) error {
	if len(reasons) == 0 {
		return nil
	}
	type reasonCount struct {
		reason string
		count  int64
	}
	sorted := make([]reasonCount, 0, len(reasons))
	for reason, count := range reasons {
		sorted = append(sorted, reasonCount{reason, count})
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].count != sorted[j].count {
			return sorted[i].count > sorted[j].count
		}
		return sorted[i].reason < sorted[j].reason
	})
	rows := make([][]string, 0, len(sorted))
	for _, rc := range sorted {
		rows = append(rows, []string{rc.reason, fmt.Sprintf("%d", rc.count)})
	}
	if _, err := fmt.Fprintln(w, "Abandonment reasons"); err != nil {
		return err
	}
	for _, line := range formatTable([]string{"Reason", "Count"}, rows, map[int]bool{1: true}) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// Render prints the full report: summary, funnel, reasons.
func Render(w io.Writer, a model.CartAnalytics) error {
	if err := RenderSummary(w, a); err != nil {
		return err
	}
	if a.TotalSessions == 0 {
		return nil
	}
	if err := RenderFunnel(w, a.Funnel); err != nil {
		return err
	}
	return RenderReasons(w, a.TopReasons)
}
