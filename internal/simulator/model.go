// Package simulator provides a Bubble Tea storefront that drives the
// tracking engine: every key event is an interaction signal, and the
// abandonment callbacks surface as recovery banners.
package simulator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/verte-zerg/carttrack"
	"github.com/verte-zerg/carttrack/internal/model"
)

// Product is one catalog entry the simulator can add to the cart.
type Product struct {
	MaterialID string
	Name       string
	Price      model.Money
}

// AbandonMsg carries an abandonment event into the UI loop.
type AbandonMsg struct {
	Event model.AbandonmentEvent
}

// RecoveryMsg carries a recovery opportunity into the UI loop.
type RecoveryMsg struct {
	SessionID uuid.UUID
	CartValue model.Money
}

type tickMsg time.Time

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#F0F0F0"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	alertStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
	okStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#6FBF73"))
	footerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
)

// Model implements the Bubble Tea storefront UI.
type Model struct {
	engine   *carttrack.Engine
	products []Product

	cursor int
	width  int
	height int

	countdown progress.Model
	remaining time.Duration
	timeout   time.Duration

	banner  string
	checked bool
}

// NewModel constructs a storefront model over a started engine.
func NewModel(engine *carttrack.Engine, products []Product, timeout time.Duration) *Model {
	bar := progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage())
	return &Model{
		engine:    engine,
		products:  products,
		countdown: bar,
		remaining: timeout,
		timeout:   timeout,
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	ctx := context.Background()
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.countdown.Width = clampWidth(msg.Width/2, 10, 50)
		return m, nil
	case tickMsg:
		m.remaining = m.engine.IdleRemaining()
		return m, tick()
	case AbandonMsg:
		m.banner = fmt.Sprintf("Cart abandoned (%s): %d item(s), %s. Press any key to recover.",
			msg.Event.Reason, msg.Event.ItemCount, msg.Event.CartValue)
		return m, nil
	case RecoveryMsg:
		m.banner = fmt.Sprintf("Welcome back! Your cart (%s) is waiting.", msg.CartValue)
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(ctx, msg)
	default:
		return m, nil
	}
}

func (m *Model) handleKey(ctx context.Context, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	session := m.engine.Session()
	wasAbandoned := session.Status() == model.StatusAbandoned

	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
		m.engine.Pulse(ctx)
	case "down", "j":
		if m.cursor < len(m.products)-1 {
			m.cursor++
		}
		m.engine.Pulse(ctx)
	case "v":
		m.engine.ViewItem(ctx)
	case "a", "enter":
		p := m.products[m.cursor]
		m.engine.AddItem(ctx, model.CartLineItem{
			MaterialID: p.MaterialID,
			Name:       p.Name,
			UnitPrice:  p.Price,
			Quantity:   1,
		})
	case "x":
		m.engine.RemoveItem(ctx, m.products[m.cursor].MaterialID)
	case "+":
		m.bumpQuantity(ctx, 1)
	case "-":
		m.bumpQuantity(ctx, -1)
	case "b":
		m.engine.VisitCart(ctx)
	case "c":
		m.engine.StartCheckout(ctx)
		m.checked = true
	case "o":
		m.engine.MarkConversion(ctx)
		m.checked = false
		m.banner = "Order completed. Cart reset."
	default:
		m.engine.Pulse(ctx)
	}

	if wasAbandoned && m.engine.Session().Status() != model.StatusAbandoned {
		m.banner = "Cart recovered."
	}
	m.remaining = m.engine.IdleRemaining()
	return m, nil
}

func (m *Model) bumpQuantity(ctx context.Context, delta int) {
	materialID := m.products[m.cursor].MaterialID
	for _, li := range m.engine.Session().Items {
		if li.MaterialID == materialID {
			m.engine.UpdateQuantity(ctx, materialID, li.Quantity+delta)
			return
		}
	}
	m.engine.Pulse(ctx)
}

// View implements tea.Model.
func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("carttrack storefront"))
	b.WriteString("\n\n")

	for i, p := range m.products {
		line := fmt.Sprintf("%s  %s", p.Name, p.Price)
		if i == m.cursor {
			line = selectedStyle.Render("> " + line)
		} else {
			line = dimStyle.Render("  " + line)
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}

	session := m.engine.Session()
	b.WriteString("\n")
	b.WriteString(m.renderCart(session))
	b.WriteString("\n")

	percent := 0.0
	if m.timeout > 0 {
		percent = float64(m.remaining) / float64(m.timeout)
	}
	b.WriteString(dimStyle.Render(fmt.Sprintf("Idle countdown %s ", m.remaining.Round(time.Second))))
	b.WriteString(m.countdown.ViewAs(percent))
	b.WriteString("\n")

	if m.banner != "" {
		style := okStyle
		if session.Status() == model.StatusAbandoned {
			style = alertStyle
		}
		b.WriteString(style.Render(m.banner))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(footerStyle.Render("a add · x remove · +/- qty · v view · b cart · c checkout · o order · q quit"))
	b.WriteString("\n")
	return b.String()
}

func (m *Model) renderCart(session model.CartSession) string {
	if len(session.Items) == 0 {
		return dimStyle.Render("Cart is empty.")
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Cart (%s, %s)", session.Status(), session.TotalValue)))
	b.WriteByte('\n')
	for _, li := range session.Items {
		b.WriteString(fmt.Sprintf("  %dx %s  %s\n", li.Quantity, li.Name, li.Subtotal()))
	}
	return b.String()
}

func clampWidth(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
