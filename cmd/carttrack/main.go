// Package main provides the CLI entrypoint for carttrack.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"
	"golang.org/x/text/currency"

	"github.com/verte-zerg/carttrack"
	"github.com/verte-zerg/carttrack/internal/config"
	"github.com/verte-zerg/carttrack/internal/model"
	"github.com/verte-zerg/carttrack/internal/report"
	"github.com/verte-zerg/carttrack/internal/simulator"
	"github.com/verte-zerg/carttrack/internal/store"
)

const (
	defaultTimeoutMinutes      = 5
	defaultRecoveryWindowHours = 72
	defaultBlend               = 0.5
	defaultCurrency            = "USD"
	defaultSource              = "direct"
)

var (
	trackTimeoutMinutes      int
	trackEmailTriggers       bool
	trackRecoveryWindowHours int
	trackBlend               float64
	trackCurrency            string
	trackSource              string
	trackUserID              string

	statsReset bool
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "carttrack",
		Short:         "Cart session and abandonment tracking",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runSimulateCmd,
	}

	rootCmd.Flags().IntVar(&trackTimeoutMinutes, "timeout", defaultTimeoutMinutes, "inactivity timeout in minutes")
	rootCmd.Flags().BoolVar(&trackEmailTriggers, "email-triggers", true, "enable email-sequence recovery triggers")
	rootCmd.Flags().IntVar(&trackRecoveryWindowHours, "recovery-window", defaultRecoveryWindowHours, "restore-time recovery window in hours")
	rootCmd.Flags().Float64Var(&trackBlend, "blend", defaultBlend, "recency weight of the running average cart value (0-1)")
	rootCmd.Flags().StringVar(&trackCurrency, "currency", defaultCurrency, "ISO currency code for new sessions")
	rootCmd.Flags().StringVar(&trackSource, "source", defaultSource, "acquisition source tag for new sessions")
	rootCmd.Flags().StringVar(&trackUserID, "user", "", "authenticated user identifier")

	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newStatsCmd())

	return rootCmd
}

func runSimulateCmd(cmd *cobra.Command, _ []string) error {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyIntConfig(cmd, "timeout", &trackTimeoutMinutes, fileCfg.Tracking.TimeoutMinutes)
	applyBoolConfig(cmd, "email-triggers", &trackEmailTriggers, fileCfg.Tracking.EmailTriggers)
	applyIntConfig(cmd, "recovery-window", &trackRecoveryWindowHours, fileCfg.Tracking.RecoveryWindowHours)
	applyFloatConfig(cmd, "blend", &trackBlend, fileCfg.Tracking.AverageBlend)
	applyStringConfig(cmd, "currency", &trackCurrency, fileCfg.Tracking.Currency)
	applyStringConfig(cmd, "source", &trackSource, fileCfg.Tracking.Source)

	cfg, err := buildEngineConfig()
	if err != nil {
		return err
	}

	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()

	logger, err := newLogger()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() {
		// Best-effort flush.
		_ = logger.Sync()
	}()

	ctx := context.Background()

	var program *tea.Program
	callbacks := carttrack.Callbacks{
		OnAbandonmentDetected: func(event model.AbandonmentEvent) {
			if program != nil {
				program.Send(simulator.AbandonMsg{Event: event})
			}
		},
		OnRecoveryOpportunity: func(sessionID uuid.UUID, cartValue model.Money) {
			if program != nil {
				program.Send(simulator.RecoveryMsg{SessionID: sessionID, CartValue: cartValue})
			}
		},
	}

	engine := carttrack.New(ctx, st, cfg, nil, logger, callbacks)
	engine.Start(ctx)
	if trackUserID != "" {
		engine.SetUserID(ctx, trackUserID)
	}

	products, err := catalog(trackCurrency)
	if err != nil {
		return err
	}
	uiModel := simulator.NewModel(engine, products, cfg.Timeout)
	program = tea.NewProgram(uiModel, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}

	// Quitting the storefront is the page-exit signal: flush a detection
	// pass before teardown.
	engine.Close(ctx)
	return nil
}

func buildEngineConfig() (carttrack.Config, error) {
	if trackTimeoutMinutes <= 0 {
		return carttrack.Config{}, fmt.Errorf("--timeout must be > 0")
	}
	if trackRecoveryWindowHours <= 0 {
		return carttrack.Config{}, fmt.Errorf("--recovery-window must be > 0")
	}
	if trackBlend < 0 || trackBlend > 1 {
		return carttrack.Config{}, fmt.Errorf("--blend must be between 0 and 1")
	}
	unit, err := currency.ParseISO(trackCurrency)
	if err != nil {
		return carttrack.Config{}, fmt.Errorf("invalid --currency value: %w", err)
	}
	return carttrack.Config{
		Timeout:        time.Duration(trackTimeoutMinutes) * time.Minute,
		EmailTriggers:  trackEmailTriggers,
		RecoveryWindow: time.Duration(trackRecoveryWindowHours) * time.Hour,
		AverageBlend:   trackBlend,
		Currency:       unit,
		Source:         trackSource,
	}, nil
}

func catalog(code string) ([]simulator.Product, error) {
	entries := []struct {
		id    string
		name  string
		price string
	}{
		{"cement-50kg", "Portland cement, 50 kg", "12.50"},
		{"rebar-12mm", "Rebar 12 mm, 6 m", "8.90"},
		{"brick-std", "Standard brick, pallet", "310.00"},
		{"osb-18mm", "OSB board 18 mm", "24.75"},
		{"insul-roll", "Mineral wool roll", "41.20"},
		{"paint-20l", "Facade paint, 20 l", "89.00"},
	}
	products := make([]simulator.Product, 0, len(entries))
	for _, e := range entries {
		price, err := model.NewMoney(e.price, code)
		if err != nil {
			return nil, fmt.Errorf("catalog price %s: %w", e.id, err)
		}
		products = append(products, simulator.Product{MaterialID: e.id, Name: e.name, Price: price})
	}
	return products, nil
}

func newLogger() (*zap.Logger, error) {
	logPath := filepath.Join(config.XDGDataHome(), "carttrack", "carttrack.log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return nil, err
	}
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{logPath}
	cfg.ErrorOutputPaths = []string{logPath}
	return cfg.Build()
}

func newStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show tracking analytics",
		Args:  cobra.NoArgs,
		RunE:  runStatsCmd,
	}
	cmd.Flags().BoolVar(&statsReset, "reset", false, "clear the persisted session and analytics records")
	return cmd
}

func runStatsCmd(cmd *cobra.Command, _ []string) error {
	st, err := store.Open(config.DefaultDBPath())
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()

	ctx := context.Background()
	if statsReset {
		if err := st.Reset(ctx); err != nil {
			return fmt.Errorf("failed to reset records: %w", err)
		}
		_, err := fmt.Fprintln(cmd.OutOrStdout(), "Records cleared.")
		return err
	}

	analytics, err := st.LoadAnalytics(ctx)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to load analytics: %w", err)
	}

	out := cmd.OutOrStdout()
	width := 60
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 && w < width {
			width = w
		}
	}
	if _, err := fmt.Fprintln(out, "Cart analytics"); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(out, strings.Repeat("-", width)); err != nil {
		return err
	}
	return report.Render(out, analytics)
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := config.DefaultConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyIntConfig(cmd *cobra.Command, name string, target, value *int) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyFloatConfig(cmd *cobra.Command, name string, target, value *float64) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyBoolConfig(cmd *cobra.Command, name string, target, value *bool) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func defaultConfigTemplate() string {
	return fmt.Sprintf(`# carttrack configuration
# Uncomment a value to enable it. CLI flags override config values.

[tracking]
# timeout-minutes = %d         # Inactivity timeout before abandonment
# email-triggers = true        # Email-sequence triggers (authenticated users)
# recovery-window-hours = %d   # Restore-time recovery window
# average-blend = %.2f         # Recency weight of the running average
# currency = %q              # ISO currency code for new sessions
# source = %q             # Acquisition source tag
`,
		defaultTimeoutMinutes,
		defaultRecoveryWindowHours,
		defaultBlend,
		defaultCurrency,
		defaultSource,
	)
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
