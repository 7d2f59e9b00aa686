package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gantryhq/gantry/internal/browser"
	"github.com/gantryhq/gantry/internal/config"
	"github.com/gantryhq/gantry/internal/connector/subs"
	"github.com/gantryhq/gantry/internal/harness"
	"github.com/gantryhq/gantry/internal/history"
	"github.com/gantryhq/gantry/internal/observability"
	"github.com/gantryhq/gantry/internal/report"
)

// newRunCmd creates and configures the `run` command.
func newRunCmd() *cobra.Command {
	var (
		outputPath   string
		headful      bool
		deadline     time.Duration
		pollInterval time.Duration
		startURL     string
		pageLimit    int
		historyURL   string
	)

	runCmd := &cobra.Command{
		Use:   "run [connector]",
		Short: "Runs a connector to settlement inside a browser session",
		Long: `Opens a browser session, hands it to the named connector (default:
subscriptions), and coordinates the run until exactly one outcome exists.
The outcome is persisted as JSON; a run that captures nothing exits
non-zero and writes nothing.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			// Flag overrides beat config file and env values.
			flags := cmd.Flags()
			if flags.Changed("output") {
				cfg.Output.Path = outputPath
			}
			if flags.Changed("headful") {
				cfg.Browser.Headless = !headful
			}
			if flags.Changed("deadline") {
				cfg.Harness.SafetyDeadline = deadline
			}
			if flags.Changed("poll-interval") {
				cfg.Harness.PollInterval = pollInterval
			}
			if flags.Changed("history-url") {
				cfg.History.URL = historyURL
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid flag overrides: %w", err)
			}

			name := "subscriptions"
			if len(args) == 1 {
				name = args[0]
			}

			registry := builtinRegistry(logger, subs.Options{
				StartURL:     startURL,
				PageLimit:    pageLimit,
				PollInterval: cfg.Harness.PollInterval,
			})
			conn, err := registry.Lookup(name)
			if err != nil {
				return err
			}

			logger.Info("Starting run",
				zap.String("connector", name),
				zap.Bool("headless", cfg.Browser.Headless),
				zap.Duration("safety_deadline", cfg.Harness.SafetyDeadline),
			)

			components, err := initializeRunComponents(ctx, cfg, logger)
			if err != nil {
				if components != nil {
					components.Shutdown(ctx)
				}
				return fmt.Errorf("failed to initialize run components: %w", err)
			}
			defer components.Shutdown(ctx)

			driver := harness.NewDriver(cfg, logger,
				browserBackend{components.BrowserManager},
				cmd.InOrStdin(), cmd.OutOrStdout(),
				components.recorder(),
			)

			rep, err := driver.Run(ctx, conn)
			if rep != nil {
				report.Render(cmd.OutOrStdout(), report.Summary{
					RunID:      rep.RunID,
					Connector:  conn.Name(),
					Source:     string(rep.Outcome.Source),
					Value:      rep.Outcome.Value,
					Err:        rep.Outcome.Err,
					Duration:   rep.Outcome.Duration,
					OutputPath: rep.OutputPath,
				})
			}
			if err != nil {
				if errors.Is(err, context.Canceled) {
					logger.Warn("Run aborted by user signal")
					return fmt.Errorf("run aborted by user signal")
				}
				return err
			}
			return nil
		},
	}

	runCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file path for the captured outcome. (Overrides config/env)")
	runCmd.Flags().BoolVar(&headful, "headful", false, "Run the browser with a visible window for operator interaction.")
	runCmd.Flags().DurationVar(&deadline, "deadline", 0, "Safety deadline for the run. (Overrides config/env)")
	runCmd.Flags().DurationVar(&pollInterval, "poll-interval", 0, "Default poll interval for interaction gates. (Overrides config/env)")
	runCmd.Flags().StringVar(&startURL, "start-url", "", "Start URL for the subscriptions connector.")
	runCmd.Flags().IntVar(&pageLimit, "page-limit", 0, "Maximum listing pages the subscriptions connector walks.")
	runCmd.Flags().StringVar(&historyURL, "history-url", "", "PostgreSQL URL for run history. (Overrides config/env)")

	return runCmd
}

// runComponents holds initialized services for one run.
type runComponents struct {
	BrowserManager *browser.Manager
	History        *history.Store
	DBPool         *pgxpool.Pool
}

// Shutdown gracefully closes all components.
func (rc *runComponents) Shutdown(ctx context.Context) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if rc.BrowserManager != nil {
		if err := rc.BrowserManager.Shutdown(shutdownCtx); err != nil {
			observability.GetLogger().Warn("Error during browser manager shutdown", zap.Error(err))
		}
	}
	if rc.DBPool != nil {
		rc.DBPool.Close()
	}
}

// recorder returns the history store as a Recorder, or nil when the
// store is disabled, so the driver never sees a typed nil.
func (rc *runComponents) recorder() harness.Recorder {
	if rc.History == nil {
		return nil
	}
	return rc.History
}

// initializeRunComponents handles dependency injection for `run`.
func initializeRunComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*runComponents, error) {
	components := &runComponents{}

	manager, err := browser.NewManager(ctx, cfg, logger)
	if err != nil {
		return components, fmt.Errorf("failed to initialize browser manager: %w", err)
	}
	components.BrowserManager = manager

	// Run history is optional; an empty URL disables it.
	if cfg.History.URL != "" {
		pool, err := pgxpool.New(ctx, cfg.History.URL)
		if err != nil {
			return components, fmt.Errorf("failed to connect to history database: %w", err)
		}
		components.DBPool = pool

		store, err := history.New(ctx, pool, logger)
		if err != nil {
			return components, fmt.Errorf("failed to initialize run history store: %w", err)
		}
		components.History = store
	}

	return components, nil
}

// browserBackend adapts the browser manager to the driver's Backend.
type browserBackend struct {
	mgr *browser.Manager
}

func (b browserBackend) NewSession(ctx context.Context) (harness.Session, error) {
	return b.mgr.NewSession(ctx)
}
