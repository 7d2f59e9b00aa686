// File: cmd/runs.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/gantryhq/gantry/internal/config"
	"github.com/gantryhq/gantry/internal/harness"
	"github.com/gantryhq/gantry/internal/history"
	"github.com/gantryhq/gantry/internal/observability"
)

// runLister is the slice of the history store the runs command reads.
type runLister interface {
	RecentRuns(ctx context.Context, limit int) ([]harness.RunRecord, error)
}

// historyProvider abstracts history store construction. This allows
// tests to inject a fake instead of a live database connection.
type historyProvider interface {
	// Open returns a lister, a cleanup function to release resources,
	// and an error if the store cannot be reached.
	Open(ctx context.Context, cfg *config.Config) (runLister, func(), error)
}

// defaultHistoryProvider is the production implementation; it connects
// to the configured PostgreSQL database.
type defaultHistoryProvider struct{}

// NewHistoryProvider creates the production history provider.
func NewHistoryProvider() historyProvider {
	return &defaultHistoryProvider{}
}

func (p *defaultHistoryProvider) Open(ctx context.Context, cfg *config.Config) (runLister, func(), error) {
	logger := observability.GetLogger()
	if cfg.History.URL == "" {
		return nil, nil, fmt.Errorf("history URL is not configured (GANTRY_HISTORY_URL)")
	}

	pool, err := pgxpool.New(ctx, cfg.History.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to history database: %w", err)
	}

	store, err := history.New(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to initialize run history store: %w", err)
	}

	cleanup := func() {
		pool.Close()
		logger.Debug("History connection pool closed.")
	}
	return store, cleanup, nil
}

// newRunsCmd creates the `runs` command backed by the given provider.
func newRunsCmd(provider historyProvider) *cobra.Command {
	var limit int

	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "Shows recent runs from the history store",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}

			lister, cleanup, err := provider.Open(ctx, cfg)
			if err != nil {
				return err
			}
			if cleanup != nil {
				defer cleanup()
			}

			runs, err := lister.RecentRuns(ctx, limit)
			if err != nil {
				return err
			}

			renderRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}

	runsCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to show.")
	return runsCmd
}

// renderRuns prints one line per run, newest first.
func renderRuns(w io.Writer, runs []harness.RunRecord) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "no recorded runs")
		return
	}

	fmt.Fprintf(w, "%-20s  %-36s  %-14s  %-9s  %-10s  %s\n",
		"STARTED", "RUN", "CONNECTOR", "SOURCE", "DURATION", "RESULT")
	for _, r := range runs {
		result := "captured"
		if !r.Captured {
			result = r.Failure
			if result == "" {
				result = "no outcome"
			}
		}
		fmt.Fprintf(w, "%-20s  %-36s  %-14s  %-9s  %-10s  %s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.RunID,
			r.Connector,
			string(r.Source),
			r.Duration.Round(time.Millisecond),
			result,
		)
	}
}
