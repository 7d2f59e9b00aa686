// internal/harness/driver.go
package harness

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gantryhq/gantry/internal/config"
	"github.com/gantryhq/gantry/internal/connector"
	"github.com/gantryhq/gantry/internal/emit"
	"github.com/gantryhq/gantry/internal/gate"
	"github.com/gantryhq/gantry/internal/report"
	"github.com/gantryhq/gantry/internal/shim"
)

// Session is the slice of a browser session the driver manages.
type Session interface {
	shim.Page
	ID() string
	Close(ctx context.Context) error
}

// Backend opens browser sessions.
type Backend interface {
	NewSession(ctx context.Context) (Session, error)
}

// RunRecord is what the optional history recorder receives per run.
type RunRecord struct {
	RunID      string
	Connector  string
	Source     connector.Source
	Captured   bool
	OutputPath string
	Failure    string
	StartedAt  time.Time
	Duration   time.Duration
}

// Recorder persists run records. Recording is best effort; failures
// are logged, never surfaced.
type Recorder interface {
	Record(ctx context.Context, rec RunRecord) error
}

// RunReport summarizes a driven run for the caller.
type RunReport struct {
	RunID      string
	Outcome    *connector.Outcome
	OutputPath string
}

// Driver assembles a session, gate, sink, and shim around a connector,
// runs it to settlement, and persists the outcome.
type Driver struct {
	cfg      *config.Config
	logger   *zap.Logger
	backend  Backend
	gateIn   io.Reader
	gateOut  io.Writer
	recorder Recorder
}

// NewDriver wires a driver. recorder may be nil.
func NewDriver(cfg *config.Config, logger *zap.Logger, backend Backend, gateIn io.Reader, gateOut io.Writer, recorder Recorder) *Driver {
	return &Driver{
		cfg:      cfg,
		logger:   logger.Named("driver"),
		backend:  backend,
		gateIn:   gateIn,
		gateOut:  gateOut,
		recorder: recorder,
	}
}

// Run drives conn through a fresh session. It returns an error when no
// outcome was captured or the outcome could not be persisted; the
// report carries whatever detail exists either way.
func (d *Driver) Run(ctx context.Context, conn connector.Connector) (*RunReport, error) {
	runID := uuid.New().String()
	logger := d.logger.With(
		zap.String("run_id", runID),
		zap.String("connector", conn.Name()),
	)
	started := time.Now()

	logger.Info("run starting",
		zap.Duration("safety_deadline", d.cfg.Harness.SafetyDeadline),
		zap.String("output_path", d.cfg.Output.Path),
	)

	session, err := d.backend.NewSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("starting browser session: %w", err)
	}
	defer func() {
		// Teardown runs even when the run context is already dead.
		closeCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if cerr := session.Close(closeCtx); cerr != nil {
			logger.Warn("session close failed", zap.Error(cerr))
		}
	}()

	coordinator := NewCoordinator(logger, d.cfg.Harness.SafetyDeadline)
	sink := emit.NewSink(logger, coordinator.Slot())
	g := gate.New(logger, d.gateIn, d.gateOut, d.cfg.Harness.PollInterval)
	rt := shim.New(session, sink, g, logger)

	outcome := coordinator.Run(ctx, conn, rt)

	rep := &RunReport{RunID: runID, Outcome: outcome}

	if !outcome.Captured() {
		d.record(rep, conn, started)
		if outcome.Err != nil {
			return rep, fmt.Errorf("run produced no outcome: %w", outcome.Err)
		}
		return rep, fmt.Errorf("run produced no outcome")
	}

	if err := report.WriteOutcome(d.cfg.Output.Path, outcome.Value); err != nil {
		d.record(rep, conn, started)
		return rep, fmt.Errorf("persisting outcome: %w", err)
	}
	rep.OutputPath = d.cfg.Output.Path
	logger.Info("outcome persisted", zap.String("path", rep.OutputPath))

	d.record(rep, conn, started)
	return rep, nil
}

func (d *Driver) record(rep *RunReport, conn connector.Connector, started time.Time) {
	if d.recorder == nil {
		return
	}

	rec := RunRecord{
		RunID:      rep.RunID,
		Connector:  conn.Name(),
		Source:     rep.Outcome.Source,
		Captured:   rep.Outcome.Captured(),
		OutputPath: rep.OutputPath,
		StartedAt:  started,
		Duration:   rep.Outcome.Duration,
	}
	if rep.Outcome.Err != nil {
		rec.Failure = rep.Outcome.Err.Error()
	}

	// The run context may already be canceled; history writes get
	// their own short budget.
	recCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.recorder.Record(recCtx, rec); err != nil {
		d.logger.Warn("recording run history failed", zap.Error(err))
	}
}
