// internal/shim/shim.go

// Package shim adapts the automation backend, the emission sink, and
// the interaction gate into the fixed runtime surface connectors are
// written against. It owns no business logic; every method is a thin,
// well-bounded delegation.
package shim

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/gantryhq/gantry/internal/connector"
	"github.com/gantryhq/gantry/internal/emit"
	"github.com/gantryhq/gantry/internal/gate"
)

// Page is the slice of a browser session the shim needs.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Evaluate(ctx context.Context, script string, out any) error
	Interactive() bool
}

// Shim implements connector.Runtime over a live page.
type Shim struct {
	page   Page
	sink   *emit.Sink
	gate   *gate.Gate
	logger *zap.Logger
}

var _ connector.Runtime = (*Shim)(nil)

// New assembles the runtime surface for one run.
func New(page Page, sink *emit.Sink, g *gate.Gate, logger *zap.Logger) *Shim {
	return &Shim{
		page:   page,
		sink:   sink,
		gate:   g,
		logger: logger.Named("shim"),
	}
}

// Goto navigates and waits for the page's ready milestone.
func (s *Shim) Goto(ctx context.Context, url string) error {
	return s.page.Navigate(ctx, url)
}

// Evaluate runs script in the page.
func (s *Shim) Evaluate(ctx context.Context, script string, out any) error {
	return s.page.Evaluate(ctx, script, out)
}

// Sleep pauses for d or until ctx ends.
func (s *Shim) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SetData emits a named entry into the sink.
func (s *Shim) SetData(key string, value any) {
	s.sink.Data(connector.DataEntry{Key: key, Value: value})
}

// SetProgress emits a progress event into the sink.
func (s *Shim) SetProgress(ev connector.ProgressEvent) {
	s.sink.Progress(ev)
}

// ShowBrowser surfaces a window best-effort. Visibility is fixed at
// launch, so a headless session only warns; the navigation part still
// runs when a URL was given, keeping connector state consistent either
// way.
func (s *Shim) ShowBrowser(ctx context.Context, url string) error {
	if !s.page.Interactive() {
		s.logger.Warn("session is headless; cannot surface a window mid-run")
	}
	if url == "" {
		return nil
	}
	return s.page.Navigate(ctx, url)
}

// GoHeadless drops the window best-effort. Never fails.
func (s *Shim) GoHeadless(ctx context.Context) error {
	if !s.page.Interactive() {
		s.logger.Debug("session is already headless")
		return nil
	}
	s.logger.Warn("backend cannot drop its window mid-run; continuing visible")
	return nil
}

// AwaitCondition blocks on the interaction gate.
func (s *Shim) AwaitCondition(ctx context.Context, message string, pred connector.Predicate, pollInterval time.Duration) error {
	return s.gate.AwaitCondition(ctx, message, pred, pollInterval)
}
