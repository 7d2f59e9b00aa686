// internal/harness/coordinator.go

// Package harness runs a connector to settlement: the coordinator
// reconciles the explicit result channel, the connector's own
// completion, cancellation, and the safety deadline into exactly one
// outcome; the driver owns the surrounding session lifecycle.
package harness

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/gantryhq/gantry/internal/connector"
	"github.com/gantryhq/gantry/internal/emit"
)

// DefaultSafetyDeadline caps a run when no other deadline is
// configured. Generous on purpose: manual login flows are slow.
const DefaultSafetyDeadline = 30 * time.Minute

// ErrDeadlineExhausted records a run that produced nothing before the
// safety deadline.
var ErrDeadlineExhausted = errors.New("safety deadline exhausted before any result")

// ErrNoResult records a connector that returned cleanly but produced
// neither an explicit result nor a usable completion.
var ErrNoResult = errors.New("connector finished without a result")

// Coordinator settles one run. It owns the result slot the emission
// path writes to; construct one per run.
type Coordinator struct {
	logger   *zap.Logger
	deadline time.Duration
	slot     *emit.Slot
}

// NewCoordinator returns a coordinator with its own empty result slot.
func NewCoordinator(logger *zap.Logger, deadline time.Duration) *Coordinator {
	if deadline <= 0 {
		deadline = DefaultSafetyDeadline
	}
	return &Coordinator{
		logger:   logger.Named("coordinator"),
		deadline: deadline,
		slot:     emit.NewSlot(),
	}
}

// Slot exposes the settlement slot for wiring into the emission sink.
func (c *Coordinator) Slot() *emit.Slot {
	return c.slot
}

type connectorReturn struct {
	completion *connector.Completion
	err        error
}

// Run executes conn and blocks until the run settles. Settlement is
// the first of: an explicit result emission, the connector's return, the
// safety deadline, or ctx ending. Whatever work is still in flight
// when that happens sees its context canceled. Run never panics on a
// panicking connector; it settles with a failure record instead.
func (c *Coordinator) Run(ctx context.Context, conn connector.Connector, rt connector.Runtime) *connector.Outcome {
	start := time.Now()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan connectorReturn, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- connectorReturn{err: fmt.Errorf("connector panicked: %v", r)}
			}
		}()
		completion, err := conn.Run(runCtx, rt)
		done <- connectorReturn{completion: completion, err: err}
	}()

	deadline := time.NewTimer(c.deadline)
	defer deadline.Stop()

	select {
	case <-c.slot.Ready():
		value, _ := c.slot.Value()
		return c.settle(connector.SourceExplicit, value, nil, start)

	case ret := <-done:
		// A result emitted just before returning must still win over
		// whatever the return carried.
		if value, ok := c.slot.Value(); ok {
			return c.settle(connector.SourceExplicit, value, nil, start)
		}
		if ret.err != nil {
			return c.settle(connector.SourceNone, nil, fmt.Errorf("connector failed: %w", ret.err), start)
		}
		if ret.completion.Usable() {
			return c.settle(connector.SourceFallback, ret.completion.Data, nil, start)
		}
		// Nothing more can arrive once the connector returned, so
		// waiting out the deadline would buy nothing.
		return c.settle(connector.SourceNone, nil, ErrNoResult, start)

	case <-deadline.C:
		if value, ok := c.slot.Value(); ok {
			return c.settle(connector.SourceExplicit, value, nil, start)
		}
		return c.settle(connector.SourceNone, nil, ErrDeadlineExhausted, start)

	case <-ctx.Done():
		if value, ok := c.slot.Value(); ok {
			return c.settle(connector.SourceExplicit, value, nil, start)
		}
		return c.settle(connector.SourceNone, nil, ctx.Err(), start)
	}
}

func (c *Coordinator) settle(source connector.Source, value any, err error, start time.Time) *connector.Outcome {
	elapsed := time.Since(start)
	if err != nil {
		c.logger.Warn("run settled without an outcome",
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
	} else {
		c.logger.Info("run settled",
			zap.String("source", string(source)),
			zap.Duration("elapsed", elapsed),
		)
	}
	return &connector.Outcome{
		Value:    value,
		Source:   source,
		Err:      err,
		Duration: elapsed,
	}
}
