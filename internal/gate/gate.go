// internal/gate/gate.go

// Package gate implements the human-in-the-loop interaction gate: a
// blocking wait that releases on the first of a polled page condition
// or a manual continue line from the operator.
package gate

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gantryhq/gantry/internal/connector"
)

// DefaultPollInterval is used when a caller passes a non-positive
// interval and no other default was configured.
const DefaultPollInterval = 2 * time.Second

// Gate waits out manual steps (logins, CAPTCHAs) in otherwise
// automated flows. One line reader drains the operator input stream
// for the life of the gate; lines release the currently armed wait and
// are dropped when nothing is armed.
type Gate struct {
	logger       *zap.Logger
	out          io.Writer
	pollInterval time.Duration

	// waiter is the channel of the armed AwaitCondition call, nil when
	// none is armed. Closed at most once, by the line reader.
	mu     sync.Mutex
	waiter chan struct{}
}

// New starts the operator line reader on in and returns the gate.
// pollInterval <= 0 falls back to DefaultPollInterval.
func New(logger *zap.Logger, in io.Reader, out io.Writer, pollInterval time.Duration) *Gate {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	g := &Gate{
		logger:       logger.Named("gate"),
		out:          out,
		pollInterval: pollInterval,
	}
	go g.readLines(in)
	return g
}

// AwaitCondition blocks until pred reports true, the operator sends a
// line, or ctx is done. Exactly one release is logged; the losing
// branch is suppressed. Predicate errors are logged and treated as
// "not yet".
func (g *Gate) AwaitCondition(ctx context.Context, message string, pred connector.Predicate, pollInterval time.Duration) error {
	if pred == nil {
		return fmt.Errorf("await condition: nil predicate")
	}
	interval := pollInterval
	if interval <= 0 {
		interval = g.pollInterval
	}

	manual := g.arm()
	defer g.disarm(manual)

	fmt.Fprintf(g.out, "\n>>> %s\n>>> press Enter to continue\n", message)
	g.logger.Info("gate armed",
		zap.String("message", message),
		zap.Duration("poll_interval", interval),
	)

	pollCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	satisfied := make(chan struct{}, 1)
	go g.poll(pollCtx, pred, interval, satisfied)

	select {
	case <-manual:
		g.logger.Info("gate released by operator")
		return nil
	case <-satisfied:
		g.logger.Info("gate released by condition")
		return nil
	case <-ctx.Done():
		g.logger.Warn("gate abandoned", zap.Error(ctx.Err()))
		return ctx.Err()
	}
}

// poll checks pred immediately, then on every interval tick, until a
// true result or cancellation.
func (g *Gate) poll(ctx context.Context, pred connector.Predicate, interval time.Duration, satisfied chan<- struct{}) {
	if g.check(ctx, pred, satisfied) {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if g.check(ctx, pred, satisfied) {
				return
			}
		}
	}
}

func (g *Gate) check(ctx context.Context, pred connector.Predicate, satisfied chan<- struct{}) bool {
	if ctx.Err() != nil {
		return true
	}
	ok, err := pred(ctx)
	if err != nil {
		g.logger.Warn("condition check raised; treating as not ready", zap.Error(err))
		return false
	}
	if ok {
		satisfied <- struct{}{}
		return true
	}
	return false
}

// readLines drains the operator input until EOF. Each line releases
// the armed waiter if there is one; otherwise it is dropped.
func (g *Gate) readLines(in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		g.release()
	}
	if err := scanner.Err(); err != nil {
		g.logger.Debug("operator input closed", zap.Error(err))
	}
}

func (g *Gate) release() {
	g.mu.Lock()
	ch := g.waiter
	g.waiter = nil
	g.mu.Unlock()

	if ch == nil {
		g.logger.Debug("continue line with no gate armed; dropped")
		return
	}
	close(ch)
}

func (g *Gate) arm() chan struct{} {
	ch := make(chan struct{})
	g.mu.Lock()
	g.waiter = ch
	g.mu.Unlock()
	return ch
}

func (g *Gate) disarm(ch chan struct{}) {
	g.mu.Lock()
	if g.waiter == ch {
		g.waiter = nil
	}
	g.mu.Unlock()
}
