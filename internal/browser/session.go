// internal/browser/session.go
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gantryhq/gantry/internal/config"
	"github.com/gantryhq/gantry/internal/connector"
)

// Session is one live tab. Page operations combine the session context
// (which carries the CDP target) with the caller's operational context
// so that either side can end the work.
type Session struct {
	id          string
	ctx         context.Context
	cancel      context.CancelFunc
	logger      *zap.Logger
	cfg         *config.Config
	interactive bool

	onClose func()

	mu       sync.Mutex
	isClosed bool
}

func newSession(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, logger *zap.Logger, interactive bool) *Session {
	id := uuid.New().String()
	return &Session{
		id:          id,
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger.With(zap.String("session_id", id)),
		cfg:         cfg,
		interactive: interactive,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Interactive reports whether this session has a visible window.
func (s *Session) Interactive() bool {
	return s.interactive
}

// initialize connects the tab and starts console capture. ctx bounds
// the setup only.
func (s *Session) initialize(ctx context.Context) error {
	initCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()

	// The first Run materializes the target and connects CDP;
	// runtime.Enable turns on console/exception events.
	if err := chromedp.Run(initCtx, runtime.Enable()); err != nil {
		return fmt.Errorf("connecting to tab: %w", err)
	}

	s.startConsoleCapture()
	return nil
}

// startConsoleCapture mirrors the page's console and uncaught
// exceptions into the harness log at debug level.
func (s *Session) startConsoleCapture() {
	pageLog := s.logger.Named("page")
	chromedp.ListenTarget(s.ctx, func(ev interface{}) {
		switch e := ev.(type) {
		case *runtime.EventConsoleAPICalled:
			pageLog.Debug("console",
				zap.String("type", string(e.Type)),
				zap.String("text", consoleText(e.Args)),
			)
		case *runtime.EventExceptionThrown:
			if e.ExceptionDetails == nil {
				return
			}
			detail := e.ExceptionDetails.Text
			if e.ExceptionDetails.Exception != nil && e.ExceptionDetails.Exception.Description != "" {
				detail = e.ExceptionDetails.Exception.Description
			}
			pageLog.Debug("uncaught exception", zap.String("detail", detail))
		}
	})
}

// consoleText flattens console call arguments into one line.
func consoleText(args []*runtime.RemoteObject) string {
	var b strings.Builder
	for i, arg := range args {
		if i > 0 {
			b.WriteString(" ")
		}
		var val any
		if arg.Value != nil && json.Unmarshal(arg.Value, &val) == nil {
			fmt.Fprintf(&b, "%v", val)
		} else if arg.Description != "" {
			b.WriteString(arg.Description)
		} else {
			fmt.Fprintf(&b, "[%s]", arg.Type)
		}
	}
	return b.String()
}

// Navigate loads url and waits for the document's ready milestone,
// bounded by network.navigation_timeout. A configured post-load wait
// lets late scripts settle before control returns.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Debug("navigating", zap.String("url", url))

	opCtx, opCancel := CombineContext(s.ctx, ctx)
	defer opCancel()

	navTimeout := s.cfg.Network.NavigationTimeout
	if navTimeout <= 0 {
		navTimeout = 60 * time.Second
	}
	navCtx, navCancel := context.WithTimeout(opCtx, navTimeout)
	defer navCancel()

	err := chromedp.Run(navCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		if navCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%w: %s not ready within %s: %v", connector.ErrNavigation, url, navTimeout, err)
		}
		if opCtx.Err() != nil {
			return fmt.Errorf("%w: canceled: %v", connector.ErrNavigation, opCtx.Err())
		}
		return fmt.Errorf("%w: %s: %v", connector.ErrNavigation, url, err)
	}

	if wait := s.cfg.Network.PostLoadWait; wait > 0 {
		select {
		case <-time.After(wait):
		case <-opCtx.Done():
			return fmt.Errorf("%w: canceled while settling: %v", connector.ErrNavigation, opCtx.Err())
		}
	}
	return nil
}

// Evaluate runs script in the page, awaiting promises, and unmarshals
// the value into out when out is non-nil. Bounded by
// network.evaluate_timeout.
func (s *Session) Evaluate(ctx context.Context, script string, out any) error {
	opCtx, opCancel := CombineContext(s.ctx, ctx)
	defer opCancel()

	evalTimeout := s.cfg.Network.EvaluateTimeout
	if evalTimeout <= 0 {
		evalTimeout = 30 * time.Second
	}
	evalCtx, evalCancel := context.WithTimeout(opCtx, evalTimeout)
	defer evalCancel()

	err := chromedp.Run(evalCtx,
		chromedp.Evaluate(script, out, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		}),
	)
	if err != nil {
		if evalCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%w: script did not settle within %s", connector.ErrEvaluation, evalTimeout)
		}
		if opCtx.Err() != nil {
			return fmt.Errorf("%w: canceled: %v", connector.ErrEvaluation, opCtx.Err())
		}
		return fmt.Errorf("%w: %v", connector.ErrEvaluation, err)
	}
	return nil
}

// Close tears the tab down. Idempotent; later calls return nil.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil
	}
	s.isClosed = true
	s.mu.Unlock()

	s.logger.Debug("closing browser session")

	if s.cancel != nil {
		s.cancel()
	}
	if s.onClose != nil {
		s.onClose()
	}
	return nil
}
