// internal/browser/manager.go

// Package browser wraps the chromedp automation backend: one exec
// allocator per process, one Session per tab. Visibility (headless or
// headful) is fixed at allocator launch; sessions report it so callers
// can degrade gracefully.
package browser

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/gantryhq/gantry/internal/config"
)

// Manager owns the browser process allocator and the live sessions.
type Manager struct {
	logger      *zap.Logger
	cfg         *config.Config
	allocCtx    context.Context
	allocCancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewManager prepares the exec allocator. The browser process itself
// starts lazily with the first session.
func NewManager(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Manager, error) {
	profileDir, err := cfg.Browser.ResolveProfileDir()
	if err != nil {
		return nil, err
	}
	// The profile persists cookies and sessions across runs, which is
	// what lets an operator log in once and reuse it.
	if err := os.MkdirAll(profileDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating browser profile dir: %w", err)
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, execOptions(&cfg.Browser, profileDir)...)

	logger = logger.Named("browser")
	logger.Debug("browser allocator ready",
		zap.String("profile_dir", profileDir),
		zap.Bool("headless", cfg.Browser.Headless),
	)

	return &Manager{
		logger:      logger,
		cfg:         cfg,
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		sessions:    make(map[string]*Session),
	}, nil
}

// execOptions translates browser config into allocator options.
func execOptions(b *config.BrowserConfig, profileDir string) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(profileDir),
		// Stability in containers and small /dev/shm environments.
		chromedp.Flag("disable-dev-shm-usage", true),
	)

	if !b.Headless {
		// The defaults carry headless; undo it for interactive runs.
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if b.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if b.DisableCache {
		opts = append(opts, chromedp.Flag("disable-cache", true))
	}
	if b.IgnoreTLSErrors {
		opts = append(opts, chromedp.Flag("ignore-certificate-errors", true))
	}
	return opts
}

// NewSession opens a tab and connects CDP. ctx bounds the setup work
// only; the session's own lifetime is tied to the allocator.
func (m *Manager) NewSession(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, fmt.Errorf("browser manager is shut down")
	}
	m.mu.Unlock()

	var ctxOpts []chromedp.ContextOption
	if m.cfg.Browser.Debug {
		ctxOpts = append(ctxOpts, chromedp.WithDebugf(m.logger.Sugar().Debugf))
	}
	tabCtx, tabCancel := chromedp.NewContext(m.allocCtx, ctxOpts...)

	s := newSession(tabCtx, tabCancel, m.cfg, m.logger, !m.cfg.Browser.Headless)
	s.onClose = func() { m.removeSession(s.ID()) }

	if err := s.initialize(ctx); err != nil {
		s.Close(ctx)
		return nil, fmt.Errorf("initializing browser session: %w", err)
	}

	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()

	m.logger.Info("browser session started", zap.String("session_id", s.ID()))
	return s, nil
}

func (m *Manager) removeSession(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Shutdown closes all sessions in parallel, then tears down the
// allocator (and with it the browser process). Idempotent.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	open := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	m.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range open {
		g.Go(func() error {
			return s.Close(gctx)
		})
	}
	err := g.Wait()

	m.allocCancel()
	m.logger.Debug("browser manager shut down", zap.Int("sessions_closed", len(open)))
	return err
}
