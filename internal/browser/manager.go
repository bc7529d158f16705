// internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/browser/stealth"
	"github.com/xkilldash9x/formpilot/internal/config"
)

// Manager owns the browser process and hands out isolated sessions.
type Manager struct {
	logger  *zap.Logger
	cfg     config.BrowserConfig
	persona stealth.Persona

	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc

	// Browser context creation is serialized; Chrome handles concurrent
	// CreateBrowserContext calls poorly.
	creationLock sync.Mutex
	wg           sync.WaitGroup
}

var _ schemas.SessionFactory = (*Manager)(nil)

// NewManager launches the browser process. The process outlives ctx's
// cancellation and is stopped by Shutdown.
func NewManager(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Manager, error) {
	m := &Manager{
		logger:  logger.Named("browser_manager"),
		cfg:     cfg,
		persona: stealth.PersonaFromConfig(cfg),
	}

	m.logger.Info("Initializing browser allocator...", zap.Bool("headless", cfg.Headless))
	m.allocatorCtx, m.allocatorCancel = chromedp.NewExecAllocator(context.WithoutCancel(ctx), AllocatorOptions(cfg)...)

	var ctxOpts []chromedp.ContextOption
	if cfg.Debug {
		ctxOpts = append(ctxOpts, chromedp.WithDebugf(m.logger.Sugar().Debugf))
	}
	m.browserCtx, m.browserCancel = chromedp.NewContext(m.allocatorCtx, ctxOpts...)

	// The first Run starts the process; it must not carry a deadline or the
	// browser dies with it.
	if err := chromedp.Run(m.browserCtx); err != nil {
		m.browserCancel()
		m.allocatorCancel()
		return nil, fmt.Errorf("browser failed to start: %w", err)
	}

	m.logger.Info("Browser launched successfully.")
	return m, nil
}

// controller returns a context that issues browser-level CDP commands.
func (m *Manager) controller() context.Context {
	c := chromedp.FromContext(m.browserCtx)
	return cdp.WithExecutor(m.browserCtx, c.Browser)
}

// NewSession opens a fresh browser context and tab with the stealth persona
// applied. Sessions share nothing: cookies and storage are per context.
func (m *Manager) NewSession(ctx context.Context) (schemas.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id := uuid.NewString()
	logger := m.logger.With(zap.String("session_id", id))
	ctrl := m.controller()

	m.creationLock.Lock()
	browserContextID, err := target.CreateBrowserContext().WithDisposeOnDetach(true).Do(ctrl)
	if err != nil {
		m.creationLock.Unlock()
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}
	targetID, err := target.CreateTarget("about:blank").WithBrowserContextID(browserContextID).Do(ctrl)
	m.creationLock.Unlock()
	if err != nil {
		m.disposeBestEffort(browserContextID)
		return nil, fmt.Errorf("failed to create target: %w", err)
	}

	tabCtx, cancel := chromedp.NewContext(m.browserCtx, chromedp.WithTargetID(targetID))
	s := &Session{
		id:               id,
		controller:       ctrl,
		browserContextID: browserContextID,
		cancel:           cancel,
	}
	s.page = &page{tab: tabCtx, session: s, logger: logger}

	m.wg.Add(1)
	s.onClose = m.wg.Done

	if err := s.run(ctx, m.setupTasks(logger)...); err != nil {
		_ = s.Close(Detach(ctx))
		return nil, fmt.Errorf("failed to set up session: %w", err)
	}
	logger.Debug("Browser session ready.")
	return s, nil
}

func (m *Manager) setupTasks(logger *zap.Logger) []chromedp.Action {
	var tasks []chromedp.Action
	if m.cfg.Stealth {
		tasks = append(tasks, stealth.Apply(m.persona, logger))
	}
	if m.persona.Width > 0 && m.persona.Height > 0 {
		tasks = append(tasks, emulation.SetDeviceMetricsOverride(int64(m.persona.Width), int64(m.persona.Height), 1, false))
	}
	return tasks
}

func (m *Manager) disposeBestEffort(id cdp.BrowserContextID) {
	if m.browserCtx.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(m.controller(), 5*time.Second)
	defer cancel()
	if err := target.DisposeBrowserContext(id).Do(ctx); err != nil {
		m.logger.Debug("Failed best-effort cleanup of orphaned browser context.", zap.String("browserContextID", string(id)), zap.Error(err))
	}
}

// Shutdown waits for open sessions, bounded by ctx, then stops the browser.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Browser manager shutdown initiated. Waiting for active sessions to complete...")

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("All sessions have completed.")
	case <-ctx.Done():
		m.logger.Warn("Shutdown deadline exceeded. Forcing browser termination.", zap.Error(ctx.Err()))
	}

	m.browserCancel()
	m.allocatorCancel()
	<-m.allocatorCtx.Done()
	return nil
}
