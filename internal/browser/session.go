package browser

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

const closeTimeout = 10 * time.Second

// Session is one isolated browser context with a single tab.
type Session struct {
	*page

	id               string
	controller       context.Context
	browserContextID cdp.BrowserContextID
	cancel           context.CancelFunc
	onClose          func()

	mu           sync.Mutex
	frameCancels []context.CancelFunc
	closed       bool
}

var _ schemas.Session = (*Session)(nil)

func (s *Session) ID() string { return s.id }

// attachFrame returns a page for an out-of-process iframe target, or nil if
// the frame shares the parent's renderer.
func (s *Session) attachFrame(ctx context.Context, id target.ID) (*page, error) {
	lookupCtx, cancel := CombineContext(s.tab, ctx)
	defer cancel()
	infos, err := chromedp.Targets(lookupCtx)
	if err != nil {
		return nil, err
	}
	for _, info := range infos {
		if info.TargetID != id || info.Type != "iframe" {
			continue
		}
		frameCtx, frameCancel := chromedp.NewContext(s.tab, chromedp.WithTargetID(id))
		if err := chromedp.Run(frameCtx); err != nil {
			frameCancel()
			return nil, err
		}
		s.mu.Lock()
		s.frameCancels = append(s.frameCancels, frameCancel)
		s.mu.Unlock()
		return &page{tab: frameCtx, session: s, logger: s.logger}, nil
	}
	return nil, nil
}

// Close tears down the tab and its browser context. It is safe to call more
// than once and does not depend on the caller's context still being live.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	frames := s.frameCancels
	s.frameCancels = nil
	s.mu.Unlock()

	for _, cancel := range frames {
		cancel()
	}
	s.cancel()

	var err error
	if s.browserContextID != "" && s.controller.Err() == nil {
		cleanupCtx, cancel := context.WithTimeout(s.controller, closeTimeout)
		err = target.DisposeBrowserContext(s.browserContextID).Do(cleanupCtx)
		cancel()
		if err != nil {
			s.logger.Debug("Failed to dispose browser context.", zap.Error(err))
		}
	}
	if s.onClose != nil {
		s.onClose()
	}
	s.logger.Debug("Session closed.")
	return err
}
