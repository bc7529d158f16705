// Package captcha detects challenge widgets on a page and drives the
// auto-click and manual-solve protocol.
package captcha

import (
	"context"
	"strings"
	"time"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/humanoid"
	"go.uber.org/zap"
)

const (
	frameVisibleTimeout    = time.Second
	checkboxVisibleTimeout = 500 * time.Millisecond
)

// State is a step of the per-visit challenge state machine.
type State string

const (
	StateUnchecked    State = "UNCHECKED"
	StateClear        State = "CLEAR"
	StateChallenge    State = "CHALLENGE_PRESENT"
	StateAutoSolved   State = "AUTO_SOLVED"
	StateManualWindow State = "MANUAL_WINDOW"
	StateSolved       State = "SOLVED"
	StateTimedOut     State = "TIMED_OUT"
)

// Detection is the result of probing a page for challenge widgets.
type Detection struct {
	Present  bool
	Selector string
}

// Resolution is the final outcome of Resolve.
type Resolution struct {
	Solved       bool
	State        State
	AutoClicked  bool
	ManualWindow bool
	Waited       time.Duration
	Reason       schemas.ReasonCode
}

// Handler runs challenge detection and solving. It holds no per-page state
// and may be shared between workflows.
type Handler struct {
	cfg    config.CaptchaConfig
	logger *zap.Logger
}

// New creates a Handler.
func New(cfg config.CaptchaConfig, logger *zap.Logger) *Handler {
	return &Handler{cfg: cfg, logger: logger.Named("captcha")}
}

// Detect probes the page, repeating a full pass up to RecheckAttempts times
// so widgets that render late are still caught.
func (h *Handler) Detect(ctx context.Context, page schemas.Page) Detection {
	attempts := max(h.cfg.RecheckAttempts, 1)
	for attempt := 0; attempt < attempts; attempt++ {
		if d := h.probe(ctx, page); d.Present {
			return d
		}
		if attempt < attempts-1 {
			if humanoid.Pause(ctx, h.cfg.RecheckInterval) != nil {
				break
			}
		}
	}
	return Detection{}
}

// probe makes one pass over every detection selector and text.
func (h *Handler) probe(ctx context.Context, page schemas.Page) Detection {
	for _, sel := range h.cfg.DetectionSelectors {
		els, err := page.QueryAll(ctx, sel)
		if err != nil {
			h.logger.Debug("Detection selector probe failed.", zap.String("selector", sel), zap.Error(err))
			continue
		}
		if h.anyWidget(ctx, els) {
			return Detection{Present: true, Selector: sel}
		}
	}
	for _, text := range h.cfg.DetectionTexts {
		els, err := page.QueryXPath(ctx, TextXPath(text))
		if err != nil {
			h.logger.Debug("Detection text probe failed.", zap.String("text", text), zap.Error(err))
			continue
		}
		if h.anyWidget(ctx, els) {
			return Detection{Present: true, Selector: "text=" + text}
		}
	}
	return Detection{}
}

// anyWidget reports whether one of the first matches is visible and large
// enough to be a real widget rather than a hidden decoy.
func (h *Handler) anyWidget(ctx context.Context, els []schemas.Element) bool {
	limit := h.cfg.MaxProbeMatches
	if limit <= 0 || limit > len(els) {
		limit = len(els)
	}
	for _, el := range els[:limit] {
		if h.isWidget(ctx, el) {
			return true
		}
	}
	return false
}

func (h *Handler) isWidget(ctx context.Context, el schemas.Element) bool {
	probeCtx, cancel := withOptionalTimeout(ctx, h.cfg.ProbeTimeout)
	defer cancel()

	visible, err := el.Visible(probeCtx)
	if err != nil || !visible {
		return false
	}
	box, err := el.Box(probeCtx)
	if err != nil {
		return false
	}
	return box.Width > h.cfg.MinWidgetSize && box.Height > h.cfg.MinWidgetSize
}

// AutoSolve tries to tick a checkbox challenge inside its iframe. It reports
// whether a checkbox was clicked, not whether the challenge cleared.
func (h *Handler) AutoSolve(ctx context.Context, page schemas.Page) bool {
	if !h.cfg.AutoClick {
		return false
	}
	h.logger.Info("Attempting automatic CAPTCHA checkbox click.")

	for _, frameSel := range h.cfg.CheckboxFrames {
		iframes, err := page.QueryAll(ctx, frameSel)
		if err != nil {
			continue
		}
		for _, iframe := range iframes {
			if h.clickInFrame(ctx, page, iframe) {
				h.logger.Info("CAPTCHA checkbox clicked.", zap.String("frame", frameSel))
				return true
			}
			if ctx.Err() != nil {
				return false
			}
		}
	}
	return false
}

func (h *Handler) clickInFrame(ctx context.Context, page schemas.Page, iframe schemas.Element) bool {
	if !visibleWithin(ctx, iframe, frameVisibleTimeout) {
		return false
	}
	frame, err := page.Frame(ctx, iframe)
	if err != nil {
		h.logger.Debug("Could not enter challenge frame.", zap.Error(err))
		return false
	}
	for _, sel := range h.cfg.CheckboxSelectors {
		boxes, err := frame.QueryAll(ctx, sel)
		if err != nil || len(boxes) == 0 {
			continue
		}
		checkbox := boxes[0]
		if !visibleWithin(ctx, checkbox, checkboxVisibleTimeout) {
			continue
		}
		clickCtx, cancel := withOptionalTimeout(ctx, h.cfg.ClickTimeout)
		err = checkbox.Click(clickCtx)
		cancel()
		if err != nil {
			h.logger.Debug("Checkbox click failed.", zap.String("selector", sel), zap.Error(err))
			continue
		}
		_ = humanoid.Pause(ctx, h.cfg.ClickSettle)
		return true
	}
	return false
}

// Resolve runs the full protocol for a page on which a challenge was seen:
// an immediate double check, the auto-click attempt, then the bounded
// manual window.
func (h *Handler) Resolve(ctx context.Context, page schemas.Page) Resolution {
	start := time.Now()
	done := func(r Resolution) Resolution {
		r.Waited = time.Since(start)
		if !r.Solved && r.Reason == schemas.ReasonNone {
			r.Reason = schemas.ReasonCaptchaTimeout
		}
		return r
	}

	if h.confirmedClear(ctx, page) {
		return done(Resolution{Solved: true, State: StateClear})
	}
	if ctx.Err() != nil {
		return done(Resolution{State: StateChallenge, Reason: schemas.ReasonCanceled})
	}

	clicked := h.AutoSolve(ctx, page)
	if clicked {
		if h.awaitAutoSolve(ctx, page) {
			h.logger.Info("CAPTCHA auto-solved.")
			return done(Resolution{Solved: true, State: StateAutoSolved, AutoClicked: true})
		}
		if ctx.Err() != nil {
			return done(Resolution{State: StateChallenge, AutoClicked: true, Reason: schemas.ReasonCanceled})
		}
	}

	solved := h.manualWindow(ctx, page)
	res := Resolution{Solved: solved, ManualWindow: true, AutoClicked: clicked}
	switch {
	case solved:
		res.State = StateSolved
	case ctx.Err() != nil:
		res.State = StateManualWindow
		res.Reason = schemas.ReasonCanceled
	default:
		res.State = StateTimedOut
	}
	return done(res)
}

// awaitAutoSolve re-detects after a click, allowing the widget some time to
// verify the click before giving up.
func (h *Handler) awaitAutoSolve(ctx context.Context, page schemas.Page) bool {
	if humanoid.Pause(ctx, h.cfg.PostClickWait) != nil {
		return false
	}
	if !h.Detect(ctx, page).Present {
		return true
	}
	for i := 0; i < h.cfg.AutoVerifyAttempts; i++ {
		if humanoid.Pause(ctx, h.cfg.AutoVerifyInterval) != nil {
			return false
		}
		if !h.Detect(ctx, page).Present {
			return true
		}
	}
	return false
}

// manualWindow polls until two consecutive clear readings or the timeout.
func (h *Handler) manualWindow(ctx context.Context, page schemas.Page) bool {
	h.logger.Warn("CAPTCHA detected, manual intervention may be required.",
		zap.Duration("timeout", h.cfg.ManualTimeout))

	deadline := time.Now().Add(h.cfg.ManualTimeout)
	for time.Now().Before(deadline) {
		if h.confirmedClear(ctx, page) {
			h.logger.Info("CAPTCHA solved.")
			_ = humanoid.Pause(ctx, h.cfg.SolvedPause)
			return true
		}
		if humanoid.Pause(ctx, h.cfg.CheckInterval) != nil {
			return false
		}
	}
	h.logger.Warn("CAPTCHA timeout reached.", zap.Duration("timeout", h.cfg.ManualTimeout))
	return false
}

// confirmedClear requires a clear reading to be confirmed once more after a
// short delay, filtering out transient DOM states.
func (h *Handler) confirmedClear(ctx context.Context, page schemas.Page) bool {
	if h.Detect(ctx, page).Present || ctx.Err() != nil {
		return false
	}
	if humanoid.Pause(ctx, h.cfg.ReconfirmDelay) != nil {
		return false
	}
	return !h.Detect(ctx, page).Present && ctx.Err() == nil
}

// TextXPath builds an expression matching divs whose text contains text.
func TextXPath(text string) string {
	return "//div[contains(normalize-space(.), " + xpathLiteral(text) + ")]"
}

// xpathLiteral quotes s for XPath 1.0, which has no escape sequences.
func xpathLiteral(s string) string {
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	parts := strings.Split(s, "'")
	return "concat('" + strings.Join(parts, `', "'", '`) + "')"
}

func visibleWithin(ctx context.Context, el schemas.Element, d time.Duration) bool {
	vctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	ok, err := el.Visible(vctx)
	return err == nil && ok
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
