// Package workflow runs the per-site sequence: navigate, clear any challenge,
// find the contact form, fill it and submit. A run always ends in exactly one
// terminal status and never returns an error to its caller.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/captcha"
	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/fields"
	"github.com/xkilldash9x/formpilot/internal/filler"
	"github.com/xkilldash9x/formpilot/internal/humanoid"
	"github.com/xkilldash9x/formpilot/internal/observability"
	"go.uber.org/zap"
)

const sessionCloseTimeout = 10 * time.Second

// Dependencies are the collaborators a Runner drives.
type Dependencies struct {
	Sessions schemas.SessionFactory
	Status   schemas.StatusWriter
	Captcha  *captcha.Handler
	Filler   *filler.Filler
	Resolver *fields.Resolver
}

// Runner executes the site workflow. It keeps no per-site state, so one
// Runner serves every concurrent record of a batch.
type Runner struct {
	cfg            config.WorkflowConfig
	animationDelay time.Duration
	deps           Dependencies
	logger         *zap.Logger
}

// New creates a Runner. animationDelay is the pause after each filled field.
func New(cfg config.WorkflowConfig, animationDelay time.Duration, deps Dependencies, logger *zap.Logger) (*Runner, error) {
	if deps.Sessions == nil || deps.Status == nil || deps.Captcha == nil || deps.Filler == nil || deps.Resolver == nil {
		return nil, fmt.Errorf("cannot initialize workflow with nil dependencies")
	}
	return &Runner{
		cfg:            cfg,
		animationDelay: animationDelay,
		deps:           deps,
		logger:         logger.Named("workflow"),
	}, nil
}

// Run processes one record and returns its outcome. Panics raised anywhere in
// the sequence are recovered and reported as FAILED.
func (r *Runner) Run(ctx context.Context, record schemas.TargetRecord) (out schemas.Outcome) {
	logger := observability.ForRecord(r.logger, record)
	out = schemas.Outcome{
		RowIndex: record.RowIndex(),
		URL:      record.URL(),
		Started:  time.Now(),
	}
	logger.Info("Processing site.")

	r.writeStatus(ctx, logger, record.RowIndex(), schemas.StatusProcessing)
	defer r.finish(ctx, logger, &out)

	r.visit(ctx, logger, record, &out)
	return out
}

// finish runs as the deferred boundary of Run.
func (r *Runner) finish(ctx context.Context, logger *zap.Logger, out *schemas.Outcome) {
	if p := recover(); p != nil {
		logger.Error("Site workflow panicked.", zap.Any("panic", p), zap.Stack("stack"))
		out.Status = schemas.StatusFailed
		out.Reason = schemas.ReasonPanic
		out.Error = fmt.Sprint(p)
	}
	if !out.Status.IsTerminal() {
		out.Status = schemas.StatusFailed
		if out.Reason == schemas.ReasonNone {
			out.Reason = schemas.ReasonUnexpected
		}
	}
	out.Finished = time.Now()

	r.writeStatus(ctx, logger, out.RowIndex, out.Status)
	logger.Info("Site finished.",
		zap.String("status", string(out.Status)),
		zap.String("reason", string(out.Reason)),
		zap.Int("fields_found", out.FieldsFound),
		zap.Int("fields_filled", out.FieldsFilled),
		zap.Duration("duration", out.Duration()),
	)
}

func (r *Runner) visit(ctx context.Context, logger *zap.Logger, record schemas.TargetRecord, out *schemas.Outcome) {
	target, err := NormalizeURL(record.URL())
	if err != nil {
		logger.Warn("Skipping invalid URL.", zap.Error(err))
		settle(out, schemas.StatusNavError, schemas.ReasonNavFailed, err)
		return
	}

	session, err := r.deps.Sessions.NewSession(ctx)
	if err != nil {
		logger.Error("Could not open a browser session.", zap.Error(err))
		settle(out, schemas.StatusFailed, canceledOr(ctx, schemas.ReasonSessionFailed), err)
		return
	}
	defer r.closeSession(ctx, logger, session)

	if !r.navigate(ctx, logger, session, target, out) {
		return
	}

	if !r.clearChallenge(ctx, logger, session, out) {
		return
	}

	out.ContactPage = r.openContact(ctx, session, logger)
	if err := humanoid.Pause(ctx, r.cfg.ContactSettle); err != nil {
		settle(out, schemas.StatusFailed, schemas.ReasonCanceled, err)
		return
	}

	found, filled := r.fillForm(ctx, logger, session, record)
	out.FieldsFound, out.FieldsFilled = found, filled
	if err := ctx.Err(); err != nil {
		settle(out, schemas.StatusFailed, schemas.ReasonCanceled, err)
		return
	}
	switch {
	case found == 0:
		settle(out, schemas.StatusNoFields, schemas.ReasonNoControls, nil)
		return
	case filled == 0:
		settle(out, schemas.StatusNoFields, schemas.ReasonNoneFilled, nil)
		return
	}
	logger.Info("Form filled.", zap.Int("filled", filled), zap.Int("found", found))

	if r.cfg.DryRun {
		settle(out, schemas.StatusFilled, schemas.ReasonSubmitSkipped, nil)
		return
	}

	reason, err := r.submit(ctx, logger, session)
	if reason != schemas.ReasonSubmitted {
		settle(out, schemas.StatusFilled, reason, err)
		return
	}
	settle(out, schemas.StatusSuccess, schemas.ReasonSubmitted, nil)
	_ = humanoid.Pause(ctx, r.cfg.PostSubmitPause)
}

func (r *Runner) navigate(ctx context.Context, logger *zap.Logger, page schemas.Page, target string, out *schemas.Outcome) bool {
	navCtx, cancel := withOptionalTimeout(ctx, r.cfg.PageLoadTimeout)
	err := page.Navigate(navCtx, target)
	cancel()
	if err != nil {
		switch {
		case ctx.Err() != nil:
			settle(out, schemas.StatusFailed, schemas.ReasonCanceled, err)
		case errors.Is(err, context.DeadlineExceeded):
			settle(out, schemas.StatusNavError, schemas.ReasonNavTimeout, err)
		default:
			settle(out, schemas.StatusNavError, schemas.ReasonNavFailed, err)
		}
		logger.Warn("Navigation failed.", zap.String("reason", string(out.Reason)), zap.Error(err))
		return false
	}
	logger.Debug("Website loaded.", zap.String("target", target))

	if err := humanoid.Pause(ctx, r.cfg.PostNavSettle); err != nil {
		settle(out, schemas.StatusFailed, schemas.ReasonCanceled, err)
		return false
	}
	return true
}

func (r *Runner) clearChallenge(ctx context.Context, logger *zap.Logger, page schemas.Page, out *schemas.Outcome) bool {
	detection := r.deps.Captcha.Detect(ctx, page)
	if !detection.Present {
		return true
	}
	out.CaptchaSeen = true
	logger.Info("CAPTCHA detected.", zap.String("selector", detection.Selector))

	res := r.deps.Captcha.Resolve(ctx, page)
	if res.Solved {
		return true
	}
	if res.Reason == schemas.ReasonCanceled || ctx.Err() != nil {
		settle(out, schemas.StatusFailed, schemas.ReasonCanceled, ctx.Err())
		return false
	}
	logger.Warn("CAPTCHA not solved, skipping site.",
		zap.String("state", string(res.State)), zap.Duration("waited", res.Waited))
	settle(out, schemas.StatusCaptchaBlocked, res.Reason, nil)
	return false
}

// fillForm enumerates the visible controls and fills each in turn. It returns
// how many controls were found and how many were filled.
func (r *Runner) fillForm(ctx context.Context, logger *zap.Logger, page schemas.Page, record schemas.TargetRecord) (found, filled int) {
	inputs := r.visibleControls(ctx, logger, page, r.cfg.InputSelector)
	textareas := r.visibleControls(ctx, logger, page, r.cfg.TextareaSelector)
	selects := r.visibleControls(ctx, logger, page, r.cfg.SelectSelector)

	found = len(inputs) + len(textareas) + len(selects)
	if found == 0 {
		return 0, 0
	}
	logger.Debug("Controls found.",
		zap.Int("inputs", len(inputs)), zap.Int("textareas", len(textareas)), zap.Int("selects", len(selects)))

	fill := func(el schemas.Element, kind schemas.FieldKind, dropdown bool) {
		if ctx.Err() != nil {
			return
		}
		value := r.deps.Resolver.Resolve(kind, record)
		var res filler.Result
		if dropdown {
			res = r.deps.Filler.FillDropdown(ctx, el, value)
		} else {
			res = r.deps.Filler.FillText(ctx, el, value)
		}
		if !res.OK {
			logger.Debug("Field not filled.",
				zap.String("kind", string(kind)), zap.String("reason", string(res.Reason)), zap.Error(res.Err))
			return
		}
		filled++
		_ = humanoid.Pause(ctx, r.animationDelay)
	}

	for _, el := range inputs {
		fill(el, classify(ctx, el), false)
	}
	for _, el := range textareas {
		fill(el, schemas.KindMessage, false)
	}
	for _, el := range selects {
		fill(el, classify(ctx, el), true)
	}
	return found, filled
}

func classify(ctx context.Context, el schemas.Element) schemas.FieldKind {
	meta, err := el.Meta(ctx)
	if err != nil {
		return schemas.KindUnknown
	}
	return fields.Classify(meta)
}

// visibleControls runs one selector and keeps the elements currently shown.
func (r *Runner) visibleControls(ctx context.Context, logger *zap.Logger, page schemas.Page, selector string) []schemas.Element {
	if selector == "" {
		return nil
	}
	els, err := page.QueryAll(ctx, selector)
	if err != nil {
		logger.Debug("Control query failed.", zap.String("selector", selector), zap.Error(err))
		return nil
	}
	visible := make([]schemas.Element, 0, len(els))
	for _, el := range els {
		if ok, err := el.Visible(ctx); err == nil && ok {
			visible = append(visible, el)
		}
	}
	return visible
}

// submit clicks the first visible submit control.
func (r *Runner) submit(ctx context.Context, logger *zap.Logger, page schemas.Page) (schemas.ReasonCode, error) {
	buttons := r.visibleControls(ctx, logger, page, r.cfg.SubmitSelector)
	if len(buttons) == 0 {
		logger.Info("No submit control found, leaving form filled.")
		return schemas.ReasonNoSubmit, nil
	}

	clickCtx, cancel := withOptionalTimeout(ctx, r.cfg.SubmitTimeout)
	defer cancel()
	button := buttons[0]
	if err := button.ScrollIntoView(clickCtx); err != nil {
		logger.Debug("Scroll to submit failed.", zap.Error(err))
	}
	if err := button.Click(clickCtx); err != nil {
		logger.Warn("Submit click failed.", zap.Error(err))
		return schemas.ReasonSubmitFailed, err
	}
	logger.Info("Form submitted.")
	return schemas.ReasonSubmitted, nil
}

// writeStatus reports status for row. The write outlives cancellation of ctx
// so interrupted records still reach a terminal status; failures are logged.
func (r *Runner) writeStatus(ctx context.Context, logger *zap.Logger, row int, status schemas.SubmissionStatus) {
	writeCtx, cancel := withOptionalTimeout(context.WithoutCancel(ctx), r.cfg.StatusTimeout)
	defer cancel()
	if err := r.deps.Status.WriteStatus(writeCtx, row, status); err != nil {
		logger.Warn("Could not update status.", zap.String("status", string(status)), zap.Error(err))
	}
}

func (r *Runner) closeSession(ctx context.Context, logger *zap.Logger, session schemas.Session) {
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sessionCloseTimeout)
	defer cancel()
	if err := session.Close(closeCtx); err != nil {
		logger.Debug("Session close reported an error.", zap.String("session", session.ID()), zap.Error(err))
	}
}

func settle(out *schemas.Outcome, status schemas.SubmissionStatus, reason schemas.ReasonCode, err error) {
	out.Status = status
	out.Reason = reason
	if err != nil {
		out.Error = err.Error()
	}
}

func canceledOr(ctx context.Context, reason schemas.ReasonCode) schemas.ReasonCode {
	if ctx.Err() != nil {
		return schemas.ReasonCanceled
	}
	return reason
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
