// Package filler performs text entry and dropdown selection on form controls.
// Every operation reports a Result instead of failing the caller.
package filler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/humanoid"
	"go.uber.org/zap"
)

// visibilityPoll is how often visibility is re-checked while waiting.
const visibilityPoll = 50 * time.Millisecond

// FillEvents are dispatched after typing so framework bindings observe the value.
var FillEvents = []string{"input", "change", "blur"}

// Result is the outcome of a single fill operation.
type Result struct {
	OK     bool
	Reason schemas.ReasonCode
	Tier   DropdownTier
	Err    error
}

func succeeded() Result { return Result{OK: true} }

func failed(reason schemas.ReasonCode, err error) Result {
	return Result{Reason: reason, Err: err}
}

// Filler fills controls with human paced input.
type Filler struct {
	cfg    config.FillerConfig
	slowMo time.Duration
	typist *humanoid.Typist
	logger *zap.Logger
}

// New creates a Filler. slowMo is an extra pause before each interaction.
func New(cfg config.FillerConfig, slowMo time.Duration, typist *humanoid.Typist, logger *zap.Logger) *Filler {
	if typist == nil {
		typist = humanoid.NewTypist(cfg.KeyDelay, cfg.KeyJitter, nil)
	}
	return &Filler{
		cfg:    cfg,
		slowMo: slowMo,
		typist: typist,
		logger: logger.Named("filler"),
	}
}

// FillText types value into a text input or textarea. Calling it again after
// a failure is safe because the control is cleared before typing.
func (f *Filler) FillText(ctx context.Context, el schemas.Element, value string) (res Result) {
	defer f.recoverInto(&res)

	visible, err := f.waitVisible(ctx, el)
	if err != nil || !visible {
		return failed(schemas.ReasonNotVisible, err)
	}

	steps := []struct {
		name string
		run  func() error
	}{
		{"scroll", func() error { return el.ScrollIntoView(ctx) }},
		{"click", func() error {
			if err := humanoid.Pause(ctx, f.slowMo); err != nil {
				return err
			}
			return el.Click(ctx)
		}},
		{"clear", func() error { return el.Clear(ctx) }},
		{"select_all", func() error {
			// Select-all is advisory: the value was already cleared.
			if err := el.SelectAll(ctx); err != nil {
				f.logger.Debug("Select-all failed, continuing.", zap.Error(err))
			}
			return nil
		}},
		{"type", func() error { return f.typist.Type(ctx, el, value) }},
		{"dispatch", func() error { return el.Dispatch(ctx, FillEvents...) }},
	}

	for _, step := range steps {
		if err := step.run(); err != nil {
			f.logger.Debug("Text fill step failed.", zap.String("step", step.name), zap.Error(err))
			return failed(schemas.ReasonInteractionFailed, fmt.Errorf("%s: %w", step.name, err))
		}
		if err := humanoid.Pause(ctx, f.cfg.SettleDelay); err != nil {
			return failed(schemas.ReasonInteractionFailed, err)
		}
	}

	// Input masks may reformat the value, so only an empty read counts as a miss.
	if got, err := el.Value(ctx); err == nil && got == "" && value != "" {
		return failed(schemas.ReasonInteractionFailed, errors.New("value not retained after typing"))
	}
	return succeeded()
}

// FillDropdown selects the option best matching value.
func (f *Filler) FillDropdown(ctx context.Context, el schemas.Element, value string) (res Result) {
	defer f.recoverInto(&res)

	if err := el.ScrollIntoView(ctx); err != nil {
		f.logger.Debug("Scroll before dropdown fill failed.", zap.Error(err))
	}
	if err := humanoid.Pause(ctx, f.cfg.SettleDelay); err != nil {
		return failed(schemas.ReasonInteractionFailed, err)
	}

	options, err := el.Options(ctx)
	if err != nil {
		return failed(schemas.ReasonInteractionFailed, fmt.Errorf("options: %w", err))
	}
	if len(options) == 0 {
		return failed(schemas.ReasonNoOptions, nil)
	}

	candidates := RankOptions(options, value)
	if len(candidates) == 0 {
		return failed(schemas.ReasonNoMatchingOption, nil)
	}

	var lastErr error
	for _, c := range candidates {
		if err := humanoid.Pause(ctx, f.slowMo); err != nil {
			return failed(schemas.ReasonInteractionFailed, err)
		}
		if err := el.SelectValue(ctx, c.Option.Value); err != nil {
			lastErr = err
			f.logger.Debug("Option selection failed, trying next candidate.",
				zap.String("option", c.Option.Text), zap.String("tier", string(c.Tier)), zap.Error(err))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		if err := el.Dispatch(ctx, "input", "change"); err != nil {
			f.logger.Debug("Dropdown event dispatch failed.", zap.Error(err))
		}
		_ = humanoid.Pause(ctx, f.cfg.SettleDelay)
		return Result{OK: true, Tier: c.Tier}
	}
	return failed(schemas.ReasonInteractionFailed, lastErr)
}

// waitVisible polls el until it is visible or the visibility timeout passes.
func (f *Filler) waitVisible(ctx context.Context, el schemas.Element) (bool, error) {
	timeout := f.cfg.VisibleTimeout
	if timeout <= 0 {
		timeout = visibilityPoll
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		visible, err := el.Visible(waitCtx)
		if err == nil && visible {
			return true, nil
		}
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if humanoid.Pause(waitCtx, visibilityPoll) != nil {
			// The visibility window closed; that is a miss, not an error.
			return false, nil
		}
	}
}

// recoverInto converts a panic from the page engine into a failed result.
func (f *Filler) recoverInto(res *Result) {
	if r := recover(); r != nil {
		f.logger.Error("Recovered from panic during field fill.", zap.Any("panic", r))
		*res = failed(schemas.ReasonPanic, fmt.Errorf("panic: %v", r))
	}
}
