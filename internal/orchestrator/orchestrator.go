// File: internal/orchestrator/orchestrator.go
// Description: Runs a batch of target records in fixed size groups with a
// barrier and pause between groups. It is injected with the site runner and
// stores via interfaces so it can be tested without a browser.

package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/humanoid"
)

const statusWriteTimeout = 15 * time.Second

// SiteRunner processes a single record to a terminal outcome.
type SiteRunner interface {
	Run(ctx context.Context, record schemas.TargetRecord) schemas.Outcome
}

// Summary describes a finished batch.
type Summary struct {
	RunID    string                           `json:"run_id"`
	Total    int                              `json:"total"`
	Groups   int                              `json:"groups"`
	Counts   map[schemas.SubmissionStatus]int `json:"counts"`
	Canceled bool                             `json:"canceled"`
	Started  time.Time                        `json:"started_at"`
	Finished time.Time                        `json:"finished_at"`
}

// Duration is the wall-clock time of the batch.
func (s Summary) Duration() time.Duration {
	return s.Finished.Sub(s.Started)
}

// Result holds the per-record outcomes in input order plus the summary.
type Result struct {
	Summary  Summary           `json:"summary"`
	Outcomes []schemas.Outcome `json:"outcomes"`
}

// Orchestrator manages the lifecycle of one batch.
type Orchestrator struct {
	cfg     config.OrchestratorConfig
	logger  *zap.Logger
	runner  SiteRunner
	status  schemas.StatusWriter
	history schemas.HistoryStore
}

// New creates an Orchestrator. history may be nil when no run history is kept.
func New(
	cfg config.OrchestratorConfig,
	logger *zap.Logger,
	runner SiteRunner,
	status schemas.StatusWriter,
	history schemas.HistoryStore,
) (*Orchestrator, error) {
	if logger == nil || runner == nil || status == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	if cfg.Concurrency <= 0 {
		return nil, fmt.Errorf("concurrency must be positive, got %d", cfg.Concurrency)
	}
	return &Orchestrator{
		cfg:     cfg,
		logger:  logger.Named("orchestrator"),
		runner:  runner,
		status:  status,
		history: history,
	}, nil
}

// GroupSizes splits n records into consecutive groups of at most size.
func GroupSizes(n, size int) []int {
	if n <= 0 || size <= 0 {
		return nil
	}
	sizes := make([]int, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		sizes = append(sizes, min(size, n-start))
	}
	return sizes
}

// Run processes every record. Records in a group run concurrently and the
// next group starts only after the whole group has finished. Once ctx is
// cancelled no further group starts, and every record that never ran is
// reported as FAILED with reason CANCELED.
func (o *Orchestrator) Run(ctx context.Context, records []schemas.TargetRecord) Result {
	runID := uuid.NewString()
	sizes := GroupSizes(len(records), o.cfg.Concurrency)
	summary := Summary{
		RunID:   runID,
		Total:   len(records),
		Groups:  len(sizes),
		Counts:  make(map[schemas.SubmissionStatus]int),
		Started: time.Now(),
	}
	outcomes := make([]schemas.Outcome, len(records))
	logger := o.logger.With(zap.String("run_id", runID))
	logger.Info("Starting batch.",
		zap.Int("records", len(records)), zap.Int("groups", len(sizes)), zap.Int("concurrency", o.cfg.Concurrency))

	start := 0
	for gi, size := range sizes {
		if gi > 0 {
			if err := humanoid.Pause(ctx, o.cfg.GroupPause); err != nil {
				logger.Debug("Group pause interrupted.", zap.Error(err))
			}
		}
		if ctx.Err() != nil {
			logger.Warn("Batch cancelled, skipping remaining records.", zap.Int("remaining", len(records)-start))
			o.cancelRemaining(ctx, logger, runID, records[start:], outcomes[start:])
			summary.Canceled = true
			break
		}

		logger.Info("Starting group.", zap.Int("group", gi+1), zap.Int("size", size))
		o.runGroup(ctx, logger, runID, records[start:start+size], outcomes[start:start+size])
		start += size
	}

	for _, out := range outcomes {
		summary.Counts[out.Status]++
	}
	summary.Finished = time.Now()
	logger.Info("Batch finished.",
		zap.Int("total", summary.Total),
		zap.Int("success", summary.Counts[schemas.StatusSuccess]),
		zap.Duration("duration", summary.Duration()))

	return Result{Summary: summary, Outcomes: outcomes}
}

// runGroup is the barrier: it returns only when every record in the group
// has produced an outcome.
func (o *Orchestrator) runGroup(ctx context.Context, logger *zap.Logger, runID string, group []schemas.TargetRecord, outcomes []schemas.Outcome) {
	var g errgroup.Group
	for i := range group {
		g.Go(func() error {
			outcomes[i] = o.runOne(ctx, logger, group[i])
			outcomes[i].RunID = runID
			o.recordHistory(ctx, logger, outcomes[i])
			return nil
		})
	}
	_ = g.Wait()
}

func (o *Orchestrator) runOne(ctx context.Context, logger *zap.Logger, record schemas.TargetRecord) (out schemas.Outcome) {
	started := time.Now()
	defer func() {
		if p := recover(); p != nil {
			logger.Error("Site runner panicked.", zap.Int("row", record.RowIndex()), zap.Any("panic", p))
			out = schemas.Outcome{
				RowIndex: record.RowIndex(),
				URL:      record.URL(),
				Status:   schemas.StatusFailed,
				Reason:   schemas.ReasonPanic,
				Error:    fmt.Sprint(p),
				Started:  started,
				Finished: time.Now(),
			}
			o.writeStatus(ctx, logger, record.RowIndex(), schemas.StatusFailed)
		}
	}()
	return o.runner.Run(ctx, record)
}

func (o *Orchestrator) cancelRemaining(ctx context.Context, logger *zap.Logger, runID string, records []schemas.TargetRecord, outcomes []schemas.Outcome) {
	now := time.Now()
	for i, record := range records {
		outcomes[i] = schemas.Outcome{
			RunID:    runID,
			RowIndex: record.RowIndex(),
			URL:      record.URL(),
			Status:   schemas.StatusFailed,
			Reason:   schemas.ReasonCanceled,
			Started:  now,
			Finished: now,
		}
		o.writeStatus(ctx, logger, record.RowIndex(), schemas.StatusFailed)
		o.recordHistory(ctx, logger, outcomes[i])
	}
}

func (o *Orchestrator) writeStatus(ctx context.Context, logger *zap.Logger, row int, status schemas.SubmissionStatus) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
	defer cancel()
	if err := o.status.WriteStatus(writeCtx, row, status); err != nil {
		logger.Warn("Could not update status.", zap.Int("row", row), zap.String("status", string(status)), zap.Error(err))
	}
}

// recordHistory is best-effort and never alters the outcome.
func (o *Orchestrator) recordHistory(ctx context.Context, logger *zap.Logger, out schemas.Outcome) {
	if o.history == nil {
		return
	}
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
	defer cancel()
	if err := o.history.RecordOutcome(writeCtx, out); err != nil {
		logger.Warn("Could not record outcome history.", zap.Int("row", out.RowIndex), zap.Error(err))
	}
}
