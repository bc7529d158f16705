package datastore

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

// PacedWriter spaces status writes to respect the backend's write quota. It
// is safe for concurrent use; rate.Limiter does the locking.
type PacedWriter struct {
	next    schemas.StatusWriter
	limiter *rate.Limiter
	logger  *zap.Logger
}

var _ schemas.StatusWriter = (*PacedWriter)(nil)

// NewPacedWriter allows perSecond writes with a burst of one. A non-positive
// rate disables pacing.
func NewPacedWriter(next schemas.StatusWriter, perSecond float64, logger *zap.Logger) *PacedWriter {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &PacedWriter{
		next:    next,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.Named("paced_writer"),
	}
}

func (p *PacedWriter) WriteStatus(ctx context.Context, rowIndex int, status schemas.SubmissionStatus) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait for write slot: %w", err)
	}
	return p.next.WriteStatus(ctx, rowIndex, status)
}

// pacedStore pairs a record source with a paced status writer.
type pacedStore struct {
	schemas.RecordSource
	*PacedWriter
}
