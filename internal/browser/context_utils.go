// internal/browser/context_utils.go
package browser

import (
	"context"
	"errors"
	"time"
)

// CombineContext returns a context that carries the values of primary (the
// CDP tab context) and is canceled when either primary or op is done. The
// earlier of the two deadlines applies.
func CombineContext(primary, op context.Context) (context.Context, context.CancelFunc) {
	var (
		combined context.Context
		cancel   context.CancelFunc
	)
	if d, ok := op.Deadline(); ok {
		combined, cancel = context.WithDeadline(primary, d)
	} else {
		combined, cancel = context.WithCancel(primary)
	}
	stop := context.AfterFunc(op, func() {
		// op's deadline is already combined's own; let it expire as such.
		if errors.Is(op.Err(), context.DeadlineExceeded) {
			return
		}
		cancel()
	})
	return combined, func() {
		stop()
		cancel()
	}
}

// valueOnlyContext inherits the values of its parent but never expires.
type valueOnlyContext struct {
	context.Context
}

func (valueOnlyContext) Deadline() (deadline time.Time, ok bool) { return }
func (valueOnlyContext) Done() <-chan struct{}                     { return nil }
func (valueOnlyContext) Err() error                                { return nil }

// Detach returns a context that keeps ctx's CDP values but outlives its
// cancellation, for cleanup that must run after a task was canceled.
func Detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}
