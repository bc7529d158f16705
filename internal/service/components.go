// File: internal/service/components.go
package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/observability"
	"github.com/xkilldash9x/formpilot/internal/orchestrator"
)

const shutdownTimeout = 30 * time.Second

// BrowserManager is the session source the workflow drives, plus its lifecycle.
type BrowserManager interface {
	schemas.SessionFactory
	Shutdown(ctx context.Context) error
}

// Components holds all the initialized services required for a batch run and
// centralizes their lifecycle.
type Components struct {
	DataStore      schemas.DataStore
	History        schemas.HistoryStore
	BrowserManager BrowserManager
	Orchestrator   *orchestrator.Orchestrator
}

// Shutdown releases every component in reverse dependency order. It is safe
// on a partially initialized value.
func (c *Components) Shutdown() {
	logger := observability.GetLogger()
	logger.Debug("Beginning components shutdown sequence.")

	// 1. Stop the browser. Use a fresh context so shutdown completes even if
	// the run context was cancelled.
	if c.BrowserManager != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := c.BrowserManager.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Error during browser manager shutdown.", zap.Error(err))
		} else {
			logger.Debug("Browser manager shut down.")
		}
	}

	// 2. Close the run history.
	if c.History != nil {
		c.History.Close()
		logger.Debug("History store closed.")
	}

	logger.Info("All components shut down.")
}
