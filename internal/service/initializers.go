// File: internal/service/initializers.go
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/datastore"
	"github.com/xkilldash9x/formpilot/internal/store"
)

// InitializeDataStore opens the configured spreadsheet backend. It is shared
// by the run and check commands so both read records the same way.
func InitializeDataStore(ctx context.Context, cfg config.SourceConfig, logger *zap.Logger) (schemas.DataStore, error) {
	logger.Info("Initializing data store.", zap.String("backend", cfg.Backend))
	ds, err := datastore.Open(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s data store: %w", cfg.Backend, err)
	}
	return ds, nil
}

// InitializeHistory opens the run history backend and prepares its schema.
// The "none" backend yields a no-op store.
func InitializeHistory(ctx context.Context, cfg config.HistoryConfig, logger *zap.Logger) (schemas.HistoryStore, error) {
	if cfg.Backend == "" || cfg.Backend == "none" {
		logger.Debug("Run history disabled.")
	} else {
		logger.Info("Initializing run history.", zap.String("backend", cfg.Backend))
	}
	history, err := store.Open(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open run history: %w", err)
	}
	return history, nil
}
