package datastore

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
)

// Open builds the data store selected by cfg.Backend. Sheets writes are
// paced to the configured quota.
func Open(ctx context.Context, cfg config.SourceConfig, logger *zap.Logger) (schemas.DataStore, error) {
	switch cfg.Backend {
	case "sheets":
		s, err := NewSheetsStore(ctx, cfg.Sheets, logger)
		if err != nil {
			return nil, err
		}
		return pacedStore{RecordSource: s, PacedWriter: NewPacedWriter(s, cfg.Sheets.WritesPerSecond, logger)}, nil
	case "csv":
		return NewCSVStore(cfg.CSV, logger)
	default:
		return nil, fmt.Errorf("unknown source backend %q", cfg.Backend)
	}
}
