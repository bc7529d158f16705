// Package store persists per-run submission outcomes. Writes are an audit
// trail only and never feed back into a record's status.
package store

import (
	"context"
	"fmt"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
)

// Open returns the history store selected by cfg.Backend. The "none"
// backend yields a store that discards everything.
func Open(ctx context.Context, cfg config.HistoryConfig, logger *zap.Logger) (schemas.HistoryStore, error) {
	var (
		h   schemas.HistoryStore
		err error
	)
	switch cfg.Backend {
	case "", "none":
		return Nop{}, nil
	case "postgres":
		h, err = ConnectPostgres(ctx, cfg.DSN, logger)
	case "sqlite":
		h, err = OpenSQLite(ctx, cfg.DSN, logger)
	default:
		return nil, fmt.Errorf("unknown history backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	if err := h.EnsureSchema(ctx); err != nil {
		h.Close()
		return nil, err
	}
	return h, nil
}

// Nop is a HistoryStore that records nothing.
type Nop struct{}

func (Nop) EnsureSchema(context.Context) error                  { return nil }
func (Nop) RecordOutcome(context.Context, schemas.Outcome) error { return nil }
func (Nop) Close()                                               {}

// detail serializes the full outcome for the detail column.
func detail(o schemas.Outcome) (string, error) {
	b, err := json.Marshal(o)
	if err != nil {
		return "", fmt.Errorf("encode outcome detail: %w", err)
	}
	return string(b), nil
}
