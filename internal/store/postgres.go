package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

// DBPool abstracts pgxpool.Pool so the store can be tested with pgxmock.
type DBPool interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

const (
	pgCreateOutcomes = `
        CREATE TABLE IF NOT EXISTS submission_outcomes (
            run_id        TEXT        NOT NULL,
            row_index     INTEGER     NOT NULL,
            url           TEXT        NOT NULL,
            status        TEXT        NOT NULL,
            reason        TEXT        NOT NULL DEFAULT '',
            fields_found  INTEGER     NOT NULL DEFAULT 0,
            fields_filled INTEGER     NOT NULL DEFAULT 0,
            captcha       BOOLEAN     NOT NULL DEFAULT FALSE,
            started_at    TIMESTAMPTZ NOT NULL,
            finished_at   TIMESTAMPTZ NOT NULL,
            detail        JSONB       NOT NULL DEFAULT '{}',
            PRIMARY KEY (run_id, row_index)
        );
    `
	pgInsertOutcome = `
        INSERT INTO submission_outcomes
            (run_id, row_index, url, status, reason, fields_found, fields_filled, captcha, started_at, finished_at, detail)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        ON CONFLICT (run_id, row_index) DO UPDATE SET
            status = EXCLUDED.status,
            reason = EXCLUDED.reason,
            fields_found = EXCLUDED.fields_found,
            fields_filled = EXCLUDED.fields_filled,
            captcha = EXCLUDED.captcha,
            finished_at = EXCLUDED.finished_at,
            detail = EXCLUDED.detail;
    `
)

// PostgresHistory stores outcomes in PostgreSQL.
type PostgresHistory struct {
	pool DBPool
	log  *zap.Logger
}

var _ schemas.HistoryStore = (*PostgresHistory)(nil)

// ConnectPostgres opens a pgx pool for dsn.
func ConnectPostgres(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresHistory, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	h, err := NewPostgresHistory(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return h, nil
}

// NewPostgresHistory wraps an existing pool and verifies the connection.
func NewPostgresHistory(ctx context.Context, pool DBPool, logger *zap.Logger) (*PostgresHistory, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresHistory{pool: pool, log: logger.Named("history.postgres")}, nil
}

func (h *PostgresHistory) EnsureSchema(ctx context.Context) error {
	if _, err := h.pool.Exec(ctx, pgCreateOutcomes); err != nil {
		return fmt.Errorf("failed to create submission_outcomes: %w", err)
	}
	return nil
}

// RecordOutcome upserts the outcome, so a record written twice in one run
// keeps its latest state.
func (h *PostgresHistory) RecordOutcome(ctx context.Context, o schemas.Outcome) error {
	d, err := detail(o)
	if err != nil {
		return err
	}
	_, err = h.pool.Exec(ctx, pgInsertOutcome,
		o.RunID, o.RowIndex, o.URL, string(o.Status), string(o.Reason),
		o.FieldsFound, o.FieldsFilled, o.CaptchaSeen,
		o.Started.UTC(), o.Finished.UTC(), d,
	)
	if err != nil {
		return fmt.Errorf("failed to insert outcome for row %d: %w", o.RowIndex, err)
	}
	h.log.Debug("Outcome recorded.", zap.String("run_id", o.RunID), zap.Int("row", o.RowIndex))
	return nil
}

func (h *PostgresHistory) Close() {
	h.pool.Close()
}
