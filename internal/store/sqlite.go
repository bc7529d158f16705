package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

const (
	sqliteCreateOutcomes = `
        CREATE TABLE IF NOT EXISTS submission_outcomes (
            run_id        TEXT    NOT NULL,
            row_index     INTEGER NOT NULL,
            url           TEXT    NOT NULL,
            status        TEXT    NOT NULL,
            reason        TEXT    NOT NULL DEFAULT '',
            fields_found  INTEGER NOT NULL DEFAULT 0,
            fields_filled INTEGER NOT NULL DEFAULT 0,
            captcha       INTEGER NOT NULL DEFAULT 0,
            started_at    TEXT    NOT NULL,
            finished_at   TEXT    NOT NULL,
            detail        TEXT    NOT NULL DEFAULT '{}',
            PRIMARY KEY (run_id, row_index)
        );
    `
	sqliteInsertOutcome = `
        INSERT INTO submission_outcomes
            (run_id, row_index, url, status, reason, fields_found, fields_filled, captcha, started_at, finished_at, detail)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (run_id, row_index) DO UPDATE SET
            status = excluded.status,
            reason = excluded.reason,
            fields_found = excluded.fields_found,
            fields_filled = excluded.fields_filled,
            captcha = excluded.captcha,
            finished_at = excluded.finished_at,
            detail = excluded.detail;
    `
	sqliteSelectRun = `
        SELECT row_index, url, status, reason, fields_found, fields_filled, captcha, started_at, finished_at
        FROM submission_outcomes
        WHERE run_id = ?
        ORDER BY row_index ASC;
    `
)

// SQLiteHistory stores outcomes in a local SQLite file.
type SQLiteHistory struct {
	db  *sql.DB
	log *zap.Logger
}

var _ schemas.HistoryStore = (*SQLiteHistory)(nil)

// OpenSQLite opens (creating if needed) the database at dsn, e.g.
// "file:history.db" or ":memory:".
func OpenSQLite(ctx context.Context, dsn string, logger *zap.Logger) (*SQLiteHistory, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps :memory:
	// databases alive across calls.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	return &SQLiteHistory{db: db, log: logger.Named("history.sqlite")}, nil
}

func (h *SQLiteHistory) EnsureSchema(ctx context.Context) error {
	if _, err := h.db.ExecContext(ctx, sqliteCreateOutcomes); err != nil {
		return fmt.Errorf("failed to create submission_outcomes: %w", err)
	}
	return nil
}

func (h *SQLiteHistory) RecordOutcome(ctx context.Context, o schemas.Outcome) error {
	d, err := detail(o)
	if err != nil {
		return err
	}
	_, err = h.db.ExecContext(ctx, sqliteInsertOutcome,
		o.RunID, o.RowIndex, o.URL, string(o.Status), string(o.Reason),
		o.FieldsFound, o.FieldsFilled, o.CaptchaSeen,
		o.Started.UTC().Format(time.RFC3339Nano), o.Finished.UTC().Format(time.RFC3339Nano), d,
	)
	if err != nil {
		return fmt.Errorf("failed to insert outcome for row %d: %w", o.RowIndex, err)
	}
	return nil
}

// RunOutcomes returns the stored outcomes of one run ordered by row.
func (h *SQLiteHistory) RunOutcomes(ctx context.Context, runID string) ([]schemas.Outcome, error) {
	rows, err := h.db.QueryContext(ctx, sqliteSelectRun, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	var out []schemas.Outcome
	for rows.Next() {
		var (
			o                 schemas.Outcome
			status, reason    string
			started, finished string
		)
		if err := rows.Scan(&o.RowIndex, &o.URL, &status, &reason, &o.FieldsFound, &o.FieldsFilled,
			&o.CaptchaSeen, &started, &finished); err != nil {
			return nil, fmt.Errorf("failed to scan outcome row: %w", err)
		}
		o.RunID = runID
		o.Status = schemas.SubmissionStatus(status)
		o.Reason = schemas.ReasonCode(reason)
		o.Started, _ = time.Parse(time.RFC3339Nano, started)
		o.Finished, _ = time.Parse(time.RFC3339Nano, finished)
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return out, nil
}

func (h *SQLiteHistory) Close() {
	if err := h.db.Close(); err != nil {
		h.log.Warn("Failed to close sqlite database.", zap.Error(err))
	}
}
