// Package datastore loads target records from, and writes statuses back to,
// a Google spreadsheet or a set of local CSV files.
package datastore

import (
	"context"
	"fmt"
	"strings"

	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
)

// valuesAPI is the part of the Sheets values service the store needs.
type valuesAPI interface {
	Get(ctx context.Context, spreadsheetID, rng string) ([][]interface{}, error)
	Update(ctx context.Context, spreadsheetID, rng string, values [][]interface{}) error
}

type serviceValues struct {
	svc *sheets.Service
}

func (s serviceValues) Get(ctx context.Context, spreadsheetID, rng string) ([][]interface{}, error) {
	resp, err := s.svc.Spreadsheets.Values.Get(spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (s serviceValues) Update(ctx context.Context, spreadsheetID, rng string, values [][]interface{}) error {
	_, err := s.svc.Spreadsheets.Values.
		Update(spreadsheetID, rng, &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return err
}

// SheetsStore reads the URL column and the shared details row from a
// spreadsheet and writes one status cell per record.
type SheetsStore struct {
	api             valuesAPI
	cfg             config.SheetsConfig
	credentialsPath string
	logger          *zap.Logger
}

var _ schemas.DataStore = (*SheetsStore)(nil)

// NewSheetsStore authenticates with the service account credentials file.
func NewSheetsStore(ctx context.Context, cfg config.SheetsConfig, logger *zap.Logger) (*SheetsStore, error) {
	path, err := homedir.Expand(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("expand credentials path: %w", err)
	}
	svc, err := sheets.NewService(ctx,
		option.WithCredentialsFile(path),
		option.WithScopes(sheets.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("authenticate with Google Sheets using %s: %w", path, err)
	}
	s := newSheetsStore(serviceValues{svc: svc}, cfg, logger)
	s.credentialsPath = path
	s.logger.Info("Authenticated with Google Sheets API.")
	return s, nil
}

func newSheetsStore(api valuesAPI, cfg config.SheetsConfig, logger *zap.Logger) *SheetsStore {
	return &SheetsStore{
		api:             api,
		cfg:             cfg,
		credentialsPath: cfg.CredentialsFile,
		logger:          logger.Named("sheets"),
	}
}

// LoadRecords pairs every URL in the websites range with the first data row
// of the details range. Missing data yields an empty batch, not an error.
func (s *SheetsStore) LoadRecords(ctx context.Context) ([]schemas.TargetRecord, error) {
	ctx, cancel := s.requestContext(ctx)
	defer cancel()

	websites, err := s.api.Get(ctx, s.cfg.SpreadsheetID, s.cfg.WebsitesRange)
	if err != nil {
		return nil, withHint(fmt.Errorf("read websites range %s: %w", s.cfg.WebsitesRange, err), s.credentialsPath)
	}
	if len(websites) <= 1 {
		s.logger.Warn("No website URLs found.", zap.String("range", s.cfg.WebsitesRange))
		return nil, nil
	}

	details, err := s.api.Get(ctx, s.cfg.SpreadsheetID, s.cfg.DetailsRange)
	if err != nil {
		return nil, withHint(fmt.Errorf("read details range %s: %w", s.cfg.DetailsRange, err), s.credentialsPath)
	}
	shared, ok := firstDetailsRow(details)
	if !ok {
		s.logger.Warn("No form details found.", zap.String("range", s.cfg.DetailsRange))
		return nil, nil
	}

	records := combine(cellColumn(websites[1:]), shared)
	s.logger.Info("Loaded target records.",
		zap.Int("records", len(records)),
		zap.Int("detail_columns", len(shared)))
	return records, nil
}

// WriteStatus writes status into the status column of the record's row. Row
// 1 holds the header, so data row i lives at sheet row i+2.
func (s *SheetsStore) WriteStatus(ctx context.Context, rowIndex int, status schemas.SubmissionStatus) error {
	ctx, cancel := s.requestContext(ctx)
	defer cancel()

	rng := StatusCell(s.cfg.StatusSheet, s.cfg.StatusColumn, rowIndex)
	if err := s.api.Update(ctx, s.cfg.SpreadsheetID, rng, [][]interface{}{{string(status)}}); err != nil {
		return withHint(fmt.Errorf("update status cell %s: %w", rng, err), s.credentialsPath)
	}
	s.logger.Debug("Status written.", zap.String("cell", rng), zap.String("status", string(status)))
	return nil
}

func (s *SheetsStore) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.RequestTimeout > 0 {
		return context.WithTimeout(ctx, s.cfg.RequestTimeout)
	}
	return context.WithCancel(ctx)
}

// StatusCell returns the A1 reference of a record's status cell.
func StatusCell(sheet, column string, rowIndex int) string {
	return fmt.Sprintf("'%s'!%s%d", strings.ReplaceAll(sheet, "'", "''"), column, rowIndex+2)
}

// cellColumn returns the first cell of each row as trimmed text, keeping
// blank rows as "" so positions still map to sheet rows.
func cellColumn(rows [][]interface{}) []string {
	out := make([]string, len(rows))
	for i, row := range rows {
		if len(row) > 0 {
			out[i] = strings.TrimSpace(fmt.Sprint(row[0]))
		}
	}
	return out
}

// firstDetailsRow keys the first data row by the header row. A row with no
// non-blank header-keyed value counts as missing.
func firstDetailsRow(rows [][]interface{}) (map[string]string, bool) {
	if len(rows) < 2 {
		return nil, false
	}
	header, data := rows[0], rows[1]
	shared := make(map[string]string, len(header))
	filled := false
	for i, h := range header {
		key := strings.TrimSpace(fmt.Sprint(h))
		if key == "" || i >= len(data) {
			continue
		}
		v := fmt.Sprint(data[i])
		if strings.TrimSpace(v) != "" {
			filled = true
		}
		shared[key] = v
	}
	return shared, filled
}

// combine builds one record per non-blank URL. The row index is the URL's
// position among the data rows.
func combine(urls []string, shared map[string]string) []schemas.TargetRecord {
	records := make([]schemas.TargetRecord, 0, len(urls))
	for i, u := range urls {
		if u == "" {
			continue
		}
		records = append(records, schemas.NewTargetRecord(u, i, shared))
	}
	return records
}
