package datastore

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
)

var statusHeader = []string{"row_index", "url", "status", "updated_at"}

// CSVStore is the offline data store: URLs and details come from CSV files
// laid out like the spreadsheet tabs, and statuses are appended to a log.
type CSVStore struct {
	urlsPath    string
	detailsPath string
	statusPath  string
	logger      *zap.Logger
	now         func() time.Time

	mu   sync.Mutex
	urls map[int]string
}

var _ schemas.DataStore = (*CSVStore)(nil)

// NewCSVStore resolves the configured paths; files are opened lazily.
func NewCSVStore(cfg config.CSVConfig, logger *zap.Logger) (*CSVStore, error) {
	paths := make([]string, 3)
	for i, p := range []string{cfg.URLsPath, cfg.DetailsPath, cfg.StatusPath} {
		expanded, err := homedir.Expand(p)
		if err != nil {
			return nil, fmt.Errorf("expand path %s: %w", p, err)
		}
		paths[i] = expanded
	}
	return &CSVStore{
		urlsPath:    paths[0],
		detailsPath: paths[1],
		statusPath:  paths[2],
		logger:      logger.Named("csv_store"),
		now:         time.Now,
		urls:        make(map[int]string),
	}, nil
}

func (s *CSVStore) LoadRecords(ctx context.Context) ([]schemas.TargetRecord, error) {
	urlRows, err := readCSV(s.urlsPath)
	if err != nil {
		return nil, fmt.Errorf("read urls: %w", err)
	}
	if len(urlRows) <= 1 {
		s.logger.Warn("No website URLs found.", zap.String("path", s.urlsPath))
		return nil, nil
	}
	detailRows, err := readCSV(s.detailsPath)
	if err != nil {
		return nil, fmt.Errorf("read details: %w", err)
	}
	shared, ok := firstDetailsRow(toCells(detailRows))
	if !ok {
		s.logger.Warn("No form details found.", zap.String("path", s.detailsPath))
		return nil, nil
	}

	records := combine(cellColumn(toCells(urlRows[1:])), shared)
	s.mu.Lock()
	for _, r := range records {
		s.urls[r.RowIndex()] = r.URL()
	}
	s.mu.Unlock()

	s.logger.Info("Loaded target records.", zap.Int("records", len(records)), zap.String("path", s.urlsPath))
	return records, ctx.Err()
}

// WriteStatus appends one line to the status log, writing the header first
// when the file is new.
func (s *CSVStore) WriteStatus(ctx context.Context, rowIndex int, status schemas.SubmissionStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.statusPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open status log: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat status log: %w", err)
	}
	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(statusHeader); err != nil {
			return fmt.Errorf("write status header: %w", err)
		}
	}
	row := []string{
		strconv.Itoa(rowIndex),
		s.urls[rowIndex],
		string(status),
		s.now().UTC().Format(time.RFC3339),
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("write status row: %w", err)
	}
	w.Flush()
	return w.Error()
}

// LatestStatuses replays the status log and returns the last status per row.
func (s *CSVStore) LatestStatuses() (map[int]schemas.SubmissionStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := readCSV(s.statusPath)
	if errors.Is(err, fs.ErrNotExist) {
		return map[int]schemas.SubmissionStatus{}, nil
	}
	if err != nil {
		return nil, err
	}
	out := make(map[int]schemas.SubmissionStatus)
	for i, row := range rows {
		if i == 0 || len(row) < 3 {
			continue
		}
		idx, err := strconv.Atoi(row[0])
		if err != nil {
			return nil, fmt.Errorf("status log line %d: %w", i+1, err)
		}
		out[idx] = schemas.SubmissionStatus(row[2])
	}
	return out, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	var rows [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		rows = append(rows, rec)
	}
}

func toCells(rows [][]string) [][]interface{} {
	out := make([][]interface{}, len(rows))
	for i, row := range rows {
		cells := make([]interface{}, len(row))
		for j, c := range row {
			cells[j] = strings.TrimPrefix(c, "\ufeff")
		}
		out[i] = cells
	}
	return out
}
