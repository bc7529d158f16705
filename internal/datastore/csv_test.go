package datastore

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func newCSVFixture(t *testing.T, urls, details string) *CSVStore {
	t.Helper()
	dir := t.TempDir()
	cfg := config.CSVConfig{
		URLsPath:    writeFile(t, dir, "urls.csv", urls),
		DetailsPath: writeFile(t, dir, "details.csv", details),
		StatusPath:  filepath.Join(dir, "status.csv"),
	}
	s, err := NewCSVStore(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return s
}

func TestCSVStore_LoadRecords(t *testing.T) {
	s := newCSVFixture(t,
		"\ufeffWebsite\nhttps://a.example\n\"\"\nb.example\n",
		"Name,Email,Country\nAda,ada@example.com,India\n",
	)

	records, err := s.LoadRecords(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "https://a.example", records[0].URL())
	assert.Equal(t, 0, records[0].RowIndex())
	assert.Equal(t, "b.example", records[1].URL())
	assert.Equal(t, 2, records[1].RowIndex())

	v, ok := records[1].Field("Country")
	assert.True(t, ok)
	assert.Equal(t, "India", v)
}

func TestCSVStore_EmptyBatch(t *testing.T) {
	s := newCSVFixture(t, "Website\n", "Name\nAda\n")
	records, err := s.LoadRecords(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)

	s = newCSVFixture(t, "Website\na.example\n", "Name,Email\n")
	records, err = s.LoadRecords(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
	s = newCSVFixture(t, "Website\na.example\nb.example\n", "Name,Email\n,  \n")
	records, err = s.LoadRecords(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records, "an all-blank details row is an empty batch")
}

func TestCSVStore_MissingFile(t *testing.T) {
	s, err := NewCSVStore(config.CSVConfig{URLsPath: filepath.Join(t.TempDir(), "nope.csv")}, zaptest.NewLogger(t))
	require.NoError(t, err)
	_, err = s.LoadRecords(context.Background())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCSVStore_WriteStatus(t *testing.T) {
	s := newCSVFixture(t, "Website\nhttps://a.example\nhttps://b.example\n", "Name\nAda\n")
	_, err := s.LoadRecords(context.Background())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.WriteStatus(ctx, 0, schemas.StatusProcessing))
	require.NoError(t, s.WriteStatus(ctx, 0, schemas.StatusSuccess))
	require.NoError(t, s.WriteStatus(ctx, 1, schemas.StatusNavError))

	data, err := os.ReadFile(s.statusPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "row_index,url,status,updated_at", lines[0])
	assert.Equal(t, "0,https://a.example,SUCCESS,2026-01-02T03:04:05Z", lines[2])

	latest, err := s.LatestStatuses()
	require.NoError(t, err)
	assert.Equal(t, map[int]schemas.SubmissionStatus{0: schemas.StatusSuccess, 1: schemas.StatusNavError}, latest)
}

func TestCSVStore_ConcurrentWrites(t *testing.T) {
	s := newCSVFixture(t, "Website\na\nb\nc\nd\n", "Name\nAda\n")
	_, err := s.LoadRecords(context.Background())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(row int) {
			defer wg.Done()
			assert.NoError(t, s.WriteStatus(context.Background(), row, schemas.StatusFilled))
		}(i)
	}
	wg.Wait()

	latest, err := s.LatestStatuses()
	require.NoError(t, err)
	assert.Len(t, latest, 4)
}

func TestCSVStore_CanceledWrite(t *testing.T) {
	s := newCSVFixture(t, "Website\na\n", "Name\nAda\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.WriteStatus(ctx, 0, schemas.StatusFailed), context.Canceled)

	latest, err := s.LatestStatuses()
	require.NoError(t, err)
	assert.Empty(t, latest)
}
