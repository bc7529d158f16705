package datastore

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/api/googleapi"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
)

type mockValues struct {
	mock.Mock
}

func (m *mockValues) Get(ctx context.Context, id, rng string) ([][]interface{}, error) {
	args := m.Called(ctx, id, rng)
	rows, _ := args.Get(0).([][]interface{})
	return rows, args.Error(1)
}

func (m *mockValues) Update(ctx context.Context, id, rng string, values [][]interface{}) error {
	return m.Called(ctx, id, rng, values).Error(0)
}

func sheetsConfig() config.SheetsConfig {
	cfg := config.NewDefaultConfig().Source().Sheets
	cfg.SpreadsheetID = "sheet-123"
	return cfg
}

type recordView struct {
	URL    string
	Row    int
	Shared map[string]string
}

func view(records []schemas.TargetRecord) []recordView {
	out := make([]recordView, len(records))
	for i, r := range records {
		out[i] = recordView{URL: r.URL(), Row: r.RowIndex(), Shared: r.SharedFields()}
	}
	return out
}

func TestSheetsStore_LoadRecords(t *testing.T) {
	api := new(mockValues)
	cfg := sheetsConfig()
	api.On("Get", mock.Anything, "sheet-123", cfg.WebsitesRange).Return([][]interface{}{
		{"Website"},
		{" https://a.example "},
		{},
		{"b.example"},
		{""},
	}, nil)
	api.On("Get", mock.Anything, "sheet-123", cfg.DetailsRange).Return([][]interface{}{
		{"Name", "Email", "Phone", "Country", "Message"},
		{"Ada", "ada@example.com", "555", "India"},
		{"ignored", "second row"},
	}, nil)

	store := newSheetsStore(api, cfg, zaptest.NewLogger(t))
	records, err := store.LoadRecords(context.Background())
	require.NoError(t, err)

	shared := map[string]string{"Name": "Ada", "Email": "ada@example.com", "Phone": "555", "Country": "India"}
	want := []recordView{
		{URL: "https://a.example", Row: 0, Shared: shared},
		{URL: "b.example", Row: 2, Shared: shared},
	}
	if diff := cmp.Diff(want, view(records)); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
	api.AssertExpectations(t)
}

func TestSheetsStore_EmptyInputs(t *testing.T) {
	cfg := sheetsConfig()

	t.Run("header only websites", func(t *testing.T) {
		api := new(mockValues)
		api.On("Get", mock.Anything, "sheet-123", cfg.WebsitesRange).Return([][]interface{}{{"Website"}}, nil)

		records, err := newSheetsStore(api, cfg, zaptest.NewLogger(t)).LoadRecords(context.Background())
		require.NoError(t, err)
		assert.Empty(t, records)
		api.AssertNotCalled(t, "Get", mock.Anything, "sheet-123", cfg.DetailsRange)
	})

	t.Run("no details row", func(t *testing.T) {
		api := new(mockValues)
		api.On("Get", mock.Anything, "sheet-123", cfg.WebsitesRange).Return([][]interface{}{{"Website"}, {"a.example"}}, nil)
		api.On("Get", mock.Anything, "sheet-123", cfg.DetailsRange).Return([][]interface{}{{"Name"}}, nil)

		records, err := newSheetsStore(api, cfg, zaptest.NewLogger(t)).LoadRecords(context.Background())
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("blank details row", func(t *testing.T) {
		api := new(mockValues)
		api.On("Get", mock.Anything, "sheet-123", cfg.WebsitesRange).
			Return([][]interface{}{{"Website"}, {"a.example"}, {"b.example"}}, nil)
		api.On("Get", mock.Anything, "sheet-123", cfg.DetailsRange).
			Return([][]interface{}{{"Name", "Email"}, {"", "  "}}, nil)

		records, err := newSheetsStore(api, cfg, zaptest.NewLogger(t)).LoadRecords(context.Background())
		require.NoError(t, err)
		assert.Empty(t, records, "an all-blank details row is an empty batch")
	})
}

func TestFirstDetailsRow(t *testing.T) {
	shared, ok := firstDetailsRow([][]interface{}{{"Name", "Email"}, {"", "ada@example.com"}})
	assert.True(t, ok)
	assert.Equal(t, map[string]string{"Name": "", "Email": "ada@example.com"}, shared)

	_, ok = firstDetailsRow([][]interface{}{{"Name", ""}, {" ", "ignored"}})
	assert.False(t, ok, "values under blank headers do not count")
}

func TestSheetsStore_WriteStatus(t *testing.T) {
	api := new(mockValues)
	api.On("Update", mock.Anything, "sheet-123", "'Database'!B5", [][]interface{}{{"SUCCESS"}}).Return(nil).Once()

	store := newSheetsStore(api, sheetsConfig(), zaptest.NewLogger(t))
	require.NoError(t, store.WriteStatus(context.Background(), 3, schemas.StatusSuccess))
	api.AssertExpectations(t)
}

func TestStatusCell(t *testing.T) {
	assert.Equal(t, "'Database'!B2", StatusCell("Database", "B", 0))
	assert.Equal(t, "'Bob''s Sites'!C11", StatusCell("Bob's Sites", "C", 9))
}

func TestSheetsStore_AccessHints(t *testing.T) {
	dir := t.TempDir()
	creds := filepath.Join(dir, "credentials.json")
	require.NoError(t, os.WriteFile(creds, []byte(`{"type":"service_account","client_email":"bot@proj.iam.gserviceaccount.com"}`), 0o600))

	cfg := sheetsConfig()
	cfg.CredentialsFile = creds

	t.Run("forbidden names the service account", func(t *testing.T) {
		api := new(mockValues)
		api.On("Get", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, &googleapi.Error{Code: http.StatusForbidden, Message: "The caller does not have permission"})

		_, err := newSheetsStore(api, cfg, zaptest.NewLogger(t)).LoadRecords(context.Background())
		var access *AccessError
		require.ErrorAs(t, err, &access)
		assert.Equal(t, http.StatusForbidden, access.Code)
		assert.Contains(t, access.Hint, "bot@proj.iam.gserviceaccount.com")

		var gerr *googleapi.Error
		assert.ErrorAs(t, err, &gerr)
	})

	t.Run("bad request points at the range", func(t *testing.T) {
		api := new(mockValues)
		api.On("Update", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(&googleapi.Error{Code: http.StatusBadRequest, Message: "Unable to parse range"})

		err := newSheetsStore(api, cfg, zaptest.NewLogger(t)).WriteStatus(context.Background(), 0, schemas.StatusFailed)
		assert.ErrorContains(t, err, "verify the tab names")
	})

	t.Run("other errors pass through", func(t *testing.T) {
		boom := errors.New("connection reset")
		assert.Same(t, boom, withHint(boom, creds))
		notFound := &googleapi.Error{Code: http.StatusNotFound}
		assert.Equal(t, error(notFound), withHint(notFound, creds))
	})

	t.Run("unreadable credentials fall back to a generic hint", func(t *testing.T) {
		err := withHint(&googleapi.Error{Code: http.StatusForbidden}, filepath.Join(dir, "missing.json"))
		var access *AccessError
		require.ErrorAs(t, err, &access)
		assert.Equal(t, "share the spreadsheet with the service account", access.Hint)
	})
}

func TestSheetsStore_RequestTimeout(t *testing.T) {
	api := new(mockValues)
	api.On("Update", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			ctx := args.Get(0).(context.Context)
			_, ok := ctx.Deadline()
			assert.True(t, ok, "requests must carry the configured timeout")
		}).Return(nil)

	cfg := sheetsConfig()
	cfg.RequestTimeout = time.Second
	require.NoError(t, newSheetsStore(api, cfg, zaptest.NewLogger(t)).WriteStatus(context.Background(), 1, schemas.StatusFilled))
}
