// File: cmd/run_test.go
package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/mocks"
	"github.com/xkilldash9x/formpilot/internal/orchestrator"
	"github.com/xkilldash9x/formpilot/internal/service"
	"github.com/xkilldash9x/formpilot/internal/store"
)

// siteFunc adapts a function to orchestrator.SiteRunner.
type siteFunc func(ctx context.Context, record schemas.TargetRecord) schemas.Outcome

func (f siteFunc) Run(ctx context.Context, record schemas.TargetRecord) schemas.Outcome {
	return f(ctx, record)
}

type stubBrowser struct {
	mu        sync.Mutex
	shutdowns int
}

func (b *stubBrowser) NewSession(context.Context) (schemas.Session, error) {
	return nil, errors.New("no browser in tests")
}

func (b *stubBrowser) Shutdown(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.shutdowns++
	return nil
}

// fakeFactory builds real data store and orchestrator components around a
// scripted site runner.
type fakeFactory struct {
	runner  orchestrator.SiteRunner
	browser *stubBrowser
	store   schemas.DataStore
	err     error
	gotCfg  config.Interface
}

func (f *fakeFactory) Create(ctx context.Context, cfg config.Interface, logger *zap.Logger) (*service.Components, error) {
	f.gotCfg = cfg
	if f.err != nil {
		return nil, f.err
	}
	ds := f.store
	if ds == nil {
		var err error
		if ds, err = service.InitializeDataStore(ctx, cfg.Source(), logger); err != nil {
			return nil, err
		}
	}
	orch, err := orchestrator.New(cfg.Orchestrator(), logger, f.runner, ds, store.Nop{})
	if err != nil {
		return nil, err
	}
	return &service.Components{
		DataStore:      ds,
		History:        store.Nop{},
		BrowserManager: f.browser,
		Orchestrator:   orch,
	}, nil
}

func useFactory(f *fakeFactory) {
	componentFactory = func() service.ComponentFactory { return f }
}

func succeed(_ context.Context, r schemas.TargetRecord) schemas.Outcome {
	now := time.Now()
	return schemas.Outcome{
		RowIndex: r.RowIndex(), URL: r.URL(),
		Status: schemas.StatusSuccess, Reason: schemas.ReasonSubmitted,
		FieldsFound: 2, FieldsFilled: 2, Started: now, Finished: now,
	}
}

func readReport(t *testing.T, path string) map[string]any {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	return doc
}

func TestRunCmd_Success(t *testing.T) {
	resetForTest(t)
	cfgPath, dir := writeCSVBatch(t, "a.example", "b.example", "c.example")
	f := &fakeFactory{runner: siteFunc(succeed), browser: &stubBrowser{}}
	useFactory(f)
	report := filepath.Join(dir, "report.json")

	_, err := execute(t, "--config", cfgPath, "run", "--report", report, "--report-format", "json")

	require.NoError(t, err)
	assert.Equal(t, 1, f.browser.shutdowns, "components are shut down after the run")

	doc := readReport(t, report)
	assert.EqualValues(t, 3, doc["total"])
	assert.EqualValues(t, 2, doc["groups"])
	assert.Equal(t, false, doc["canceled"])
	outcomes, ok := doc["outcomes"].([]any)
	require.True(t, ok)
	require.Len(t, outcomes, 3)
	assert.Equal(t, "c.example", outcomes[2].(map[string]any)["url"])
}

func TestRunCmd_FlagsOverrideConfig(t *testing.T) {
	resetForTest(t)
	cfgPath, dir := writeCSVBatch(t, "a.example")
	f := &fakeFactory{runner: siteFunc(succeed), browser: &stubBrowser{}}
	useFactory(f)

	_, err := execute(t, "--config", cfgPath, "run",
		"-j", "5", "--dry-run", "--headless=false",
		"--report", filepath.Join(dir, "report.txt"))

	require.NoError(t, err)
	require.NotNil(t, f.gotCfg)
	assert.Equal(t, 5, f.gotCfg.Orchestrator().Concurrency)
	assert.True(t, f.gotCfg.Workflow().DryRun)
	assert.False(t, f.gotCfg.Browser().Headless)
	assert.Equal(t, "text", f.gotCfg.Report().Format)
}

func TestRunCmd_EmptyBatch(t *testing.T) {
	resetForTest(t)
	cfgPath, dir := writeCSVBatch(t)
	called := false
	f := &fakeFactory{
		runner: siteFunc(func(ctx context.Context, r schemas.TargetRecord) schemas.Outcome {
			called = true
			return succeed(ctx, r)
		}),
		browser: &stubBrowser{},
	}
	useFactory(f)

	_, err := execute(t, "--config", cfgPath, "run", "--report", filepath.Join(dir, "report.txt"))

	require.NoError(t, err)
	assert.False(t, called, "no site is visited for an empty batch")
	assert.Equal(t, 1, f.browser.shutdowns)
}

func TestRunCmd_FactoryError(t *testing.T) {
	resetForTest(t)
	cfgPath, dir := writeCSVBatch(t, "a.example")
	useFactory(&fakeFactory{err: errors.New("chrome not found")})

	_, err := execute(t, "--config", cfgPath, "run", "--report", filepath.Join(dir, "report.txt"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to initialize run components")
	assert.Contains(t, err.Error(), "chrome not found")
}

func TestRunCmd_BadReportFormat(t *testing.T) {
	resetForTest(t)
	cfgPath, _ := writeCSVBatch(t, "a.example")
	f := &fakeFactory{runner: siteFunc(succeed), browser: &stubBrowser{}}
	useFactory(f)

	_, err := execute(t, "--config", cfgPath, "run", "--report-format", "xml")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown report.format")
	assert.Nil(t, f.gotCfg, "nothing is initialized for an invalid config")
}

func TestRunCmd_Canceled(t *testing.T) {
	resetForTest(t)
	cfgPath, dir := writeCSVBatch(t, "a.example", "b.example", "c.example")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The first group cancels the run, so the second group never starts.
	f := &fakeFactory{
		runner: siteFunc(func(ctx context.Context, r schemas.TargetRecord) schemas.Outcome {
			cancel()
			return succeed(ctx, r)
		}),
		browser: &stubBrowser{},
	}
	useFactory(f)
	report := filepath.Join(dir, "report.json")

	rootCmd.SetArgs([]string{"--config", cfgPath, "run", "--report", report, "--report-format", "json"})
	err := rootCmd.ExecuteContext(ctx)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "run aborted")

	doc := readReport(t, report)
	assert.Equal(t, true, doc["canceled"])
	outcomes := doc["outcomes"].([]any)
	require.Len(t, outcomes, 3)
	last := outcomes[2].(map[string]any)
	assert.Equal(t, "FAILED", last["status"])
	assert.Equal(t, "CANCELED", last["reason"])
}

func TestRunCmd_LoadRecordsError(t *testing.T) {
	resetForTest(t)
	cfgPath, dir := writeCSVBatch(t, "a.example")
	ds := new(mocks.MockDataStore)
	ds.On("LoadRecords", mock.Anything).Return(nil, errors.New("sheet not shared")).Once()
	f := &fakeFactory{runner: siteFunc(succeed), browser: &stubBrowser{}, store: ds}
	useFactory(f)

	_, err := execute(t, "--config", cfgPath, "run", "--report", filepath.Join(dir, "report.txt"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load records")
	assert.Contains(t, err.Error(), "sheet not shared")
	assert.Equal(t, 1, f.browser.shutdowns, "components are shut down on a load failure")
	ds.AssertExpectations(t)
	ds.AssertNotCalled(t, "WriteStatus", mock.Anything, mock.Anything, mock.Anything)
}
