// internal/orchestrator/orchestrator_test.go
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/mocks"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// -- Mock Implementations for Testing --

// fakeRunner tracks concurrency and the order in which records start and end.
type fakeRunner struct {
	mu       sync.Mutex
	active   int
	peak     int
	started  map[int]time.Time
	finished map[int]time.Time
	delay    time.Duration
	// hook runs inside Run before the outcome is returned.
	hook func(ctx context.Context, record schemas.TargetRecord)
}

func newFakeRunner(delay time.Duration) *fakeRunner {
	return &fakeRunner{
		started:  make(map[int]time.Time),
		finished: make(map[int]time.Time),
		delay:    delay,
	}
}

func (r *fakeRunner) Run(ctx context.Context, record schemas.TargetRecord) schemas.Outcome {
	r.mu.Lock()
	r.active++
	r.peak = max(r.peak, r.active)
	r.started[record.RowIndex()] = time.Now()
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.active--
		r.finished[record.RowIndex()] = time.Now()
		r.mu.Unlock()
	}()

	if r.hook != nil {
		r.hook(ctx, record)
	}
	time.Sleep(r.delay)
	return schemas.Outcome{RowIndex: record.RowIndex(), URL: record.URL(), Status: schemas.StatusSuccess}
}

func (r *fakeRunner) ran(row int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.started[row]
	return ok
}

// -- Test Fixture Setup --

type orchestratorTestFixture struct {
	Logger *zap.Logger
	Config config.OrchestratorConfig
	Runner *fakeRunner
	Status *mocks.StatusRecorder
}

func setupTest(t *testing.T) *orchestratorTestFixture {
	t.Helper()
	return &orchestratorTestFixture{
		Logger: zaptest.NewLogger(t),
		Config: config.OrchestratorConfig{Concurrency: 3, GroupPause: 5 * time.Millisecond},
		Runner: newFakeRunner(10 * time.Millisecond),
		Status: mocks.NewStatusRecorder(),
	}
}

func makeRecords(n int) []schemas.TargetRecord {
	records := make([]schemas.TargetRecord, n)
	for i := range records {
		records[i] = schemas.NewTargetRecord(fmt.Sprintf("https://site-%d.example", i), i, nil)
	}
	return records
}

// -- Test Cases --

func TestNewOrchestrator(t *testing.T) {
	fixture := setupTest(t)

	t.Run("should create orchestrator with valid dependencies", func(t *testing.T) {
		orch, err := New(fixture.Config, fixture.Logger, fixture.Runner, fixture.Status, nil)
		require.NoError(t, err)
		assert.NotNil(t, orch)
	})

	t.Run("should return error with nil dependencies", func(t *testing.T) {
		_, err := New(fixture.Config, nil, fixture.Runner, fixture.Status, nil)
		assert.Error(t, err, "Should fail with nil logger")

		_, err = New(fixture.Config, fixture.Logger, nil, fixture.Status, nil)
		assert.Error(t, err, "Should fail with nil runner")

		_, err = New(fixture.Config, fixture.Logger, fixture.Runner, nil, nil)
		assert.Error(t, err, "Should fail with nil status writer")
	})

	t.Run("should reject non-positive concurrency", func(t *testing.T) {
		_, err := New(config.OrchestratorConfig{}, fixture.Logger, fixture.Runner, fixture.Status, nil)
		assert.Error(t, err)
	})
}

func TestGroupSizes(t *testing.T) {
	tests := []struct {
		n, size int
		want    []int
	}{
		{7, 3, []int{3, 3, 1}},
		{6, 3, []int{3, 3}},
		{2, 5, []int{2}},
		{0, 3, nil},
		{4, 0, nil},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d/%d", tt.n, tt.size), func(t *testing.T) {
			if diff := cmp.Diff(tt.want, GroupSizes(tt.n, tt.size)); diff != "" {
				t.Errorf("GroupSizes mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestOrchestrator_Run(t *testing.T) {
	t.Run("should run groups behind a barrier", func(t *testing.T) {
		fixture := setupTest(t)
		orch, err := New(fixture.Config, fixture.Logger, fixture.Runner, fixture.Status, nil)
		require.NoError(t, err)

		res := orch.Run(context.Background(), makeRecords(7))

		require.Len(t, res.Outcomes, 7)
		for i, out := range res.Outcomes {
			assert.Equal(t, i, out.RowIndex, "outcomes keep input order")
			assert.Equal(t, schemas.StatusSuccess, out.Status)
			assert.Equal(t, res.Summary.RunID, out.RunID)
		}
		assert.LessOrEqual(t, fixture.Runner.peak, 3)
		assert.Equal(t, 3, res.Summary.Groups)
		assert.Equal(t, 7, res.Summary.Counts[schemas.StatusSuccess])
		assert.False(t, res.Summary.Canceled)
		assert.NotEmpty(t, res.Summary.RunID)

		// Every record of group n must finish before any record of group n+1 starts.
		groups := [][]int{{0, 1, 2}, {3, 4, 5}, {6}}
		for g := 1; g < len(groups); g++ {
			var lastEnd time.Time
			for _, row := range groups[g-1] {
				if end := fixture.Runner.finished[row]; end.After(lastEnd) {
					lastEnd = end
				}
			}
			for _, row := range groups[g] {
				assert.False(t, fixture.Runner.started[row].Before(lastEnd),
					"row %d started before group %d finished", row, g)
			}
		}
	})

	t.Run("should handle an empty batch", func(t *testing.T) {
		fixture := setupTest(t)
		orch, _ := New(fixture.Config, fixture.Logger, fixture.Runner, fixture.Status, nil)

		res := orch.Run(context.Background(), nil)

		assert.Empty(t, res.Outcomes)
		assert.Zero(t, res.Summary.Groups)
	})

	t.Run("should convert a runner panic into a failed outcome", func(t *testing.T) {
		fixture := setupTest(t)
		fixture.Runner.hook = func(_ context.Context, record schemas.TargetRecord) {
			if record.RowIndex() == 1 {
				panic("boom")
			}
		}
		orch, _ := New(fixture.Config, fixture.Logger, fixture.Runner, fixture.Status, nil)

		res := orch.Run(context.Background(), makeRecords(3))

		assert.Equal(t, schemas.StatusFailed, res.Outcomes[1].Status)
		assert.Equal(t, schemas.ReasonPanic, res.Outcomes[1].Reason)
		assert.Equal(t, schemas.StatusSuccess, res.Outcomes[0].Status)
		assert.Equal(t, schemas.StatusSuccess, res.Outcomes[2].Status)
		last, ok := fixture.Status.Last(1)
		require.True(t, ok)
		assert.Equal(t, schemas.StatusFailed, last)
	})

	t.Run("should cancel records that never started", func(t *testing.T) {
		fixture := setupTest(t)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		fixture.Runner.hook = func(_ context.Context, record schemas.TargetRecord) {
			if record.RowIndex() == 0 {
				cancel()
			}
		}
		orch, _ := New(fixture.Config, fixture.Logger, fixture.Runner, fixture.Status, nil)

		res := orch.Run(ctx, makeRecords(7))

		assert.True(t, res.Summary.Canceled)
		for row := 3; row < 7; row++ {
			assert.False(t, fixture.Runner.ran(row), "row %d should not have started", row)
			assert.Equal(t, schemas.StatusFailed, res.Outcomes[row].Status)
			assert.Equal(t, schemas.ReasonCanceled, res.Outcomes[row].Reason)
			assert.Equal(t, []schemas.SubmissionStatus{schemas.StatusFailed}, fixture.Status.History(row))
		}
		for _, out := range res.Outcomes {
			assert.True(t, out.Status.IsTerminal(), "row %d has no terminal status", out.RowIndex)
		}
	})

	t.Run("should record history without affecting outcomes", func(t *testing.T) {
		fixture := setupTest(t)
		history := new(mocks.MockHistoryStore)
		history.On("RecordOutcome", mock.Anything, mock.MatchedBy(func(o schemas.Outcome) bool {
			return o.RunID != "" && o.Status == schemas.StatusSuccess
		})).Return(errors.New("disk full")).Times(4)
		orch, _ := New(fixture.Config, fixture.Logger, fixture.Runner, fixture.Status, history)

		res := orch.Run(context.Background(), makeRecords(4))

		history.AssertExpectations(t)
		assert.Equal(t, 4, res.Summary.Counts[schemas.StatusSuccess])
	})
}
