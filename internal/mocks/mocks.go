// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"
	"github.com/xkilldash9x/formpilot/api/schemas"
)

// -- Data Store Mocks --

// MockDataStore mocks schemas.DataStore.
type MockDataStore struct {
	mock.Mock
}

func (m *MockDataStore) LoadRecords(ctx context.Context) ([]schemas.TargetRecord, error) {
	args := m.Called(ctx)
	var records []schemas.TargetRecord
	if v := args.Get(0); v != nil {
		records = v.([]schemas.TargetRecord)
	}
	return records, args.Error(1)
}

func (m *MockDataStore) WriteStatus(ctx context.Context, rowIndex int, status schemas.SubmissionStatus) error {
	return m.Called(ctx, rowIndex, status).Error(0)
}

// MockStatusWriter mocks schemas.StatusWriter.
type MockStatusWriter struct {
	mock.Mock
}

func (m *MockStatusWriter) WriteStatus(ctx context.Context, rowIndex int, status schemas.SubmissionStatus) error {
	return m.Called(ctx, rowIndex, status).Error(0)
}

// MockHistoryStore mocks schemas.HistoryStore.
type MockHistoryStore struct {
	mock.Mock
}

func (m *MockHistoryStore) EnsureSchema(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockHistoryStore) RecordOutcome(ctx context.Context, outcome schemas.Outcome) error {
	return m.Called(ctx, outcome).Error(0)
}

func (m *MockHistoryStore) Close() {
	m.Called()
}

// -- Session Factory Mock --

// MockSessionFactory mocks schemas.SessionFactory.
type MockSessionFactory struct {
	mock.Mock
}

func (m *MockSessionFactory) NewSession(ctx context.Context) (schemas.Session, error) {
	args := m.Called(ctx)
	var s schemas.Session
	if v := args.Get(0); v != nil {
		s = v.(schemas.Session)
	}
	return s, args.Error(1)
}

// -- Status Recorder --

// StatusRecorder is an in-memory StatusWriter that keeps the full write
// history per row. It is safe for concurrent use.
type StatusRecorder struct {
	mu      sync.Mutex
	history map[int][]schemas.SubmissionStatus
	// FailOn makes writes of the given status return an error.
	FailOn map[schemas.SubmissionStatus]error
}

// NewStatusRecorder returns an empty recorder.
func NewStatusRecorder() *StatusRecorder {
	return &StatusRecorder{history: make(map[int][]schemas.SubmissionStatus)}
}

func (r *StatusRecorder) WriteStatus(_ context.Context, rowIndex int, status schemas.SubmissionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.FailOn[status]; err != nil {
		return err
	}
	r.history[rowIndex] = append(r.history[rowIndex], status)
	return nil
}

// History returns every status written for row, in order.
func (r *StatusRecorder) History(row int) []schemas.SubmissionStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]schemas.SubmissionStatus(nil), r.history[row]...)
}

// Last returns the most recent status written for row.
func (r *StatusRecorder) Last(row int) (schemas.SubmissionStatus, bool) {
	h := r.History(row)
	if len(h) == 0 {
		return "", false
	}
	return h[len(h)-1], true
}

// Rows returns the number of rows that received at least one write.
func (r *StatusRecorder) Rows() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.history)
}
