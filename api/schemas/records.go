package schemas

import (
	"maps"
	"time"
)

// -- Target Records --

// TargetRecord is one site to process: its URL, the shared submission values,
// and the stable row identity used for status reporting. It is immutable once
// constructed; use NewTargetRecord to build one.
type TargetRecord struct {
	url      string
	rowIndex int
	shared   map[string]string
}

// NewTargetRecord copies the shared field map so later mutation by the caller
// cannot leak into the record.
func NewTargetRecord(url string, rowIndex int, shared map[string]string) TargetRecord {
	return TargetRecord{
		url:      url,
		rowIndex: rowIndex,
		shared:   maps.Clone(shared),
	}
}

// URL returns the target site address as it was read from the source.
func (r TargetRecord) URL() string { return r.url }

// RowIndex is the 0-based data row (header excluded).
func (r TargetRecord) RowIndex() int { return r.rowIndex }

// Field returns a shared value by its exact column name.
func (r TargetRecord) Field(key string) (string, bool) {
	v, ok := r.shared[key]
	return v, ok
}

// SharedFields returns a copy of the shared submission values.
func (r TargetRecord) SharedFields() map[string]string {
	return maps.Clone(r.shared)
}

// -- Submission Status --

// SubmissionStatus is the outcome code written back to the data store.
type SubmissionStatus string

const (
	StatusProcessing     SubmissionStatus = "PROCESSING"
	StatusSuccess        SubmissionStatus = "SUCCESS"
	StatusFilled         SubmissionStatus = "FILLED"
	StatusNoFields       SubmissionStatus = "NO_FIELDS"
	StatusNavError       SubmissionStatus = "NAV_ERROR"
	StatusCaptchaBlocked SubmissionStatus = "CAPTCHA_BLOCKED"
	StatusFailed         SubmissionStatus = "FAILED"
)

// TerminalStatuses lists every status a record may finish in.
var TerminalStatuses = []SubmissionStatus{
	StatusSuccess,
	StatusFilled,
	StatusNoFields,
	StatusNavError,
	StatusCaptchaBlocked,
	StatusFailed,
}

// IsTerminal reports whether s ends a record's lifecycle.
func (s SubmissionStatus) IsTerminal() bool {
	switch s {
	case StatusSuccess, StatusFilled, StatusNoFields, StatusNavError, StatusCaptchaBlocked, StatusFailed:
		return true
	default:
		return false
	}
}

// ReasonCode is a machine-readable explanation attached to operation results.
// Using a dedicated type keeps free-form strings out of result values.
type ReasonCode string

const (
	ReasonNone              ReasonCode = ""
	ReasonNavTimeout        ReasonCode = "NAV_TIMEOUT"
	ReasonNavFailed         ReasonCode = "NAV_FAILED"
	ReasonSessionFailed     ReasonCode = "SESSION_FAILED"
	ReasonNotVisible        ReasonCode = "NOT_VISIBLE"
	ReasonInteractionFailed ReasonCode = "INTERACTION_FAILED"
	ReasonNoOptions         ReasonCode = "NO_OPTIONS"
	ReasonNoMatchingOption  ReasonCode = "NO_MATCHING_OPTION"
	ReasonCaptchaTimeout    ReasonCode = "CAPTCHA_TIMEOUT"
	ReasonNoControls        ReasonCode = "NO_CONTROLS"
	ReasonNoneFilled        ReasonCode = "NONE_FILLED"
	ReasonNoSubmit          ReasonCode = "NO_SUBMIT"
	ReasonSubmitFailed      ReasonCode = "SUBMIT_FAILED"
	ReasonSubmitSkipped     ReasonCode = "SUBMIT_SKIPPED"
	ReasonSubmitted         ReasonCode = "SUBMITTED"
	ReasonPanic             ReasonCode = "PANIC"
	ReasonCanceled          ReasonCode = "CANCELED"
	ReasonUnexpected        ReasonCode = "UNEXPECTED"
)

// Outcome captures everything a single site workflow produced.
type Outcome struct {
	RunID        string           `json:"run_id"`
	RowIndex     int              `json:"row_index"`
	URL          string           `json:"url"`
	Status       SubmissionStatus `json:"status"`
	Reason       ReasonCode       `json:"reason,omitempty"`
	FieldsFound  int              `json:"fields_found"`
	FieldsFilled int              `json:"fields_filled"`
	CaptchaSeen  bool             `json:"captcha_seen"`
	ContactPage  bool             `json:"contact_page"`
	Started      time.Time        `json:"started_at"`
	Finished     time.Time        `json:"finished_at"`
	Error        string           `json:"error,omitempty"`
}

// Duration is the wall-clock time the workflow took.
func (o Outcome) Duration() time.Duration {
	if o.Finished.IsZero() || o.Started.IsZero() {
		return 0
	}
	return o.Finished.Sub(o.Started)
}
