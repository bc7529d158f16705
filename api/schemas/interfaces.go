package schemas

import (
	"context"
)

// -- Data Store Interfaces --

// RecordSource produces the ordered batch of target records. An empty result
// with a nil error means there is nothing to process.
type RecordSource interface {
	LoadRecords(ctx context.Context) ([]TargetRecord, error)
}

// StatusWriter records a status for a row. Each write is addressed by the
// record's row index, so concurrent writers never touch the same cell.
type StatusWriter interface {
	WriteStatus(ctx context.Context, rowIndex int, status SubmissionStatus) error
}

// DataStore is the combined read/write view of the spreadsheet collaborator.
type DataStore interface {
	RecordSource
	StatusWriter
}

// HistoryStore persists per-run outcomes for later auditing.
type HistoryStore interface {
	EnsureSchema(ctx context.Context) error
	RecordOutcome(ctx context.Context, outcome Outcome) error
	Close()
}

// -- Page Engine Interfaces --

// SessionFactory hands out isolated browser sessions. Every session returned
// must be closed by its owner.
type SessionFactory interface {
	NewSession(ctx context.Context) (Session, error)
}

// Session is an isolated browser context with a single page.
type Session interface {
	Page
	ID() string
	Close(ctx context.Context) error
}

// Page exposes the document level primitives the automation core needs. All
// calls are fallible and honor the context deadline.
type Page interface {
	// Navigate loads url and waits until the DOM content is ready.
	Navigate(ctx context.Context, url string) error
	// WaitReady blocks until the current document has finished its DOM load.
	WaitReady(ctx context.Context) error
	// URL returns the current document location.
	URL(ctx context.Context) (string, error)
	// HTML returns the serialized document.
	HTML(ctx context.Context) (string, error)
	// QueryAll returns every element matching a CSS selector, possibly none.
	QueryAll(ctx context.Context, selector string) ([]Element, error)
	// QueryXPath returns every element matching an XPath expression.
	QueryXPath(ctx context.Context, expr string) ([]Element, error)
	// Frame enters the document embedded in an iframe element.
	Frame(ctx context.Context, iframe Element) (Page, error)
}

// Element is a handle to a single DOM node.
type Element interface {
	Meta(ctx context.Context) (FieldMeta, error)
	Text(ctx context.Context) (string, error)
	Attribute(ctx context.Context, name string) (string, error)
	Visible(ctx context.Context) (bool, error)
	Box(ctx context.Context) (BoundingBox, error)
	ScrollIntoView(ctx context.Context) error
	Click(ctx context.Context) error
	// Clear assigns an empty value to the control.
	Clear(ctx context.Context) error
	SelectAll(ctx context.Context) error
	// TypeKey inserts one character as a keyboard event sequence.
	TypeKey(ctx context.Context, key rune) error
	Dispatch(ctx context.Context, events ...string) error
	Options(ctx context.Context) ([]SelectOption, error)
	SelectValue(ctx context.Context, value string) error
	Value(ctx context.Context) (string, error)
}
