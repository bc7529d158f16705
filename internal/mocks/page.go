// File: internal/mocks/page.go
package mocks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

// ErrFakeNotFound is returned by fake operations that target missing state.
var ErrFakeNotFound = errors.New("fake: not found")

// -- Fake Element --

// FakeElement is a scriptable in-memory DOM node. Exported fields configure
// it; the rest is interaction state inspected by tests.
type FakeElement struct {
	mu sync.Mutex

	MetaInfo schemas.FieldMeta
	Content  string
	Attrs    map[string]string
	Hidden   bool
	Size     schemas.BoundingBox
	Choices  []schemas.SelectOption
	// Frame is the document entered when this element is an iframe.
	Frame *FakePage
	// Errors makes the named method fail, e.g. "Click" or "Meta".
	Errors map[string]error
	// OnClick runs after a successful click.
	OnClick func()
	// VisibleAfter delays the element becoming visible.
	VisibleAfter time.Duration

	created  time.Time
	value    string
	events   []string
	clicks   int
	scrolled bool
	selected string
}

// NewFakeElement returns a visible element with a 100x20 box.
func NewFakeElement(meta schemas.FieldMeta) *FakeElement {
	return &FakeElement{
		MetaInfo: meta,
		Size:     schemas.BoundingBox{Width: 100, Height: 20},
		created:  time.Now(),
	}
}

func (e *FakeElement) fail(method string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Errors[method]
}

func (e *FakeElement) Meta(ctx context.Context) (schemas.FieldMeta, error) {
	if err := e.fail("Meta"); err != nil {
		return schemas.FieldMeta{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.MetaInfo, nil
}

func (e *FakeElement) Text(ctx context.Context) (string, error) {
	if err := e.fail("Text"); err != nil {
		return "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Content, nil
}

func (e *FakeElement) Attribute(ctx context.Context, name string) (string, error) {
	if err := e.fail("Attribute"); err != nil {
		return "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Attrs[name], nil
}

func (e *FakeElement) Visible(ctx context.Context) (bool, error) {
	if err := e.fail("Visible"); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.VisibleAfter > 0 && time.Since(e.created) < e.VisibleAfter {
		return false, nil
	}
	return !e.Hidden, nil
}

// SetHidden toggles visibility while tests run.
func (e *FakeElement) SetHidden(hidden bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Hidden = hidden
}

func (e *FakeElement) Box(ctx context.Context) (schemas.BoundingBox, error) {
	if err := e.fail("Box"); err != nil {
		return schemas.BoundingBox{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.Size, nil
}

func (e *FakeElement) ScrollIntoView(ctx context.Context) error {
	if err := e.fail("ScrollIntoView"); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scrolled = true
	return nil
}

func (e *FakeElement) Click(ctx context.Context) error {
	if err := e.fail("Click"); err != nil {
		return err
	}
	e.mu.Lock()
	e.clicks++
	hook := e.OnClick
	e.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (e *FakeElement) Clear(ctx context.Context) error {
	if err := e.fail("Clear"); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.value = ""
	return nil
}

func (e *FakeElement) SelectAll(ctx context.Context) error {
	return e.fail("SelectAll")
}

func (e *FakeElement) TypeKey(ctx context.Context, key rune) error {
	if err := e.fail("TypeKey"); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.value += string(key)
	return nil
}

func (e *FakeElement) Dispatch(ctx context.Context, events ...string) error {
	if err := e.fail("Dispatch"); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, events...)
	return nil
}

func (e *FakeElement) Options(ctx context.Context) ([]schemas.SelectOption, error) {
	if err := e.fail("Options"); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]schemas.SelectOption(nil), e.Choices...), nil
}

func (e *FakeElement) SelectValue(ctx context.Context, value string) error {
	if err := e.fail("SelectValue"); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, o := range e.Choices {
		if o.Value == value {
			e.value = value
			e.selected = o.Text
			return nil
		}
	}
	return fmt.Errorf("%w: option value %q", ErrFakeNotFound, value)
}

func (e *FakeElement) Value(ctx context.Context) (string, error) {
	if err := e.fail("Value"); err != nil {
		return "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value, nil
}

// SetValue presets the control's value.
func (e *FakeElement) SetValue(v string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.value = v
}

// Events returns the synthetic events dispatched so far.
func (e *FakeElement) Events() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.events...)
}

// Clicks returns how many successful clicks the element received.
func (e *FakeElement) Clicks() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clicks
}

// Scrolled reports whether ScrollIntoView succeeded at least once.
func (e *FakeElement) Scrolled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scrolled
}

// SelectedText returns the label of the selected option.
func (e *FakeElement) SelectedText() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selected
}

// -- Fake Page --

// FakePage is an in-memory document keyed by selector string.
type FakePage struct {
	mu sync.Mutex

	Location string
	Document string
	// NavigateFunc overrides navigation when set.
	NavigateFunc func(ctx context.Context, url string) error
	// QueryErrors makes queries for a selector fail.
	QueryErrors map[string]error
	FrameError  error

	css         map[string][]*FakeElement
	xpath       map[string][]*FakeElement
	navigations []string
	waits       int
}

// NewFakePage returns an empty document at about:blank.
func NewFakePage() *FakePage {
	return &FakePage{
		Location: "about:blank",
		css:      make(map[string][]*FakeElement),
		xpath:    make(map[string][]*FakeElement),
	}
}

// Add registers elements under a CSS selector.
func (p *FakePage) Add(selector string, els ...*FakeElement) *FakePage {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.css[selector] = append(p.css[selector], els...)
	return p
}

// AddXPath registers elements under an XPath expression.
func (p *FakePage) AddXPath(expr string, els ...*FakeElement) *FakePage {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.xpath[expr] = append(p.xpath[expr], els...)
	return p
}

// Remove drops every element registered under selector.
func (p *FakePage) Remove(selector string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.css, selector)
	delete(p.xpath, selector)
}

func (p *FakePage) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	fn := p.NavigateFunc
	p.navigations = append(p.navigations, url)
	p.mu.Unlock()
	if fn != nil {
		if err := fn(ctx, url); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	p.Location = url
	p.mu.Unlock()
	return nil
}

func (p *FakePage) WaitReady(ctx context.Context) error {
	p.mu.Lock()
	p.waits++
	p.mu.Unlock()
	return ctx.Err()
}

func (p *FakePage) URL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Location, nil
}

func (p *FakePage) HTML(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Document, nil
}

func (p *FakePage) QueryAll(ctx context.Context, selector string) ([]schemas.Element, error) {
	return p.query(ctx, p.css, selector)
}

func (p *FakePage) QueryXPath(ctx context.Context, expr string) ([]schemas.Element, error) {
	return p.query(ctx, p.xpath, expr)
}

func (p *FakePage) query(ctx context.Context, index map[string][]*FakeElement, key string) ([]schemas.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.QueryErrors[key]; err != nil {
		return nil, err
	}
	var out []schemas.Element
	// Comma separated selector groups match the union of their parts.
	for _, part := range strings.Split(key, ", ") {
		for _, el := range index[part] {
			out = append(out, el)
		}
	}
	if len(out) == 0 {
		for _, el := range index[key] {
			out = append(out, el)
		}
	}
	return out, nil
}

func (p *FakePage) Frame(ctx context.Context, iframe schemas.Element) (schemas.Page, error) {
	p.mu.Lock()
	err := p.FrameError
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}
	fe, ok := iframe.(*FakeElement)
	if !ok || fe.Frame == nil {
		return nil, fmt.Errorf("%w: frame document", ErrFakeNotFound)
	}
	return fe.Frame, nil
}

// Navigations returns every URL passed to Navigate.
func (p *FakePage) Navigations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.navigations...)
}

// Waits returns how many times WaitReady was called.
func (p *FakePage) Waits() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waits
}

// -- Fake Session --

// FakeSession is a FakePage with a lifecycle.
type FakeSession struct {
	*FakePage
	id       string
	closed   atomic.Bool
	CloseErr error
}

// NewFakeSession wraps page in a session.
func NewFakeSession(id string, page *FakePage) *FakeSession {
	return &FakeSession{FakePage: page, id: id}
}

func (s *FakeSession) ID() string { return s.id }

func (s *FakeSession) Close(ctx context.Context) error {
	s.closed.Store(true)
	return s.CloseErr
}

// Closed reports whether Close was called.
func (s *FakeSession) Closed() bool { return s.closed.Load() }

// FakeSessionFactory builds a fresh session per request and tracks how many
// are open at once.
type FakeSessionFactory struct {
	// Build returns the page for the n-th session (0-based).
	Build func(n int) *FakePage
	Err   error

	mu       sync.Mutex
	sessions []*FakeSession
	open     int
	peak     int
}

func (f *FakeSessionFactory) NewSession(ctx context.Context) (schemas.Session, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.sessions)
	page := NewFakePage()
	if f.Build != nil {
		page = f.Build(n)
	}
	s := &trackedSession{FakeSession: NewFakeSession(fmt.Sprintf("fake-%d", n), page), factory: f}
	f.sessions = append(f.sessions, s.FakeSession)
	f.open++
	if f.open > f.peak {
		f.peak = f.open
	}
	return s, nil
}

// Sessions returns every session handed out so far.
func (f *FakeSessionFactory) Sessions() []*FakeSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakeSession(nil), f.sessions...)
}

// Open returns the number of sessions not yet closed.
func (f *FakeSessionFactory) Open() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

// Peak returns the highest number of sessions open at once.
func (f *FakeSessionFactory) Peak() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peak
}

type trackedSession struct {
	*FakeSession
	factory *FakeSessionFactory
	once    sync.Once
}

func (s *trackedSession) Close(ctx context.Context) error {
	s.once.Do(func() {
		s.factory.mu.Lock()
		s.factory.open--
		s.factory.mu.Unlock()
	})
	return s.FakeSession.Close(ctx)
}
