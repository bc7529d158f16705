package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

// element is a DOM node bound to the page (or frame) it was found in.
type element struct {
	page *page
	node *cdp.Node
}

var _ schemas.Element = (*element)(nil)

type metaResult struct {
	Name        string `json:"name"`
	ID          string `json:"id"`
	Placeholder string `json:"placeholder"`
	Label       string `json:"label"`
	Type        string `json:"type"`
}

type optionResult struct {
	Text  string `json:"text"`
	Value string `json:"value"`
	Index int    `json:"index"`
}

func (e *element) call(ctx context.Context, fn string, res interface{}, args ...interface{}) error {
	return e.page.run(ctx, callOnNode(e.node, fn, res, args...))
}

// callOnNode resolves node to a remote object and runs fn with it bound to
// this. The object is released afterwards.
func callOnNode(node *cdp.Node, fn string, res interface{}, args ...interface{}) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		resolve := dom.ResolveNode()
		if node.NodeID != 0 {
			resolve = resolve.WithNodeID(node.NodeID)
		} else {
			resolve = resolve.WithBackendNodeID(node.BackendNodeID)
		}
		obj, err := resolve.Do(ctx)
		if err != nil {
			return fmt.Errorf("resolve node %d: %w", node.NodeID, err)
		}
		defer func() { _ = runtime.ReleaseObject(obj.ObjectID).Do(ctx) }()

		return chromedp.CallFunctionOn(fn, res,
			func(p *runtime.CallFunctionOnParams) *runtime.CallFunctionOnParams {
				return p.WithObjectID(obj.ObjectID)
			},
			args...,
		).Do(ctx)
	})
}

// callOK runs a function that reports success as a boolean.
func (e *element) callOK(ctx context.Context, op, fn string, args ...interface{}) error {
	var ok bool
	if err := e.call(ctx, fn, &ok, args...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return fmt.Errorf("%s: element %s rejected the operation", op, e.describe())
	}
	return nil
}

func (e *element) describe() string {
	return fmt.Sprintf("<%s node=%d>", e.node.LocalName, e.node.NodeID)
}

func (e *element) Meta(ctx context.Context) (schemas.FieldMeta, error) {
	var m metaResult
	if err := e.call(ctx, jsMeta, &m); err != nil {
		return schemas.FieldMeta{}, fmt.Errorf("read field metadata: %w", err)
	}
	return schemas.FieldMeta{Name: m.Name, ID: m.ID, Placeholder: m.Placeholder, Label: m.Label, Type: m.Type}, nil
}

func (e *element) Text(ctx context.Context) (string, error) {
	var s string
	err := e.call(ctx, jsText, &s)
	return s, err
}

func (e *element) Attribute(ctx context.Context, name string) (string, error) {
	var s string
	err := e.call(ctx, jsAttribute, &s, name)
	return s, err
}

func (e *element) Visible(ctx context.Context) (bool, error) {
	var ok bool
	err := e.call(ctx, jsVisible, &ok)
	return ok, err
}

func (e *element) Box(ctx context.Context) (schemas.BoundingBox, error) {
	var b schemas.BoundingBox
	err := e.call(ctx, jsBox, &b)
	return b, err
}

func (e *element) ScrollIntoView(ctx context.Context) error {
	return e.page.run(ctx, dom.ScrollIntoViewIfNeeded().WithNodeID(e.node.NodeID))
}

func (e *element) Click(ctx context.Context) error {
	if err := e.page.run(ctx, chromedp.MouseClickNode(e.node)); err != nil {
		return fmt.Errorf("click %s: %w", e.describe(), err)
	}
	return nil
}

func (e *element) Clear(ctx context.Context) error {
	return e.callOK(ctx, "clear", jsClear)
}

func (e *element) SelectAll(ctx context.Context) error {
	return e.callOK(ctx, "select all", jsSelectAll)
}

func (e *element) TypeKey(ctx context.Context, key rune) error {
	return e.page.run(ctx, chromedp.KeyEventNode(e.node, string(key)))
}

func (e *element) Dispatch(ctx context.Context, events ...string) error {
	if len(events) == 0 {
		return nil
	}
	return e.callOK(ctx, "dispatch", jsDispatch, events)
}

func (e *element) Options(ctx context.Context) ([]schemas.SelectOption, error) {
	var raw []optionResult
	if err := e.call(ctx, jsOptions, &raw); err != nil {
		return nil, fmt.Errorf("read options: %w", err)
	}
	opts := make([]schemas.SelectOption, len(raw))
	for i, o := range raw {
		opts[i] = schemas.SelectOption{Text: o.Text, Value: o.Value, Index: o.Index}
	}
	return opts, nil
}

func (e *element) SelectValue(ctx context.Context, value string) error {
	return e.callOK(ctx, "select option", jsSelectValue, value)
}

func (e *element) Value(ctx context.Context) (string, error) {
	var s string
	err := e.call(ctx, jsValue, &s)
	return s, err
}
