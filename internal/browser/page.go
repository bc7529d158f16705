package browser

import (
	"context"
	"errors"
	"fmt"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

// ErrNotFrame is returned by Frame for elements that are not iframes.
var ErrNotFrame = errors.New("browser: element is not a frame")

// page is a document driven over CDP. tab carries the chromedp target; root
// scopes queries to a same-process iframe and is nil for the top document.
type page struct {
	tab     context.Context
	root    *cdp.Node
	session *Session
	logger  *zap.Logger
}

var _ schemas.Page = (*page)(nil)

// run executes actions on the tab, bounded by the caller's context.
func (p *page) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(p.tab, ctx)
	defer cancel()
	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func (p *page) queryOpts(opts ...chromedp.QueryOption) []chromedp.QueryOption {
	if p.root != nil {
		opts = append(opts, chromedp.FromNode(p.root))
	}
	return opts
}

func (p *page) Navigate(ctx context.Context, url string) error {
	if err := p.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

func (p *page) WaitReady(ctx context.Context) error {
	return p.run(ctx, chromedp.WaitReady("body", p.queryOpts(chromedp.ByQuery)...))
}

func (p *page) URL(ctx context.Context) (string, error) {
	if p.root != nil {
		if doc := p.root.ContentDocument; doc != nil && doc.DocumentURL != "" {
			return doc.DocumentURL, nil
		}
		return p.root.AttributeValue("src"), nil
	}
	var loc string
	err := p.run(ctx, chromedp.Location(&loc))
	return loc, err
}

func (p *page) HTML(ctx context.Context) (string, error) {
	var html string
	err := p.run(ctx, chromedp.OuterHTML("html", &html, p.queryOpts(chromedp.ByQuery)...))
	return html, err
}

func (p *page) QueryAll(ctx context.Context, selector string) ([]schemas.Element, error) {
	var nodes []*cdp.Node
	opts := p.queryOpts(chromedp.ByQueryAll, chromedp.AtLeast(0))
	if err := p.run(ctx, chromedp.Nodes(selector, &nodes, opts...)); err != nil {
		return nil, fmt.Errorf("query %q: %w", selector, err)
	}
	return p.wrap(nodes), nil
}

// QueryXPath searches the whole tab; DOM search cannot be scoped to a frame.
func (p *page) QueryXPath(ctx context.Context, expr string) ([]schemas.Element, error) {
	var nodes []*cdp.Node
	if err := p.run(ctx, chromedp.Nodes(expr, &nodes, chromedp.BySearch, chromedp.AtLeast(0))); err != nil {
		return nil, fmt.Errorf("xpath %q: %w", expr, err)
	}
	return p.wrap(nodes), nil
}

func (p *page) wrap(nodes []*cdp.Node) []schemas.Element {
	els := make([]schemas.Element, 0, len(nodes))
	for _, n := range nodes {
		els = append(els, &element{page: p, node: n})
	}
	return els
}

// Frame enters an iframe. Cross-origin frames run in their own renderer and
// are attached as separate targets; the rest are queried through the iframe
// node.
func (p *page) Frame(ctx context.Context, iframe schemas.Element) (schemas.Page, error) {
	el, ok := iframe.(*element)
	if !ok {
		return nil, fmt.Errorf("browser: foreign element %T", iframe)
	}
	if el.node.LocalName != "iframe" && el.node.LocalName != "frame" {
		return nil, ErrNotFrame
	}

	if el.node.FrameID != "" {
		if fp, err := p.session.attachFrame(ctx, target.ID(el.node.FrameID)); err == nil && fp != nil {
			return fp, nil
		} else if err != nil {
			p.logger.Debug("Out-of-process frame lookup failed.", zap.Error(err))
		}
	}
	return &page{tab: p.tab, root: el.node, session: p.session, logger: p.logger}, nil
}
