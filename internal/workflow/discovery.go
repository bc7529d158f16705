package workflow

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/xkilldash9x/formpilot/api/schemas"
	"go.uber.org/zap"
	"golang.org/x/net/idna"
	"golang.org/x/text/cases"
)

// ErrInvalidURL is returned by NormalizeURL for addresses that cannot be visited.
var ErrInvalidURL = errors.New("invalid target url")

// NormalizeURL trims raw, defaults the scheme to https and converts an
// internationalized host to its ASCII form.
func NormalizeURL(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	if !strings.Contains(s, "://") {
		s = "https://" + strings.TrimPrefix(s, "//")
	}

	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	}

	if net.ParseIP(host) == nil {
		ascii, err := idna.Lookup.ToASCII(host)
		if err != nil {
			return "", fmt.Errorf("%w: host %q: %v", ErrInvalidURL, host, err)
		}
		host = ascii
	}
	if port := u.Port(); port != "" {
		u.Host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		u.Host = "[" + host + "]"
	} else {
		u.Host = host
	}
	return u.String(), nil
}

func fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// openContact follows the first visible link naming one of the contact
// keywords. Keywords are tried in order. Not finding a link is not an error.
func (r *Runner) openContact(ctx context.Context, page schemas.Page, logger *zap.Logger) bool {
	keywords := r.cfg.ContactKeywords
	if len(keywords) == 0 {
		return false
	}

	links, err := page.QueryAll(ctx, r.cfg.LinkSelector)
	if err != nil {
		logger.Debug("Link query failed.", zap.Error(err))
	}

	for _, keyword := range keywords {
		for _, link := range links {
			if ctx.Err() != nil {
				return false
			}
			if !linkMatches(ctx, link, keyword) {
				continue
			}
			if err := link.Click(ctx); err != nil {
				logger.Debug("Contact link click failed.", zap.String("keyword", keyword), zap.Error(err))
				continue
			}
			r.awaitLoad(ctx, page, logger)
			logger.Info("Contact page opened.", zap.String("keyword", keyword))
			return true
		}
	}

	if !r.cfg.DocumentFallback {
		return false
	}
	return r.openContactFromDocument(ctx, page, logger)
}

// linkMatches reports whether link is visible and its text, or failing that
// its aria-label, contains keyword.
func linkMatches(ctx context.Context, link schemas.Element, keyword string) bool {
	visible, err := link.Visible(ctx)
	if err != nil || !visible {
		return false
	}
	want := fold(keyword)
	if text, err := link.Text(ctx); err == nil && strings.Contains(fold(text), want) {
		return true
	}
	label, err := link.Attribute(ctx, "aria-label")
	return err == nil && label != "" && strings.Contains(fold(label), want)
}

// openContactFromDocument parses the serialized page and navigates to the
// first anchor naming a keyword.
func (r *Runner) openContactFromDocument(ctx context.Context, page schemas.Page, logger *zap.Logger) bool {
	html, err := page.HTML(ctx)
	if err != nil || html == "" {
		return false
	}
	current, err := page.URL(ctx)
	if err != nil {
		return false
	}
	base, err := url.Parse(current)
	if err != nil {
		return false
	}

	target, ok := FindContactHref(html, base, r.cfg.ContactKeywords)
	if !ok {
		return false
	}

	navCtx, cancel := withOptionalTimeout(ctx, r.cfg.ContactLoadTimeout)
	defer cancel()
	if err := page.Navigate(navCtx, target); err != nil {
		logger.Debug("Contact fallback navigation failed.", zap.String("href", target), zap.Error(err))
		return false
	}
	logger.Info("Contact page opened from document.", zap.String("href", target))
	return true
}

// FindContactHref scans html for an a[href] whose text contains a keyword and
// returns its absolute address resolved against base.
func FindContactHref(html string, base *url.URL, keywords []string) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", false
	}
	anchors := doc.Find("a[href]")

	for _, keyword := range keywords {
		want := fold(keyword)
		if want == "" {
			continue
		}
		var found string
		anchors.EachWithBreak(func(_ int, a *goquery.Selection) bool {
			if !strings.Contains(fold(a.Text()), want) {
				return true
			}
			href, _ := a.Attr("href")
			if resolved, ok := resolveHref(base, href); ok {
				found = resolved
				return false
			}
			return true
		})
		if found != "" {
			return found, true
		}
	}
	return "", false
}

func resolveHref(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	abs := ref
	if base != nil {
		abs = base.ResolveReference(ref)
	}
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	return abs.String(), true
}

// awaitLoad waits for the document after a contact click. A timeout is
// tolerated; the form search runs on whatever is loaded.
func (r *Runner) awaitLoad(ctx context.Context, page schemas.Page, logger *zap.Logger) {
	waitCtx, cancel := withOptionalTimeout(ctx, r.cfg.ContactLoadTimeout)
	defer cancel()
	if err := page.WaitReady(waitCtx); err != nil {
		logger.Debug("Contact page load wait ended early.", zap.Error(err))
	}
}
