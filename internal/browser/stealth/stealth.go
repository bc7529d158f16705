package stealth

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/internal/config"
)

//go:embed evasions.js
var evasionsScript string

// Persona defines the browser characteristics to emulate.
type Persona struct {
	UserAgent      string
	Platform       string
	Languages      []string
	AcceptLanguage string
	Timezone       string
	Locale         string
	Width          int
	Height         int
}

// DefaultPersona provides a realistic default desktop profile.
var DefaultPersona = Persona{
	UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	Platform:       "Win32",
	Languages:      []string{"en-US", "en"},
	AcceptLanguage: "en-US,en;q=0.9",
	Locale:         "en-US",
	Width:          1366,
	Height:         768,
}

// PersonaFromConfig overlays the configured browser identity on DefaultPersona.
func PersonaFromConfig(cfg config.BrowserConfig) Persona {
	p := DefaultPersona
	p.Languages = append([]string(nil), DefaultPersona.Languages...)
	if cfg.UserAgent != "" {
		p.UserAgent = cfg.UserAgent
		p.Platform = platformFor(cfg.UserAgent)
	}
	if cfg.Locale != "" {
		p.Locale = cfg.Locale
		base, _, _ := strings.Cut(cfg.Locale, "-")
		p.Languages = []string{cfg.Locale}
		if base != cfg.Locale {
			p.Languages = append(p.Languages, base)
		}
	}
	if cfg.AcceptLanguage != "" {
		p.AcceptLanguage = cfg.AcceptLanguage
	}
	p.Timezone = cfg.Timezone
	if cfg.WindowWidth > 0 && cfg.WindowHeight > 0 {
		p.Width, p.Height = cfg.WindowWidth, cfg.WindowHeight
	}
	return p
}

func platformFor(ua string) string {
	switch {
	case strings.Contains(ua, "Macintosh"):
		return "MacIntel"
	case strings.Contains(ua, "Linux"):
		return "Linux x86_64"
	default:
		return "Win32"
	}
}

// Apply builds the CDP actions that make an automated tab look like a
// regular user's browser.
func Apply(p Persona, logger *zap.Logger) chromedp.Tasks {
	logger.Debug("Applying browser stealth persona",
		zap.String("userAgent", p.UserAgent),
		zap.String("platform", p.Platform),
	)

	tasks := chromedp.Tasks{
		emulation.SetUserAgentOverride(p.UserAgent).
			WithAcceptLanguage(p.AcceptLanguage).
			WithPlatform(p.Platform),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if _, err := page.AddScriptToEvaluateOnNewDocument(Script(p)).Do(ctx); err != nil {
				return fmt.Errorf("failed to inject evasions script: %w", err)
			}
			return nil
		}),
		emulation.SetLocaleOverride().WithLocale(p.Locale),
		network.SetExtraHTTPHeaders(network.Headers{
			"Accept-Language": p.AcceptLanguage,
		}),
	}
	if p.Timezone != "" {
		tasks = append(tasks, emulation.SetTimezoneOverride(p.Timezone))
	}
	return tasks
}

// Script returns the evasion script primed with the persona's values.
func Script(p Persona) string {
	langs := make([]string, len(p.Languages))
	for i, l := range p.Languages {
		langs[i] = fmt.Sprintf("%q", l)
	}
	prelude := fmt.Sprintf("const __persona = {platform: %q, languages: [%s]};\n",
		p.Platform, strings.Join(langs, ", "))
	return "(() => {\n" + prelude + evasionsScript + "\n})();"
}
