// File: internal/config/config_test.go
package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, 3, cfg.Orchestrator().Concurrency)
	assert.Equal(t, 2*time.Second, cfg.Orchestrator().GroupPause)
	assert.True(t, cfg.Browser().Headless)
	assert.Equal(t, 50*time.Millisecond, cfg.Browser().SlowMo)
	assert.Equal(t, 25*time.Second, cfg.Workflow().PageLoadTimeout)
	assert.Equal(t, []string{"Contact Us", "Contact", "Get in Touch"}, cfg.Workflow().ContactKeywords)
	assert.Equal(t, 15*time.Second, cfg.Captcha().ManualTimeout)
	assert.Equal(t, 5, cfg.Captcha().RecheckAttempts)
	assert.True(t, cfg.Captcha().AutoClick)
	assert.Equal(t, "sheets", cfg.Source().Backend)
	assert.Equal(t, "'Database'!A:A", cfg.Source().Sheets.WebsitesRange)
	assert.Equal(t, "none", cfg.History().Backend)
	require.NoError(t, cfg.Validate())
}

func TestNewDefaultConfig_FieldTables(t *testing.T) {
	cfg := NewDefaultConfig()
	fields := cfg.Fields()

	assert.Equal(t, "contact.inquiry@example.com", fields.Defaults["email"])
	assert.Equal(t, "Interested Customer", fields.Defaults["name"])
	require.Len(t, fields.SmartDefaults, len(DefaultSmartDefaults()))
	// Order is significant for the smart default lookup.
	assert.Equal(t, DefaultSmartDefaults(), fields.SmartDefaults)
}

// -- Immutability Tests --

func TestConfigGettersReturnCopies(t *testing.T) {
	cfg := NewDefaultConfig()

	wf := cfg.Workflow()
	wf.ContactKeywords[0] = "mutated"
	assert.Equal(t, "Contact Us", cfg.Workflow().ContactKeywords[0])

	cc := cfg.Captcha()
	cc.DetectionSelectors = append(cc.DetectionSelectors[:0], "nope")
	assert.Equal(t, "iframe[src*='recaptcha']", cfg.Captcha().DetectionSelectors[0])

	fields := cfg.Fields()
	fields.Defaults["email"] = "changed@example.com"
	fields.SmartDefaults[0].Value = "changed"
	assert.Equal(t, "contact.inquiry@example.com", cfg.Fields().Defaults["email"])
	assert.Equal(t, "Business Owner", cfg.Fields().SmartDefaults[0].Value)
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	base := func() fileConfig {
		v := viper.New()
		SetDefaults(v)
		var fc fileConfig
		require.NoError(t, v.Unmarshal(&fc))
		return fc
	}

	t.Run("valid defaults", func(t *testing.T) {
		assert.NoError(t, base().freeze().Validate())
	})

	t.Run("invalid concurrency", func(t *testing.T) {
		fc := base()
		fc.Orchestrator.Concurrency = 0
		err := fc.freeze().Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "orchestrator.concurrency must be a positive integer")
	})

	t.Run("invalid captcha attempts", func(t *testing.T) {
		fc := base()
		fc.Captcha.RecheckAttempts = 0
		err := fc.freeze().Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "recheck_attempts")
	})

	t.Run("captcha without probes", func(t *testing.T) {
		fc := base()
		fc.Captcha.DetectionSelectors = nil
		fc.Captcha.DetectionTexts = nil
		assert.Error(t, fc.freeze().Validate())
	})

	t.Run("unknown source backend", func(t *testing.T) {
		fc := base()
		fc.Source.Backend = "excel"
		err := fc.freeze().Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown source.backend")
	})

	t.Run("history backend needs dsn", func(t *testing.T) {
		fc := base()
		fc.History.Backend = "postgres"
		err := fc.freeze().Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "history.dsn is required")

		fc.History.DSN = "postgres://localhost/formpilot"
		assert.NoError(t, fc.freeze().Validate())
	})

	t.Run("unknown report format", func(t *testing.T) {
		fc := base()
		fc.Report.Format = "xml"
		assert.Error(t, fc.freeze().Validate())
	})
}

// -- Viper Integration Tests --

func TestNewConfigFromViper(t *testing.T) {
	yamlConfig := []byte(`
orchestrator:
  concurrency: 5
  group_pause: 250ms
browser:
  headless: false
  args: ["--lang=en-GB"]
source:
  backend: csv
  csv:
    urls_path: sites.csv
    details_path: details.csv
fields:
  smart_defaults:
    - key: company
      value: Acme Ltd
`)
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlConfig)))

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Orchestrator().Concurrency)
	assert.Equal(t, 250*time.Millisecond, cfg.Orchestrator().GroupPause)
	assert.False(t, cfg.Browser().Headless)
	assert.Equal(t, []string{"--lang=en-GB"}, cfg.Browser().Args)
	assert.Equal(t, "csv", cfg.Source().Backend)
	assert.Equal(t, "sites.csv", cfg.Source().CSV.URLsPath)
	assert.Equal(t, []SmartDefault{{Key: "company", Value: "Acme Ltd"}}, cfg.Fields().SmartDefaults)
	// Untouched sections keep their defaults.
	assert.Equal(t, 25*time.Second, cfg.Workflow().PageLoadTimeout)
}

func TestNewConfigFromViper_Invalid(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("orchestrator.concurrency", -1)

	_, err := NewConfigFromViper(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestNewConfigFromViper_SpreadsheetFromEnv(t *testing.T) {
	t.Setenv("GOOGLE_SHEETS_ID", "sheet-123")
	v := viper.New()
	SetDefaults(v)

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "sheet-123", cfg.Source().Sheets.SpreadsheetID)
}
