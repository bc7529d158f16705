// File: internal/config/config.go
package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the read-only contract for accessing application
// configuration. Components receive it by parameter; there are no setters.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Source() SourceConfig
	Fields() FieldsConfig
	Filler() FillerConfig
	Captcha() CaptchaConfig
	Workflow() WorkflowConfig
	Orchestrator() OrchestratorConfig
	History() HistoryConfig
	Report() ReportConfig
}

// Config is the immutable application configuration. Fields are private and
// every getter hands back a copy, so a component cannot alter what its
// siblings observe.
type Config struct {
	logger       LoggerConfig
	browser      BrowserConfig
	source       SourceConfig
	fields       FieldsConfig
	filler       FillerConfig
	captcha      CaptchaConfig
	workflow     WorkflowConfig
	orchestrator OrchestratorConfig
	history      HistoryConfig
	report       ReportConfig
}

// fileConfig mirrors Config with exported fields so viper can decode into it.
type fileConfig struct {
	Logger       LoggerConfig       `mapstructure:"logger" yaml:"logger"`
	Browser      BrowserConfig      `mapstructure:"browser" yaml:"browser"`
	Source       SourceConfig       `mapstructure:"source" yaml:"source"`
	Fields       FieldsConfig       `mapstructure:"fields" yaml:"fields"`
	Filler       FillerConfig       `mapstructure:"filler" yaml:"filler"`
	Captcha      CaptchaConfig      `mapstructure:"captcha" yaml:"captcha"`
	Workflow     WorkflowConfig     `mapstructure:"workflow" yaml:"workflow"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator" yaml:"orchestrator"`
	History      HistoryConfig      `mapstructure:"history" yaml:"history"`
	Report       ReportConfig       `mapstructure:"report" yaml:"report"`
}

func (f fileConfig) freeze() *Config {
	return &Config{
		logger:       f.Logger,
		browser:      f.Browser.clone(),
		source:       f.Source,
		fields:       f.Fields.clone(),
		filler:       f.Filler,
		captcha:      f.Captcha.clone(),
		workflow:     f.Workflow.clone(),
		orchestrator: f.Orchestrator,
		history:      f.History,
		report:       f.Report,
	}
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig             { return c.logger }
func (c *Config) Browser() BrowserConfig           { return c.browser.clone() }
func (c *Config) Source() SourceConfig             { return c.source }
func (c *Config) Fields() FieldsConfig             { return c.fields.clone() }
func (c *Config) Filler() FillerConfig             { return c.filler }
func (c *Config) Captcha() CaptchaConfig           { return c.captcha.clone() }
func (c *Config) Workflow() WorkflowConfig         { return c.workflow.clone() }
func (c *Config) Orchestrator() OrchestratorConfig { return c.orchestrator }
func (c *Config) History() HistoryConfig           { return c.history }
func (c *Config) Report() ReportConfig             { return c.report }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color names used for each log level.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the Chrome instances driven over CDP.
type BrowserConfig struct {
	Headless       bool          `mapstructure:"headless" yaml:"headless"`
	ExecPath       string        `mapstructure:"exec_path" yaml:"exec_path"`
	Args           []string      `mapstructure:"args" yaml:"args"`
	UserAgent      string        `mapstructure:"user_agent" yaml:"user_agent"`
	Locale         string        `mapstructure:"locale" yaml:"locale"`
	Timezone       string        `mapstructure:"timezone" yaml:"timezone"`
	AcceptLanguage string        `mapstructure:"accept_language" yaml:"accept_language"`
	Stealth        bool          `mapstructure:"stealth" yaml:"stealth"`
	SlowMo         time.Duration `mapstructure:"slow_mo" yaml:"slow_mo"`
	WindowWidth    int           `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight   int           `mapstructure:"window_height" yaml:"window_height"`
	IgnoreTLS      bool          `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	Debug          bool          `mapstructure:"debug" yaml:"debug"`
}

func (b BrowserConfig) clone() BrowserConfig {
	b.Args = slices.Clone(b.Args)
	return b
}

// SourceConfig selects and configures the record source and status sink.
type SourceConfig struct {
	Backend string       `mapstructure:"backend" yaml:"backend"`
	Sheets  SheetsConfig `mapstructure:"sheets" yaml:"sheets"`
	CSV     CSVConfig    `mapstructure:"csv" yaml:"csv"`
}

// SheetsConfig configures the Google Sheets backed data store.
type SheetsConfig struct {
	SpreadsheetID   string        `mapstructure:"spreadsheet_id" yaml:"spreadsheet_id"`
	CredentialsFile string        `mapstructure:"credentials_file" yaml:"credentials_file"`
	WebsitesRange   string        `mapstructure:"websites_range" yaml:"websites_range"`
	DetailsRange    string        `mapstructure:"details_range" yaml:"details_range"`
	StatusSheet     string        `mapstructure:"status_sheet" yaml:"status_sheet"`
	StatusColumn    string        `mapstructure:"status_column" yaml:"status_column"`
	WritesPerSecond float64       `mapstructure:"writes_per_second" yaml:"writes_per_second"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// CSVConfig configures the local file backed data store.
type CSVConfig struct {
	URLsPath    string `mapstructure:"urls_path" yaml:"urls_path"`
	DetailsPath string `mapstructure:"details_path" yaml:"details_path"`
	StatusPath  string `mapstructure:"status_path" yaml:"status_path"`
}

// SmartDefault pairs a keyword with the value used for any field kind that
// overlaps it.
type SmartDefault struct {
	Key   string `mapstructure:"key" yaml:"key"`
	Value string `mapstructure:"value" yaml:"value"`
}

// FieldsConfig holds the fallback value tables used by the value resolver.
type FieldsConfig struct {
	Defaults      map[string]string `mapstructure:"defaults" yaml:"defaults"`
	SmartDefaults []SmartDefault    `mapstructure:"smart_defaults" yaml:"smart_defaults"`
}

func (f FieldsConfig) clone() FieldsConfig {
	out := FieldsConfig{
		Defaults:      make(map[string]string, len(f.Defaults)),
		SmartDefaults: slices.Clone(f.SmartDefaults),
	}
	for k, v := range f.Defaults {
		out.Defaults[k] = v
	}
	return out
}

// FillerConfig tunes the pacing of field interactions.
type FillerConfig struct {
	VisibleTimeout time.Duration `mapstructure:"visible_timeout" yaml:"visible_timeout"`
	SettleDelay    time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	AnimationDelay time.Duration `mapstructure:"animation_delay" yaml:"animation_delay"`
	KeyDelay       time.Duration `mapstructure:"key_delay" yaml:"key_delay"`
	KeyJitter      float64       `mapstructure:"key_jitter" yaml:"key_jitter"`
}

// CaptchaConfig holds the challenge detection and solve window settings.
type CaptchaConfig struct {
	AutoClick          bool          `mapstructure:"auto_click" yaml:"auto_click"`
	ManualTimeout      time.Duration `mapstructure:"manual_timeout" yaml:"manual_timeout"`
	CheckInterval      time.Duration `mapstructure:"check_interval" yaml:"check_interval"`
	RecheckAttempts    int           `mapstructure:"recheck_attempts" yaml:"recheck_attempts"`
	RecheckInterval    time.Duration `mapstructure:"recheck_interval" yaml:"recheck_interval"`
	ProbeTimeout       time.Duration `mapstructure:"probe_timeout" yaml:"probe_timeout"`
	MaxProbeMatches    int           `mapstructure:"max_probe_matches" yaml:"max_probe_matches"`
	MinWidgetSize      float64       `mapstructure:"min_widget_size" yaml:"min_widget_size"`
	ClickTimeout       time.Duration `mapstructure:"click_timeout" yaml:"click_timeout"`
	ClickSettle        time.Duration `mapstructure:"click_settle" yaml:"click_settle"`
	PostClickWait      time.Duration `mapstructure:"post_click_wait" yaml:"post_click_wait"`
	AutoVerifyAttempts int           `mapstructure:"auto_verify_attempts" yaml:"auto_verify_attempts"`
	AutoVerifyInterval time.Duration `mapstructure:"auto_verify_interval" yaml:"auto_verify_interval"`
	ReconfirmDelay     time.Duration `mapstructure:"reconfirm_delay" yaml:"reconfirm_delay"`
	SolvedPause        time.Duration `mapstructure:"solved_pause" yaml:"solved_pause"`
	DetectionSelectors []string      `mapstructure:"detection_selectors" yaml:"detection_selectors"`
	DetectionTexts     []string      `mapstructure:"detection_texts" yaml:"detection_texts"`
	CheckboxFrames     []string      `mapstructure:"checkbox_frames" yaml:"checkbox_frames"`
	CheckboxSelectors  []string      `mapstructure:"checkbox_selectors" yaml:"checkbox_selectors"`
}

func (c CaptchaConfig) clone() CaptchaConfig {
	c.DetectionSelectors = slices.Clone(c.DetectionSelectors)
	c.DetectionTexts = slices.Clone(c.DetectionTexts)
	c.CheckboxFrames = slices.Clone(c.CheckboxFrames)
	c.CheckboxSelectors = slices.Clone(c.CheckboxSelectors)
	return c
}

// WorkflowConfig configures the per-site sequence.
type WorkflowConfig struct {
	PageLoadTimeout    time.Duration `mapstructure:"page_load_timeout" yaml:"page_load_timeout"`
	PostNavSettle      time.Duration `mapstructure:"post_nav_settle" yaml:"post_nav_settle"`
	ContactKeywords    []string      `mapstructure:"contact_keywords" yaml:"contact_keywords"`
	ContactLoadTimeout time.Duration `mapstructure:"contact_load_timeout" yaml:"contact_load_timeout"`
	ContactSettle      time.Duration `mapstructure:"contact_settle" yaml:"contact_settle"`
	DocumentFallback   bool          `mapstructure:"document_fallback" yaml:"document_fallback"`
	LinkSelector       string        `mapstructure:"link_selector" yaml:"link_selector"`
	InputSelector      string        `mapstructure:"input_selector" yaml:"input_selector"`
	TextareaSelector   string        `mapstructure:"textarea_selector" yaml:"textarea_selector"`
	SelectSelector     string        `mapstructure:"select_selector" yaml:"select_selector"`
	SubmitSelector     string        `mapstructure:"submit_selector" yaml:"submit_selector"`
	SubmitTimeout      time.Duration `mapstructure:"submit_timeout" yaml:"submit_timeout"`
	PostSubmitPause    time.Duration `mapstructure:"post_submit_pause" yaml:"post_submit_pause"`
	StatusTimeout      time.Duration `mapstructure:"status_timeout" yaml:"status_timeout"`
	DryRun             bool          `mapstructure:"dry_run" yaml:"dry_run"`
}

func (w WorkflowConfig) clone() WorkflowConfig {
	w.ContactKeywords = slices.Clone(w.ContactKeywords)
	return w
}

// OrchestratorConfig configures batch grouping.
type OrchestratorConfig struct {
	Concurrency int           `mapstructure:"concurrency" yaml:"concurrency"`
	GroupPause  time.Duration `mapstructure:"group_pause" yaml:"group_pause"`
}

// HistoryConfig selects the optional run history backend.
type HistoryConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"`
	DSN     string `mapstructure:"dsn" yaml:"dsn"`
}

// ReportConfig controls the end of run summary.
type ReportConfig struct {
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// NewDefaultConfig creates a new configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var fc fileConfig
	if err := v.Unmarshal(&fc); err != nil {
		// Defaults are static, so this indicates a programming error.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return fc.freeze()
}

// SetDefaults initializes default values for every configuration parameter.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "formpilot")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 50)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 14)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.args", []string{})
	v.SetDefault("browser.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36")
	v.SetDefault("browser.locale", "en-US")
	v.SetDefault("browser.timezone", "")
	v.SetDefault("browser.accept_language", "en-US,en;q=0.9")
	v.SetDefault("browser.stealth", true)
	v.SetDefault("browser.slow_mo", "50ms")
	v.SetDefault("browser.window_width", 1366)
	v.SetDefault("browser.window_height", 768)
	v.SetDefault("browser.ignore_tls_errors", false)
	v.SetDefault("browser.debug", false)

	// -- Source --
	v.SetDefault("source.backend", "sheets")
	v.SetDefault("source.sheets.credentials_file", "credentials.json")
	v.SetDefault("source.sheets.websites_range", "'Database'!A:A")
	v.SetDefault("source.sheets.details_range", "'Details to fill'!A:E")
	v.SetDefault("source.sheets.status_sheet", "Database")
	v.SetDefault("source.sheets.status_column", "B")
	v.SetDefault("source.sheets.writes_per_second", 1.0)
	v.SetDefault("source.sheets.request_timeout", "30s")
	v.SetDefault("source.csv.urls_path", "urls.csv")
	v.SetDefault("source.csv.details_path", "details.csv")
	v.SetDefault("source.csv.status_path", "status.csv")

	// -- Fields --
	v.SetDefault("fields.defaults", DefaultFieldValues())
	v.SetDefault("fields.smart_defaults", smartDefaultMaps())

	// -- Filler --
	v.SetDefault("filler.visible_timeout", "600ms")
	v.SetDefault("filler.settle_delay", "30ms")
	v.SetDefault("filler.animation_delay", "30ms")
	v.SetDefault("filler.key_delay", "4ms")
	v.SetDefault("filler.key_jitter", 0.4)

	// -- Captcha --
	v.SetDefault("captcha.auto_click", true)
	v.SetDefault("captcha.manual_timeout", "15s")
	v.SetDefault("captcha.check_interval", "200ms")
	v.SetDefault("captcha.recheck_attempts", 5)
	v.SetDefault("captcha.recheck_interval", "200ms")
	v.SetDefault("captcha.probe_timeout", "300ms")
	v.SetDefault("captcha.max_probe_matches", 5)
	v.SetDefault("captcha.min_widget_size", 10.0)
	v.SetDefault("captcha.click_timeout", "2s")
	v.SetDefault("captcha.click_settle", "1s")
	v.SetDefault("captcha.post_click_wait", "2s")
	v.SetDefault("captcha.auto_verify_attempts", 10)
	v.SetDefault("captcha.auto_verify_interval", "1s")
	v.SetDefault("captcha.reconfirm_delay", "500ms")
	v.SetDefault("captcha.solved_pause", "1s")
	v.SetDefault("captcha.detection_selectors", DefaultCaptchaSelectors())
	v.SetDefault("captcha.detection_texts", []string{"I am not a robot"})
	v.SetDefault("captcha.checkbox_frames", []string{
		"iframe[src*='recaptcha'][src*='anchor']",
		"iframe[title='reCAPTCHA']",
		"iframe[src*='hcaptcha'][src*='checkbox']",
	})
	v.SetDefault("captcha.checkbox_selectors", []string{
		"div.recaptcha-checkbox-border",
		".recaptcha-checkbox",
		"#recaptcha-anchor",
		"div[role='checkbox']",
	})

	// -- Workflow --
	v.SetDefault("workflow.page_load_timeout", "25s")
	v.SetDefault("workflow.post_nav_settle", "500ms")
	v.SetDefault("workflow.contact_keywords", []string{"Contact Us", "Contact", "Get in Touch"})
	v.SetDefault("workflow.contact_load_timeout", "10s")
	v.SetDefault("workflow.contact_settle", "500ms")
	v.SetDefault("workflow.document_fallback", true)
	v.SetDefault("workflow.link_selector", "a[href], [role='link']")
	v.SetDefault("workflow.input_selector", "input:not([type='hidden']):not([type='submit']):not([type='button'])")
	v.SetDefault("workflow.textarea_selector", "textarea")
	v.SetDefault("workflow.select_selector", "select")
	v.SetDefault("workflow.submit_selector", "button[type='submit'], input[type='submit']")
	v.SetDefault("workflow.submit_timeout", "5s")
	v.SetDefault("workflow.post_submit_pause", "1500ms")
	v.SetDefault("workflow.status_timeout", "15s")
	v.SetDefault("workflow.dry_run", false)

	// -- Orchestrator --
	v.SetDefault("orchestrator.concurrency", 3)
	v.SetDefault("orchestrator.group_pause", "2s")

	// -- History --
	v.SetDefault("history.backend", "none")
	v.SetDefault("history.dsn", "")

	// -- Report --
	v.SetDefault("report.format", "text")
	v.SetDefault("report.output", "stdout")
}

// NewConfigFromViper creates a validated, frozen configuration from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	// Secrets are only ever read from the environment.
	_ = v.BindEnv("history.dsn", "FORMPILOT_HISTORY_DSN")
	_ = v.BindEnv("source.sheets.spreadsheet_id", "FORMPILOT_SPREADSHEET_ID", "GOOGLE_SHEETS_ID")

	var fc fileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg := fc.freeze()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.orchestrator.Concurrency <= 0 {
		return fmt.Errorf("orchestrator.concurrency must be a positive integer")
	}
	if c.orchestrator.GroupPause < 0 {
		return fmt.Errorf("orchestrator.group_pause must not be negative")
	}
	if c.workflow.PageLoadTimeout <= 0 {
		return fmt.Errorf("workflow.page_load_timeout must be a positive duration")
	}
	if c.workflow.SubmitTimeout <= 0 {
		return fmt.Errorf("workflow.submit_timeout must be a positive duration")
	}
	if err := c.captcha.Validate(); err != nil {
		return fmt.Errorf("captcha configuration invalid: %w", err)
	}
	if err := c.source.Validate(); err != nil {
		return fmt.Errorf("source configuration invalid: %w", err)
	}
	switch c.history.Backend {
	case "", "none":
	case "postgres", "sqlite":
		if c.history.DSN == "" {
			return fmt.Errorf("history.dsn is required for the %s backend", c.history.Backend)
		}
	default:
		return fmt.Errorf("unknown history.backend %q", c.history.Backend)
	}
	switch c.report.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown report.format %q", c.report.Format)
	}
	return nil
}

// Validate checks the challenge handling settings.
func (c *CaptchaConfig) Validate() error {
	if c.RecheckAttempts <= 0 {
		return fmt.Errorf("recheck_attempts must be greater than 0")
	}
	if c.ManualTimeout <= 0 {
		return fmt.Errorf("manual_timeout must be a positive duration")
	}
	if c.CheckInterval <= 0 {
		return fmt.Errorf("check_interval must be a positive duration")
	}
	if len(c.DetectionSelectors) == 0 && len(c.DetectionTexts) == 0 {
		return fmt.Errorf("at least one detection selector or text is required")
	}
	return nil
}

// Validate checks that the selected backend has what it needs. The
// spreadsheet id is checked at run time so that offline commands still work.
func (s *SourceConfig) Validate() error {
	switch strings.ToLower(s.Backend) {
	case "sheets":
		if s.Sheets.StatusColumn == "" || s.Sheets.StatusSheet == "" {
			return fmt.Errorf("sheets.status_sheet and sheets.status_column are required")
		}
		if s.Sheets.WritesPerSecond < 0 {
			return fmt.Errorf("sheets.writes_per_second must not be negative")
		}
	case "csv":
		if s.CSV.URLsPath == "" || s.CSV.DetailsPath == "" {
			return fmt.Errorf("csv.urls_path and csv.details_path are required")
		}
	default:
		return fmt.Errorf("unknown source.backend %q", s.Backend)
	}
	return nil
}
