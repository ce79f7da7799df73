// Package config provides configuration management for the gazette worker.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is where commands look for the configuration file.
const DefaultConfigPath = "configs/worker.yaml"

// Source kinds.
const (
	SourceDJE  = "dje"
	SourceFile = "file"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Configuration validation errors.
var (
	ErrInvalidSourceKind        = errors.New("source.kind must be 'dje' or 'file'")
	ErrMissingBaseURL           = errors.New("source.base_url must be an absolute http(s) URL")
	ErrMissingDirectory         = errors.New("source.directory is required for file sources")
	ErrInvalidMaxPages          = errors.New("source.max_pages_per_issue must be at least 1")
	ErrInvalidMaxAttempts       = errors.New("retry.max_attempts must be at least 1")
	ErrInvalidInitialDelay      = errors.New("retry.initial_delay_ms must be non-negative")
	ErrInvalidBackoffMultiplier = errors.New("retry.backoff_multiplier must be >= 1.0")
	ErrInvalidTimeout           = errors.New("retry.timeout_sec must be at least 1")
	ErrNoKeywords               = errors.New("pipeline.keywords must not be empty")
	ErrInvalidContinuation      = errors.New("pipeline.max_continuation_pages must be at least 1")
	ErrInvalidTextLength        = errors.New("pipeline.max_text_length must be at least 1")
	ErrInvalidLookback          = errors.New("pipeline.first_run_lookback_days must be non-negative")
	ErrInvalidDriver            = errors.New("storage.driver must be 'postgres' or 'sqlite'")
	ErrMissingDatabase          = errors.New("storage.name is required for postgres")
	ErrMissingSQLitePath        = errors.New("storage.path is required for sqlite")
	ErrNoSchedule               = errors.New("schedule.expressions must not be empty")
	ErrInvalidTimezone          = errors.New("schedule.timezone is not a known location")
	ErrInvalidLogLevel          = errors.New("logging.level must be one of: debug, info, warn, error")
	ErrInvalidLogFormat         = errors.New("logging.format must be 'text' or 'json'")
)

// Config represents the complete worker configuration.
type Config struct {
	Source    SourceConfig    `yaml:"source"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Storage   StorageConfig   `yaml:"storage"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	API       APIConfig       `yaml:"api"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SourceConfig describes where gazette pages come from.
type SourceConfig struct {
	Kind             string        `yaml:"kind"`
	BaseURL          string        `yaml:"base_url"`
	Directory        string        `yaml:"directory"`
	Query            string        `yaml:"query"`
	UserAgent        string        `yaml:"user_agent"`
	Browser          BrowserConfig `yaml:"browser"`
	Retry            RetryPolicy   `yaml:"retry"`
	Section          int           `yaml:"section"`
	MaxPagesPerIssue int           `yaml:"max_pages_per_issue"`
	MaxSearchPages   int           `yaml:"max_search_pages"`
	MinTextLength    int           `yaml:"min_text_length"`
	BufferSizeKb     int           `yaml:"buffer_size_kb"`
	RequestDelayMs   int           `yaml:"request_delay_ms"`
}

// IsLocalFile returns true if pages are read from a directory.
func (s *SourceConfig) IsLocalFile() bool {
	return s.Kind == SourceFile
}

// GetRequestDelay returns the pause between consecutive page fetches.
func (s *SourceConfig) GetRequestDelay() time.Duration {
	return time.Duration(s.RequestDelayMs) * time.Millisecond
}

// BrowserConfig controls the headless browser used for session cookies and
// as the last text fallback.
type BrowserConfig struct {
	ExecPath   string `yaml:"exec_path"`
	TimeoutSec int    `yaml:"timeout_sec"`
	Enabled    bool   `yaml:"enabled"`
	Headless   bool   `yaml:"headless"`
}

// GetTimeout returns the browser action timeout.
func (b *BrowserConfig) GetTimeout() time.Duration {
	return time.Duration(b.TimeoutSec) * time.Second
}

// RetryPolicy defines retry behavior.
type RetryPolicy struct {
	MaxAttempts       int     `yaml:"max_attempts"`
	InitialDelayMs    int     `yaml:"initial_delay_ms"`
	MaxDelayMs        int     `yaml:"max_delay_ms"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`
	TimeoutSec        int     `yaml:"timeout_sec"`
}

// PipelineConfig configures segmentation, extraction and validation.
type PipelineConfig struct {
	StartAnchor          string   `yaml:"start_anchor"`
	EndAnchor            string   `yaml:"end_anchor"`
	Defendant            string   `yaml:"defendant"`
	Keywords             []string `yaml:"keywords"`
	MaxContinuationPages int      `yaml:"max_continuation_pages"`
	MaxTextLength        int      `yaml:"max_text_length"`
	FirstRunLookbackDays int      `yaml:"first_run_lookback_days"`
}

// StorageConfig configures the publication store.
type StorageConfig struct {
	Driver           string `yaml:"driver"`
	Host             string `yaml:"host"`
	Name             string `yaml:"name"`
	Username         string `yaml:"username"`
	Password         string `yaml:"password"`
	SSLMode          string `yaml:"ssl_mode"`
	Path             string `yaml:"path"`
	Port             int    `yaml:"port"`
	MaxConns         int    `yaml:"max_conns"`
	ConnectAttempts  int    `yaml:"connect_attempts"`
	ConnectDelaySec  int    `yaml:"connect_delay_sec"`
	RetryAttempts    int    `yaml:"retry_attempts"`
	RetryDelayMs     int    `yaml:"retry_delay_ms"`
	IdleTxTimeoutMin int    `yaml:"idle_tx_timeout_min"`
	AutoMigrate      bool   `yaml:"auto_migrate"`
}

// DSN returns the postgres connection URL.
func (s *StorageConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(s.Username, s.Password),
		Host:   s.Host + ":" + strconv.Itoa(s.Port),
		Path:   "/" + s.Name,
	}

	q := url.Values{}
	if s.SSLMode != "" {
		q.Set("sslmode", s.SSLMode)
	}

	u.RawQuery = q.Encode()

	return u.String()
}

// GetConnectDelay returns the pause between connection attempts.
func (s *StorageConfig) GetConnectDelay() time.Duration {
	return time.Duration(s.ConnectDelaySec) * time.Second
}

// GetRetryDelay returns the pause between retried store operations.
func (s *StorageConfig) GetRetryDelay() time.Duration {
	return time.Duration(s.RetryDelayMs) * time.Millisecond
}

// GetIdleTxTimeout returns how long a session may stay idle in a transaction.
func (s *StorageConfig) GetIdleTxTimeout() time.Duration {
	return time.Duration(s.IdleTxTimeoutMin) * time.Minute
}

// ScheduleConfig configures periodic runs.
type ScheduleConfig struct {
	Timezone      string      `yaml:"timezone"`
	Expressions   []string    `yaml:"expressions"`
	Redis         RedisConfig `yaml:"redis"`
	LockTTLSec    int         `yaml:"lock_ttl_sec"`
	RunTimeoutMin int         `yaml:"run_timeout_min"`
	SkipWeekends  bool        `yaml:"skip_weekends"`
}

// Location loads the schedule timezone.
func (s *ScheduleConfig) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}

	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTimezone, s.Timezone)
	}

	return loc, nil
}

// GetLockTTL returns the run lock lifetime.
func (s *ScheduleConfig) GetLockTTL() time.Duration {
	return time.Duration(s.LockTTLSec) * time.Second
}

// GetRunTimeout returns the upper bound on a single run.
func (s *ScheduleConfig) GetRunTimeout() time.Duration {
	return time.Duration(s.RunTimeoutMin) * time.Minute
}

// RedisConfig points at the Redis used for cross-replica run locks.
// An empty Address selects an in-process lock.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// APIConfig configures the HTTP API.
type APIConfig struct {
	Address   string `yaml:"address"`
	JWTSecret string `yaml:"jwt_secret"`
	MaxLimit  int    `yaml:"max_limit"`
}

// TelemetryConfig configures metrics and tracing.
type TelemetryConfig struct {
	MetricsAddress string `yaml:"metrics_address"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	ServiceName    string `yaml:"service_name"`
	Insecure       bool   `yaml:"insecure"`
}

// LoggingConfig defines logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	ShowProgress bool   `yaml:"show_progress"`
}

// Default returns the configuration used when a key is absent from the file.
func Default() *Config {
	return &Config{
		Source: SourceConfig{
			Kind:             SourceDJE,
			BaseURL:          "https://dje.tjsp.jus.br/cdje/",
			Query:            `"RPV" e "pagamento pelo INSS"`,
			Section:          12,
			MaxPagesPerIssue: 5000,
			MaxSearchPages:   50,
			MinTextLength:    50,
			BufferSizeKb:     8192,
			RequestDelayMs:   500,
			Browser: BrowserConfig{
				Headless:   true,
				TimeoutSec: 60,
			},
			Retry: RetryPolicy{
				MaxAttempts:       3,
				InitialDelayMs:    1000,
				MaxDelayMs:        10000,
				BackoffMultiplier: 2.0,
				TimeoutSec:        60,
			},
		},
		Pipeline: PipelineConfig{
			Keywords:             []string{"RPV", "pagamento pelo INSS"},
			Defendant:            "Instituto Nacional do Seguro Social - INSS",
			MaxContinuationPages: 5,
			MaxTextLength:        1000000,
			FirstRunLookbackDays: 31,
		},
		Storage: StorageConfig{
			Driver:           DriverPostgres,
			Host:             "localhost",
			Port:             5432,
			Name:             "db_juscash",
			Username:         "postgres",
			SSLMode:          "disable",
			MaxConns:         10,
			ConnectAttempts:  5,
			ConnectDelaySec:  5,
			RetryAttempts:    3,
			RetryDelayMs:     2000,
			IdleTxTimeoutMin: 5,
			AutoMigrate:      true,
		},
		Schedule: ScheduleConfig{
			Timezone:      "America/Sao_Paulo",
			Expressions:   []string{"0 7,12,20 * * 1-5"},
			SkipWeekends:  true,
			LockTTLSec:    3600,
			RunTimeoutMin: 50,
		},
		API: APIConfig{
			Address:  ":3000",
			MaxLimit: 100,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "dje-worker",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig loads configuration from a YAML file over the defaults, then
// applies environment overrides.
func LoadConfig(filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	ApplyEnv(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves configuration to YAML file.
func (c *Config) SaveConfig(filepath string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filepath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overrides cfg from DJE_* variables (DJE_STORAGE_HOST,
// DJE_API_JWT_SECRET, ...) and the DB_* variables used by existing deployments.
func ApplyEnv(cfg *Config) {
	v := viper.New()
	v.SetEnvPrefix("DJE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	legacy := map[string]string{
		"storage.host":     "DB_HOST",
		"storage.port":     "DB_PORT",
		"storage.name":     "DB_NAME",
		"storage.username": "DB_USERNAME",
		"storage.password": "DB_PASSWORD",
	}

	for key, env := range legacy {
		_ = v.BindEnv(key, "DJE_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env)
	}

	strs := map[string]*string{
		"source.kind":             &cfg.Source.Kind,
		"source.base_url":         &cfg.Source.BaseURL,
		"source.directory":        &cfg.Source.Directory,
		"storage.driver":          &cfg.Storage.Driver,
		"storage.host":            &cfg.Storage.Host,
		"storage.name":            &cfg.Storage.Name,
		"storage.username":        &cfg.Storage.Username,
		"storage.password":        &cfg.Storage.Password,
		"storage.path":            &cfg.Storage.Path,
		"schedule.redis.address":  &cfg.Schedule.Redis.Address,
		"schedule.redis.password": &cfg.Schedule.Redis.Password,
		"api.address":             &cfg.API.Address,
		"api.jwt_secret":          &cfg.API.JWTSecret,
		"telemetry.otlp_endpoint": &cfg.Telemetry.OTLPEndpoint,
		"logging.level":           &cfg.Logging.Level,
		"logging.format":          &cfg.Logging.Format,
	}

	for key, dst := range strs {
		if val := v.GetString(key); val != "" {
			*dst = val
		}
	}

	ints := map[string]*int{
		"storage.port":      &cfg.Storage.Port,
		"schedule.redis.db": &cfg.Schedule.Redis.DB,
	}

	for key, dst := range ints {
		if v.GetString(key) != "" {
			*dst = v.GetInt(key)
		}
	}

	if v.GetString("source.browser.enabled") != "" {
		cfg.Source.Browser.Enabled = v.GetBool("source.browser.enabled")
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	// Check source config
	switch c.Source.Kind {
	case SourceDJE:
		u, err := url.Parse(c.Source.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return ErrMissingBaseURL
		}
	case SourceFile:
		if c.Source.Directory == "" {
			return ErrMissingDirectory
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidSourceKind, c.Source.Kind)
	}

	if c.Source.MaxPagesPerIssue < 1 {
		return ErrInvalidMaxPages
	}

	// Validate retry policy
	if c.Source.Retry.MaxAttempts < 1 {
		return ErrInvalidMaxAttempts
	}

	if c.Source.Retry.InitialDelayMs < 0 {
		return ErrInvalidInitialDelay
	}

	if c.Source.Retry.BackoffMultiplier < 1.0 {
		return ErrInvalidBackoffMultiplier
	}

	if c.Source.Retry.TimeoutSec < 1 {
		return ErrInvalidTimeout
	}

	// Validate pipeline config
	if len(c.Pipeline.Keywords) == 0 {
		return ErrNoKeywords
	}

	if c.Pipeline.MaxContinuationPages < 1 {
		return ErrInvalidContinuation
	}

	if c.Pipeline.MaxTextLength < 1 {
		return ErrInvalidTextLength
	}

	if c.Pipeline.FirstRunLookbackDays < 0 {
		return ErrInvalidLookback
	}

	anchors := map[string]string{
		"start_anchor": c.Pipeline.StartAnchor,
		"end_anchor":   c.Pipeline.EndAnchor,
	}

	for name, pattern := range anchors {
		if pattern != "" {
			if _, err := regexp.Compile(pattern); err != nil {
				return fmt.Errorf("pipeline.%s is invalid regex: %w", name, err)
			}
		}
	}

	// Validate storage config
	switch c.Storage.Driver {
	case DriverPostgres:
		if c.Storage.Name == "" {
			return ErrMissingDatabase
		}
	case DriverSQLite:
		if c.Storage.Path == "" {
			return ErrMissingSQLitePath
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidDriver, c.Storage.Driver)
	}

	// Validate schedule config
	if len(c.Schedule.Expressions) == 0 {
		return ErrNoSchedule
	}

	if _, err := c.Schedule.Location(); err != nil {
		return err
	}

	// Validate logging config
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return ErrInvalidLogLevel
	}

	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return ErrInvalidLogFormat
	}

	return nil
}

// GetRetryDelay calculates exponential backoff delay for attempt number.
func (rp *RetryPolicy) GetRetryDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}

	delayMs := float64(rp.InitialDelayMs)
	for i := 1; i < attempt; i++ {
		delayMs *= rp.BackoffMultiplier
	}

	// Cap at max delay
	if int(delayMs) > rp.MaxDelayMs {
		delayMs = float64(rp.MaxDelayMs)
	}

	return time.Duration(int(delayMs)) * time.Millisecond
}

// GetTimeout returns the timeout duration.
func (rp *RetryPolicy) GetTimeout() time.Duration {
	return time.Duration(rp.TimeoutSec) * time.Second
}

// String returns a string representation of the config.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Source: %s, Storage: %s, Schedules: %d, MaxAttempts: %d}",
		c.Source.Kind,
		c.Storage.Driver,
		len(c.Schedule.Expressions),
		c.Source.Retry.MaxAttempts,
	)
}
