package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// MonthLayout is the layout accepted by the -d/--download-month flag
const MonthLayout = "2006-01"

// Config holds all configuration options for the Fantia downloader.
// It is assembled once at startup and passed by reference; nothing mutates
// it after Load returns.
type Config struct {
	// Session credentials
	Session SessionConfig `yaml:"session" json:"session"`

	// Download behavior
	Download DownloadConfig `yaml:"download" json:"download"`

	// Completion ledger persistence
	Ledger LedgerConfig `yaml:"ledger" json:"ledger"`

	// Output settings
	Output OutputConfig `yaml:"output" json:"output"`

	// Rate limiting configuration
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// SessionConfig holds the Fantia session material
type SessionConfig struct {
	// Cookie is either a raw _session_id value or a path to a cookies.txt file
	Cookie    string `yaml:"cookie" json:"cookie"`
	UserAgent string `yaml:"user_agent" json:"user_agent"`
}

// DownloadConfig holds download-specific configuration
type DownloadConfig struct {
	Limit               int           `yaml:"limit" json:"limit"`
	Month               string        `yaml:"month" json:"month"`
	NewPosts            int           `yaml:"new_posts" json:"new_posts"`
	Fanclubs            bool          `yaml:"fanclubs" json:"fanclubs"`
	PaidFanclubs        bool          `yaml:"paid_fanclubs" json:"paid_fanclubs"`
	Thumbnails          bool          `yaml:"thumbnails" json:"thumbnails"`
	ExternalLinks       bool          `yaml:"external_links" json:"external_links"`
	UseServerFilenames  bool          `yaml:"use_server_filenames" json:"use_server_filenames"`
	DumpMetadata        bool          `yaml:"dump_metadata" json:"dump_metadata"`
	MarkIncompletePosts bool          `yaml:"mark_incomplete_posts" json:"mark_incomplete_posts"`
	IgnoreErrors        bool          `yaml:"ignore_errors" json:"ignore_errors"`
	ExcludeFile         string        `yaml:"exclude_file" json:"exclude_file"`
	ConcurrentDownloads int           `yaml:"concurrent_downloads" json:"concurrent_downloads"`
	DownloadTimeout     time.Duration `yaml:"download_timeout" json:"download_timeout"`
}

// LedgerConfig holds completion ledger configuration
type LedgerConfig struct {
	// Path to the SQLite database; empty disables persistence entirely
	Path string `yaml:"path" json:"path"`
	// BypassPostCheck forces reprocessing of posts already marked completed
	BypassPostCheck bool `yaml:"bypass_post_check" json:"bypass_post_check"`
}

// OutputConfig holds output directory configuration
type OutputConfig struct {
	BaseDirectory string `yaml:"base_directory" json:"base_directory"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int           `yaml:"requests_per_minute" json:"requests_per_minute"`
	MaxRetries        int           `yaml:"max_retries" json:"max_retries"`
	RetryDelay        time.Duration `yaml:"retry_delay" json:"retry_delay"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
	Quiet bool   `yaml:"quiet" json:"quiet"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Session: SessionConfig{
			UserAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
		},
		Download: DownloadConfig{
			Limit:               0,
			ConcurrentDownloads: 3,
			DownloadTimeout:     60 * time.Second,
		},
		Output: OutputConfig{
			BaseDirectory: ".",
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
			MaxRetries:        3,
			RetryDelay:        5 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if cookie := os.Getenv("FANTIADL_SESSION_COOKIE"); cookie != "" {
		c.Session.Cookie = cookie
	}
	if userAgent := os.Getenv("FANTIADL_USER_AGENT"); userAgent != "" {
		c.Session.UserAgent = userAgent
	}
	if outputDir := os.Getenv("FANTIADL_OUTPUT_DIR"); outputDir != "" {
		c.Output.BaseDirectory = outputDir
	}
	if dbPath := os.Getenv("FANTIADL_DB_PATH"); dbPath != "" {
		c.Ledger.Path = dbPath
	}
	if rpm := os.Getenv("FANTIADL_REQUESTS_PER_MINUTE"); rpm != "" {
		var val int
		fmt.Sscanf(rpm, "%d", &val)
		if val > 0 {
			c.RateLimit.RequestsPerMinute = val
		}
	}
	if concurrent := os.Getenv("FANTIADL_CONCURRENT_DOWNLOADS"); concurrent != "" {
		var val int
		fmt.Sscanf(concurrent, "%d", &val)
		if val > 0 {
			c.Download.ConcurrentDownloads = val
		}
	}
	if logLevel := os.Getenv("FANTIADL_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	locations := []string{
		".fantiadl.yaml",
		".fantiadl.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "fantiadl", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", "fantiadl", "config.yml"),
		filepath.Join(os.Getenv("HOME"), ".fantiadl.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid, including the flag
// exclusion rules the CLI documents
func (c *Config) Validate() error {
	var errs []error

	if c.Download.Limit < 0 {
		errs = append(errs, errors.New("post limit cannot be negative"))
	}
	if c.Download.NewPosts < 0 {
		errs = append(errs, errors.New("new post count cannot be negative"))
	}
	if c.Download.Limit > 0 && c.Download.Month != "" {
		errs = append(errs, errors.New("-l/--limit and -d/--download-month are mutually exclusive"))
	}
	if c.Download.NewPosts > 0 && c.Download.Fanclubs {
		errs = append(errs, errors.New("-n/--download-new-posts and -f/--download-fanclubs are mutually exclusive"))
	}
	if c.Download.Fanclubs && c.Download.PaidFanclubs {
		errs = append(errs, errors.New("-f/--download-fanclubs and -p/--download-paid-fanclubs are mutually exclusive"))
	}
	if c.Download.Month != "" {
		if _, err := time.Parse(MonthLayout, c.Download.Month); err != nil {
			errs = append(errs, fmt.Errorf("invalid month %q, expected YYYY-MM", c.Download.Month))
		}
	}

	if c.Download.ConcurrentDownloads <= 0 {
		errs = append(errs, errors.New("concurrent downloads must be positive"))
	}
	if c.Download.ConcurrentDownloads > 10 {
		errs = append(errs, errors.New("concurrent downloads should not exceed 10"))
	}
	if c.Download.DownloadTimeout <= 0 {
		errs = append(errs, errors.New("download timeout must be positive"))
	}

	if c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}
	if c.RateLimit.MaxRetries < 0 {
		errs = append(errs, errors.New("max retries cannot be negative"))
	}

	if c.Output.BaseDirectory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Load loads configuration from all sources with proper precedence.
// Precedence order: mutate function (CLI flags) > environment variables >
// .env file > config file > defaults.
func Load(configPath string, applyFlags func(*Config)) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".fantiadl.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if applyFlags != nil {
		applyFlags(config)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
