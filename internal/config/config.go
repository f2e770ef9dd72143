// Package config handles client configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"noco-bridge/internal/nocodb"
)

// DefaultBaseURL is the hosted NocoDB instance.
const DefaultBaseURL = "https://app.nocodb.com"

// Config holds the settings needed to build a NocoDB client.
type Config struct {
	APIToken  string // NocoDB API token (xc-token)
	BaseURL   string // server root (default https://app.nocodb.com)
	BaseID    string // base to discover; not needed with SchemaDoc
	SchemaDoc string // path of a pre-fetched API description; enables static mode

	Timeout    time.Duration     // per-request timeout (default 30s)
	BatchSize  int               // records per write request (default 10)
	NullPolicy nocodb.NullPolicy // skip (default) or reject
	LogLevel   string            // log level: debug, info, warn, error (default "info")

	// Client-side request pacing. Zero RPS disables it.
	RateLimitRPS   float64
	RateLimitBurst int

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// StaticMode reports whether the schema comes from a document rather than
// the metadata endpoints.
func (c *Config) StaticMode() bool {
	return c.SchemaDoc != ""
}

// ClientOptions maps the configuration onto nocodb.Options.
func (c *Config) ClientOptions(logger *slog.Logger) nocodb.Options {
	return nocodb.Options{
		BaseURL:           c.BaseURL,
		BaseID:            c.BaseID,
		Token:             c.APIToken,
		DocumentPath:      c.SchemaDoc,
		Timeout:           c.Timeout,
		RequestsPerSecond: c.RateLimitRPS,
		Burst:             c.RateLimitBurst,
		NullPolicy:        c.NullPolicy,
		Logger:            logger,
	}
}

// LoadFromEnv loads configuration from NOCODB_* environment variables.
func LoadFromEnv() (*Config, error) {
	return Load(os.Getenv)
}

// Load builds a Config from a variable lookup. Callers layering other
// sources (flags, profiles) over the environment pass their own lookup.
func Load(getenv func(key string) string) (*Config, error) {
	cfg := &Config{
		APIToken:  strings.TrimSpace(getenv("NOCODB_API_TOKEN")),
		BaseURL:   strings.TrimSpace(getenv("NOCODB_BASE_URL")),
		BaseID:    strings.TrimSpace(getenv("NOCODB_BASE_ID")),
		SchemaDoc: strings.TrimSpace(getenv("NOCODB_SCHEMA_DOC")),
		LogLevel:  getenv("LOG_LEVEL"),
	}

	if v := getenv("NOCODB_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid NOCODB_TIMEOUT %q: expected a positive duration such as 30s", v)
		}
		cfg.Timeout = d
	}
	if v := getenv("NOCODB_BATCH_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid NOCODB_BATCH_SIZE %q: expected a positive integer", v)
		}
		cfg.BatchSize = n
	}

	// Rate limiting
	if v := getenv("NOCODB_RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimitRPS = f
		} else {
			cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("ignoring invalid NOCODB_RATE_LIMIT_RPS %q", v))
		}
	}
	if v := getenv("NOCODB_RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimitBurst = n
		} else {
			cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("ignoring invalid NOCODB_RATE_LIMIT_BURST %q", v))
		}
	}

	policy, err := nocodb.ParseNullPolicy(strings.ToLower(strings.TrimSpace(getenv("NOCODB_NULL_POLICY"))))
	if err != nil {
		return nil, fmt.Errorf("invalid NOCODB_NULL_POLICY: %w", err)
	}
	cfg.NullPolicy = policy

	// Defaults
	if cfg.BaseURL == "" && !cfg.StaticMode() {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = nocodb.DefaultBatchSize
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.RateLimitRPS > 0 && cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 1
	}

	if cfg.APIToken == "" {
		return nil, fmt.Errorf("NOCODB_API_TOKEN is required")
	}
	if cfg.BaseID == "" && !cfg.StaticMode() {
		return nil, fmt.Errorf("NOCODB_BASE_ID is required unless NOCODB_SCHEMA_DOC is set")
	}
	if cfg.StaticMode() && cfg.BaseID != "" {
		cfg.Warnings = append(cfg.Warnings, "NOCODB_BASE_ID is ignored when NOCODB_SCHEMA_DOC is set; the document names the base")
	}
	if cfg.BatchSize > nocodb.MaxPageSize {
		cfg.Warnings = append(cfg.Warnings,
			fmt.Sprintf("NOCODB_BATCH_SIZE %d is larger than the server page limit %d; requests may be rejected", cfg.BatchSize, nocodb.MaxPageSize))
	}

	return cfg, nil
}

// LoadDotEnv reads a .env file and sets any variables not already in the environment.
// Lines must be in KEY=VALUE format. Comments (#) and blank lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = stripQuotes(strings.TrimSpace(value))
		// Env vars take precedence.
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
