package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noco-bridge/internal/nocodb"
)

var allVars = []string{
	"NOCODB_API_TOKEN", "NOCODB_BASE_URL", "NOCODB_BASE_ID", "NOCODB_SCHEMA_DOC",
	"NOCODB_TIMEOUT", "NOCODB_BATCH_SIZE", "NOCODB_RATE_LIMIT_RPS", "NOCODB_RATE_LIMIT_BURST",
	"NOCODB_NULL_POLICY", "LOG_LEVEL",
}

// clearEnv blanks every variable the loader reads, so the host environment
// cannot leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allVars {
		t.Setenv(k, "")
	}
}

func TestLoadFromEnv_AllVarsSet(t *testing.T) {
	clearEnv(t)
	t.Setenv("NOCODB_API_TOKEN", " tok ")
	t.Setenv("NOCODB_BASE_URL", "https://noco.example.org/")
	t.Setenv("NOCODB_BASE_ID", "p_impact")
	t.Setenv("NOCODB_TIMEOUT", "5s")
	t.Setenv("NOCODB_BATCH_SIZE", "50")
	t.Setenv("NOCODB_RATE_LIMIT_RPS", "2.5")
	t.Setenv("NOCODB_RATE_LIMIT_BURST", "4")
	t.Setenv("NOCODB_NULL_POLICY", "Reject")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "tok", cfg.APIToken)
	assert.Equal(t, "https://noco.example.org", cfg.BaseURL)
	assert.Equal(t, "p_impact", cfg.BaseID)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.InDelta(t, 2.5, cfg.RateLimitRPS, 1e-9)
	assert.Equal(t, 4, cfg.RateLimitBurst)
	assert.Equal(t, nocodb.NullReject, cfg.NullPolicy)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	assert.Empty(t, cfg.Warnings)
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("NOCODB_API_TOKEN", "tok")
	t.Setenv("NOCODB_BASE_ID", "p1")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, nocodb.DefaultBatchSize, cfg.BatchSize)
	assert.Equal(t, nocodb.NullSkip, cfg.NullPolicy)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Zero(t, cfg.RateLimitRPS)
	assert.False(t, cfg.StaticMode())
}

func TestLoadFromEnv_RequiredVars(t *testing.T) {
	t.Run("token", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("NOCODB_BASE_ID", "p1")
		_, err := LoadFromEnv()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "NOCODB_API_TOKEN")
	})

	t.Run("base id", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("NOCODB_API_TOKEN", "tok")
		_, err := LoadFromEnv()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "NOCODB_BASE_ID")
	})
}

func TestLoadFromEnv_StaticMode(t *testing.T) {
	clearEnv(t)
	t.Setenv("NOCODB_API_TOKEN", "tok")
	t.Setenv("NOCODB_SCHEMA_DOC", "/etc/noco/swagger.json")
	t.Setenv("NOCODB_BASE_ID", "p1")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.True(t, cfg.StaticMode())
	assert.Empty(t, cfg.BaseURL, "static mode takes the server URL from the document")
	require.Len(t, cfg.Warnings, 1)
	assert.Contains(t, cfg.Warnings[0], "NOCODB_BASE_ID is ignored")

	opts := cfg.ClientOptions(nil)
	assert.Equal(t, "/etc/noco/swagger.json", opts.DocumentPath)
	assert.Equal(t, "tok", opts.Token)
}

func TestLoadFromEnv_InvalidValues(t *testing.T) {
	tests := []struct {
		key, value, wantInErr string
	}{
		{key: "NOCODB_TIMEOUT", value: "soon", wantInErr: "NOCODB_TIMEOUT"},
		{key: "NOCODB_TIMEOUT", value: "-1s", wantInErr: "NOCODB_TIMEOUT"},
		{key: "NOCODB_BATCH_SIZE", value: "0", wantInErr: "NOCODB_BATCH_SIZE"},
		{key: "NOCODB_NULL_POLICY", value: "ignore", wantInErr: "NOCODB_NULL_POLICY"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("NOCODB_API_TOKEN", "tok")
			t.Setenv("NOCODB_BASE_ID", "p1")
			t.Setenv(tt.key, tt.value)

			_, err := LoadFromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantInErr)
		})
	}
}

func TestLoadFromEnv_Warnings(t *testing.T) {
	clearEnv(t)
	t.Setenv("NOCODB_API_TOKEN", "tok")
	t.Setenv("NOCODB_BASE_ID", "p1")
	t.Setenv("NOCODB_RATE_LIMIT_RPS", "fast")
	t.Setenv("NOCODB_BATCH_SIZE", "5000")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	require.Len(t, cfg.Warnings, 2)
	assert.Contains(t, cfg.Warnings[0], "NOCODB_RATE_LIMIT_RPS")
	assert.Contains(t, cfg.Warnings[1], "larger than the server page limit")
}

func TestLoadFromEnv_BurstDefaultsWithRate(t *testing.T) {
	clearEnv(t)
	t.Setenv("NOCODB_API_TOKEN", "tok")
	t.Setenv("NOCODB_BASE_ID", "p1")
	t.Setenv("NOCODB_RATE_LIMIT_RPS", "3")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.RateLimitBurst)
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, (&Config{LogLevel: tt.in}).SlogLevel())
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := `# comment
NOCODB_API_TOKEN="from-file"
export NOCODB_BASE_ID='p_file'
NOCODB_BASE_URL=https://override.example

MALFORMED LINE
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	// Registering with t.Setenv restores the variables after the test.
	t.Setenv("NOCODB_API_TOKEN", "")
	t.Setenv("NOCODB_BASE_ID", "")
	t.Setenv("NOCODB_BASE_URL", "https://from-env.example")

	require.NoError(t, LoadDotEnv(path))

	assert.Equal(t, "from-file", os.Getenv("NOCODB_API_TOKEN"))
	assert.Equal(t, "p_file", os.Getenv("NOCODB_BASE_ID"))
	assert.Equal(t, "https://from-env.example", os.Getenv("NOCODB_BASE_URL"), "environment wins over .env")
}

func TestLoadDotEnv_MissingFile(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "absent.env")))
}

func TestStripQuotes(t *testing.T) {
	assert.Equal(t, "abc", stripQuotes(`"abc"`))
	assert.Equal(t, "abc", stripQuotes(`'abc'`))
	assert.Equal(t, `"abc'`, stripQuotes(`"abc'`))
	assert.Equal(t, `"`, stripQuotes(`"`))
}

func TestLoad_CustomLookup(t *testing.T) {
	vars := map[string]string{
		"NOCODB_API_TOKEN": "from-profile",
		"NOCODB_BASE_ID":   "p_profile",
		"LOG_LEVEL":        "warn",
	}
	cfg, err := Load(func(key string) string { return vars[key] })
	require.NoError(t, err)
	assert.Equal(t, "from-profile", cfg.APIToken)
	assert.Equal(t, "p_profile", cfg.BaseID)
	assert.Equal(t, slog.LevelWarn, cfg.SlogLevel())
}
