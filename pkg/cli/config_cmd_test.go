package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskSecret(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", ""},
		{"short", "abc", "****"},
		{"exactly_10", "1234567890", "****"},
		{"long_token", "nc_pat_0123456789abcdef", "nc_p****cdef"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, maskSecret(tt.input))
		})
	}
}

func TestMaskConfig(t *testing.T) {
	cfg := &UserConfig{
		CurrentProfile: "default",
		Profiles: map[string]Profile{
			"default": {
				Host:   "https://noco.example.org",
				BaseID: "p_abc",
				Token:  "nc_pat_0123456789abcdef",
			},
		},
	}

	masked := maskConfig(cfg)

	// Non-sensitive fields preserved.
	assert.Equal(t, "https://noco.example.org", masked.Profiles["default"].Host)
	assert.Equal(t, "p_abc", masked.Profiles["default"].BaseID)
	assert.Equal(t, "default", masked.CurrentProfile)

	assert.Equal(t, "nc_p****cdef", masked.Profiles["default"].Token)

	// Original config not mutated.
	assert.Equal(t, "nc_pat_0123456789abcdef", cfg.Profiles["default"].Token)
}

func TestConfigSetProfileShowUse(t *testing.T) {
	isolateEnv(t)

	_, err := runCLI(t, "config", "set-profile", "--name", "prod",
		"--host", "https://noco.example.org", "--base-id", "p_prod", "--token", "nc_pat_0123456789abcdef")
	require.NoError(t, err)

	_, err = runCLI(t, "config", "set-profile", "--name", "offline", "--schema-doc", "/tmp/swagger.json")
	require.NoError(t, err)

	out, err := runCLI(t, "config", "use-profile", "prod")
	require.NoError(t, err)
	assert.Contains(t, out, `Active profile set to "prod"`)

	out, err = runCLI(t, "-o", "json", "config", "show")
	require.NoError(t, err)

	var shown UserConfig
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	assert.Equal(t, "prod", shown.CurrentProfile)
	assert.Equal(t, "p_prod", shown.Profiles["prod"].BaseID)
	assert.Equal(t, "nc_p****cdef", shown.Profiles["prod"].Token)
	assert.Equal(t, "/tmp/swagger.json", shown.Profiles["offline"].SchemaDoc)

	cfg, err := LoadUserConfig()
	require.NoError(t, err)
	assert.Equal(t, "nc_pat_0123456789abcdef", cfg.Profiles["prod"].Token, "stored token is not masked")
}

func TestConfigShow_Reveal(t *testing.T) {
	isolateEnv(t)
	require.NoError(t, SaveUserConfig(&UserConfig{
		CurrentProfile: "default",
		Profiles:       map[string]Profile{"default": {Token: "nc_pat_0123456789abcdef"}},
	}))

	out, err := runCLI(t, "config", "show", "--reveal")
	require.NoError(t, err)
	assert.Contains(t, out, "nc_pat_0123456789abcdef")
	assert.Contains(t, out, "current-profile: default")
}

func TestConfigUseProfile_Unknown(t *testing.T) {
	isolateEnv(t)
	require.NoError(t, SaveUserConfig(&UserConfig{CurrentProfile: "default", Profiles: map[string]Profile{}}))

	_, err := runCLI(t, "config", "use-profile", "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `profile "missing" not found`)
}

func TestConfigSetProfile_InvalidOutput(t *testing.T) {
	isolateEnv(t)

	_, err := runCLI(t, "config", "set-profile", "--name", "x", "--output", "csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported output format")
}
