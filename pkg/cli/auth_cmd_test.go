package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthLogin(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		stdin       string
		wantProfile string
		wantToken   string
		wantErr     string
	}{
		{
			name:        "token from stdin",
			args:        []string{"auth", "login"},
			stdin:       "nc_pat_from_stdin_0001\n",
			wantProfile: "default",
			wantToken:   "nc_pat_from_stdin_0001",
		},
		{
			name:        "token flag into named profile",
			args:        []string{"--profile", "prod", "--token", "nc_pat_from_flag_0002", "auth", "login"},
			wantProfile: "prod",
			wantToken:   "nc_pat_from_flag_0002",
		},
		{
			name:    "empty input",
			args:    []string{"auth", "login"},
			stdin:   "\n",
			wantErr: "no token provided",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolateEnv(t)

			rootCmd := newRootCmd()
			rootCmd.SetArgs(tt.args)
			rootCmd.SetIn(strings.NewReader(tt.stdin))
			restore := captureStdout(t)
			err := rootCmd.Execute()
			out := restore()

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Contains(t, out, tt.wantProfile)
			assert.NotContains(t, out, tt.wantToken, "token is masked in output")

			cfg, err := LoadUserConfig()
			require.NoError(t, err)
			assert.Equal(t, tt.wantToken, cfg.Profiles[tt.wantProfile].Token)
		})
	}
}

func TestReadToken_NonTerminal(t *testing.T) {
	token, err := readToken(strings.NewReader("  abc  "), nil)
	require.NoError(t, err)
	assert.Equal(t, "abc", token)
}
