package cli

import (
	"bytes"
	"os"
	"testing"

	"noco-bridge/internal/nocodbtest"
)

const cliBaseID = "p_cli"

// captureStdout redirects os.Stdout to a pipe and returns a function
// that restores stdout and returns the captured output.
// Uses a goroutine to read concurrently, avoiding pipe buffer deadlocks.
func captureStdout(t *testing.T) func() string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	os.Stdout = w

	var buf bytes.Buffer
	done := make(chan struct{})
	go func() {
		_, _ = buf.ReadFrom(r)
		close(done)
	}()

	return func() string {
		_ = w.Close()
		<-done
		os.Stdout = old
		return buf.String()
	}
}

// isolateEnv points HOME at a temp dir and blanks every NOCODB_* variable,
// so neither a real profile nor the host environment leaks into a test.
// Logging is limited to errors.
func isolateEnv(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	for _, k := range []string{
		"NOCODB_API_TOKEN", "NOCODB_BASE_URL", "NOCODB_BASE_ID", "NOCODB_SCHEMA_DOC",
		"NOCODB_TIMEOUT", "NOCODB_BATCH_SIZE", "NOCODB_RATE_LIMIT_RPS", "NOCODB_RATE_LIMIT_BURST",
		"NOCODB_NULL_POLICY", "NOCODB_OUTPUT",
	} {
		t.Setenv(k, "")
	}
	t.Setenv("LOG_LEVEL", "error")
}

// runCLI executes a fresh root command and returns what it printed.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	rootCmd := newRootCmd()
	rootCmd.SetArgs(args)
	restore := captureStdout(t)
	err := rootCmd.Execute()
	return restore(), err
}

// newCLIServer starts a fake base with a zone table and an actor table
// linking to it.
func newCLIServer(t *testing.T) *nocodbtest.Server {
	t.Helper()
	return nocodbtest.New(t, cliBaseID,
		nocodbtest.TableSpec{
			ID:    "t_zone",
			Title: "Zone",
			Fields: []nocodbtest.FieldSpec{
				{ID: "f_code", Title: "Code", Type: "SingleLineText"},
				{ID: "f_title", Title: "Title", Type: "SingleLineText"},
			},
			Views: []nocodbtest.ViewSpec{{ID: "vw_all", Title: "All zones"}},
		},
		nocodbtest.TableSpec{
			ID:    "t_actor",
			Title: "Actor",
			Fields: []nocodbtest.FieldSpec{
				{ID: "f_name", Title: "Name", Type: "SingleLineText"},
				{ID: "f_zones", Title: "Zones", Type: "Links", RelationType: "mm", RelatedTableID: "t_zone"},
			},
		},
	)
}

// connFlags returns the flags that point a command at srv.
func connFlags(srv *nocodbtest.Server) []string {
	return []string{"--url", srv.URL, "--base", cliBaseID, "--token", nocodbtest.Token}
}
