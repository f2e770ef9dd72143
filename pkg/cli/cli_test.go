package cli

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noco-bridge/internal/domain"
	"noco-bridge/internal/nocodbtest"
	"noco-bridge/internal/schema"
)

func TestTables_TableOutput(t *testing.T) {
	isolateEnv(t)
	srv := newCLIServer(t)

	out, err := runCLI(t, append(connFlags(srv), "tables")...)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 3, "header plus one line per table")
	assert.Contains(t, lines[0], "LINK FIELDS")
	assert.Contains(t, lines[1], "Actor")
	assert.Contains(t, lines[1], "t_actor")
	assert.Contains(t, lines[2], "Zone")
}

func TestTables_JSONOutput(t *testing.T) {
	isolateEnv(t)
	srv := newCLIServer(t)

	out, err := runCLI(t, append(connFlags(srv), "tables", "-o", "json")...)
	require.NoError(t, err)

	var tables []schema.Table
	require.NoError(t, json.Unmarshal([]byte(out), &tables))
	require.Len(t, tables, 2)
	assert.Equal(t, "Actor", tables[0].Name)
	require.Len(t, tables[0].LinkFields(), 1)
	assert.Equal(t, schema.ManyToMany, tables[0].LinkFields()[0].Link.Relation)
}

func TestConnection_Precedence(t *testing.T) {
	t.Run("environment", func(t *testing.T) {
		isolateEnv(t)
		srv := newCLIServer(t)
		t.Setenv("NOCODB_BASE_URL", srv.URL)
		t.Setenv("NOCODB_BASE_ID", cliBaseID)
		t.Setenv("NOCODB_API_TOKEN", nocodbtest.Token)

		_, err := runCLI(t, "tables")
		require.NoError(t, err)
	})

	t.Run("profile", func(t *testing.T) {
		isolateEnv(t)
		srv := newCLIServer(t)
		require.NoError(t, SaveUserConfig(&UserConfig{
			CurrentProfile: "local",
			Profiles: map[string]Profile{
				"local": {Host: srv.URL, BaseID: cliBaseID, Token: nocodbtest.Token, Output: "json"},
			},
		}))

		out, err := runCLI(t, "tables")
		require.NoError(t, err)
		assert.True(t, json.Valid([]byte(out)), "profile output format applies")
	})

	t.Run("flag over environment over profile", func(t *testing.T) {
		isolateEnv(t)
		srv := newCLIServer(t)
		require.NoError(t, SaveUserConfig(&UserConfig{
			CurrentProfile: "default",
			Profiles: map[string]Profile{
				"default": {Host: "http://127.0.0.1:1", BaseID: "p_wrong", Token: "wrong"},
			},
		}))
		t.Setenv("NOCODB_BASE_URL", srv.URL)
		t.Setenv("NOCODB_API_TOKEN", "also-wrong")

		_, err := runCLI(t, "--base", cliBaseID, "--token", nocodbtest.Token, "tables")
		require.NoError(t, err)
	})

	t.Run("missing token", func(t *testing.T) {
		isolateEnv(t)
		_, err := runCLI(t, "--base", cliBaseID, "tables")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "NOCODB_API_TOKEN")
	})
}

func TestDescribe(t *testing.T) {
	isolateEnv(t)
	srv := newCLIServer(t)

	out, err := runCLI(t, append(connFlags(srv), "describe", "Actor")...)
	require.NoError(t, err)

	assert.Contains(t, out, "t_actor")
	var zonesLine string
	for _, line := range strings.Split(out, "\n") {
		if strings.HasPrefix(line, "Zones") {
			zonesLine = line
		}
	}
	require.NotEmpty(t, zonesLine)
	assert.Contains(t, zonesLine, "f_zones")
	assert.Contains(t, zonesLine, "mm")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(zonesLine), "Zone"), "related table shown by name")
}

func TestDescribe_Views(t *testing.T) {
	isolateEnv(t)
	srv := newCLIServer(t)

	out, err := runCLI(t, append(connFlags(srv), "describe", "Zone")...)
	require.NoError(t, err)
	assert.Contains(t, out, "All zones")
	assert.Contains(t, out, "vw_all")
}

func TestDescribe_UnknownTable(t *testing.T) {
	isolateEnv(t)
	srv := newCLIServer(t)

	_, err := runCLI(t, append(connFlags(srv), "describe", "Zones")...)
	require.ErrorIs(t, err, domain.ErrUnknownTable)
	assert.Contains(t, err.Error(), `"Actor", "Zone"`)
}

func TestRecordsList(t *testing.T) {
	isolateEnv(t)
	srv := newCLIServer(t)
	srv.Seed("t_zone",
		map[string]interface{}{"Code": "FR", "Title": "France"},
		map[string]interface{}{"Code": "ES", "Title": "Spain"},
	)

	out, err := runCLI(t, append(connFlags(srv), "records", "list", "Zone", "--fields", "Code,Title", "--where", "Code=ES")...)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "ID")
	assert.Contains(t, lines[0], "CODE")
	assert.Contains(t, lines[1], "Spain")

	reqs := srv.DataRequests(http.MethodGet)
	require.Len(t, reqs, 1)
	assert.Equal(t, "25", reqs[0].Query.Get("pageSize"))
	assert.Equal(t, "(Code,eq,ES)", reqs[0].Query.Get("where"))
}

func TestRecordsList_AllAsJSON(t *testing.T) {
	isolateEnv(t)
	srv := newCLIServer(t)
	srv.SeedN("t_zone", 30, func(i int) map[string]interface{} {
		return map[string]interface{}{"Code": "Z", "Title": strings.Repeat("x", i+1)}
	})

	out, err := runCLI(t, append(connFlags(srv), "-o", "json", "records", "list", "Zone", "--all", "--view", "All zones")...)
	require.NoError(t, err)

	var records []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.Len(t, records, 30)
	assert.EqualValues(t, 1, records[0]["Id"])
	assert.Equal(t, "x", records[0]["Title"])

	reqs := srv.DataRequests(http.MethodGet)
	require.Len(t, reqs, 1)
	assert.Equal(t, "vw_all", reqs[0].Query.Get("viewId"))
}

func TestRecordsList_InvalidWhere(t *testing.T) {
	isolateEnv(t)
	srv := newCLIServer(t)

	_, err := runCLI(t, append(connFlags(srv), "records", "list", "Zone", "--where", "Code")...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected field=value")
	assert.Empty(t, srv.Requests())
}

func TestRecordsDelete(t *testing.T) {
	isolateEnv(t)
	srv := newCLIServer(t)
	srv.Seed("t_actor",
		map[string]interface{}{"Name": "a"},
		map[string]interface{}{"Name": "b"},
		map[string]interface{}{"Name": "c"},
	)

	out, err := runCLI(t, append(connFlags(srv), "records", "delete", "Actor", "1", "3", "--batch-size", "1")...)
	require.NoError(t, err)
	assert.Contains(t, out, "Deleted 2 record(s) from Actor")
	assert.Equal(t, 1, srv.RowCount("t_actor"))
	assert.Len(t, srv.DataRequests(http.MethodDelete), 2)
}

func TestRecordsDelete_InvalidID(t *testing.T) {
	isolateEnv(t)
	srv := newCLIServer(t)

	_, err := runCLI(t, append(connFlags(srv), "records", "delete", "Actor", "abc")...)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid record id "abc"`)
}

func TestRootCmd_InvalidOutputFormat(t *testing.T) {
	isolateEnv(t)

	_, err := runCLI(t, "-o", "yaml", "version")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported output format")
}

func TestVersion(t *testing.T) {
	isolateEnv(t)

	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "noco version dev (commit: none)\n", out)
}

func TestErrorObject(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want map[string]interface{}
	}{
		{
			name: "validation",
			err:  &domain.ValidationError{Operation: "insert", StatusCode: 422, Payload: "bad"},
			want: map[string]interface{}{"http_status": 422, "payload": "bad"},
		},
		{
			name: "transport",
			err:  &domain.TransportError{Method: "GET", Path: "/x", StatusCode: 500},
			want: map[string]interface{}{"http_status": 500},
		},
		{
			name: "schema",
			err:  domain.ErrSchema(domain.KindUnknownTable, []string{"A"}, "unknown table: B"),
			want: map[string]interface{}{"code": "unknown_table", "available": []string{"A"}},
		},
		{
			name: "input",
			err:  domain.ErrInput(domain.KindMissingIdentifier, "null id"),
			want: map[string]interface{}{"code": "missing_identifier"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj := errorObject(tt.err)
			assert.Equal(t, tt.err.Error(), obj["error"])
			for k, v := range tt.want {
				assert.Equal(t, v, obj[k], k)
			}
		})
	}
}
