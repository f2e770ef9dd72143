package nocodb

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"noco-bridge/internal/domain"
	"noco-bridge/internal/nocodbtest"
)

const testBaseID = "p_impact"

// testTables mirrors a small impact-tracking base: actors link to the zones
// they work in (many-to-many) and to a parent actor (belongs-to).
func testTables() []nocodbtest.TableSpec {
	return []nocodbtest.TableSpec{
		{
			ID:    "t_zone",
			Title: "Zone",
			Fields: []nocodbtest.FieldSpec{
				{ID: "f_zone_code", Title: "Code", Type: "SingleLineText"},
				{ID: "f_zone_title", Title: "Title", Type: "SingleLineText"},
			},
			Views: []nocodbtest.ViewSpec{{ID: "vw_active", Title: "Active"}},
		},
		{
			ID:    "t_actor",
			Title: "Actor",
			Fields: []nocodbtest.FieldSpec{
				{ID: "f_actor_name", Title: "Name", Type: "SingleLineText"},
				{ID: "f_actor_zones", Title: "Zones", Type: "Links", RelationType: "mm", RelatedTableID: "t_zone"},
				{ID: "f_actor_parent", Title: "Parent", Type: "LinkToAnotherRecord", RelationType: "bt", RelatedTableID: "t_actor"},
			},
		},
		{
			ID:    "t_interaction",
			Title: "Interaction",
			Fields: []nocodbtest.FieldSpec{
				{ID: "f_interaction_date", Title: "Date", Type: "Date"},
			},
		},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestServer starts a fake base with the standard tables.
func newTestServer(t *testing.T) *nocodbtest.Server {
	t.Helper()
	return nocodbtest.New(t, testBaseID, testTables()...)
}

// newTestClient discovers the server's schema and clears the request log, so
// tests only see the requests of the operation under test.
func newTestClient(t *testing.T, srv *nocodbtest.Server, mutate ...func(*Options)) *Client {
	t.Helper()
	opts := Options{
		BaseURL: srv.URL,
		BaseID:  testBaseID,
		Token:   nocodbtest.Token,
		Logger:  discardLogger(),
	}
	for _, m := range mutate {
		m(&opts)
	}
	c, err := New(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	srv.ResetRequests()
	return c
}

func withNullPolicy(p NullPolicy) func(*Options) {
	return func(o *Options) { o.NullPolicy = p }
}

func withLogBuffer(buf *bytes.Buffer) func(*Options) {
	return func(o *Options) { o.Logger = slog.New(slog.NewTextHandler(buf, nil)) }
}

// recordSet builds a set from flat rows, failing the test on bad input.
func recordSet(t *testing.T, rows ...map[string]interface{}) domain.RecordSet {
	t.Helper()
	rs := domain.NewRecordSet()
	for _, row := range rows {
		require.NoError(t, rs.Append(row))
	}
	return rs
}

func batchSizes(reqs []nocodbtest.Request) []int {
	out := make([]int, len(reqs))
	for i, r := range reqs {
		out[i] = r.BodyLen()
	}
	return out
}
