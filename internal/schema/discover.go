package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"

	"noco-bridge/internal/domain"
)

// Field types that mark relation fields.
const (
	TypeLinks               = "Links"
	TypeLinkToAnotherRecord = "LinkToAnotherRecord"
)

// Getter performs a GET against the API and decodes the JSON response.
// transport.Session implements it.
type Getter interface {
	GetJSON(ctx context.Context, path string, query url.Values, out interface{}) error
}

// DiscoverOptions configures live discovery through the metadata endpoints.
type DiscoverOptions struct {
	BaseID  string
	APIPath string // defaults to DefaultAPIPath
	Logger  *slog.Logger
}

type apiTableList struct {
	List []apiTable `json:"list"`
}

type apiTable struct {
	ID     string     `json:"id"`
	Title  string     `json:"title"`
	Fields []apiField `json:"fields"`
	Views  []apiView  `json:"views"`
}

type apiField struct {
	ID      string          `json:"id"`
	Title   string          `json:"title"`
	Type    string          `json:"type"`
	Options json.RawMessage `json:"options"`
}

type apiLinkOptions struct {
	RelationType   string `json:"relation_type"`
	RelatedTableID string `json:"related_table_id"`
}

type apiView struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Discover lists the tables of a base and fetches each table's fields and
// views. It fails on the first transport error and when the base has no
// tables, since nothing downstream can work with a partial registry.
func Discover(ctx context.Context, g Getter, opts DiscoverOptions) (*Registry, error) {
	if opts.BaseID == "" {
		return nil, fmt.Errorf("base ID is required for schema discovery")
	}
	apiPath := opts.APIPath
	if apiPath == "" {
		apiPath = DefaultAPIPath
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	tablesPath := fmt.Sprintf("%s/meta/bases/%s/tables", apiPath, url.PathEscape(opts.BaseID))

	var list apiTableList
	if err := g.GetJSON(ctx, tablesPath, nil, &list); err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	if len(list.List) == 0 {
		return nil, domain.ErrSchema(domain.KindNoTablesDiscovered, nil,
			"no tables found for base %q; check the base ID and that the API token has access", opts.BaseID)
	}

	tables := make([]Table, 0, len(list.List))
	for _, entry := range list.List {
		var detail apiTable
		if err := g.GetJSON(ctx, tablesPath+"/"+url.PathEscape(entry.ID), nil, &detail); err != nil {
			return nil, fmt.Errorf("fetch schema of table %s: %w", entry.Title, err)
		}
		t, err := buildTable(entry, detail)
		if err != nil {
			return nil, fmt.Errorf("table %s: %w", entry.Title, err)
		}
		logger.Debug("table discovered",
			"table", t.Name,
			"table_id", t.ID,
			"fields", len(t.Fields),
			"link_fields", len(t.LinkFields()),
			"views", len(t.Views))
		tables = append(tables, t)
	}

	logger.Info("schema discovered", "base_id", opts.BaseID, "tables", len(tables))
	return newRegistry("", apiPath, opts.BaseID, tables), nil
}

func buildTable(entry, detail apiTable) (Table, error) {
	t := Table{Name: entry.Title, ID: entry.ID}
	for _, f := range detail.Fields {
		field := Field{Name: f.Title, ID: f.ID, Type: f.Type}
		if isLinkType(f.Type) {
			var opts apiLinkOptions
			if len(f.Options) > 0 && string(f.Options) != "null" {
				if err := json.Unmarshal(f.Options, &opts); err != nil {
					return Table{}, fmt.Errorf("link field %s options: %w", f.Title, err)
				}
			}
			kind := RelationKind(opts.RelationType)
			if kind == "" {
				kind = ManyToMany
			}
			field.Link = &Link{RelatedTableID: opts.RelatedTableID, Relation: kind}
		}
		t.Fields = append(t.Fields, field)
	}
	for _, v := range detail.Views {
		t.Views = append(t.Views, View{Name: v.Title, ID: v.ID})
	}
	return t, nil
}

func isLinkType(typ string) bool {
	return typ == TypeLinks || typ == TypeLinkToAnotherRecord
}
