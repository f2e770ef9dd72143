// Package schema resolves the server-assigned identifiers of a NocoDB base
// (tables, fields, link fields and views) into an immutable Registry keyed by
// human-readable names.
package schema

import (
	"slices"
	"sort"

	"noco-bridge/internal/domain"
)

// DefaultAPIPath is the API prefix of the v3 endpoints.
const DefaultAPIPath = "/api/v3"

// RelationKind is the cardinality of a link field.
type RelationKind string

// Relation kinds as reported in the field options.
const (
	ManyToMany RelationKind = "mm"
	BelongsTo  RelationKind = "bt"
	HasMany    RelationKind = "hm"
	OneToOne   RelationKind = "oo"
)

// ListValued reports whether foreign keys for this relation may carry more
// than one identifier.
func (k RelationKind) ListValued() bool {
	return k != BelongsTo && k != OneToOne
}

// Field is a table column as declared on the server.
type Field struct {
	Name string `json:"name"`
	ID   string `json:"id"`
	Type string `json:"type"`

	// Link is set for relation fields only.
	Link *Link `json:"link,omitempty"`
}

// Link describes the relation carried by a link field.
type Link struct {
	RelatedTableID string       `json:"related_table_id"`
	Relation       RelationKind `json:"relation"`
}

// View is a saved filter/sort configuration of a table.
type View struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// Table is one resolved table.
type Table struct {
	Name   string  `json:"name"`
	ID     string  `json:"id"`
	Fields []Field `json:"fields"`
	Views  []View  `json:"views"`
}

// LinkFields returns the table's relation fields in declaration order.
func (t Table) LinkFields() []Field {
	var out []Field
	for _, f := range t.Fields {
		if f.Link != nil {
			out = append(out, f)
		}
	}
	return out
}

func (t Table) linkFieldNames() []string {
	links := t.LinkFields()
	names := make([]string, len(links))
	for i, f := range links {
		names[i] = f.Name
	}
	return names
}

func (t Table) viewNames() []string {
	names := make([]string, len(t.Views))
	for i, v := range t.Views {
		names[i] = v.Name
	}
	return names
}

// Registry is the immutable name to ID mapping of one base. It is built once
// and never revalidated; a changed server schema needs a new Registry.
type Registry struct {
	baseURL string
	apiPath string
	baseID  string
	tables  map[string]Table
}

// newRegistry copies the tables into a fresh registry. Later tables with a
// duplicate name replace earlier ones.
func newRegistry(baseURL, apiPath, baseID string, tables []Table) *Registry {
	r := &Registry{
		baseURL: baseURL,
		apiPath: apiPath,
		baseID:  baseID,
		tables:  make(map[string]Table, len(tables)),
	}
	for _, t := range tables {
		r.tables[t.Name] = cloneTable(t)
	}
	return r
}

// BaseURL returns the server root. Empty for a registry discovered through an
// existing session, which already knows its base URL.
func (r *Registry) BaseURL() string { return r.baseURL }

// APIPath returns the API prefix, e.g. "/api/v3".
func (r *Registry) APIPath() string { return r.apiPath }

// BaseID returns the base (project) identifier.
func (r *Registry) BaseID() string { return r.baseID }

// TableNames returns all known table names, sorted.
func (r *Registry) TableNames() []string {
	names := make([]string, 0, len(r.tables))
	for name := range r.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tables returns copies of all tables sorted by name.
func (r *Registry) Tables() []Table {
	out := make([]Table, 0, len(r.tables))
	for _, name := range r.TableNames() {
		out = append(out, cloneTable(r.tables[name]))
	}
	return out
}

// Table returns a copy of the named table.
func (r *Registry) Table(name string) (Table, error) {
	t, ok := r.tables[name]
	if !ok {
		return Table{}, domain.ErrSchema(domain.KindUnknownTable, r.TableNames(), "unknown table: %s", name)
	}
	return cloneTable(t), nil
}

// TableID resolves a table name to its server ID.
func (r *Registry) TableID(name string) (string, error) {
	t, ok := r.tables[name]
	if !ok {
		return "", domain.ErrSchema(domain.KindUnknownTable, r.TableNames(), "unknown table: %s", name)
	}
	return t.ID, nil
}

// ViewID resolves a view of a table. An empty view name means no view filter
// and resolves to "".
func (r *Registry) ViewID(table, view string) (string, error) {
	if view == "" {
		return "", nil
	}
	t, ok := r.tables[table]
	if !ok {
		return "", domain.ErrSchema(domain.KindUnknownTable, r.TableNames(), "unknown table: %s", table)
	}
	if len(t.Views) == 0 {
		return "", domain.ErrSchema(domain.KindNoViewsForTable, r.tablesWithViews(),
			"table %q has no views", table)
	}
	for _, v := range t.Views {
		if v.Name == view {
			return v.ID, nil
		}
	}
	return "", domain.ErrSchema(domain.KindUnknownView, t.viewNames(),
		"view %q not found for table %q", view, table)
}

// LinkField resolves a link field of a table.
func (r *Registry) LinkField(table, field string) (Field, error) {
	t, ok := r.tables[table]
	if !ok {
		return Field{}, domain.ErrSchema(domain.KindUnknownTable, r.TableNames(), "unknown table: %s", table)
	}
	names := t.linkFieldNames()
	if len(names) == 0 {
		return Field{}, domain.ErrSchema(domain.KindNoLinkFieldsForTable, r.tablesWithLinks(),
			"table %q has no link fields", table)
	}
	for _, f := range t.Fields {
		if f.Link != nil && f.Name == field {
			return f, nil
		}
	}
	return Field{}, domain.ErrSchema(domain.KindUnknownLinkField, names,
		"link field %q not found for table %q", field, table)
}

func (r *Registry) tablesWithLinks() []string {
	out := []string{}
	for _, name := range r.TableNames() {
		if len(r.tables[name].LinkFields()) > 0 {
			out = append(out, name)
		}
	}
	return out
}

func (r *Registry) tablesWithViews() []string {
	out := []string{}
	for _, name := range r.TableNames() {
		if len(r.tables[name].Views) > 0 {
			out = append(out, name)
		}
	}
	return out
}

func cloneTable(t Table) Table {
	c := Table{Name: t.Name, ID: t.ID, Fields: slices.Clone(t.Fields), Views: slices.Clone(t.Views)}
	for i, f := range c.Fields {
		if f.Link != nil {
			l := *f.Link
			c.Fields[i].Link = &l
		}
	}
	return c
}
