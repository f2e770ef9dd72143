// Package nocodbtest provides an in-memory NocoDB v3 server for tests.
//
// The server implements the metadata and data endpoints used by the client:
// table listing and detail, paged record reads with fields/where/viewId,
// batched create/update/delete and link creation. Every request is recorded
// so tests can assert on call counts and bodies.
package nocodbtest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
)

// Token is the API token a new Server accepts.
const Token = "test-token"

// FieldSpec declares a field of a table.
type FieldSpec struct {
	ID    string
	Title string
	Type  string
	// RelationType and RelatedTableID are set for link fields.
	RelationType   string
	RelatedTableID string
}

// ViewSpec declares a saved view.
type ViewSpec struct {
	ID    string
	Title string
}

// TableSpec declares a table.
type TableSpec struct {
	ID     string
	Title  string
	Fields []FieldSpec
	Views  []ViewSpec
}

// Request is a recorded request.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   json.RawMessage
}

// BodyLen returns the number of elements of a JSON array body, or 0.
func (r Request) BodyLen() int {
	var items []json.RawMessage
	if err := json.Unmarshal(r.Body, &items); err != nil {
		return 0
	}
	return len(items)
}

type failure struct {
	method string
	skip   int
	status int
	body   string
}

type row struct {
	id     int64
	fields map[string]interface{}
}

type table struct {
	spec   TableSpec
	rows   []row
	nextID int64
	// links[fieldID][recordID] lists linked record IDs in arrival order.
	links map[string]map[int64][]int64
}

// Server is a fake NocoDB instance backed by httptest.Server.
type Server struct {
	*httptest.Server

	BaseID string
	Token  string

	mu       sync.Mutex
	tables   map[string]*table
	order    []string
	requests []Request
	failures []failure

	mismatchInserts bool
}

// New starts a server for baseID with the given tables. It is closed when the
// test ends.
func New(t testing.TB, baseID string, tables ...TableSpec) *Server {
	t.Helper()
	s := &Server{
		BaseID: baseID,
		Token:  Token,
		tables: make(map[string]*table),
	}
	for _, spec := range tables {
		s.tables[spec.ID] = &table{spec: spec, nextID: 1, links: make(map[string]map[int64][]int64)}
		s.order = append(s.order, spec.ID)
	}

	r := chi.NewRouter()
	r.Use(s.record)
	r.Use(s.authenticate)
	r.Use(s.injectFailures)
	r.Route("/api/v3", func(r chi.Router) {
		r.Get("/meta/bases/{baseID}/tables", s.listTables)
		r.Get("/meta/bases/{baseID}/tables/{tableID}", s.getTable)
		r.Get("/data/{baseID}/{tableID}/records", s.listRecords)
		r.Post("/data/{baseID}/{tableID}/records", s.createRecords)
		r.Patch("/data/{baseID}/{tableID}/records", s.updateRecords)
		r.Delete("/data/{baseID}/{tableID}/records", s.deleteRecords)
		r.Post("/data/{baseID}/{tableID}/links/{fieldID}/{recordID}", s.createLinks)
	})

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

// Seed appends rows to a table and returns their identifiers.
func (s *Server) Seed(tableID string, rows ...map[string]interface{}) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	tbl := s.tables[tableID]
	ids := make([]int64, len(rows))
	for i, fields := range rows {
		ids[i] = tbl.insert(fields)
	}
	return ids
}

// SeedN appends n rows built by fn.
func (s *Server) SeedN(tableID string, n int, fn func(i int) map[string]interface{}) {
	rows := make([]map[string]interface{}, n)
	for i := range rows {
		rows[i] = fn(i)
	}
	s.Seed(tableID, rows...)
}

// Row returns the fields of a record and whether it exists.
func (s *Server) Row(tableID string, id int64) (map[string]interface{}, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tbl := s.tables[tableID]
	if i := tbl.index(id); i >= 0 {
		return tbl.rows[i].fields, true
	}
	return nil, false
}

// RowCount returns the number of records in a table.
func (s *Server) RowCount(tableID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tables[tableID].rows)
}

// Links returns the records linked to recordID through a link field.
func (s *Server) Links(tableID, fieldID string, recordID int64) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.tables[tableID].links[fieldID][recordID]...)
}

// Requests returns every recorded request in arrival order.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// DataRequests returns recorded requests to the data endpoints with the
// given method.
func (s *Server) DataRequests(method string) []Request {
	var out []Request
	for _, r := range s.Requests() {
		if r.Method == method && strings.HasPrefix(r.Path, "/api/v3/data/") {
			out = append(out, r)
		}
	}
	return out
}

// ResetRequests clears the request log.
func (s *Server) ResetRequests() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = nil
}

// FailNext makes the next data request with method answer status and body.
// Calls queue in order.
func (s *Server) FailNext(method string, status int, body string) {
	s.FailOn(method, 1, status, body)
}

// FailOn is FailNext for the nth (1-based) data request with method; the
// requests before it succeed.
func (s *Server) FailOn(method string, nth, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, failure{method: method, skip: nth - 1, status: status, body: body})
}

// MismatchInserts makes every create answer with one record fewer than sent.
func (s *Server) MismatchInserts() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mismatchInserts = true
}

// Document returns an OpenAPI description of the data endpoints, tagged with
// the table titles and pointing at the server.
func (s *Server) Document() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	paths := make(map[string]interface{}, len(s.order))
	for _, id := range s.order {
		tbl := s.tables[id]
		op := map[string]interface{}{
			"tags":      []string{tbl.spec.Title},
			"responses": map[string]interface{}{"200": map[string]interface{}{"description": "OK"}},
		}
		paths[fmt.Sprintf("/api/v3/data/%s/%s/records", s.BaseID, id)] = map[string]interface{}{"get": op}
	}
	doc := map[string]interface{}{
		"openapi": "3.0.0",
		"info":    map[string]interface{}{"title": "fake", "version": "1"},
		"servers": []interface{}{map[string]interface{}{"url": s.URL}},
		"paths":   paths,
	}
	data, _ := json.Marshal(doc)
	return data
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))
		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.Query(),
			Body:   json.RawMessage(body),
		})
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("xc-token") != s.Token {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) injectFailures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/v3/data/") {
			s.mu.Lock()
			for i := range s.failures {
				f := &s.failures[i]
				if f.method != r.Method {
					continue
				}
				if f.skip > 0 {
					f.skip--
					break
				}
				fired := *f
				s.failures = append(s.failures[:i], s.failures[i+1:]...)
				s.mu.Unlock()
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(fired.status)
				_, _ = io.WriteString(w, fired.body)
				return
			}
			s.mu.Unlock()
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) *table {
	if chi.URLParam(r, "baseID") != s.BaseID {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "base not found"})
		return nil
	}
	tbl, ok := s.tables[chi.URLParam(r, "tableID")]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "table not found"})
		return nil
	}
	return tbl
}

func (s *Server) listTables(w http.ResponseWriter, r *http.Request) {
	if chi.URLParam(r, "baseID") != s.BaseID {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "base not found"})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	list := make([]map[string]string, 0, len(s.order))
	for _, id := range s.order {
		list = append(list, map[string]string{"id": id, "title": s.tables[id].spec.Title})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"list": list})
}

func (s *Server) getTable(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tbl := s.lookup(w, r)
	if tbl == nil {
		return
	}
	fields := make([]map[string]interface{}, 0, len(tbl.spec.Fields))
	for _, f := range tbl.spec.Fields {
		entry := map[string]interface{}{"id": f.ID, "title": f.Title, "type": f.Type}
		if f.RelatedTableID != "" {
			entry["options"] = map[string]string{
				"relation_type":    f.RelationType,
				"related_table_id": f.RelatedTableID,
			}
		}
		fields = append(fields, entry)
	}
	views := make([]map[string]string, 0, len(tbl.spec.Views))
	for _, v := range tbl.spec.Views {
		views = append(views, map[string]string{"id": v.ID, "title": v.Title})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":     tbl.spec.ID,
		"title":  tbl.spec.Title,
		"fields": fields,
		"views":  views,
	})
}

func (s *Server) listRecords(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tbl := s.lookup(w, r)
	if tbl == nil {
		return
	}
	q := r.URL.Query()

	if viewID := q.Get("viewId"); viewID != "" && !tbl.hasView(viewID) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "view not found"})
		return
	}
	clauses, err := parseWhere(q.Get("where"))
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": err.Error()})
		return
	}

	pageSize := 25
	if v, err := strconv.Atoi(q.Get("pageSize")); err == nil && v > 0 {
		pageSize = min(v, 1000)
	}
	page := 1
	if v, err := strconv.Atoi(q.Get("page")); err == nil && v > 0 {
		page = v
	}

	var matched []row
	for _, rw := range tbl.rows {
		if matches(rw, clauses) {
			matched = append(matched, rw)
		}
	}
	start := min((page-1)*pageSize, len(matched))
	end := min(start+pageSize, len(matched))

	var fields []string
	if f := q.Get("fields"); f != "" {
		fields = strings.Split(f, ",")
	}
	records := make([]map[string]interface{}, 0, end-start)
	for _, rw := range matched[start:end] {
		records = append(records, map[string]interface{}{"id": rw.id, "fields": project(rw.fields, fields)})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"records": records})
}

func (s *Server) createRecords(w http.ResponseWriter, r *http.Request) {
	var body []struct {
		Fields map[string]interface{} `json:"fields"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tbl := s.lookup(w, r)
	if tbl == nil {
		return
	}
	records := make([]map[string]interface{}, 0, len(body))
	for _, item := range body {
		id := tbl.insert(item.Fields)
		records = append(records, map[string]interface{}{"id": id})
	}
	if s.mismatchInserts && len(records) > 0 {
		records = records[:len(records)-1]
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"records": records})
}

func (s *Server) updateRecords(w http.ResponseWriter, r *http.Request) {
	var body []struct {
		ID     string                 `json:"id"`
		Fields map[string]interface{} `json:"fields"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tbl := s.lookup(w, r)
	if tbl == nil {
		return
	}
	records := make([]map[string]interface{}, 0, len(body))
	for _, item := range body {
		id, err := strconv.ParseInt(item.ID, 10, 64)
		i := tbl.index(id)
		if err != nil || i < 0 {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "record " + item.ID + " not found"})
			return
		}
		for k, v := range item.Fields {
			tbl.rows[i].fields[k] = v
		}
		records = append(records, map[string]interface{}{"id": id})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"records": records})
}

func (s *Server) deleteRecords(w http.ResponseWriter, r *http.Request) {
	var body []struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tbl := s.lookup(w, r)
	if tbl == nil {
		return
	}
	records := make([]map[string]interface{}, 0, len(body))
	for _, item := range body {
		id, err := strconv.ParseInt(item.ID, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "invalid id " + item.ID})
			return
		}
		if i := tbl.index(id); i >= 0 {
			tbl.rows = append(tbl.rows[:i], tbl.rows[i+1:]...)
		}
		records = append(records, map[string]interface{}{"id": id})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"records": records})
}

func (s *Server) createLinks(w http.ResponseWriter, r *http.Request) {
	var body []struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tbl := s.lookup(w, r)
	if tbl == nil {
		return
	}
	fieldID := chi.URLParam(r, "fieldID")
	if !tbl.hasLinkField(fieldID) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "field " + fieldID + " is not a link field"})
		return
	}
	recordID, err := strconv.ParseInt(chi.URLParam(r, "recordID"), 10, 64)
	if err != nil || tbl.index(recordID) < 0 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "record not found"})
		return
	}
	if tbl.links[fieldID] == nil {
		tbl.links[fieldID] = make(map[int64][]int64)
	}
	for _, item := range body {
		id, err := strconv.ParseInt(item.ID, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "invalid id " + item.ID})
			return
		}
		tbl.links[fieldID][recordID] = append(tbl.links[fieldID][recordID], id)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (t *table) insert(fields map[string]interface{}) int64 {
	copied := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	id := t.nextID
	t.nextID++
	t.rows = append(t.rows, row{id: id, fields: copied})
	return id
}

func (t *table) index(id int64) int {
	for i, r := range t.rows {
		if r.id == id {
			return i
		}
	}
	return -1
}

func (t *table) hasView(id string) bool {
	for _, v := range t.spec.Views {
		if v.ID == id {
			return true
		}
	}
	return false
}

func (t *table) hasLinkField(id string) bool {
	for _, f := range t.spec.Fields {
		if f.ID == id && f.RelatedTableID != "" {
			return true
		}
	}
	return false
}

type clause struct {
	field, value string
}

// parseWhere accepts "(field,eq,value)" clauses joined by "~and".
func parseWhere(where string) ([]clause, error) {
	if where == "" {
		return nil, nil
	}
	var out []clause
	for _, part := range strings.Split(where, "~and") {
		if !strings.HasPrefix(part, "(") || !strings.HasSuffix(part, ")") {
			return nil, fmt.Errorf("malformed where clause %q", part)
		}
		terms := strings.SplitN(part[1:len(part)-1], ",", 3)
		if len(terms) != 3 || terms[1] != "eq" {
			return nil, fmt.Errorf("unsupported where clause %q", part)
		}
		out = append(out, clause{field: terms[0], value: terms[2]})
	}
	return out, nil
}

func matches(r row, clauses []clause) bool {
	for _, c := range clauses {
		var got string
		if c.field == "Id" {
			got = strconv.FormatInt(r.id, 10)
		} else if v, ok := r.fields[c.field]; ok && v != nil {
			got = fmt.Sprintf("%v", v)
		}
		if got != c.value {
			return false
		}
	}
	return true
}

func project(fields map[string]interface{}, names []string) map[string]interface{} {
	if len(names) == 0 {
		return fields
	}
	out := make(map[string]interface{}, len(names))
	for _, n := range names {
		if v, ok := fields[n]; ok {
			out[n] = v
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
