// Package codec converts between flat records and the nested wire envelopes
// of the NocoDB v3 data API. It performs no I/O.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"noco-bridge/internal/domain"
)

// WireRecord is one record as sent and received by the data endpoints.
type WireRecord struct {
	ID     interface{}            `json:"id,omitempty"`
	Fields map[string]interface{} `json:"fields,omitempty"`
}

// InsertEnvelope is the request body entry of a create call.
type InsertEnvelope struct {
	Fields map[string]interface{} `json:"fields"`
}

// UpdateEnvelope is the request body entry of an update call.
type UpdateEnvelope struct {
	ID     string                 `json:"id"`
	Fields map[string]interface{} `json:"fields"`
}

// IDEnvelope addresses one record in delete and link calls.
type IDEnvelope struct {
	ID string `json:"id"`
}

// EmptyResult returns the typed-empty record set for a page without rows:
// the identifier column is int64, every other requested column is string.
// A requested column spelled "id" in any case is treated as an identifier.
func EmptyResult(requested []string) domain.RecordSet {
	rs := domain.RecordSet{Columns: []domain.Column{}, Records: []domain.Record{}}
	for _, name := range withIDColumn(requested) {
		typ := domain.ColumnString
		if strings.EqualFold(name, domain.IDColumn) {
			typ = domain.ColumnInt
		}
		rs.Columns = append(rs.Columns, domain.Column{Name: name, Type: typ})
	}
	return rs
}

// DecodePage flattens wire records: the identifier goes to the record ID and
// the entries of fields are projected onto the requested columns, in the
// requested order. Requested fields absent from a record decode to nil. With
// no requested fields every field seen on the page is kept, in sorted order.
func DecodePage(raw []WireRecord, requested []string) (domain.RecordSet, error) {
	if len(raw) == 0 {
		return EmptyResult(requested), nil
	}

	columns := requested
	if len(columns) == 0 {
		columns = observedFields(raw)
	}
	columns = withIDColumn(columns)

	rs := domain.RecordSet{
		Columns: make([]domain.Column, len(columns)),
		Records: make([]domain.Record, 0, len(raw)),
	}
	for i, name := range columns {
		typ := domain.ColumnAny
		if name == domain.IDColumn {
			typ = domain.ColumnInt
		}
		rs.Columns[i] = domain.Column{Name: name, Type: typ}
	}

	for i, w := range raw {
		rec := domain.Record{Values: make(map[string]interface{}, len(columns))}
		if w.ID != nil {
			id, err := domain.ToInt64(w.ID)
			if err != nil {
				return domain.RecordSet{}, fmt.Errorf("record %d: %w", i, err)
			}
			rec.ID = &id
		}
		for _, name := range columns {
			if name == domain.IDColumn {
				continue
			}
			rec.Values[name] = w.Fields[name]
		}
		rs.Records = append(rs.Records, rec)
	}
	return rs, nil
}

// EncodeForInsert wraps every non-identifier value under "fields".
func EncodeForInsert(r domain.Record) InsertEnvelope {
	return InsertEnvelope{Fields: copyValues(r.Values)}
}

// EncodeForUpdate addresses the record by identifier and wraps the remaining
// values under "fields". Records without an identifier are rejected.
func EncodeForUpdate(r domain.Record) (UpdateEnvelope, error) {
	if r.ID == nil {
		return UpdateEnvelope{}, domain.ErrInput(domain.KindMissingIdentifier,
			"record has no %s; update requires persisted records", domain.IDColumn)
	}
	return UpdateEnvelope{ID: FormatID(*r.ID), Fields: copyValues(r.Values)}, nil
}

// EncodeForDelete produces one {id} object per identifier.
func EncodeForDelete(ids []int64) []IDEnvelope {
	out := make([]IDEnvelope, len(ids))
	for i, id := range ids {
		out[i] = IDEnvelope{ID: FormatID(id)}
	}
	return out
}

// EncodeLinks produces the body of a link call for a foreign-key value, which
// is either one identifier or a list of identifiers. An empty list yields an
// empty body.
func EncodeLinks(fk interface{}) ([]IDEnvelope, error) {
	ids, err := ForeignKeyIDs(fk)
	if err != nil {
		return nil, err
	}
	return EncodeForDelete(ids), nil
}

// ForeignKeyIDs normalizes a scalar or list foreign-key value to identifiers.
func ForeignKeyIDs(fk interface{}) ([]int64, error) {
	switch v := fk.(type) {
	case nil:
		return nil, nil
	case []int64:
		return append([]int64(nil), v...), nil
	case []int:
		out := make([]int64, len(v))
		for i, n := range v {
			out[i] = int64(n)
		}
		return out, nil
	case []interface{}:
		out := make([]int64, 0, len(v))
		for i, item := range v {
			id, err := domain.ToInt64(item)
			if err != nil {
				return nil, domain.ErrInput(domain.KindInvalidForeignKey, "foreign key element %d: %v", i, err)
			}
			out = append(out, id)
		}
		return out, nil
	default:
		id, err := domain.ToInt64(v)
		if err != nil {
			return nil, domain.ErrInput(domain.KindInvalidForeignKey, "foreign key: %v", err)
		}
		return []int64{id}, nil
	}
}

// IsListValue reports whether a foreign-key value is list-shaped.
func IsListValue(fk interface{}) bool {
	switch fk.(type) {
	case []int64, []int, []interface{}:
		return true
	}
	return false
}

// FormatID renders an identifier the way the API expects it in bodies.
func FormatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// ParseWireRecords decodes a {"records":[...]} response body.
func ParseWireRecords(body []byte) ([]WireRecord, error) {
	var page struct {
		Records []WireRecord `json:"records"`
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&page); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	return page.Records, nil
}

func withIDColumn(columns []string) []string {
	for _, c := range columns {
		if c == domain.IDColumn {
			return columns
		}
	}
	out := make([]string, 0, len(columns)+1)
	out = append(out, domain.IDColumn)
	return append(out, columns...)
}

func observedFields(raw []WireRecord) []string {
	seen := map[string]bool{}
	var names []string
	for _, w := range raw {
		for k := range w.Fields {
			if k == domain.IDColumn || seen[k] {
				continue
			}
			seen[k] = true
			names = append(names, k)
		}
	}
	sort.Strings(names)
	return names
}

func copyValues(values map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(values))
	for k, v := range values {
		if k == domain.IDColumn {
			continue
		}
		out[k] = v
	}
	return out
}
