package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// IDColumn is the reserved column that carries the server-assigned record
// identifier in flat records.
const IDColumn = "Id"

// ColumnType is the declared type of a RecordSet column. Only the identifier
// column and empty results carry a concrete type; everything else is Any.
type ColumnType string

// Column types.
const (
	ColumnAny    ColumnType = "any"
	ColumnInt    ColumnType = "int64"
	ColumnString ColumnType = "string"
)

// Column is a named, typed column of a RecordSet.
type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// Record is one flat row. ID is nil until the record has been persisted.
// Values holds every non-identifier column; a value is a string, a number
// (json.Number or a Go numeric type), nil, an identifier, or a list of
// identifiers for link columns.
type Record struct {
	ID     *int64
	Values map[string]interface{}
}

// Get returns the value of a column. The identifier column is read from ID.
func (r Record) Get(column string) interface{} {
	if column == IDColumn {
		if r.ID == nil {
			return nil
		}
		return *r.ID
	}
	return r.Values[column]
}

// MarshalJSON renders the record as a flat object with the identifier under
// IDColumn.
func (r Record) MarshalJSON() ([]byte, error) {
	flat := make(map[string]interface{}, len(r.Values)+1)
	for k, v := range r.Values {
		flat[k] = v
	}
	flat[IDColumn] = r.Get(IDColumn)
	return json.Marshal(flat)
}

// RecordSet is an ordered collection of records sharing one column layout.
type RecordSet struct {
	Columns []Column `json:"columns"`
	Records []Record `json:"records"`
}

// NewRecordSet creates an empty set with the given columns, all typed Any
// except the identifier column.
func NewRecordSet(columns ...string) RecordSet {
	rs := RecordSet{Columns: make([]Column, 0, len(columns))}
	for _, name := range columns {
		typ := ColumnAny
		if name == IDColumn {
			typ = ColumnInt
		}
		rs.Columns = append(rs.Columns, Column{Name: name, Type: typ})
	}
	return rs
}

// Append adds a record built from a flat mapping. A value stored under
// IDColumn becomes the record identifier; unknown columns are added to the
// layout in sorted order.
func (rs *RecordSet) Append(values map[string]interface{}) error {
	rec := Record{Values: make(map[string]interface{}, len(values))}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		v := values[k]
		if !rs.HasColumn(k) {
			typ := ColumnAny
			if k == IDColumn {
				typ = ColumnInt
			}
			rs.Columns = append(rs.Columns, Column{Name: k, Type: typ})
		}
		if k == IDColumn {
			if v == nil {
				continue
			}
			id, err := ToInt64(v)
			if err != nil {
				return fmt.Errorf("column %s: %w", IDColumn, err)
			}
			rec.ID = &id
			continue
		}
		rec.Values[k] = v
	}
	rs.Records = append(rs.Records, rec)
	return nil
}

// Len returns the number of records.
func (rs RecordSet) Len() int { return len(rs.Records) }

// HasColumn reports whether the layout contains the named column.
func (rs RecordSet) HasColumn(name string) bool {
	return slices.ContainsFunc(rs.Columns, func(c Column) bool { return c.Name == name })
}

// ColumnNames returns the column names in layout order.
func (rs RecordSet) ColumnNames() []string {
	names := make([]string, len(rs.Columns))
	for i, c := range rs.Columns {
		names[i] = c.Name
	}
	return names
}

// WithIDColumn returns a copy whose layout includes the identifier column,
// prepended when it was absent. Records are shared, not copied.
func (rs RecordSet) WithIDColumn() RecordSet {
	if rs.HasColumn(IDColumn) {
		return rs
	}
	cols := make([]Column, 0, len(rs.Columns)+1)
	cols = append(cols, Column{Name: IDColumn, Type: ColumnInt})
	cols = append(cols, rs.Columns...)
	return RecordSet{Columns: cols, Records: rs.Records}
}

// Clone returns a deep copy of the layout and the records. Values themselves
// are copied by reference.
func (rs RecordSet) Clone() RecordSet {
	out := RecordSet{
		Columns: slices.Clone(rs.Columns),
		Records: make([]Record, len(rs.Records)),
	}
	for i, r := range rs.Records {
		c := Record{Values: make(map[string]interface{}, len(r.Values))}
		if r.ID != nil {
			id := *r.ID
			c.ID = &id
		}
		for k, v := range r.Values {
			c.Values[k] = v
		}
		out.Records[i] = c
	}
	return out
}

// Concat appends the records of other. The layouts are merged, keeping the
// receiver's column order first.
func (rs *RecordSet) Concat(other RecordSet) {
	for _, c := range other.Columns {
		if !rs.HasColumn(c.Name) {
			rs.Columns = append(rs.Columns, c)
		}
	}
	rs.Records = append(rs.Records, other.Records...)
}

// Condition is a conjunction of equality tests, field name to scalar value.
type Condition map[string]interface{}

// Fields returns the condition's field names in sorted order.
func (c Condition) Fields() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Int64 returns a pointer to id, for building records by hand.
func Int64(id int64) *int64 { return &id }

// ToInt64 converts an identifier-like value to int64. It accepts Go integer
// types, integral floats, json.Number and decimal strings.
func ToInt64(v interface{}) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("identifier %d overflows int64", n)
		}
		return int64(n), nil
	case float64:
		if n != math.Trunc(n) || n > math.MaxInt64 || n < math.MinInt64 {
			return 0, fmt.Errorf("identifier %v is not an integer", n)
		}
		return int64(n), nil
	case float32:
		return ToInt64(float64(n))
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, nil
		}
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("identifier %q is not a number", n.String())
		}
		return ToInt64(f)
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("identifier %q is not an integer", n)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("identifier of type %T is not an integer", v)
	}
}
