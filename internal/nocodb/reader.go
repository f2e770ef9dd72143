package nocodb

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"noco-bridge/internal/codec"
	"noco-bridge/internal/domain"
)

// whereJoiner combines equality clauses. Only conjunctions are supported.
const whereJoiner = "~and"

// ReadOptions selects the rows and columns of a read.
type ReadOptions struct {
	// Fields to return, in order. Empty returns every field.
	Fields []string
	// Where is a conjunction of equality tests.
	Where domain.Condition
	// View names a saved view of the table; empty means no view.
	View string

	// PageSize and Offset are used by Read only. PageSize is clamped to
	// MaxPageSize; non-positive means MaxPageSize.
	PageSize int
	Offset   int
}

// Read fetches one page of a table.
func (c *Client) Read(ctx context.Context, table string, opts ReadOptions) (domain.RecordSet, error) {
	tableID, err := c.registry.TableID(table)
	if err != nil {
		return domain.RecordSet{}, err
	}
	viewID, err := c.registry.ViewID(table, opts.View)
	if err != nil {
		return domain.RecordSet{}, err
	}

	pageSize := opts.PageSize
	if pageSize <= 0 || pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	offset := max(opts.Offset, 0)

	q := url.Values{}
	q.Set("pageSize", strconv.Itoa(pageSize))
	q.Set("page", strconv.Itoa(offset/pageSize+1))
	if len(opts.Fields) > 0 {
		q.Set("fields", strings.Join(opts.Fields, ","))
	}
	if viewID != "" {
		q.Set("viewId", viewID)
	}
	if where := BuildWhere(opts.Where); where != "" {
		q.Set("where", where)
	}

	body, err := c.session.Do(ctx, "load records from "+table, http.MethodGet, c.recordsPath(tableID), q, nil)
	if err != nil {
		return domain.RecordSet{}, err
	}
	raw, err := codec.ParseWireRecords(body)
	if err != nil {
		return domain.RecordSet{}, fmt.Errorf("read %s: %w", table, err)
	}
	return codec.DecodePage(raw, opts.Fields)
}

// ReadAll fetches every matching row by requesting pages of MaxPageSize until
// a page comes back short. Pages are concatenated in arrival order.
func (c *Client) ReadAll(ctx context.Context, table string, opts ReadOptions) (domain.RecordSet, error) {
	opts.PageSize = MaxPageSize

	var (
		all   domain.RecordSet
		pages int
	)
	for offset := 0; ; offset += MaxPageSize {
		opts.Offset = offset
		page, err := c.Read(ctx, table, opts)
		if err != nil {
			return domain.RecordSet{}, err
		}
		pages++
		if pages == 1 {
			all = page
		} else {
			all.Concat(page)
		}
		if page.Len() < MaxPageSize {
			break
		}
	}

	c.logger.Info("records loaded", "table", table, "records", all.Len(), "pages", pages)
	return all, nil
}

// BuildWhere renders a condition as (field,eq,value) clauses joined by ~and,
// in sorted field order. An empty condition renders as "".
func BuildWhere(cond domain.Condition) string {
	if len(cond) == 0 {
		return ""
	}
	parts := make([]string, 0, len(cond))
	for _, field := range cond.Fields() {
		parts = append(parts, fmt.Sprintf("(%s,eq,%s)", field, formatValue(cond[field])))
	}
	return strings.Join(parts, whereJoiner)
}

func formatValue(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case *int64:
		if x == nil {
			return ""
		}
		return strconv.FormatInt(*x, 10)
	default:
		return fmt.Sprintf("%v", x)
	}
}
