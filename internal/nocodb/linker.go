package nocodb

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"noco-bridge/internal/codec"
	"noco-bridge/internal/domain"
)

type linkRequest struct {
	recordID int64
	body     []codec.IDEnvelope
}

// Link relates each record to the records named by its foreign-key column,
// through the link field linkField of table. The foreign key is a single
// identifier or a list of identifiers; each row becomes one request carrying
// one entry per identifier. Records must already be persisted.
//
// All input is validated before the first request. Rows with a null
// foreign key (or an empty list) are skipped; rows with a null identifier
// follow the client's NullPolicy.
func (c *Client) Link(ctx context.Context, records domain.RecordSet, table, linkField, foreignKeyColumn string) error {
	field, err := c.registry.LinkField(table, linkField)
	if err != nil {
		return err
	}
	tableID, err := c.registry.TableID(table)
	if err != nil {
		return err
	}

	if !records.HasColumn(domain.IDColumn) {
		return domain.ErrInput(domain.KindMissingIdentifierColumn,
			"records must have an %q column; insert the records before linking them", domain.IDColumn)
	}
	if !records.HasColumn(foreignKeyColumn) {
		return domain.ErrInput(domain.KindMissingForeignKeyColumn,
			"column %q not found (available: %s)", foreignKeyColumn, strings.Join(records.ColumnNames(), ", "))
	}

	var (
		requests  []linkRequest
		nullIDs   int
		nullFKs   int
		listValue = field.Link.Relation.ListValued()
	)
	for i, r := range records.Records {
		fk := r.Values[foreignKeyColumn]
		body, err := codec.EncodeLinks(fk)
		if err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		if len(body) == 0 {
			nullFKs++
			continue
		}
		if !listValue && len(body) > 1 {
			return domain.ErrInput(domain.KindInvalidForeignKey,
				"row %d: link field %q is %s and takes one identifier, got %d",
				i, linkField, field.Link.Relation, len(body))
		}
		if r.ID == nil {
			nullIDs++
			continue
		}
		requests = append(requests, linkRequest{recordID: *r.ID, body: body})
	}

	if err := c.applyNullPolicy("link", table, nullIDs); err != nil {
		return err
	}
	if nullFKs > 0 {
		if c.nullPolicy == NullReject {
			return domain.ErrInput(domain.KindInvalidForeignKey,
				"link %s.%s: %d records have a null %s", table, linkField, nullFKs, foreignKeyColumn)
		}
		c.logger.Warn("records without foreign key skipped", "table", table, "link_field", linkField, "skipped", nullFKs)
	}

	for _, req := range requests {
		path := c.linksPath(tableID, field.ID, req.recordID)
		if _, err := c.session.Do(ctx, "link records of "+table, http.MethodPost, path, nil, req.body); err != nil {
			return err
		}
	}

	c.logger.Info("records linked", "table", table, "link_field", linkField, "records", len(requests))
	return nil
}
