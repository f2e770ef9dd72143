package nocodb

import (
	"context"
	"fmt"
	"net/http"

	"noco-bridge/internal/codec"
	"noco-bridge/internal/domain"
)

// Writes are not atomic across batches: when a batch fails, earlier batches
// stay applied and later ones are not sent. Insert is not idempotent, so
// re-running it after a partial failure creates duplicate rows.

// Insert creates the records in batches of at most batchSize, preserving
// order, and returns a copy of the input with the server-assigned identifiers
// filled in. Identifiers are matched to records by position within each
// batch; a response with a different record count fails with
// *domain.ResponseMismatchError. On failure the returned set carries the
// identifiers of the batches that were applied.
func (c *Client) Insert(ctx context.Context, table string, records domain.RecordSet, batchSize int) (domain.RecordSet, error) {
	tableID, err := c.registry.TableID(table)
	if err != nil {
		return records, err
	}

	out := records.Clone().WithIDColumn()
	if out.Len() == 0 {
		return out, nil
	}

	path := c.recordsPath(tableID)
	bounds := chunks(out.Len(), batchSize)
	for _, b := range bounds {
		batch := out.Records[b[0]:b[1]]
		envs := make([]codec.InsertEnvelope, len(batch))
		for i, r := range batch {
			envs[i] = codec.EncodeForInsert(r)
		}

		body, err := c.session.Do(ctx, "insert records into "+table, http.MethodPost, path, nil, envs)
		if err != nil {
			return out, err
		}
		created, err := codec.ParseWireRecords(body)
		if err != nil {
			return out, fmt.Errorf("insert into %s: %w", table, err)
		}
		if len(created) != len(batch) {
			return out, &domain.ResponseMismatchError{Table: table, Sent: len(batch), Received: len(created)}
		}
		for i, w := range created {
			id, err := domain.ToInt64(w.ID)
			if err != nil {
				return out, fmt.Errorf("insert into %s: record %d: %w", table, b[0]+i, err)
			}
			batch[i].ID = &id
		}
	}

	c.logger.Info("records inserted", "table", table, "records", out.Len(), "batches", len(bounds))
	return out, nil
}

// Update patches the records in batches. Records must carry the identifier
// column. Rows with a null identifier are handled by the client's NullPolicy.
// The server does not echo updated values, so the returned set is the input
// minus skipped rows.
func (c *Client) Update(ctx context.Context, table string, records domain.RecordSet, batchSize int) (domain.RecordSet, error) {
	tableID, err := c.registry.TableID(table)
	if err != nil {
		return records, err
	}
	if records.Len() == 0 {
		return records, nil
	}
	if !records.HasColumn(domain.IDColumn) {
		return records, domain.ErrInput(domain.KindMissingIdentifierColumn,
			"records must have an %q column containing the IDs to update", domain.IDColumn)
	}

	effective := domain.RecordSet{Columns: records.Columns, Records: make([]domain.Record, 0, records.Len())}
	for _, r := range records.Records {
		if r.ID != nil {
			effective.Records = append(effective.Records, r)
		}
	}
	if err := c.applyNullPolicy("update", table, records.Len()-effective.Len()); err != nil {
		return records, err
	}
	if effective.Len() == 0 {
		return effective, nil
	}

	path := c.recordsPath(tableID)
	bounds := chunks(effective.Len(), batchSize)
	for _, b := range bounds {
		batch := effective.Records[b[0]:b[1]]
		envs := make([]codec.UpdateEnvelope, len(batch))
		for i, r := range batch {
			env, err := codec.EncodeForUpdate(r)
			if err != nil {
				return effective, err
			}
			envs[i] = env
		}
		if _, err := c.session.Do(ctx, "update records in "+table, http.MethodPatch, path, nil, envs); err != nil {
			return effective, err
		}
	}

	c.logger.Info("records updated", "table", table, "records", effective.Len(), "batches", len(bounds))
	return effective, nil
}

// Delete removes records by identifier in batches. Null identifiers are
// handled by the client's NullPolicy.
func (c *Client) Delete(ctx context.Context, table string, ids []*int64, batchSize int) error {
	tableID, err := c.registry.TableID(table)
	if err != nil {
		return err
	}

	present := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id != nil {
			present = append(present, *id)
		}
	}
	if err := c.applyNullPolicy("delete", table, len(ids)-len(present)); err != nil {
		return err
	}
	if len(present) == 0 {
		return nil
	}

	path := c.recordsPath(tableID)
	bounds := chunks(len(present), batchSize)
	for _, b := range bounds {
		envs := codec.EncodeForDelete(present[b[0]:b[1]])
		if _, err := c.session.Do(ctx, "delete records from "+table, http.MethodDelete, path, nil, envs); err != nil {
			return err
		}
	}

	c.logger.Info("records deleted", "table", table, "records", len(present), "batches", len(bounds))
	return nil
}

// DeleteRecords deletes the records of a set, which must carry the
// identifier column.
func (c *Client) DeleteRecords(ctx context.Context, table string, records domain.RecordSet, batchSize int) error {
	if records.Len() == 0 {
		return nil
	}
	if !records.HasColumn(domain.IDColumn) {
		return domain.ErrInput(domain.KindMissingIdentifierColumn,
			"records must have an %q column containing the IDs to delete", domain.IDColumn)
	}
	ids := make([]*int64, len(records.Records))
	for i, r := range records.Records {
		ids[i] = r.ID
	}
	return c.Delete(ctx, table, ids, batchSize)
}

// applyNullPolicy reports dropped rows. Under NullSkip it only logs; under
// NullReject any dropped row is an error.
func (c *Client) applyNullPolicy(op, table string, dropped int) error {
	if dropped == 0 {
		return nil
	}
	if c.nullPolicy == NullReject {
		return domain.ErrInput(domain.KindMissingIdentifier,
			"%s %s: %d records have a null %s", op, table, dropped, domain.IDColumn)
	}
	c.logger.Warn("records with null identifier skipped", "operation", op, "table", table, "skipped", dropped)
	return nil
}
