// Rollcall - Troupe Attendance and Points Synchronization
// Copyright 2026 Jordan Morrell (jmorrell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jmorrell/rollcall

package source

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jmorrell/rollcall/internal/errs"
	"github.com/jmorrell/rollcall/internal/models"
	"github.com/jmorrell/rollcall/internal/propcoerce"
)

// SheetAdapter reads a spreadsheet's delimited export: row 1 carries field
// labels, subsequent rows the records. Field IDs are column positions.
//
// A column that fails coercion mid-scan keeps the values already accepted
// from earlier rows; its mapping is nulled going forward, not retroactively.
type SheetAdapter struct {
	client   *Client
	resolver *Resolver
}

// DiscoverAudience implements Adapter. Spreadsheets declare no true/false
// value pair, so boolean-typed mappings always degrade on the first
// non-empty value.
func (a *SheetAdapter) DiscoverAudience(ctx context.Context, tr *models.Troupe, ev *models.Event, _ time.Time) (*Discovery, error) {
	sheetID, err := a.resolver.Resolve(models.SourceSheet, ev.SourceURI)
	if err != nil {
		return nil, err
	}

	rows, err := a.client.SheetExport(ctx, sheetID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: sheet export has no header row", errs.ErrSourceMalformed)
	}

	header := rows[0]
	fieldIDs := make([]string, len(header))
	labels := make(map[string]string, len(header))
	for col, label := range header {
		id := strconv.Itoa(col)
		fieldIDs[col] = id
		labels[id] = label
	}
	syncFields(tr, ev, fieldIDs, labels)

	d := &Discovery{Event: ev}
	idField, ok := ev.MappedProperty(models.MemberIDProperty)
	if !ok {
		return d, nil
	}
	idCol, err := strconv.Atoi(idField)
	if err != nil {
		return nil, fmt.Errorf("%w: identifying field %q is not a column position", errs.ErrSourceMalformed, idField)
	}

	att := models.AttendedEvent{TypeID: ev.TypeID, Value: ev.Value, Date: ev.StartDate}
	for _, row := range rows[1:] {
		idValue, err := propcoerce.Coerce(tr.Properties[models.MemberIDProperty], cellAt(row, idCol), propcoerce.Options{})
		if err != nil || idValue == nil {
			// A record without a valid identity cannot be credited.
			continue
		}

		props := make(map[string]any)
		for _, fid := range mappedFields(ev) {
			col, convErr := strconv.Atoi(fid)
			if convErr != nil {
				continue
			}
			f := ev.Fields[fid]
			pt, declared := tr.Properties[*f.Property]
			if !declared {
				continue
			}

			v, coerceErr := propcoerce.Coerce(pt, cellAt(row, col), propcoerce.Options{})
			if coerceErr != nil {
				invalidateMapping(ev, fid)
				continue
			}
			if v != nil {
				props[*f.Property] = v
			}
		}

		d.Members = append(d.Members, MemberRecord{
			Identity:   propcoerce.FormatValue(idValue),
			Properties: props,
			Attended:   att,
		})
	}
	return d, nil
}

// cellAt reads a cell from a possibly ragged row; missing cells are empty.
func cellAt(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return row[col]
}
