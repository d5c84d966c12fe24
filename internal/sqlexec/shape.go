// Copyright (c) 2025 Oraflow
// Licensed under the MIT License. See LICENSE file in the project root for details.

package sqlexec

import (
	"context"

	"oraflow/cli/internal/driver"
	"oraflow/cli/internal/flow"
)

// Keys of the single-meta payload.
const (
	MetaRowsAffected = "rowsAffected"
	MetaColumns      = "metaData"
	MetaOutBinds     = "outBinds"
)

// rowsPayload converts driver rows into plain maps so envelopes clone and
// marshal without knowing driver types.
func rowsPayload(rows []driver.Row) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, r := range rows {
		out[i] = map[string]any(r)
	}
	return out
}

// columnsPayload renders column metadata the way flows read it.
func columnsPayload(cols []driver.Column) []map[string]any {
	out := make([]map[string]any, len(cols))
	for i, c := range cols {
		m := map[string]any{
			"name":     c.Name,
			"nullable": c.Nullable,
		}
		if c.DBTypeName != "" {
			m["dbTypeName"] = c.DBTypeName
		}
		if c.ByteSize > 0 {
			m["byteSize"] = c.ByteSize
		}
		if c.Precision > 0 || c.Scale > 0 {
			m["precision"] = c.Precision
			m["scale"] = c.Scale
		}
		out[i] = m
	}
	return out
}

// metaPayload is the single-meta payload: exactly three keys.
func metaPayload(res *driver.Result) map[string]any {
	var outBinds any
	if res.OutBinds != nil {
		outBinds = res.OutBinds
	}
	return map[string]any{
		MetaRowsAffected: res.RowsAffected,
		MetaColumns:      columnsPayload(res.Columns),
		MetaOutBinds:     outBinds,
	}
}

// shape emits envelopes for res according to mode. For ModeMulti it drains
// the cursor in chunks of at most limit rows; the cursor is always closed.
func shape(ctx context.Context, mode Mode, limit int, msg flow.Message, res *driver.Result, emit flow.Sink) error {
	if res.Cursor != nil {
		defer res.Cursor.Close()
	}
	if emit == nil {
		emit = func(flow.Message) {}
	}

	switch mode {
	case ModeSingle:
		emit(msg.WithPayload(rowsPayload(res.Rows)))
	case ModeSingleMeta:
		emit(msg.WithPayload(metaPayload(res)))
	case ModeMulti:
		if res.Cursor == nil {
			return nil
		}
		for {
			rows, err := res.Cursor.Fetch(ctx, limit)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				return nil
			}
			out := msg.Clone()
			out[flow.KeyPayload] = rowsPayload(rows)
			emit(out)
		}
	}
	return nil
}
