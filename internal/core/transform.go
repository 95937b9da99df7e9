package core

import (
	"math"

	"github.com/JonMunkholm/sheetclean/internal/sheet"
)

// Selection is the ordered list of column names a caller wants to keep.
// Names that do not exist in the source sheet are ignored.
type Selection []string

// TransformOptions controls row building.
type TransformOptions struct {
	// KeepFalsy keeps selected values that are 0, false or "". By default
	// they are dropped from the output row like missing values.
	KeepFalsy bool
}

// Stats summarizes one transformation.
type Stats struct {
	InputRows      int `json:"inputRows"`
	OutputRows     int `json:"outputRows"`
	DuplicateRows  int `json:"duplicateRows"`
	EmptyPhoneRows int `json:"emptyPhoneRows"`
}

// TransformResult is the deduplicated output of Transform.
type TransformResult struct {
	Rows  []sheet.Row
	Stats Stats
}

// Columns returns the output header in order of first appearance.
func (r TransformResult) Columns() []string {
	return sheet.Columns(r.Rows)
}

// Transform reduces every record to the selected fields plus the normalized
// phone field, then keeps one row per distinct phone value. A later row
// replaces an earlier row with the same phone value and takes the earlier
// row's position. Rows without any phone number share the "" key.
func Transform(records []sheet.Record, sel Selection, opts TransformOptions) TransformResult {
	acc := newRowIndex(len(records))
	stats := Stats{InputRows: len(records)}

	for _, rec := range records {
		row := BuildRow(rec, sel, opts)
		if phone, _ := row.Get(PhoneField); phone == "" {
			stats.EmptyPhoneRows++
		}
		acc = acc.put(row)
	}

	rows := acc.rows()
	stats.OutputRows = len(rows)
	stats.DuplicateRows = stats.InputRows - stats.OutputRows

	return TransformResult{Rows: rows, Stats: stats}
}

// BuildRow builds the output row for one record: the selected fields that
// hold a value, in selection order, and the normalized phone field. The
// phone field is always present; when it is also selected it stays at its
// selected position.
func BuildRow(rec sheet.Record, sel Selection, opts TransformOptions) sheet.Row {
	row := make(sheet.Row, 0, len(sel)+1)

	for _, name := range sel {
		v, ok := rec[name]
		if !ok {
			continue
		}
		if !opts.KeepFalsy && !truthy(v) {
			continue
		}
		if _, dup := row.Get(name); dup {
			continue
		}
		row = append(row, sheet.Field{Name: name, Value: v})
	}

	phone := FormatPhoneField(rec[PhoneField])
	for i := range row {
		if row[i].Name == PhoneField {
			row[i].Value = phone
			return row
		}
	}
	return append(row, sheet.Field{Name: PhoneField, Value: phone})
}

// truthy reports whether v counts as a present value: nil, "", 0, NaN and
// false do not.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != ""
	case bool:
		return x
	case float64:
		return x != 0 && !math.IsNaN(x)
	default:
		return true
	}
}

// rowIndex accumulates output rows keyed by their phone value.
type rowIndex struct {
	order []string
	byKey map[string]sheet.Row
}

func newRowIndex(capacity int) rowIndex {
	return rowIndex{
		order: make([]string, 0, capacity),
		byKey: make(map[string]sheet.Row, capacity),
	}
}

// put stores row under its phone value and returns the updated index.
func (idx rowIndex) put(row sheet.Row) rowIndex {
	v, _ := row.Get(PhoneField)
	key, _ := v.(string)

	if _, exists := idx.byKey[key]; !exists {
		idx.order = append(idx.order, key)
	}
	idx.byKey[key] = row
	return idx
}

// rows returns the stored rows in key order.
func (idx rowIndex) rows() []sheet.Row {
	out := make([]sheet.Row, len(idx.order))
	for i, key := range idx.order {
		out[i] = idx.byKey[key]
	}
	return out
}
