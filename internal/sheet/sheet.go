// Package sheet reads and writes .xlsx workbooks with excelize.
//
// Only the first sheet of an uploaded workbook is read. Its first non-blank
// row names the columns; every following non-blank row becomes a Record
// keyed by those names. Output workbooks hold a single sheet whose header
// row lists every column in the order it first appears across the rows.
package sheet

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

var (
	// ErrNoHeader is returned when the first sheet has no header row.
	ErrNoHeader = errors.New("no headers found in the file")

	// ErrParse is returned when the upload is not a readable workbook.
	ErrParse = errors.New("invalid spreadsheet")

	// ErrSerialization is returned when an output workbook cannot be written.
	ErrSerialization = errors.New("spreadsheet write failed")
)

// emptyHeader names columns whose header cell is blank.
const emptyHeader = "__EMPTY"

// Record is one data row of the source sheet. Cells that are empty in the
// sheet have no entry. Values are float64 for numbers, bool for booleans and
// string for everything else.
type Record map[string]any

// Field is one named value of an output row.
type Field struct {
	Name  string
	Value any
}

// Row is an ordered output row.
type Row []Field

// Get returns the value stored under name.
func (r Row) Get(name string) (any, bool) {
	for _, f := range r {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Names returns the field names of r in order.
func (r Row) Names() []string {
	names := make([]string, len(r))
	for i, f := range r {
		names[i] = f.Name
	}
	return names
}

// table is the used range of the first sheet.
type table struct {
	file   *excelize.File
	sheet  string
	rows   [][]string
	header int // index into rows of the header row, -1 when none
	offset int // number of leading empty columns trimmed from every row
}

// open parses the workbook in r and loads the raw cell values of its first
// sheet. The caller must close t.file.
func open(r io.Reader) (*table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		f.Close()
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrParse)
	}

	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: read sheet %q: %v", ErrParse, sheets[0], err)
	}

	t := &table{file: f, sheet: sheets[0], rows: rows, header: -1, offset: -1}
	for i, row := range rows {
		first := firstValue(row)
		if first < 0 {
			continue
		}
		if t.header < 0 {
			t.header = i
		}
		if t.offset < 0 || first < t.offset {
			t.offset = first
		}
	}
	if t.offset < 0 {
		t.offset = 0
	}
	return t, nil
}

// firstValue returns the index of the first non-empty cell, or -1.
func firstValue(row []string) int {
	for i, v := range row {
		if v != "" {
			return i
		}
	}
	return -1
}

// ReadHeaders returns the column names found in the first row of the first
// sheet of the workbook in r. Blank header cells are reported under the same
// "__EMPTY" names ReadRecords gives them.
func ReadHeaders(r io.Reader) ([]string, error) {
	t, err := open(r)
	if err != nil {
		return nil, err
	}
	defer t.file.Close()

	if t.header < 0 {
		return nil, ErrNoHeader
	}

	row := t.rows[t.header][t.offset:]
	names := uniqueNames(row)
	headers := make([]string, len(row))
	for i, h := range row {
		if h == "" {
			// Blank cells get the key ReadRecords uses for that column.
			h = names[i]
		}
		headers[i] = h
	}
	return headers, nil
}

// ReadRecords parses the first sheet of the workbook in r into records keyed
// by the header row. Blank rows are skipped. Duplicate column names are made
// unique with a numeric suffix ("Name", "Name_1") and blank header cells are
// named "__EMPTY", "__EMPTY_1" and so on.
func ReadRecords(r io.Reader) ([]Record, error) {
	t, err := open(r)
	if err != nil {
		return nil, err
	}
	defer t.file.Close()

	if t.header < 0 {
		return []Record{}, nil
	}

	names := uniqueNames(t.rows[t.header][t.offset:])
	// Cells beyond the header are keyed like blank header cells.
	for _, row := range t.rows[t.header+1:] {
		for len(names) < len(row)-t.offset {
			names = append(names, uniqueName(emptyHeader, names))
		}
	}

	records := make([]Record, 0, len(t.rows)-t.header-1)
	for i := t.header + 1; i < len(t.rows); i++ {
		row := t.rows[i]
		rec := make(Record)
		for c := t.offset; c < len(row); c++ {
			raw := row[c]
			if raw == "" {
				continue
			}
			value, err := t.typedValue(c, i, raw)
			if err != nil {
				return nil, err
			}
			rec[names[c-t.offset]] = value
		}
		if len(rec) == 0 {
			continue
		}
		records = append(records, rec)
	}

	return records, nil
}

// typedValue converts a raw cell value using the cell's stored type.
// col and row are zero-based.
func (t *table) typedValue(col, row int, raw string) (any, error) {
	ref, err := excelize.CoordinatesToCellName(col+1, row+1)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	typ, err := t.file.GetCellType(t.sheet, ref)
	if err != nil {
		return nil, fmt.Errorf("%w: cell %s: %v", ErrParse, ref, err)
	}

	switch typ {
	case excelize.CellTypeBool:
		return raw == "1" || strings.EqualFold(raw, "true"), nil
	case excelize.CellTypeNumber, excelize.CellTypeUnset:
		if n, err := strconv.ParseFloat(raw, 64); err == nil {
			return n, nil
		}
		return raw, nil
	default:
		return raw, nil
	}
}

// uniqueNames derives record keys from a header row.
func uniqueNames(header []string) []string {
	names := make([]string, 0, len(header))
	for _, h := range header {
		if h == "" {
			h = emptyHeader
		}
		names = append(names, uniqueName(h, names))
	}
	return names
}

// uniqueName returns name, or name with the first free "_N" suffix when it
// is already taken.
func uniqueName(name string, taken []string) string {
	used := make(map[string]bool, len(taken))
	for _, n := range taken {
		used[n] = true
	}
	if !used[name] {
		return name
	}
	for i := 1; ; i++ {
		candidate := name + "_" + strconv.Itoa(i)
		if !used[candidate] {
			return candidate
		}
	}
}

// Columns returns every field name used by rows, in order of first
// appearance.
func Columns(rows []Row) []string {
	seen := make(map[string]bool)
	var columns []string
	for _, row := range rows {
		for _, f := range row {
			if !seen[f.Name] {
				seen[f.Name] = true
				columns = append(columns, f.Name)
			}
		}
	}
	return columns
}

// Write serializes rows into a single-sheet workbook named sheetName and
// writes it to w. The first row holds the column names returned by Columns.
func Write(w io.Writer, sheetName string, rows []Row) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return fmt.Errorf("%w: %v", ErrSerialization, err)
	}

	columns := Columns(rows)
	index := make(map[string]int, len(columns))
	for i, name := range columns {
		index[name] = i
		if err := setCell(f, sheetName, i, 0, name); err != nil {
			return err
		}
	}

	for r, row := range rows {
		for _, field := range row {
			if field.Value == nil {
				continue
			}
			if err := setCell(f, sheetName, index[field.Name], r+1, field.Value); err != nil {
				return err
			}
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return nil
}

// setCell writes value at the zero-based col/row.
func setCell(f *excelize.File, sheetName string, col, row int, value any) error {
	ref, err := excelize.CoordinatesToCellName(col+1, row+1)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	if err := f.SetCellValue(sheetName, ref, value); err != nil {
		return fmt.Errorf("%w: cell %s: %v", ErrSerialization, ref, err)
	}
	return nil
}
