package types

import (
	"strconv"
	"strings"
)

// Format is the detected class of an input file.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatXLS  Format = "xls"
	FormatCSV  Format = "csv"
	FormatTSV  Format = "tsv"
)

// IsSpreadsheet reports whether the format is a binary workbook.
func (f Format) IsSpreadsheet() bool {
	return f == FormatXLSX || f == FormatXLS
}

// Delimiter returns the field separator for delimited text formats.
func (f Format) Delimiter() rune {
	if f == FormatTSV {
		return '\t'
	}
	return ','
}

type CellKind int

const (
	CellEmpty CellKind = iota
	CellText
	CellNumber
)

func (k CellKind) String() string {
	switch k {
	case CellText:
		return "text"
	case CellNumber:
		return "number"
	default:
		return "empty"
	}
}

// Cell is a single tabular value. Raw keeps the source text so that values
// are written back exactly as they were read.
type Cell struct {
	Kind CellKind
	Raw  string
	Num  float64
}

// ParseCell classifies a source string. Whitespace-only input is empty.
func ParseCell(s string) Cell {
	if strings.TrimSpace(s) == "" {
		return Cell{}
	}
	if n, ok := parseNumber(s); ok {
		return Cell{Kind: CellNumber, Raw: s, Num: n}
	}
	return Cell{Kind: CellText, Raw: s}
}

// TextCell builds a text cell without numeric classification.
func TextCell(s string) Cell {
	if strings.TrimSpace(s) == "" {
		return Cell{}
	}
	return Cell{Kind: CellText, Raw: s}
}

// parseNumber accepts plain decimal notation only; ParseFloat alone would
// also take "NaN", "inf" and hex floats, which are names in this data.
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	digits := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '.' || r == '-' || r == '+' || r == 'e' || r == 'E':
		default:
			return 0, false
		}
	}
	if digits == 0 {
		return 0, false
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (c Cell) IsEmpty() bool { return c.Kind == CellEmpty }

func (c Cell) String() string { return c.Raw }

// RawTable is the file content before any header interpretation.
type RawTable struct {
	Rows [][]Cell
}

// Width returns the length of the widest row.
func (t *RawTable) Width() int {
	w := 0
	for _, r := range t.Rows {
		if len(r) > w {
			w = len(r)
		}
	}
	return w
}

// NewRawTable builds a raw table from string rows, classifying every cell.
func NewRawTable(rows [][]string) *RawTable {
	t := &RawTable{Rows: make([][]Cell, len(rows))}
	for i, r := range rows {
		cells := make([]Cell, len(r))
		for j, s := range r {
			cells[j] = ParseCell(s)
		}
		t.Rows[i] = cells
	}
	return t
}

// Row maps canonical column names to values. Missing keys read as empty.
type Row map[string]Cell

func (r Row) Get(col string) Cell { return r[col] }

// IsEmpty reports whether every field of the row is empty.
func (r Row) IsEmpty() bool {
	for _, c := range r {
		if !c.IsEmpty() {
			return false
		}
	}
	return true
}

// Table is a normalized incoming table: canonical columns plus rows.
type Table struct {
	Columns []string
	Rows    []Row
}

// Dataset is the persisted master collection. Columns order the fields of
// every row; rows are rectangular over Columns.
type Dataset struct {
	Columns []string
	Rows    []Row
}

func (d *Dataset) HasColumn(name string) bool {
	for _, c := range d.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// AddColumn appends a column and backfills every existing row with an empty
// cell. It is a no-op when the column already exists.
func (d *Dataset) AddColumn(name string) bool {
	if d.HasColumn(name) {
		return false
	}
	d.Columns = append(d.Columns, name)
	for _, r := range d.Rows {
		if _, ok := r[name]; !ok {
			r[name] = Cell{}
		}
	}
	return true
}

// Records renders the dataset as string rows, header first.
func (d *Dataset) Records() [][]string {
	out := make([][]string, 0, len(d.Rows)+1)
	out = append(out, append([]string(nil), d.Columns...))
	for _, r := range d.Rows {
		rec := make([]string, len(d.Columns))
		for i, c := range d.Columns {
			rec[i] = r.Get(c).String()
		}
		out = append(out, rec)
	}
	return out
}
