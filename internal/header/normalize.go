package header

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/nconklindev/mergeline/internal/types"
)

const (
	digitPrefix       = "col_"
	placeholderFormat = "column_%d"
)

// NormalizeName canonicalizes a single header value. Spaces and hyphens
// become underscores and any other non-word rune, line breaks included, is
// dropped. It does not know the column position, so an unusable value yields "".
func NormalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == ' ' || r == '-':
			b.WriteByte('_')
		case r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		}
	}

	name := collapseUnderscores(b.String())
	if name == "" {
		return ""
	}
	if first := []rune(name)[0]; unicode.IsDigit(first) {
		name = digitPrefix + name
	}
	return name
}

func collapseUnderscores(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prev := false
	for _, r := range s {
		if r == '_' {
			if prev {
				continue
			}
			prev = true
		} else {
			prev = false
		}
		b.WriteRune(r)
	}
	return strings.Trim(b.String(), "_")
}

// NormalizeColumns canonicalizes a header row into unique names. The row is
// widened to width so ragged data rows still get columns; blank cells get a
// positional placeholder and repeats get _1, _2, ... left to right.
func NormalizeColumns(cells []types.Cell, width int) []string {
	width = max(width, len(cells))
	out := make([]string, width)
	seen := make(map[string]bool, width)

	for i := 0; i < width; i++ {
		var name string
		if i < len(cells) {
			name = NormalizeName(cells[i].String())
		}
		if name == "" {
			name = fmt.Sprintf(placeholderFormat, i)
		}
		if seen[name] {
			base := name
			for k := 1; seen[name]; k++ {
				name = fmt.Sprintf("%s_%d", base, k)
			}
		}
		seen[name] = true
		out[i] = name
	}
	return out
}

// Rename pairs an original header value with its canonical name.
type Rename struct {
	From string
	To   string
}

// Renames lists the columns whose canonical name differs from the source text.
func Renames(cells []types.Cell, columns []string) []Rename {
	var out []Rename
	for i, col := range columns {
		from := ""
		if i < len(cells) {
			from = cells[i].String()
		}
		if from != col {
			out = append(out, Rename{From: from, To: col})
		}
	}
	return out
}

// Result is a normalized table together with how it was derived.
type Result struct {
	Table     *types.Table
	HeaderRow int
	Rule      Rule
	Renames   []Rename
	// Conflicts are the columns that mixed numbers and text and were coerced to text.
	Conflicts []string
}

// Normalize locates the header of raw, canonicalizes it and maps every row
// below it onto the canonical columns.
func Normalize(raw *types.RawTable, loc *Locator) *Result {
	if loc == nil {
		loc = NewLocator()
	}
	idx, rule := loc.Locate(raw)

	var headerCells []types.Cell
	if idx < len(raw.Rows) {
		headerCells = raw.Rows[idx]
	}
	columns := NormalizeColumns(headerCells, raw.Width())

	table := &types.Table{Columns: columns}
	if idx+1 < len(raw.Rows) {
		for _, src := range raw.Rows[idx+1:] {
			row := make(types.Row, len(columns))
			for j, col := range columns {
				if j < len(src) {
					row[col] = src[j]
				} else {
					row[col] = types.Cell{}
				}
			}
			table.Rows = append(table.Rows, row)
		}
	}

	return &Result{
		Table:     table,
		HeaderRow: idx,
		Rule:      rule,
		Renames:   Renames(headerCells, columns),
		Conflicts: CoerceConflicts(table),
	}
}

// CoerceConflicts turns every column that holds both numbers and text into
// a text column. Source text is kept as is. It returns the affected columns
// in column order.
func CoerceConflicts(t *types.Table) []string {
	var conflicts []string
	for _, col := range t.Columns {
		var numbers, texts bool
		for _, r := range t.Rows {
			switch r[col].Kind {
			case types.CellNumber:
				numbers = true
			case types.CellText:
				texts = true
			}
		}
		if !numbers || !texts {
			continue
		}
		for _, r := range t.Rows {
			if c := r[col]; c.Kind == types.CellNumber {
				r[col] = types.TextCell(c.Raw)
			}
		}
		conflicts = append(conflicts, col)
	}
	return conflicts
}
