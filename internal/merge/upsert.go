// Package merge folds normalized tables into the master dataset without
// ever overwriting a non-empty value or deleting a row.
package merge

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/nconklindev/mergeline/internal/types"
)

// KeyMatch selects how primary-key values are compared.
type KeyMatch string

const (
	// KeyMatchExact compares key values byte for byte.
	KeyMatchExact KeyMatch = "exact"
	// KeyMatchFolded trims and case-folds key values before comparing.
	KeyMatchFolded KeyMatch = "folded"
)

const DefaultPrimaryKey = "company_name"

// Valid reports whether m is a known key match mode.
func (m KeyMatch) Valid() bool {
	return m == KeyMatchExact || m == KeyMatchFolded
}

// Result counts what an upsert did to the dataset.
type Result struct {
	Added     int
	Updated   int
	Unchanged int
	Dropped   int
	// AppendOnly is set when the primary key was not in the schema.
	AppendOnly bool
	Warnings   []string
}

// Changed reports whether the dataset was modified.
func (r Result) Changed() bool {
	return r.Added > 0 || r.Updated > 0
}

type Engine struct {
	PrimaryKey string
	KeyMatch   KeyMatch
	log        *zap.Logger
}

func NewEngine(primaryKey string, match KeyMatch, log *zap.Logger) *Engine {
	if primaryKey == "" {
		primaryKey = DefaultPrimaryKey
	}
	if match == "" {
		match = KeyMatchExact
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{PrimaryKey: primaryKey, KeyMatch: match, log: log}
}

// Upsert merges t into ds. ds must already hold every column of t.
//
// All-empty rows are dropped. A row whose key matches existing rows fills
// only their empty cells; every existing row sharing that key is enriched.
// Rows without a match, or with an empty key, are appended. Appended rows
// are indexed at once, so later rows with the same key enrich them instead
// of duplicating them.
func (e *Engine) Upsert(ds *types.Dataset, t *types.Table) Result {
	var res Result

	if !ds.HasColumn(e.PrimaryKey) {
		res.AppendOnly = true
		msg := fmt.Sprintf("primary key %q not in schema, appending all rows", e.PrimaryKey)
		res.Warnings = append(res.Warnings, msg)
		e.log.Warn("primary key missing", zap.String("key", e.PrimaryKey))
	}

	norm := e.keyFunc()
	index := make(map[string][]int, len(ds.Rows))
	if !res.AppendOnly {
		for i, r := range ds.Rows {
			if k := norm(r.Get(e.PrimaryKey)); k != "" {
				index[k] = append(index[k], i)
			}
		}
	}

	for _, in := range t.Rows {
		if in.IsEmpty() {
			res.Dropped++
			continue
		}

		key := ""
		if !res.AppendOnly {
			key = norm(in.Get(e.PrimaryKey))
		}
		matches := index[key]
		if key == "" || len(matches) == 0 {
			ds.Rows = append(ds.Rows, e.newRow(ds.Columns, in))
			if key != "" {
				index[key] = append(index[key], len(ds.Rows)-1)
			}
			res.Added++
			continue
		}

		filled := false
		for _, i := range matches {
			if enrich(ds.Rows[i], in) {
				filled = true
			}
		}
		if filled {
			res.Updated++
		} else {
			res.Unchanged++
		}
	}

	e.log.Debug("upsert complete",
		zap.Int("added", res.Added),
		zap.Int("updated", res.Updated),
		zap.Int("unchanged", res.Unchanged),
		zap.Int("dropped", res.Dropped),
		zap.Bool("append_only", res.AppendOnly),
	)
	return res
}

func (e *Engine) newRow(columns []string, in types.Row) types.Row {
	row := make(types.Row, len(columns))
	for _, col := range columns {
		row[col] = in.Get(col)
	}
	return row
}

// enrich copies non-empty incoming cells into empty cells of dst.
func enrich(dst, in types.Row) bool {
	changed := false
	for col, c := range in {
		if c.IsEmpty() {
			continue
		}
		if cur, ok := dst[col]; ok && !cur.IsEmpty() {
			continue
		}
		dst[col] = c
		changed = true
	}
	return changed
}

func (e *Engine) keyFunc() func(types.Cell) string {
	if e.KeyMatch == KeyMatchFolded {
		fold := cases.Fold()
		return func(c types.Cell) string {
			return fold.String(strings.TrimSpace(c.String()))
		}
	}
	return func(c types.Cell) string {
		if c.IsEmpty() {
			return ""
		}
		return c.String()
	}
}
