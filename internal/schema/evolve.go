// Package schema grows the master schema as new columns arrive.
package schema

import (
	"time"

	"go.uber.org/zap"

	"github.com/nconklindev/mergeline/internal/types"
)

// Evolve appends every incoming column the schema has not seen, in incoming
// order, and backfills existing dataset rows with empty cells. Columns are
// never removed or renamed. It returns the names that were added.
func Evolve(s *types.Schema, ds *types.Dataset, incoming []string, source string, now time.Time, log *zap.Logger) []string {
	if log == nil {
		log = zap.NewNop()
	}

	var added []string
	for _, col := range incoming {
		if s.Add(types.SchemaColumn{Name: col, FirstSeen: now, Source: source}) {
			added = append(added, col)
			log.Info("schema column added",
				zap.String("column", col),
				zap.String("source", source),
			)
		}
		ds.AddColumn(col)
	}
	return added
}

// Reconcile makes the dataset rectangular over the schema: schema columns
// missing from the dataset are appended and backfilled, and dataset columns
// missing from the schema are registered. The dataset keeps the schema order.
func Reconcile(s *types.Schema, ds *types.Dataset, source string, now time.Time) {
	for _, col := range ds.Columns {
		s.Add(types.SchemaColumn{Name: col, FirstSeen: now, Source: source})
	}

	names := s.Names()
	for _, col := range names {
		ds.AddColumn(col)
	}
	ds.Columns = names
}
