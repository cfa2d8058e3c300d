package audit

import (
	"sort"

	"github.com/nconklindev/mergeline/internal/types"
)

// Aggregate folds per-file records into a batch summary. The records are
// not modified. finalRows and finalColumns describe the master after the batch.
func Aggregate(dir, pattern string, records []*types.Record, finalRows, finalColumns int) *types.Summary {
	s := &types.Summary{
		Directory:    dir,
		Pattern:      pattern,
		TotalFiles:   len(records),
		FinalRows:    finalRows,
		FinalColumns: finalColumns,
		ColumnsAdded: []string{},
		Errors:       []string{},
		Files:        records,
	}

	cols := make(map[string]bool)
	for _, r := range records {
		switch r.Status {
		case types.StatusSuccess:
			s.Successful++
		case types.StatusFailed:
			s.Failed++
			s.Errors = append(s.Errors, r.Source+": "+r.Error)
		case types.StatusSkipped:
			s.Skipped++
		}
		s.TotalRowsAdded += r.RowsAdded
		s.TotalRowsUpdated += r.RowsUpdated
		s.TotalRowsDropped += r.RowsDropped
		for _, c := range r.ColumnsAdded {
			cols[c] = true
		}
	}

	for c := range cols {
		s.ColumnsAdded = append(s.ColumnsAdded, c)
	}
	sort.Strings(s.ColumnsAdded)
	return s
}
