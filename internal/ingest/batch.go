package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/nconklindev/mergeline/internal/audit"
	"github.com/nconklindev/mergeline/internal/loader"
	"github.com/nconklindev/mergeline/internal/types"
)

// Discover lists the ingestible files of dir matching pattern, in
// lexicographic order. Store artifacts, hidden files and Office owner files
// (~$name.xlsx) are left out.
func (e *Engine) Discover(dir, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = "*"
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~$") {
			continue
		}
		if !loader.Supported(name) {
			continue
		}
		if ok, _ := filepath.Match(pattern, name); !ok {
			continue
		}
		path := filepath.Join(dir, name)
		if e.exclude[absPath(path)] {
			continue
		}
		files = append(files, path)
	}
	sort.Strings(files)
	return files, nil
}

// IngestDirectory ingests every discovered file in order. One file's
// failure never stops the batch; a cancelled ctx stops it between files and
// is returned along with the summary of what ran. progress, when non-nil,
// receives the completed fraction without blocking.
func (e *Engine) IngestDirectory(ctx context.Context, dir, pattern string, progress chan<- float64) (*types.Summary, error) {
	files, err := e.Discover(dir, pattern)
	if err != nil {
		return nil, err
	}
	if pattern == "" {
		pattern = "*"
	}

	e.console.Printf(audit.TagSearch, "Found %d file(s) in %s matching %s", len(files), dir, pattern)
	return e.IngestFiles(ctx, dir, pattern, files, progress)
}

// IngestFiles runs an explicit file list as one batch.
func (e *Engine) IngestFiles(ctx context.Context, dir, pattern string, files []string, progress chan<- float64) (*types.Summary, error) {
	records := make([]*types.Record, 0, len(files))
	var cancelled error
	for i, path := range files {
		if err := ctx.Err(); err != nil {
			cancelled = err
			e.console.Printf(audit.TagWarning, "Interrupted, %d file(s) not processed", len(files)-i)
			break
		}
		records = append(records, e.IngestFile(ctx, path))
		report(progress, float64(i+1)/float64(len(files)))
	}

	rows, cols := e.masterSize()
	summary := audit.Aggregate(dir, pattern, records, rows, cols)
	if e.journal != nil {
		e.journal.Batch(summary)
	}
	e.console.Summary(summary)
	return summary, cancelled
}

func (e *Engine) masterSize() (int, int) {
	st, err := e.repo.Load()
	if err != nil {
		e.log.Warn("cannot read master for summary", zap.Error(err))
		return 0, 0
	}
	return len(st.Dataset.Rows), len(st.Dataset.Columns)
}

func report(progress chan<- float64, p float64) {
	if progress == nil {
		return
	}
	select {
	case progress <- p:
	default:
	}
}

// Failed reports whether any record of the summary failed.
func Failed(s *types.Summary) bool {
	return s != nil && s.Failed > 0
}

// IsCancelled reports whether err stems from a cancelled batch.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
