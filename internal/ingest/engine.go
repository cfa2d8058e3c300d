// Package ingest drives a file through load, normalize, merge, persist and
// log, and runs batches of files over a directory.
package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nconklindev/mergeline/internal/audit"
	"github.com/nconklindev/mergeline/internal/header"
	"github.com/nconklindev/mergeline/internal/ingesterr"
	"github.com/nconklindev/mergeline/internal/loader"
	"github.com/nconklindev/mergeline/internal/merge"
	"github.com/nconklindev/mergeline/internal/schema"
	"github.com/nconklindev/mergeline/internal/store"
	"github.com/nconklindev/mergeline/internal/types"
)

// renameSamples caps how many header renames are echoed to the console.
const renameSamples = 5

// Journal receives the durable audit lines.
type Journal interface {
	Record(*types.Record)
	Batch(*types.Summary)
}

type Options struct {
	Loader  *loader.Loader
	Locator *header.Locator
	Merger  *merge.Engine
	Repo    store.Repository
	Journal Journal
	Console *audit.Console
	Logger  *zap.Logger
	// Exclude lists artifact paths never picked up by directory discovery.
	Exclude []string
}

type Engine struct {
	loader  *loader.Loader
	locator *header.Locator
	merger  *merge.Engine
	repo    store.Repository
	journal Journal
	console *audit.Console
	log     *zap.Logger
	exclude map[string]bool
	now     func() time.Time
}

func New(opts Options) *Engine {
	e := &Engine{
		loader:  opts.Loader,
		locator: opts.Locator,
		merger:  opts.Merger,
		repo:    opts.Repo,
		journal: opts.Journal,
		console: opts.Console,
		log:     opts.Logger,
		exclude: make(map[string]bool, len(opts.Exclude)),
		now:     time.Now,
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	if e.loader == nil {
		e.loader = loader.New(nil, loader.WithLogger(e.log))
	}
	if e.locator == nil {
		e.locator = header.NewLocator()
	}
	if e.merger == nil {
		e.merger = merge.NewEngine("", "", e.log)
	}
	if e.console == nil {
		e.console = audit.Discard()
	}
	for _, p := range opts.Exclude {
		e.exclude[absPath(p)] = true
	}
	return e
}

// run carries one file through the state machine.
type run struct {
	*types.Record
}

func (r *run) advance(next types.State) error {
	if !r.State.CanTransition(next) {
		return ingesterr.New(ingesterr.KindInternal, r.Path, "illegal transition %s -> %s", r.State, next)
	}
	r.State = next
	return nil
}

// IngestFile runs one file end to end and returns its record. Errors are
// recorded, never returned; a panic anywhere in the run fails only this file.
func (e *Engine) IngestFile(ctx context.Context, path string) (rec *types.Record) {
	r := &run{Record: &types.Record{
		RunID:     uuid.NewString(),
		Source:    filepath.Base(path),
		Path:      path,
		State:     types.StatePending,
		StartedAt: e.now(),
	}}
	log := e.log.With(zap.String("run_id", r.RunID), zap.String("source", r.Source))

	defer func() {
		if p := recover(); p != nil {
			log.Error("ingestion panicked", zap.Any("panic", p), zap.ByteString("stack", debug.Stack()))
			// A panic can strike in any state, so FAILED is forced here.
			r.State = types.StateFailed
			e.fail(r, ingesterr.New(ingesterr.KindInternal, path, "unexpected failure: %v", p))
		}
		r.Duration = e.now().Sub(r.StartedAt)
		if r.State != types.StateFailed {
			if err := r.advance(types.StateLogged); err != nil {
				r.State = types.StateFailed
				e.fail(r, err)
			}
		}
		if e.journal != nil {
			e.journal.Record(r.Record)
		}
		rec = r.Record
	}()

	if err := e.process(ctx, r, log); err != nil {
		r.State = types.StateFailed
		e.fail(r, err)
		return
	}
	r.Status = types.StatusSuccess
	e.console.Printf(audit.TagOK, "%s: %d added, %d updated, %d unchanged, %d dropped",
		r.Source, r.RowsAdded, r.RowsUpdated, r.RowsUnchanged, r.RowsDropped)
	return
}

func (e *Engine) fail(r *run, err error) {
	r.ErrorKind = string(ingesterr.KindOf(err))
	r.Error = err.Error()
	if ingesterr.Skippable(err) {
		r.Status = types.StatusSkipped
		e.console.Printf(audit.TagWarning, "Skipping %s: %v", r.Source, err)
		return
	}
	r.Status = types.StatusFailed
	e.console.Printf(audit.TagError, "%v", err)
	if hint := ingesterr.HintOf(err); hint != "" {
		e.console.Printf(audit.TagInfo, "Hint: %s", hint)
	}
}

func (e *Engine) process(_ context.Context, r *run, log *zap.Logger) error {
	if err := r.advance(types.StateLoading); err != nil {
		return err
	}
	e.console.Printf(audit.TagLoad, "Loading %s", r.Path)

	format, err := loader.DetectFormat(r.Path)
	if err != nil {
		return err
	}
	r.Format = format

	res, err := e.loader.Load(r.Path, format)
	if res != nil {
		e.noteLoad(r, res)
	}
	if err != nil {
		return err
	}

	if err := r.advance(types.StateLoaded); err != nil {
		return err
	}
	e.console.Printf(audit.TagLoad, "Read %d rows x %d columns (%s, %s)",
		len(res.Table.Rows), res.Table.Width(), format, res.Encoding)

	if err := r.advance(types.StateNormalizing); err != nil {
		return err
	}
	norm := header.Normalize(res.Table, e.locator)
	e.noteNormalize(r, norm)

	if err := r.advance(types.StateMerging); err != nil {
		return err
	}
	if err := e.merge(r, norm.Table, log); err != nil {
		return err
	}

	return r.advance(types.StatePersisted)
}

func (e *Engine) noteLoad(r *run, res *loader.Result) {
	r.Encoding = res.Encoding
	r.Delimiter = res.DelimiterName()
	if res.Table != nil {
		r.RowsLoaded = len(res.Table.Rows)
	}
	for _, a := range res.Attempts {
		if !a.OK() {
			e.console.Printf(audit.TagInfo, "Encoding %s failed: %v", a.Encoding, a.Err)
		}
	}
}

func (e *Engine) noteNormalize(r *run, norm *header.Result) {
	r.HeaderRow = norm.HeaderRow
	r.HeaderRule = string(norm.Rule)
	e.console.Printf(audit.TagSearch, "Header row %d (%s rule)", norm.HeaderRow, norm.Rule)

	for i, rn := range norm.Renames {
		if i == renameSamples {
			e.console.Printf(audit.TagData, "... and %d more renamed columns", len(norm.Renames)-renameSamples)
			break
		}
		e.console.Printf(audit.TagData, "'%s' -> '%s'", rn.From, rn.To)
	}

	for _, col := range norm.Conflicts {
		w := fmt.Sprintf("%s: column %q mixes numbers and text, stored as text", ingesterr.KindSchemaTypeConflict, col)
		r.Warnings = append(r.Warnings, w)
		e.console.Printf(audit.TagWarning, "%s", w)
	}
}

// merge folds the table into the master and persists it. A run that
// changes nothing leaves every artifact untouched.
func (e *Engine) merge(r *run, table *types.Table, log *zap.Logger) error {
	st, err := e.repo.Load()
	if err != nil {
		return err
	}

	added := schema.Evolve(st.Schema, st.Dataset, table.Columns, r.Source, e.now(), log)
	r.ColumnsAdded = append([]string{}, added...)
	if len(added) > 0 {
		e.console.Printf(audit.TagSchema, "New columns: %s", strings.Join(added, ", "))
	}

	res := e.merger.Upsert(st.Dataset, table)
	r.RowsAdded = res.Added
	r.RowsUpdated = res.Updated
	r.RowsUnchanged = res.Unchanged
	r.RowsDropped = res.Dropped
	for _, w := range res.Warnings {
		w = fmt.Sprintf("%s: %s", ingesterr.KindPrimaryKeyMissing, w)
		r.Warnings = append(r.Warnings, w)
		e.console.Printf(audit.TagWarning, "%s", w)
	}

	r.TotalRows = len(st.Dataset.Rows)
	r.TotalColumns = len(st.Dataset.Columns)

	if !res.Changed() && len(added) == 0 {
		e.console.Printf(audit.TagInfo, "No changes, master left untouched")
		return nil
	}

	backup, err := e.repo.Snapshot()
	if err != nil {
		return err
	}
	r.BackupPath = backup
	if backup != "" {
		e.console.Printf(audit.TagBackup, "Saved %s", backup)
	}

	if err := e.repo.Save(st); err != nil {
		return err
	}
	e.console.Printf(audit.TagSave, "Master now %d rows x %d columns", r.TotalRows, r.TotalColumns)
	return nil
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}
