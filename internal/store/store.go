// Package store persists the master dataset and its schema registry and
// takes backups before every overwrite.
package store

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/nconklindev/mergeline/internal/ingesterr"
	"github.com/nconklindev/mergeline/internal/schema"
	"github.com/nconklindev/mergeline/internal/types"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

var registryHeader = []string{"column", "position", "first_seen", "source"}

// State is the persisted master: the dataset and every column ever seen.
type State struct {
	Dataset *types.Dataset
	Schema  *types.Schema
}

// Repository is the narrow access path to persisted state. Callers are
// responsible for single-writer discipline.
type Repository interface {
	Load() (*State, error)
	// Snapshot backs up the current master and returns the backup path,
	// or "" when there is nothing to back up.
	Snapshot() (string, error)
	Save(*State) error
}

// FileStore keeps the master as a CSV file and the schema as a registry
// CSV next to it.
type FileStore struct {
	MasterPath string
	SchemaPath string
	backups    *Backups
	now        func() time.Time
	log        *zap.Logger
}

var _ Repository = (*FileStore)(nil)

func NewFileStore(masterPath, schemaPath string, backups *Backups, log *zap.Logger) *FileStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &FileStore{
		MasterPath: masterPath,
		SchemaPath: schemaPath,
		backups:    backups,
		now:        time.Now,
		log:        log,
	}
}

// Artifacts returns the files the store owns, for exclusion from discovery.
func (s *FileStore) Artifacts() []string {
	out := []string{s.MasterPath}
	if s.SchemaPath != "" {
		out = append(out, s.SchemaPath)
	}
	return out
}

// Load reads the master and the registry. The schema is their union and the
// dataset is backfilled to be rectangular over it. Missing files load as empty.
func (s *FileStore) Load() (*State, error) {
	reg, err := s.loadRegistry()
	if err != nil {
		return nil, err
	}
	ds, err := s.loadMaster()
	if err != nil {
		return nil, err
	}

	schema.Reconcile(reg, ds, filepath.Base(s.MasterPath), s.now())
	s.log.Debug("master loaded",
		zap.String("path", s.MasterPath),
		zap.Int("rows", len(ds.Rows)),
		zap.Int("columns", len(ds.Columns)),
	)
	return &State{Dataset: ds, Schema: reg}, nil
}

func (s *FileStore) Snapshot() (string, error) {
	if s.backups == nil {
		return "", nil
	}
	path, err := s.backups.Snapshot(s.MasterPath)
	if err != nil {
		return "", ingesterr.Wrap(err, ingesterr.KindPersist, s.MasterPath, "backup master")
	}
	return path, nil
}

// Save rewrites the registry and then the master, each atomically. When the
// master cannot be written the previous registry is put back, so a failed
// save leaves both artifacts as they were.
func (s *FileStore) Save(st *State) error {
	var restore func() error
	if s.SchemaPath != "" {
		prev, err := os.ReadFile(s.SchemaPath)
		existed := err == nil
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return ingesterr.Wrap(err, ingesterr.KindPersist, s.SchemaPath, "read schema registry")
		}
		perm := filePerm(s.SchemaPath)

		if err := writeAtomic(s.SchemaPath, perm, func(w io.Writer) error {
			return writeRecords(w, registryRecords(st.Schema))
		}); err != nil {
			return ingesterr.Wrap(err, ingesterr.KindPersist, s.SchemaPath, "write schema registry")
		}

		restore = func() error {
			if !existed {
				return os.Remove(s.SchemaPath)
			}
			return writeAtomic(s.SchemaPath, perm, func(w io.Writer) error {
				_, err := w.Write(prev)
				return err
			})
		}
	}

	if err := writeAtomic(s.MasterPath, filePerm(s.MasterPath), func(w io.Writer) error {
		return writeRecords(w, st.Dataset.Records())
	}); err != nil {
		if restore != nil {
			if rerr := restore(); rerr != nil {
				s.log.Error("restore schema registry",
					zap.String("path", s.SchemaPath),
					zap.Error(rerr),
				)
			}
		}
		return ingesterr.Wrap(err, ingesterr.KindPersist, s.MasterPath, "write master")
	}
	return nil
}

func (s *FileStore) loadMaster() (*types.Dataset, error) {
	records, err := readRecords(s.MasterPath)
	if err != nil {
		return nil, err
	}
	ds := &types.Dataset{}
	if len(records) == 0 {
		return ds, nil
	}

	header := records[0]
	for _, rec := range records[1:] {
		row := make(types.Row, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = types.ParseCell(rec[i])
			} else if _, ok := row[col]; !ok {
				row[col] = types.Cell{}
			}
		}
		ds.Rows = append(ds.Rows, row)
	}
	for _, col := range header {
		ds.AddColumn(col)
	}
	return ds, nil
}

func (s *FileStore) loadRegistry() (*types.Schema, error) {
	reg := types.NewSchema()
	if s.SchemaPath == "" {
		return reg, nil
	}
	records, err := readRecords(s.SchemaPath)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return reg, nil
	}

	for _, rec := range records[1:] {
		if len(rec) == 0 || rec[0] == "" {
			continue
		}
		col := types.SchemaColumn{Name: rec[0]}
		if len(rec) > 2 && rec[2] != "" {
			if t, err := time.Parse(time.RFC3339, rec[2]); err == nil {
				col.FirstSeen = t
			}
		}
		if len(rec) > 3 {
			col.Source = rec[3]
		}
		reg.Add(col)
	}
	return reg, nil
}

func registryRecords(s *types.Schema) [][]string {
	out := make([][]string, 0, s.Len()+1)
	out = append(out, registryHeader)
	for i, c := range s.Columns {
		seen := ""
		if !c.FirstSeen.IsZero() {
			seen = c.FirstSeen.UTC().Format(time.RFC3339)
		}
		out = append(out, []string{c.Name, strconv.Itoa(i + 1), seen, c.Source})
	}
	return out
}

// readRecords reads a whole CSV file. A missing file yields no records.
func readRecords(path string) ([][]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, ingesterr.Wrap(err, ingesterr.KindPersist, path, "read")
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, ingesterr.Wrap(err, ingesterr.KindCorrupt, path, "parse")
	}
	return records, nil
}

func writeRecords(w io.Writer, records [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(records); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

func filePerm(path string) os.FileMode {
	if info, err := os.Stat(path); err == nil {
		return info.Mode().Perm()
	}
	return 0o644
}
