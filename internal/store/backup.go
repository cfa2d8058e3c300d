package store

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

const backupTimeLayout = "20060102_150405"

// Backups copies the master file into a backup directory before it is
// overwritten.
type Backups struct {
	Dir string
	now func() time.Time
	log *zap.Logger
}

func NewBackups(dir string, log *zap.Logger) *Backups {
	if log == nil {
		log = zap.NewNop()
	}
	return &Backups{Dir: dir, now: time.Now, log: log}
}

// Snapshot copies path to <Dir>/<stem>_YYYYMMDD_HHMMSS<ext> and returns the
// backup path. The copy keeps the source mode and modification time. A
// missing source is not an error and yields "".
func (b *Backups) Snapshot(path string) (string, error) {
	src, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}

	if err := os.MkdirAll(b.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup directory: %w", err)
	}

	dst, target, err := b.create(path, info.Mode().Perm())
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(target)
		return "", fmt.Errorf("copy to %s: %w", target, err)
	}
	if err := dst.Sync(); err != nil {
		dst.Close()
		os.Remove(target)
		return "", fmt.Errorf("sync %s: %w", target, err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(target)
		return "", fmt.Errorf("close %s: %w", target, err)
	}
	if err := os.Chtimes(target, info.ModTime(), info.ModTime()); err != nil {
		return "", fmt.Errorf("preserve times on %s: %w", target, err)
	}

	b.log.Info("backup created", zap.String("source", path), zap.String("backup", target))
	return target, nil
}

// create opens a new, not yet existing backup file. Two snapshots in the
// same second get _1, _2, ... suffixes.
func (b *Backups) create(path string, perm fs.FileMode) (*os.File, string, error) {
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(filepath.Base(path), ext)
	base := fmt.Sprintf("%s_%s", stem, b.now().Format(backupTimeLayout))

	for n := 0; ; n++ {
		name := base + ext
		if n > 0 {
			name = fmt.Sprintf("%s_%d%s", base, n, ext)
		}
		target := filepath.Join(b.Dir, name)
		f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return nil, "", fmt.Errorf("create backup %s: %w", target, err)
		}
		// OpenFile applies the umask.
		if err := f.Chmod(perm); err != nil {
			f.Close()
			os.Remove(target)
			return nil, "", fmt.Errorf("chmod backup %s: %w", target, err)
		}
		return f, target, nil
	}
}
