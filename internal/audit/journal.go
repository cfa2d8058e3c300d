package audit

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nconklindev/mergeline/internal/types"
)

const journalTimeLayout = "2006-01-02 15:04:05"

// Journal is the durable, append-only ingestion log. Each file run is one line:
//
//	2024-01-02 15:04:05 | INFO | INGESTION | run_id=... | source=... | status=success
//
// A directory run adds one summary line after its file lines:
//
//	2024-01-02 15:04:05 | INFO | BATCH | directory=... | total_files=3 | ...
type Journal struct {
	file *os.File
	log  *zap.Logger
}

// OpenJournal opens path for appending, creating it and its directory as needed.
func OpenJournal(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	enc := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		TimeKey:          "time",
		LevelKey:         "level",
		MessageKey:       "message",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeLevel:      zapcore.CapitalLevelEncoder,
		EncodeTime:       zapcore.TimeEncoderOfLayout(journalTimeLayout),
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: " | ",
	})
	core := zapcore.NewCore(enc, zapcore.AddSync(f), zapcore.InfoLevel)
	return &Journal{file: f, log: zap.New(core)}, nil
}

// Record appends the line for one run.
func (j *Journal) Record(r *types.Record) {
	if r.Status == types.StatusFailed {
		j.log.Error(FormatRecord(r))
		return
	}
	j.log.Info(FormatRecord(r))
}

// Batch appends the line for a directory run.
func (j *Journal) Batch(s *types.Summary) {
	j.log.Info(FormatSummary(s))
}

func (j *Journal) Close() error {
	_ = j.log.Sync()
	return j.file.Close()
}

// FormatRecord renders a record as the journal message.
func FormatRecord(r *types.Record) string {
	pairs := []string{
		"INGESTION",
		kv("run_id", r.RunID),
		kv("source", r.Source),
		kv("format", string(r.Format)),
		kv("encoding", r.Encoding),
		kv("delimiter", r.Delimiter),
		kv("header_row", strconv.Itoa(r.HeaderRow)),
		kv("header_rule", r.HeaderRule),
		kv("rows_loaded", strconv.Itoa(r.RowsLoaded)),
		kv("rows_added", strconv.Itoa(r.RowsAdded)),
		kv("rows_updated", strconv.Itoa(r.RowsUpdated)),
		kv("rows_unchanged", strconv.Itoa(r.RowsUnchanged)),
		kv("rows_dropped", strconv.Itoa(r.RowsDropped)),
		kv("columns_added", strings.Join(r.ColumnsAdded, ",")),
		kv("total_rows", strconv.Itoa(r.TotalRows)),
		kv("total_columns", strconv.Itoa(r.TotalColumns)),
		kv("backup", r.BackupPath),
		kv("warnings", strconv.Itoa(len(r.Warnings))),
		kv("duration", r.Duration.Round(time.Millisecond).String()),
		kv("status", string(r.Status)),
	}
	if r.ErrorKind != "" {
		pairs = append(pairs, kv("error_kind", r.ErrorKind), kv("error", r.Error))
	}
	return strings.Join(pairs, " | ")
}

// FormatSummary renders a batch summary as the journal message.
func FormatSummary(s *types.Summary) string {
	return strings.Join([]string{
		"BATCH",
		kv("directory", s.Directory),
		kv("pattern", s.Pattern),
		kv("total_files", strconv.Itoa(s.TotalFiles)),
		kv("successful", strconv.Itoa(s.Successful)),
		kv("failed", strconv.Itoa(s.Failed)),
		kv("skipped", strconv.Itoa(s.Skipped)),
		kv("rows_added", strconv.Itoa(s.TotalRowsAdded)),
		kv("rows_updated", strconv.Itoa(s.TotalRowsUpdated)),
		kv("rows_dropped", strconv.Itoa(s.TotalRowsDropped)),
		kv("columns_added", strings.Join(s.ColumnsAdded, ",")),
		kv("final_rows", strconv.Itoa(s.FinalRows)),
		kv("final_columns", strconv.Itoa(s.FinalColumns)),
	}, " | ")
}

func kv(key, value string) string {
	if strings.ContainsAny(value, " |=\"\t\r\n") {
		value = strconv.Quote(value)
	}
	return key + "=" + value
}
