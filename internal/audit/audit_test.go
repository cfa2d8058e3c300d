package audit

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nconklindev/mergeline/internal/types"
)

func sampleRecord() *types.Record {
	return &types.Record{
		RunID:        "3f1c",
		Source:       "Q1 leads.xlsx",
		Format:       types.FormatXLSX,
		Encoding:     "binary",
		HeaderRow:    1,
		HeaderRule:   "keyword",
		RowsLoaded:   5,
		RowsAdded:    3,
		RowsUpdated:  1,
		RowsDropped:  1,
		ColumnsAdded: []string{"email", "score"},
		TotalRows:    10,
		TotalColumns: 4,
		Status:       types.StatusSuccess,
		Duration:     1500 * time.Millisecond,
	}
}

func TestFormatRecord(t *testing.T) {
	line := FormatRecord(sampleRecord())

	assert.True(t, strings.HasPrefix(line, "INGESTION | run_id=3f1c | "))
	assert.Contains(t, line, `source="Q1 leads.xlsx"`)
	assert.Contains(t, line, "columns_added=email,score")
	assert.Contains(t, line, "rows_added=3 | rows_updated=1")
	assert.True(t, strings.HasSuffix(line, "status=success"))
	assert.NotContains(t, line, "error_kind")
}

func TestFormatRecordFailure(t *testing.T) {
	r := sampleRecord()
	r.Status = types.StatusFailed
	r.ErrorKind = "EncodingExhausted"
	r.Error = "all encodings failed\nkey=value | x"

	line := FormatRecord(r)
	assert.NotContains(t, line, "\n")
	assert.Contains(t, line, "error_kind=EncodingExhausted")
	assert.Contains(t, line, `error="all encodings failed\nkey=value | x"`)
}

func TestJournalAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "ingestion.log")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("existing line\n"), 0o644))

	for i := 0; i < 2; i++ {
		j, err := OpenJournal(path)
		require.NoError(t, err)
		j.Record(sampleRecord())
		require.NoError(t, j.Close())
	}

	j, err := OpenJournal(path)
	require.NoError(t, err)
	j.Batch(&types.Summary{Directory: "data", Pattern: "*", TotalFiles: 2, Successful: 2})
	require.NoError(t, j.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "existing line", lines[0])

	prefix := regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2} \| INFO \| INGESTION \| run_id=3f1c \| `)
	assert.Regexp(t, prefix, lines[1])
	assert.Regexp(t, prefix, lines[2])
	assert.Contains(t, lines[3], "| INFO | BATCH | directory=data | pattern=* | total_files=2")

	tags := map[string]int{}
	for _, l := range lines[1:] {
		fields := strings.SplitN(l, " | ", 4)
		require.Len(t, fields, 4)
		tags[fields[2]]++
	}
	assert.Equal(t, map[string]int{"INGESTION": 2, "BATCH": 1}, tags)
}

func TestJournalFailedRunIsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ingestion.log")
	j, err := OpenJournal(path)
	require.NoError(t, err)

	r := sampleRecord()
	r.Status = types.StatusFailed
	r.ErrorKind = "Corrupt"
	r.Error = "bad zip"
	j.Record(r)
	require.NoError(t, j.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), " | ERROR | INGESTION | ")
}

func TestAggregate(t *testing.T) {
	records := []*types.Record{
		{Source: "a.csv", Status: types.StatusSuccess, RowsAdded: 2, RowsUpdated: 1, ColumnsAdded: []string{"score", "email"}},
		{Source: "b.csv", Status: types.StatusFailed, Error: "EncodingExhausted: b.csv: all encodings failed"},
		{Source: "c.xlsx", Status: types.StatusSkipped, RowsDropped: 0},
		{Source: "d.tsv", Status: types.StatusSuccess, RowsAdded: 1, RowsDropped: 2, ColumnsAdded: []string{"email"}},
	}

	s := Aggregate("data", "*.csv", records, 12, 5)

	assert.Equal(t, 4, s.TotalFiles)
	assert.Equal(t, 2, s.Successful)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.Skipped)
	assert.Equal(t, 3, s.TotalRowsAdded)
	assert.Equal(t, 1, s.TotalRowsUpdated)
	assert.Equal(t, 2, s.TotalRowsDropped)
	assert.Equal(t, []string{"email", "score"}, s.ColumnsAdded)
	assert.Equal(t, []string{"b.csv: EncodingExhausted: b.csv: all encodings failed"}, s.Errors)
	assert.Equal(t, 12, s.FinalRows)
	assert.Same(t, records[0], s.Files[0])
	assert.Equal(t, []string{"score", "email"}, records[0].ColumnsAdded)
}

func TestConsole(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf, true)

	c.Printf(TagLoad, "Loading %s", "a.csv")
	c.Summary(&types.Summary{Directory: "data", Pattern: "*", TotalFiles: 1, Failed: 1, Errors: []string{"a.csv: boom"}})

	out := buf.String()
	assert.Contains(t, out, "[LOAD] Loading a.csv\n")
	assert.Contains(t, out, "[ERROR] a.csv: boom\n")
	assert.NotContains(t, out, "[OK]")
	assert.NotContains(t, out, "\x1b[")
}
