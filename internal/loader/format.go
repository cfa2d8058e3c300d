package loader

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/nconklindev/mergeline/internal/ingesterr"
	"github.com/nconklindev/mergeline/internal/types"
)

// SniffBytes is how much of a text file is inspected to pick a delimiter.
const SniffBytes = 8192

// SniffLines caps the number of non-empty lines the sniffer compares.
const SniffLines = 10

var extensionFormats = map[string]types.Format{
	".xlsx": types.FormatXLSX,
	".xls":  types.FormatXLS,
	".csv":  types.FormatCSV,
	".tsv":  types.FormatTSV,
	".txt":  types.FormatCSV,
}

// ambiguous extensions are content-sniffed for comma vs tab.
var ambiguous = map[string]bool{".csv": true, ".txt": true}

var (
	zipMagic = []byte{'P', 'K', 0x03, 0x04}
	oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0}
)

// Supported reports whether the extension of path is ingestible.
func Supported(path string) bool {
	_, ok := extensionFormats[strings.ToLower(filepath.Ext(path))]
	return ok
}

// SupportedExtensions lists ingestible extensions, for pickers and help text.
func SupportedExtensions() []string {
	return []string{".csv", ".tsv", ".txt", ".xls", ".xlsx"}
}

// DetectFormat classifies path by extension, then by content where the
// extension alone is not conclusive.
func DetectFormat(path string) (types.Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	format, ok := extensionFormats[ext]
	if !ok {
		return "", ingesterr.New(ingesterr.KindFormatUnsupported, path,
			"unsupported file type %q", ext).
			WithHint("supported formats: " + strings.Join(SupportedExtensions(), ", "))
	}

	head, err := readHead(path, SniffBytes)
	if err != nil {
		return "", err
	}

	switch {
	case format.IsSpreadsheet():
		// Workbooks saved with the wrong extension are common in exports.
		if bytes.HasPrefix(head, zipMagic) {
			return types.FormatXLSX, nil
		}
		if bytes.HasPrefix(head, oleMagic) {
			return types.FormatXLS, nil
		}
		return format, nil
	case ambiguous[ext]:
		if SniffDelimiter(head, ',') == '\t' {
			return types.FormatTSV, nil
		}
		return types.FormatCSV, nil
	}
	return format, nil
}

func readHead(path string, n int) ([]byte, error) {
	f, err := openSource(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, n)
	read, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, classifyOpenError(path, err)
	}
	return buf[:read], nil
}

// openSource opens path for reading and probes one byte so a file held
// open exclusively by another program fails here, before any parsing.
func openSource(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, classifyOpenError(path, err)
	}
	var probe [1]byte
	if _, err := f.ReadAt(probe[:], 0); err != nil && !errors.Is(err, io.EOF) {
		f.Close()
		return nil, classifyOpenError(path, err)
	}
	return f, nil
}

func classifyOpenError(path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return ingesterr.Wrap(err, ingesterr.KindNotFound, path, "file not found")
	case errors.Is(err, fs.ErrPermission) || isLockViolation(err):
		return &ingesterr.Error{
			Kind:    ingesterr.KindFileLocked,
			Path:    path,
			Message: "file is locked by another process",
			Hint:    "close the file in Excel or other programs and retry",
			Cause:   err,
		}
	}
	return ingesterr.Wrap(err, ingesterr.KindCorrupt, path, "cannot read file")
}

// SniffDelimiter picks ',' or '\t' from a text sample. For each candidate
// the most common non-zero per-line count (quotes respected) is found; the
// candidate qualifies when at least half of the sampled lines share it,
// which tolerates a free-text title line above the table. The candidate
// shared by more lines wins, then the one with more fields. fallback is
// returned when neither qualifies.
func SniffDelimiter(sample []byte, fallback rune) rune {
	lines := sampleLines(sample)
	if len(lines) == 0 {
		return fallback
	}

	best, bestFreq, bestCount := fallback, 0, 0
	for _, d := range []rune{',', '\t'} {
		count, freq := modeCount(lines, d)
		if count == 0 || freq*2 < len(lines) {
			continue
		}
		if freq > bestFreq || (freq == bestFreq && count > bestCount) {
			best, bestFreq, bestCount = d, freq, count
		}
	}
	return best
}

func sampleLines(sample []byte) []string {
	// Drop a trailing partial line when the sample was cut short.
	if len(sample) == SniffBytes {
		if i := bytes.LastIndexByte(sample, '\n'); i > 0 {
			sample = sample[:i]
		}
	}
	var lines []string
	for _, l := range strings.Split(string(sample), "\n") {
		l = strings.TrimRight(l, "\r")
		if strings.TrimSpace(l) == "" {
			continue
		}
		lines = append(lines, l)
		if len(lines) == SniffLines {
			break
		}
	}
	return lines
}

func modeCount(lines []string, delim rune) (count, freq int) {
	seen := make(map[int]int)
	for _, l := range lines {
		if n := countOutsideQuotes(l, delim); n > 0 {
			seen[n]++
		}
	}
	for n, f := range seen {
		if f > freq || (f == freq && n > count) {
			count, freq = n, f
		}
	}
	return count, freq
}

func countOutsideQuotes(line string, delim rune) int {
	inQuotes := false
	n := 0
	for _, r := range line {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == delim && !inQuotes:
			n++
		}
	}
	return n
}
