package loader

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/extrame/xls"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap/zaptest"

	"github.com/nconklindev/mergeline/internal/ingesterr"
	"github.com/nconklindev/mergeline/internal/types"
)

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestSniffDelimiter(t *testing.T) {
	tests := []struct {
		name     string
		sample   string
		expected rune
	}{
		{"Comma", "a,b,c\n1,2,3\n4,5,6\n", ','},
		{"Tab", "a\tb\tc\n1\t2\t3\n", '\t'},
		{"Quoted commas inside tab file", "a\tb\tc\n\"x, y\"\t2\t3\n", '\t'},
		{"Title line above tab table", "Survey export\na\tb\tc\n1\t2\t3\n4\t5\t6\n", '\t'},
		{"Single column falls back", "a\nb\nc\n", ','},
		{"Empty", "", ','},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SniffDelimiter([]byte(tt.sample), ','))
		})
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		content  []byte
		expected types.Format
	}{
		{"CSV", "a.csv", []byte("a,b,c\n1,2,3\n"), types.FormatCSV},
		{"TSV extension", "a.tsv", []byte("a\tb\tc\n"), types.FormatTSV},
		{"Tab content in csv", "a.csv", []byte("a\tb\tc\n1\t2\t3\n"), types.FormatTSV},
		{"Txt is delimited text", "a.txt", []byte("a,b,c\n"), types.FormatCSV},
		{"Uppercase extension", "A.CSV", []byte("a,b,c\n"), types.FormatCSV},
		{"Xlsx labelled xls", "a.xls", append([]byte("PK\x03\x04"), make([]byte, 16)...), types.FormatXLSX},
		{"Xls labelled xlsx", "a.xlsx", append([]byte{0xD0, 0xCF, 0x11, 0xE0}, make([]byte, 16)...), types.FormatXLS},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.file, tt.content)
			got, err := DetectFormat(path)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestDetectFormatErrors(t *testing.T) {
	_, err := DetectFormat(writeFile(t, "report.pdf", []byte("%PDF")))
	require.Error(t, err)
	assert.True(t, ingesterr.IsKind(err, ingesterr.KindFormatUnsupported))
	assert.Contains(t, ingesterr.HintOf(err), ".xlsx")

	_, err = DetectFormat(filepath.Join(t.TempDir(), "missing.csv"))
	assert.True(t, ingesterr.IsKind(err, ingesterr.KindNotFound))
}

func TestCascade(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		encoding string
		text     string
		attempts int
	}{
		{"Plain UTF-8", []byte("café"), "utf-8", "café", 1},
		{"UTF-8 with BOM", []byte("\xEF\xBB\xBFcafé"), "utf-8-sig", "café", 2},
		{"Windows-1252", []byte("caf\xE9 \x93q\x94"), "windows-1252", "café “q”", 3},
		{"Undefined cp1252 byte falls to latin1", []byte("a\x81b"), "latin1", "a\u0081b", 4},
	}

	c, err := NewCascade(nil, zaptest.NewLogger(t))
	require.NoError(t, err)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, enc, attempts, err := c.Decode("x.csv", tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.encoding, enc)
			assert.Equal(t, tt.text, text)
			require.Len(t, attempts, tt.attempts)
			assert.True(t, attempts[len(attempts)-1].OK())
		})
	}
}

func TestCascadeExhausted(t *testing.T) {
	c, err := NewCascade([]string{"utf-8"}, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, _, attempts, err := c.Decode("x.csv", []byte("caf\xE9"))
	require.Error(t, err)
	assert.True(t, ingesterr.IsKind(err, ingesterr.KindEncodingExhausted))
	require.Len(t, attempts, 1)
	assert.False(t, attempts[0].OK())
}

func TestNewCascadeRejectsUnknown(t *testing.T) {
	_, err := NewCascade([]string{"utf-8", "ebcdic"}, nil)
	assert.Error(t, err)

	c, err := NewCascade([]string{"CP1252", "latin-1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"windows-1252", "latin1"}, c.Names())
	assert.True(t, KnownEncoding("UTF8"))
}

func TestLoadCSV(t *testing.T) {
	path := writeFile(t, "leads.csv", []byte("Company Name,Email,Score\r\nAcme,a@acme.io,10\r\n\"Beta, Inc\",,7\r\nShort,row\r\n"))

	l := New(nil, WithLogger(zaptest.NewLogger(t)))
	res, err := l.Load(path, types.FormatCSV)
	require.NoError(t, err)

	assert.Equal(t, "utf-8", res.Encoding)
	assert.Equal(t, ",", res.DelimiterName())
	require.Len(t, res.Table.Rows, 4)
	assert.Equal(t, 3, res.Table.Width())
	assert.Equal(t, "Beta, Inc", res.Table.Rows[2][0].String())
	assert.Equal(t, types.CellNumber, res.Table.Rows[1][2].Kind)
	assert.Len(t, res.Table.Rows[3], 2)
}

func TestLoadTSVWindows1252(t *testing.T) {
	path := writeFile(t, "leads.tsv", []byte("name\tcity\tscore\nJos\xE9\tM\xFCnchen\t3\n"))

	res, err := New(nil).Load(path, types.FormatTSV)
	require.NoError(t, err)
	assert.Equal(t, "windows-1252", res.Encoding)
	assert.Equal(t, "tab", res.DelimiterName())
	assert.Equal(t, "José", res.Table.Rows[1][0].String())
	assert.Equal(t, "München", res.Table.Rows[1][1].String())
}

func TestLoadEncodingExhausted(t *testing.T) {
	path := writeFile(t, "leads.csv", []byte("a,b,c\nJos\xE9,1,2\n"))
	c, err := NewCascade([]string{"utf-8"}, nil)
	require.NoError(t, err)

	res, err := New(c).Load(path, types.FormatCSV)
	assert.True(t, ingesterr.IsKind(err, ingesterr.KindEncodingExhausted))
	require.NotNil(t, res)
	assert.Nil(t, res.Table)
	assert.Len(t, res.Attempts, 1)
}

func TestLoadTooSmall(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"Empty", ""},
		{"Header only", "a,b,c\n"},
		{"Two columns", "a,b\n1,2\n3,4\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, "small.csv", []byte(tt.content))
			_, err := New(nil).Load(path, types.FormatCSV)
			require.Error(t, err)
			assert.True(t, ingesterr.Skippable(err))
		})
	}
}

func TestLoadXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leads.xlsx")
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"Export generated 2024-01-01"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"Company Name", "Email", "Score"}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]any{"Acme", "a@acme.io", 10}))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	format, err := DetectFormat(path)
	require.NoError(t, err)
	require.Equal(t, types.FormatXLSX, format)

	res, err := New(nil).Load(path, format)
	require.NoError(t, err)
	assert.Equal(t, EncodingBinary, res.Encoding)
	assert.Equal(t, "", res.DelimiterName())
	require.Len(t, res.Table.Rows, 3)
	assert.Equal(t, "Company Name", res.Table.Rows[1][0].String())
	assert.Equal(t, types.CellNumber, res.Table.Rows[2][2].Kind)
}

func TestLoadCorruptWorkbook(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content []byte
		format  types.Format
	}{
		{"Zip without workbook parts", "broken.xlsx", append([]byte("PK\x03\x04"), make([]byte, 64)...), types.FormatXLSX},
		{"Legacy magic without header", "broken.xls", []byte{0xD0, 0xCF, 0x11, 0xE0}, types.FormatXLS},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(nil).Load(writeFile(t, tt.file, tt.content), tt.format)
			require.Error(t, err)
			assert.True(t, ingesterr.IsKind(err, ingesterr.KindCorrupt))
		})
	}
}

func TestLoadXLS(t *testing.T) {
	path := filepath.Join("testdata", "table.xls")

	format, err := DetectFormat(path)
	require.NoError(t, err)
	require.Equal(t, types.FormatXLS, format)

	res, err := New(nil, WithLogger(zaptest.NewLogger(t))).Load(path, format)
	require.NoError(t, err)
	assert.Equal(t, EncodingBinary, res.Encoding)
	assert.Equal(t, "", res.DelimiterName())

	require.Len(t, res.Table.Rows, 12)
	assert.Equal(t, 3, res.Table.Width())
	assert.Equal(t, "Code", res.Table.Rows[0][0].String())
	assert.Equal(t, "Description", res.Table.Rows[0][2].String())
	assert.Equal(t, "name11", res.Table.Rows[11][1].String())
}

func TestLoadXLSRecoversPanic(t *testing.T) {
	orig := openLegacy
	t.Cleanup(func() { openLegacy = orig })
	openLegacy = func(io.ReadSeeker, string) (*xls.WorkBook, error) {
		panic("index out of range")
	}

	path := writeFile(t, "legacy.xls", []byte{0xD0, 0xCF, 0x11, 0xE0})
	res, err := New(nil).Load(path, types.FormatXLS)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, ingesterr.IsKind(err, ingesterr.KindCorrupt))
	assert.Contains(t, err.Error(), "index out of range")
}

func TestClassifyOpenError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind ingesterr.Kind
		hint bool
	}{
		{"Missing", &fs.PathError{Op: "open", Path: "a.csv", Err: fs.ErrNotExist}, ingesterr.KindNotFound, false},
		{"Permission denied", &fs.PathError{Op: "open", Path: "a.csv", Err: fs.ErrPermission}, ingesterr.KindFileLocked, true},
		{"Other read failure", errors.New("input/output error"), ingesterr.KindCorrupt, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyOpenError("a.csv", tt.err)
			assert.True(t, ingesterr.IsKind(err, tt.kind), "got %v", err)
			assert.ErrorIs(t, err, tt.err)
			if tt.hint {
				assert.Contains(t, ingesterr.HintOf(err), "close the file")
			} else {
				assert.Empty(t, ingesterr.HintOf(err))
			}
		})
	}
}
