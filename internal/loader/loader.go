// Package loader turns a source file into a raw table: format detection,
// encoding cascade, delimited text parsing and workbook reading.
package loader

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/nconklindev/mergeline/internal/ingesterr"
	"github.com/nconklindev/mergeline/internal/types"
)

// EncodingBinary is reported for workbook formats, which carry their own encoding.
const EncodingBinary = "binary"

const (
	DefaultMinRows    = 2
	DefaultMinColumns = 3
)

// openLegacy opens a BIFF workbook.
var openLegacy = xls.OpenReader

// Result is the output of a successful load.
type Result struct {
	Table     *types.RawTable
	Format    types.Format
	Encoding  string
	Delimiter rune
	Attempts  []EncodingAttempt
}

// DelimiterName renders the delimiter for records and logs.
func (r *Result) DelimiterName() string {
	switch r.Delimiter {
	case 0:
		return ""
	case '\t':
		return "tab"
	default:
		return string(r.Delimiter)
	}
}

type Loader struct {
	cascade    *Cascade
	minRows    int
	minColumns int
	log        *zap.Logger
}

type Option func(*Loader)

func WithMinRows(n int) Option    { return func(l *Loader) { l.minRows = n } }
func WithMinColumns(n int) Option { return func(l *Loader) { l.minColumns = n } }
func WithLogger(log *zap.Logger) Option {
	return func(l *Loader) {
		if log != nil {
			l.log = log
		}
	}
}

// New builds a loader over the given cascade. A nil cascade uses the default order.
func New(cascade *Cascade, opts ...Option) *Loader {
	l := &Loader{
		minRows:    DefaultMinRows,
		minColumns: DefaultMinColumns,
		log:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if cascade == nil {
		cascade, _ = NewCascade(DefaultEncodings, l.log)
	}
	l.cascade = cascade
	return l
}

// Load reads path as format and validates the minimum table size. A table
// that is too small fails with KindEmptyOrTooSmall and is still returned so
// callers can report what was read.
func (l *Loader) Load(path string, format types.Format) (*Result, error) {
	var (
		res *Result
		err error
	)
	switch format {
	case types.FormatXLSX:
		res, err = l.loadXLSX(path)
	case types.FormatXLS:
		res, err = l.loadXLS(path)
	case types.FormatCSV, types.FormatTSV:
		res, err = l.loadDelimited(path, format)
	default:
		return nil, ingesterr.New(ingesterr.KindFormatUnsupported, path, "no reader for format %q", format)
	}
	if err != nil {
		return res, err
	}

	rows, cols := len(res.Table.Rows), res.Table.Width()
	l.log.Debug("file loaded",
		zap.String("path", path),
		zap.String("format", string(format)),
		zap.String("encoding", res.Encoding),
		zap.Int("rows", rows),
		zap.Int("columns", cols),
	)
	if rows < l.minRows || cols < l.minColumns {
		return res, ingesterr.New(ingesterr.KindEmptyOrTooSmall, path,
			"%d rows x %d columns, need at least %d x %d", rows, cols, l.minRows, l.minColumns)
	}
	return res, nil
}

func (l *Loader) loadDelimited(path string, format types.Format) (*Result, error) {
	f, err := openSource(path)
	if err != nil {
		return nil, err
	}
	data, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		return nil, classifyOpenError(path, err)
	}

	text, encoding, attempts, err := l.cascade.Decode(path, data)
	if err != nil {
		return &Result{Format: format, Attempts: attempts}, err
	}

	delim := format.Delimiter()
	r := csv.NewReader(strings.NewReader(text))
	r.Comma = delim
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return &Result{Format: format, Encoding: encoding, Attempts: attempts},
			ingesterr.Wrap(err, ingesterr.KindCorrupt, path, "parse delimited text")
	}

	return &Result{
		Table:     types.NewRawTable(records),
		Format:    format,
		Encoding:  encoding,
		Delimiter: delim,
		Attempts:  attempts,
	}, nil
}

func (l *Loader) loadXLSX(path string) (*Result, error) {
	src, err := openSource(path)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	f, err := excelize.OpenReader(src)
	if err != nil {
		return nil, ingesterr.Wrap(err, ingesterr.KindCorrupt, path, "open workbook")
	}
	defer f.Close()

	sheetName := f.GetSheetName(0)
	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, ingesterr.Wrap(err, ingesterr.KindCorrupt, path, fmt.Sprintf("read sheet %q", sheetName))
	}

	return &Result{
		Table:    types.NewRawTable(rows),
		Format:   types.FormatXLSX,
		Encoding: EncodingBinary,
	}, nil
}

func (l *Loader) loadXLS(path string) (res *Result, err error) {
	src, err := openSource(path)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	// The legacy reader panics on malformed records.
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, ingesterr.New(ingesterr.KindCorrupt, path, "malformed workbook: %v", r)
		}
	}()

	wb, err := openLegacy(src, "utf-8")
	if err != nil {
		return nil, ingesterr.Wrap(err, ingesterr.KindCorrupt, path, "open workbook")
	}
	if wb == nil || wb.NumSheets() == 0 {
		return nil, ingesterr.New(ingesterr.KindCorrupt, path, "workbook has no sheets")
	}

	var rows [][]string
	// MaxRow is the last row index; zero means at most one row, which
	// fails validation anyway and would make ReadAllCells spill into the
	// next sheet.
	if sheet := wb.GetSheet(0); sheet != nil && sheet.MaxRow > 0 {
		rows = wb.ReadAllCells(int(sheet.MaxRow) + 1)
	}

	return &Result{
		Table:    types.NewRawTable(rows),
		Format:   types.FormatXLS,
		Encoding: EncodingBinary,
	}, nil
}
