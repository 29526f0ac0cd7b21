package tabular

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	apperrors "ledgerlens/internal/errors"
	"ledgerlens/pkg/contracts/domain"
)

// checkEvery is the number of rows converted between context checks
const checkEvery = 1000

// Reader converts a tabular source into a table
type Reader interface {
	// ListColumns reads the file at source
	ListColumns(ctx context.Context, source string) (domain.Table, error)
	// ReadFrom reads an already opened stream, such as an upload
	ReadFrom(ctx context.Context, r io.Reader) (domain.Table, error)
}

type options struct {
	sheet     string
	rawValues bool
	delimiter rune
	logger    *slog.Logger
}

// Option configures a reader
type Option func(*options)

// WithSheet selects a workbook sheet by name
func WithSheet(name string) Option {
	return func(o *options) { o.sheet = name }
}

// WithRawValues reads stored cell values instead of formatted text
func WithRawValues() Option {
	return func(o *options) { o.rawValues = true }
}

// WithDelimiter sets the CSV field separator
func WithDelimiter(r rune) Option {
	return func(o *options) {
		if r != 0 {
			o.delimiter = r
		}
	}
}

// WithLogger sets the structured logger
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{delimiter: ',', logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = o.logger.With(slog.String("component", "tabular"))
	return o
}

// Format names the kind of file a path holds
type Format string

const (
	FormatExcel Format = "xlsx"
	FormatCSV   Format = "csv"
	FormatTSV   Format = "tsv"
)

// FormatForPath resolves the reader format from a file extension
func FormatForPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm", ".xltx", ".xltm":
		return FormatExcel, nil
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".tsv", ".tab":
		return FormatTSV, nil
	}
	return "", apperrors.NewAppValidationError(fmt.Sprintf("unsupported file type %q", filepath.Ext(path))).
		WithContext("path", path)
}

// NewReader returns the reader for format
func NewReader(format Format, opts ...Option) (Reader, error) {
	switch format {
	case FormatExcel:
		return NewExcelReader(opts...), nil
	case FormatCSV:
		return NewCSVReader(opts...), nil
	case FormatTSV:
		return NewCSVReader(append([]Option{WithDelimiter('\t')}, opts...)...), nil
	}
	return nil, apperrors.NewAppValidationError(fmt.Sprintf("unsupported format %q", format))
}

// NewReaderForPath picks the reader from the file extension
func NewReaderForPath(path string, opts ...Option) (Reader, error) {
	format, err := FormatForPath(path)
	if err != nil {
		return nil, err
	}
	return NewReader(format, opts...)
}

// TableName derives a dataset name from a file path
func TableName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// rowGrid holds the raw rows of one sheet. cell converts the value at
// (row, col) into a domain cell.
type rowGrid struct {
	rows [][]string
	cell func(row, col int, value string) domain.Cell
}

// buildTable finds the header, names columns and converts the data rows
func buildTable(ctx context.Context, name string, g rowGrid) (domain.Table, int, error) {
	header := findHeader(g.rows)
	if header < 0 {
		return domain.Table{}, 0, apperrors.NewParsingError("no header row found", nil).
			WithContext("source", name)
	}

	names := columnNames(g.rows[header])
	last := len(g.rows) - 1
	for last > header && blankRow(g.rows[last]) {
		last--
	}

	body := make([][]domain.Cell, 0, last-header)
	for i := header + 1; i <= last; i++ {
		if (i-header)%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return domain.Table{}, 0, err
			}
		}
		raw := g.rows[i]
		row := make([]domain.Cell, len(names))
		for j := range names {
			if j < len(raw) {
				row[j] = g.cell(i, j, raw[j])
			}
		}
		body = append(body, row)
	}
	return domain.TableFromRows(name, names, body), header, nil
}

// findHeader returns the first row with at least two non-blank cells, or the
// first non-blank row of a single column sheet
func findHeader(rows [][]string) int {
	first := -1
	for i, row := range rows {
		n := 0
		for _, v := range row {
			if strings.TrimSpace(v) != "" {
				n++
			}
		}
		if n >= 2 {
			return i
		}
		if n == 1 && first < 0 {
			first = i
		}
	}
	if first >= 0 && maxWidth(rows) <= 1 {
		return first
	}
	return -1
}

func maxWidth(rows [][]string) int {
	w := 0
	for _, row := range rows {
		for j := len(row) - 1; j >= 0; j-- {
			if strings.TrimSpace(row[j]) != "" {
				w = max(w, j+1)
				break
			}
		}
	}
	return w
}

func blankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// columnNames trims the header, letters blank names and numbers repeats.
// Trailing blank header cells are dropped.
func columnNames(header []string) []string {
	width := len(header)
	for width > 0 && strings.TrimSpace(header[width-1]) == "" {
		width--
	}
	names := make([]string, width)
	seen := make(map[string]int, width)
	for j := 0; j < width; j++ {
		n := strings.TrimSpace(header[j])
		if n == "" {
			n, _ = excelize.ColumnNumberToName(j + 1)
		}
		seen[n]++
		if c := seen[n]; c > 1 {
			n = fmt.Sprintf("%s_%d", n, c)
		}
		names[j] = n
	}
	return names
}
