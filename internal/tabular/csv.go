package tabular

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"log/slog"
	"os"

	apperrors "ledgerlens/internal/errors"
	"ledgerlens/pkg/contracts/domain"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVReader reads delimited text. Every field is a text cell.
type CSVReader struct {
	opts options
}

var _ Reader = (*CSVReader)(nil)

// NewCSVReader creates a delimited text reader, comma separated by default
func NewCSVReader(opts ...Option) *CSVReader {
	return &CSVReader{opts: buildOptions(opts)}
}

// ListColumns reads the file at path
func (r *CSVReader) ListColumns(ctx context.Context, path string) (domain.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.Table{}, apperrors.NewParsingError("failed to open file", err).WithContext("path", path)
	}
	defer f.Close()

	table, err := r.decode(ctx, f, TableName(path))
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return domain.Table{}, appErr.WithContext("path", path)
		}
		return domain.Table{}, err
	}
	return table, nil
}

// ReadFrom reads a delimited stream
func (r *CSVReader) ReadFrom(ctx context.Context, src io.Reader) (domain.Table, error) {
	return r.decode(ctx, src, "")
}

func (r *CSVReader) decode(ctx context.Context, src io.Reader, name string) (domain.Table, error) {
	br := bufio.NewReader(src)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	cr := csv.NewReader(br)
	cr.Comma = r.opts.delimiter
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var rows [][]string
	for {
		if len(rows)%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return domain.Table{}, err
			}
		}
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return domain.Table{}, apperrors.NewParsingError("malformed delimited text", err)
		}
		rows = append(rows, rec)
	}

	table, header, err := buildTable(ctx, name, rowGrid{
		rows: rows,
		cell: func(_, _ int, v string) domain.Cell { return domain.TextCell(v) },
	})
	if err != nil {
		return domain.Table{}, err
	}
	r.opts.logger.Debug("delimited text read",
		slog.String("delimiter", string(r.opts.delimiter)),
		slog.Int("header_row", header+1),
		slog.Int("columns", len(table.Columns)),
		slog.Int("rows", table.RowCount()))
	return table, nil
}
