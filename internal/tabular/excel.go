package tabular

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	apperrors "ledgerlens/internal/errors"
	"ledgerlens/pkg/contracts/domain"
)

// ExcelReader reads .xlsx workbooks with excelize
type ExcelReader struct {
	opts options
}

var _ Reader = (*ExcelReader)(nil)

// NewExcelReader creates a workbook reader
func NewExcelReader(opts ...Option) *ExcelReader {
	return &ExcelReader{opts: buildOptions(opts)}
}

// ListColumns reads the selected sheet of the workbook at path
func (r *ExcelReader) ListColumns(ctx context.Context, path string) (domain.Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return domain.Table{}, apperrors.NewParsingError("failed to open workbook", err).WithContext("path", path)
	}
	defer f.Close()
	return r.read(ctx, f, TableName(path))
}

// ReadFrom reads a workbook stream
func (r *ExcelReader) ReadFrom(ctx context.Context, src io.Reader) (domain.Table, error) {
	f, err := excelize.OpenReader(src)
	if err != nil {
		return domain.Table{}, apperrors.NewParsingError("failed to open workbook", err)
	}
	defer f.Close()
	return r.read(ctx, f, "")
}

func (r *ExcelReader) read(ctx context.Context, f *excelize.File, name string) (domain.Table, error) {
	sheet, rows, err := r.pickSheet(f)
	if err != nil {
		return domain.Table{}, err
	}

	grid := rowGrid{rows: rows, cell: func(_, _ int, v string) domain.Cell { return domain.TextCell(v) }}
	if r.opts.rawValues {
		grid.cell = func(row, col int, v string) domain.Cell { return rawCell(f, sheet, row, col, v) }
	}

	table, header, err := buildTable(ctx, name, grid)
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			return domain.Table{}, appErr.WithContext("sheet", sheet)
		}
		return domain.Table{}, err
	}
	if table.Name == "" {
		table.Name = sheet
	}

	r.opts.logger.Debug("sheet read",
		slog.String("sheet", sheet),
		slog.Int("header_row", header+1),
		slog.Int("columns", len(table.Columns)),
		slog.Int("rows", table.RowCount()))
	return table, nil
}

// pickSheet returns the named sheet, or the first sheet holding any data
func (r *ExcelReader) pickSheet(f *excelize.File) (string, [][]string, error) {
	getRows := func(sheet string) ([][]string, error) {
		if r.opts.rawValues {
			return f.GetRows(sheet, excelize.Options{RawCellValue: true})
		}
		return f.GetRows(sheet)
	}

	if r.opts.sheet != "" {
		if idx, err := f.GetSheetIndex(r.opts.sheet); err != nil || idx < 0 {
			return "", nil, apperrors.NewAppValidationError(fmt.Sprintf("sheet %q not found", r.opts.sheet)).
				WithContext("sheets", f.GetSheetList())
		}
		rows, err := getRows(r.opts.sheet)
		if err != nil {
			return "", nil, apperrors.NewParsingError("failed to read sheet", err).WithContext("sheet", r.opts.sheet)
		}
		return r.opts.sheet, rows, nil
	}

	for _, name := range f.GetSheetList() {
		rows, err := getRows(name)
		if err != nil {
			r.opts.logger.Warn("skipping unreadable sheet", slog.String("sheet", name), slog.String("error", err.Error()))
			continue
		}
		for _, row := range rows {
			if !blankRow(row) {
				return name, rows, nil
			}
		}
	}
	return "", nil, apperrors.NewParsingError("workbook has no data", nil)
}

// rawCell classifies a raw stored value. Numbers and date serials become
// numeric cells; shared strings, inline strings and formulas stay text.
func rawCell(f *excelize.File, sheet string, row, col int, v string) domain.Cell {
	if strings.TrimSpace(v) == "" {
		return domain.EmptyCell()
	}
	axis, err := excelize.CoordinatesToCellName(col+1, row+1)
	if err != nil {
		return domain.UnknownCell(v)
	}
	typ, err := f.GetCellType(sheet, axis)
	if err != nil {
		return domain.UnknownCell(v)
	}
	switch typ {
	case excelize.CellTypeUnset, excelize.CellTypeNumber, excelize.CellTypeDate:
		if n, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return domain.NumericCell(n)
		}
		return domain.UnknownCell(v)
	case excelize.CellTypeBool, excelize.CellTypeError:
		return domain.UnknownCell(v)
	}
	return domain.TextCell(v)
}

// Sheets lists the sheet names of the workbook at path
func Sheets(path string) ([]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, apperrors.NewParsingError("failed to open workbook", err).WithContext("path", path)
	}
	defer f.Close()
	return f.GetSheetList(), nil
}

// DataSheets lists, in workbook order, the sheets of the workbook at path
// that hold at least one non-blank row
func DataSheets(path string) ([]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, apperrors.NewParsingError("failed to open workbook", err).WithContext("path", path)
	}
	defer f.Close()

	var out []string
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, apperrors.NewParsingError("failed to read sheet", err).WithContext("sheet", name)
		}
		for _, row := range rows {
			if !blankRow(row) {
				out = append(out, name)
				break
			}
		}
	}
	return out, nil
}
