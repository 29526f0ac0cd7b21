package exporter

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"ledgerlens/pkg/contracts/domain"
)

// DefaultSheet names the sheet written by ExcelWriter
const DefaultSheet = "Data"

// ExcelWriter writes datasets as .xlsx workbooks
type ExcelWriter struct {
	sheet  string
	logger *slog.Logger
}

// NewExcelWriter creates a workbook writer. An empty sheet name uses DefaultSheet.
func NewExcelWriter(sheet string, logger *slog.Logger) *ExcelWriter {
	if sheet == "" {
		sheet = DefaultSheet
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ExcelWriter{sheet: sheet, logger: logger}
}

// Write renders the rows as a workbook onto out
func (w *ExcelWriter) Write(out io.Writer, columns []string, rows []domain.Row) error {
	f, err := w.build(columns, rows)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteTo(out); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// WriteFile saves the rows as a workbook at filePath
func (w *ExcelWriter) WriteFile(filePath string, columns []string, rows []domain.Row) error {
	w.logger.Info("Writing workbook",
		slog.String("file_path", filePath),
		slog.Int("record_count", len(rows)))

	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	f, err := w.build(columns, rows)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.SaveAs(filePath); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}

func (w *ExcelWriter) build(columns []string, rows []domain.Row) (*excelize.File, error) {
	f := excelize.NewFile()
	fail := func(msg string, err error) (*excelize.File, error) {
		f.Close()
		return nil, fmt.Errorf("%s: %w", msg, err)
	}

	if w.sheet != "Sheet1" {
		if err := f.SetSheetName("Sheet1", w.sheet); err != nil {
			return fail("failed to name sheet", err)
		}
	}

	dateStyle, err := f.NewStyle(&excelize.Style{NumFmt: 14})
	if err != nil {
		return fail("failed to create date style", err)
	}
	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fail("failed to create header style", err)
	}

	sw, err := f.NewStreamWriter(w.sheet)
	if err != nil {
		return fail("failed to open stream writer", err)
	}

	header := make([]any, len(columns))
	for i, c := range columns {
		header[i] = excelize.Cell{StyleID: headerStyle, Value: c}
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fail("failed to write headers", err)
	}

	for i, row := range rows {
		cells := make([]any, len(columns))
		for j, col := range columns {
			cells[j] = excelValue(row.Get(col), dateStyle)
		}
		axis, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fail("failed to address row", err)
		}
		if err := sw.SetRow(axis, cells); err != nil {
			return fail(fmt.Sprintf("failed to write record %d", i), err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fail("failed to flush sheet", err)
	}
	return f, nil
}

// excelValue maps a stored value to a typed workbook cell
func excelValue(v domain.Value, dateStyle int) any {
	switch v.Kind {
	case domain.KindAmount:
		return v.Amount.InexactFloat64()
	case domain.KindDate:
		return excelize.Cell{StyleID: dateStyle, Value: v.Date}
	case domain.KindNull:
		return nil
	}
	return formatValue(v)
}
