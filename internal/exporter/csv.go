package exporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"ledgerlens/pkg/contracts/domain"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVWriter provides CSV export functionality
type CSVWriter struct {
	bom       bool
	delimiter rune
	logger    *slog.Logger
}

// CSVOption configures a CSVWriter
type CSVOption func(*CSVWriter)

// WithBOM prefixes output with a UTF-8 byte order mark for Excel
func WithBOM(on bool) CSVOption {
	return func(w *CSVWriter) { w.bom = on }
}

// WithCSVDelimiter sets the field separator
func WithCSVDelimiter(r rune) CSVOption {
	return func(w *CSVWriter) {
		if r != 0 {
			w.delimiter = r
		}
	}
}

// WithCSVLogger sets the structured logger
func WithCSVLogger(l *slog.Logger) CSVOption {
	return func(w *CSVWriter) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewCSVWriter creates a new CSV writer instance
func NewCSVWriter(opts ...CSVOption) *CSVWriter {
	w := &CSVWriter{delimiter: ',', logger: slog.Default()}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write streams the header and rows to out
func (w *CSVWriter) Write(out io.Writer, columns []string, rows []domain.Row) error {
	sw, err := w.NewStreamWriter(out, columns)
	if err != nil {
		return err
	}
	for i, row := range rows {
		if err := sw.WriteRow(row); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}
	return sw.Flush()
}

// WriteFile writes the rows to filePath, creating parent directories
func (w *CSVWriter) WriteFile(filePath string, columns []string, rows []domain.Row) error {
	w.logger.Info("Writing CSV file",
		slog.String("file_path", filePath),
		slog.Int("record_count", len(rows)))

	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if err := w.Write(file, columns, rows); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// StreamWriter writes rows one at a time for large exports
type StreamWriter struct {
	columns []string
	writer  *csv.Writer
}

// NewStreamWriter writes the BOM (when enabled) and header to out
func (w *CSVWriter) NewStreamWriter(out io.Writer, columns []string) (*StreamWriter, error) {
	if w.bom {
		if _, err := out.Write(utf8BOM); err != nil {
			return nil, fmt.Errorf("failed to write BOM: %w", err)
		}
	}
	cw := csv.NewWriter(out)
	cw.Comma = w.delimiter
	if err := cw.Write(columns); err != nil {
		return nil, fmt.Errorf("failed to write headers: %w", err)
	}
	return &StreamWriter{columns: columns, writer: cw}, nil
}

// WriteRow writes a single row in header order
func (s *StreamWriter) WriteRow(row domain.Row) error {
	return s.writer.Write(record(s.columns, row))
}

// Flush flushes buffered output and reports any write error
func (s *StreamWriter) Flush() error {
	s.writer.Flush()
	return s.writer.Error()
}
