package testutil

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"ledgerlens/pkg/contracts/domain"
)

// LedgerColumns is the header of LedgerTable
var LedgerColumns = []string{"posted", "account", "category", "amount", "reference"}

// LedgerCategories cycle through the category column
var LedgerCategories = []string{"Travel", "Rent", "Supplies", "Payroll"}

var ledgerEpoch = time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC)

// LedgerFixtures provides ledger-shaped tables and files for tests
type LedgerFixtures struct {
	TestDataDir string
}

// NewLedgerFixtures creates a fixtures manager writing under testDataDir
func NewLedgerFixtures(testDataDir string) *LedgerFixtures {
	return &LedgerFixtures{TestDataDir: testDataDir}
}

// LedgerAmount returns the amount stored in row i of LedgerTable. Every
// seventh row is negative.
func LedgerAmount(i int) decimal.Decimal {
	cents := int64((i*7919)%500000 + 100)
	d := decimal.New(cents, -2)
	if i%7 == 3 {
		return d.Neg()
	}
	return d
}

// LedgerDate returns the posting date of row i of LedgerTable
func LedgerDate(i int) time.Time {
	return ledgerEpoch.AddDate(0, 0, i%365)
}

// LedgerCategory returns the category of row i of LedgerTable
func LedgerCategory(i int) string {
	return LedgerCategories[i%len(LedgerCategories)]
}

// FormatUSAmount renders an amount as "$1,234.56", with parentheses for
// negatives
func FormatUSAmount(d decimal.Decimal) string {
	neg := d.IsNegative()
	s := d.Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := "$" + b.String() + "." + frac
	if neg {
		return "(" + out + ")"
	}
	return out
}

// LedgerRows returns the raw text rows of LedgerTable
func LedgerRows(n int) [][]string {
	rows := make([][]string, n)
	for i := range rows {
		rows[i] = []string{
			LedgerDate(i).Format("2006-01-02"),
			fmt.Sprintf("%d-%03d", 1000+(i%5)*1000, i%40),
			LedgerCategory(i),
			FormatUSAmount(LedgerAmount(i)),
			fmt.Sprintf("INV-%05d", i),
		}
	}
	return rows
}

// LedgerTable builds a table of n ledger rows as text cells
func LedgerTable(n int) domain.Table {
	raw := LedgerRows(n)
	rows := make([][]domain.Cell, n)
	for i, r := range raw {
		rows[i] = TextCells(r...)
	}
	return domain.TableFromRows("ledger", LedgerColumns, rows)
}

// TextCells converts tokens into text cells; "" becomes an empty cell
func TextCells(tokens ...string) []domain.Cell {
	cells := make([]domain.Cell, len(tokens))
	for i, tok := range tokens {
		if tok == "" {
			cells[i] = domain.EmptyCell()
			continue
		}
		cells[i] = domain.TextCell(tok)
	}
	return cells
}

// TableOf builds a table from a header and text rows
func TableOf(name string, header []string, rows ...[]string) domain.Table {
	cellRows := make([][]domain.Cell, len(rows))
	for i, r := range rows {
		cellRows[i] = TextCells(r...)
	}
	return domain.TableFromRows(name, header, cellRows)
}

// CreateWorkbook writes rows (header first) to a new workbook sheet and
// returns its path
func (f *LedgerFixtures) CreateWorkbook(t *testing.T, name, sheet string, rows [][]any) string {
	t.Helper()
	wb := excelize.NewFile()
	defer wb.Close()

	if sheet != "Sheet1" {
		if _, err := wb.NewSheet(sheet); err != nil {
			t.Fatalf("create sheet: %v", err)
		}
		if err := wb.DeleteSheet("Sheet1"); err != nil {
			t.Fatalf("delete default sheet: %v", err)
		}
	}
	writeSheetRows(t, wb, sheet, rows)

	path := filepath.Join(f.TestDataDir, name)
	if err := wb.SaveAs(path); err != nil {
		t.Fatalf("save workbook: %v", err)
	}
	return path
}

// AddSheet appends a sheet holding rows (header first) to the workbook at
// path
func (f *LedgerFixtures) AddSheet(t *testing.T, path, sheet string, rows [][]any) {
	t.Helper()
	wb, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer wb.Close()

	if _, err := wb.NewSheet(sheet); err != nil {
		t.Fatalf("create sheet: %v", err)
	}
	writeSheetRows(t, wb, sheet, rows)
	if err := wb.Save(); err != nil {
		t.Fatalf("save workbook: %v", err)
	}
}

func writeSheetRows(t *testing.T, wb *excelize.File, sheet string, rows [][]any) {
	t.Helper()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := wb.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("write row %d: %v", i, err)
		}
	}
}

// CreateLedgerWorkbook writes LedgerTable(n) as a workbook
func (f *LedgerFixtures) CreateLedgerWorkbook(t *testing.T, name string, n int) string {
	t.Helper()
	rows := make([][]any, 0, n+1)
	header := make([]any, len(LedgerColumns))
	for i, h := range LedgerColumns {
		header[i] = h
	}
	rows = append(rows, header)
	for _, r := range LedgerRows(n) {
		row := make([]any, len(r))
		for i, v := range r {
			row[i] = v
		}
		rows = append(rows, row)
	}
	return f.CreateWorkbook(t, name, "Ledger", rows)
}

// CreateCSV writes rows (header first) as a CSV file and returns its path
func (f *LedgerFixtures) CreateCSV(t *testing.T, name string, delimiter rune, rows [][]string) string {
	t.Helper()
	path := filepath.Join(f.TestDataDir, name)
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("create csv: %v", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	w.Comma = delimiter
	if err := w.WriteAll(rows); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return path
}

// CreateCorruptedFile writes bytes that no reader accepts
func (f *LedgerFixtures) CreateCorruptedFile(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(f.TestDataDir, name)
	if err := os.WriteFile(path, []byte("PK\x03\x04 not really a workbook"), 0o600); err != nil {
		t.Fatalf("write corrupted file: %v", err)
	}
	return path
}
