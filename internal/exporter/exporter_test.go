package exporter

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgerlens/internal/shared/testutil"
	"ledgerlens/internal/tabular"
	"ledgerlens/pkg/contracts/domain"
)

var exportColumns = []string{"posted", "amount", "memo"}

func exportRows() []domain.Row {
	return []domain.Row{
		{ID: 1, Values: map[string]domain.Value{
			"posted": domain.DateValue(time.Date(2023, 3, 15, 0, 0, 0, 0, time.UTC)),
			"amount": domain.AmountValue(decimal.RequireFromString("-1234.50"), "USD"),
			"memo":   domain.TextValue(`coffee, "large"`),
		}},
		{ID: 2, Values: map[string]domain.Value{
			"posted": domain.NullValue(),
			"amount": domain.FailureValue(domain.ReasonNotNumeric, "twelve dollars"),
		}},
	}
}

func TestCSVWriter_Write(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewCSVWriter().Write(&buf, exportColumns, exportRows()))

	want := "posted,amount,memo\n" +
		"2023-03-15,-1234.5,\"coffee, \"\"large\"\"\"\n" +
		",twelve dollars,\n"
	assert.Equal(t, want, buf.String())
}

func TestCSVWriter_BOMAndDelimiter(t *testing.T) {
	var buf bytes.Buffer
	w := NewCSVWriter(WithBOM(true), WithCSVDelimiter(';'))
	require.NoError(t, w.Write(&buf, []string{"a", "b"}, nil))

	assert.True(t, bytes.HasPrefix(buf.Bytes(), utf8BOM))
	assert.Equal(t, "a;b\n", strings.TrimPrefix(buf.String(), string(utf8BOM)))
}

func TestCSVWriter_RoundTripsThroughReader(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	path := filepath.Join(t.TempDir(), "nested", "out.csv")
	w := NewCSVWriter(WithBOM(true), WithCSVLogger(logger))
	require.NoError(t, w.WriteFile(path, exportColumns, exportRows()))

	table, err := tabular.NewCSVReader().ListColumns(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, exportColumns, table.ColumnNames())
	assert.Equal(t, domain.TextCell("twelve dollars"), table.Row(1)[1])
	assert.Equal(t, domain.TextCell(`coffee, "large"`), table.Row(0)[2])
}

func TestExcelWriter(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	path := filepath.Join(t.TempDir(), "out.xlsx")
	require.NoError(t, NewExcelWriter("", logger).WriteFile(path, exportColumns, exportRows()))

	sheets, err := tabular.Sheets(path)
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultSheet}, sheets)

	raw, err := tabular.NewExcelReader(tabular.WithRawValues()).ListColumns(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, exportColumns, raw.ColumnNames())
	assert.Equal(t, domain.NumericCell(-1234.5), raw.Row(0)[1])
	assert.Equal(t, domain.CellNumeric, raw.Row(0)[0].Kind, "dates are stored as serials")
	assert.Equal(t, 45000.0, raw.Row(0)[0].Number)
	assert.True(t, raw.Row(1)[0].IsEmpty())
	assert.Equal(t, domain.TextCell("twelve dollars"), raw.Row(1)[1])

	var buf bytes.Buffer
	require.NoError(t, NewExcelWriter("Ledger", nil).Write(&buf, exportColumns, exportRows()))
	table, err := tabular.NewExcelReader().ReadFrom(context.Background(), &buf)
	require.NoError(t, err)
	assert.Equal(t, "Ledger", table.Name)
	assert.Equal(t, 2, table.RowCount())
}
