package datastore

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "ledgerlens/internal/errors"
	"ledgerlens/internal/shared/testutil"
	"ledgerlens/pkg/contracts/domain"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	return NewStore(append([]Option{WithLogger(logger), WithBatchSize(64)}, opts...)...)
}

func ingestLedger(t *testing.T, s *Store, name string, n int, opts ...StoreOption) domain.Metadata {
	t.Helper()
	meta, err := s.StoreData(context.Background(), name, testutil.LedgerTable(n), opts...)
	require.NoError(t, err)
	return meta
}

func TestStoreData(t *testing.T) {
	logger, logs := testutil.NewTestLogger(t)
	s := NewStore(WithLogger(logger))

	meta, err := s.StoreData(context.Background(), "ledger", testutil.LedgerTable(50))
	require.NoError(t, err)

	assert.Equal(t, "ledger", meta.Name)
	assert.Equal(t, 50, meta.Rows)
	assert.Equal(t, testutil.LedgerColumns, meta.Columns)
	assert.Equal(t, domain.TypeDate, meta.DTypes["posted"].Type)
	assert.Equal(t, domain.FormatAccountCode, meta.DTypes["account"].Format)
	assert.Equal(t, domain.TypeString, meta.DTypes["category"].Type)
	assert.Equal(t, domain.TypeNumber, meta.DTypes["amount"].Type)
	assert.Equal(t, domain.FormatReferenceCode, meta.DTypes["reference"].Format)
	assert.Equal(t, 0, meta.TotalFailures())
	assert.Equal(t, domain.RowID(51), meta.NextRowID)
	assert.Empty(t, meta.Indexes)

	testutil.AssertLogContains(t, logs, slog.LevelInfo, "dataset stored")
	testutil.AssertLogAttr(t, logs, "dataset", "ledger")

	rows, err := s.QueryData(context.Background(), "ledger", nil)
	require.NoError(t, err)
	require.Len(t, rows, 50)
	for i, row := range rows {
		assert.Equal(t, domain.RowID(i+1), row.ID)
		amount := row.Get("amount")
		require.Equal(t, domain.KindAmount, amount.Kind)
		assert.True(t, testutil.LedgerAmount(i).Equal(amount.Amount), "row %d: %s", i, amount)
		assert.Equal(t, "USD", amount.Currency)
		assert.True(t, testutil.LedgerDate(i).Equal(row.Get("posted").Date))
	}
}

func TestStoreData_Duplicate(t *testing.T) {
	s := newTestStore(t)
	ingestLedger(t, s, "ledger", 5)

	_, err := s.StoreData(context.Background(), "ledger", testutil.LedgerTable(5))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrDuplicateDatasetName))

	typ, ok := apperrors.TypeOf(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrTypeDuplicateDataset, typ)
}

func TestStoreData_Validation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		dataset string
		table   domain.Table
	}{
		{"empty name", " ", testutil.LedgerTable(1)},
		{"no columns", "a", domain.Table{}},
		{"unnamed column", "b", testutil.TableOf("t", []string{"x", ""}, []string{"1", "2"})},
		{"repeated column", "c", testutil.TableOf("t", []string{"x", "x"}, []string{"1", "2"})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.StoreData(ctx, tt.dataset, tt.table)
			require.Error(t, err)
			typ, _ := apperrors.TypeOf(err)
			assert.Equal(t, apperrors.ErrTypeValidation, typ)
		})
	}
}

func TestStoreData_FailureIsolation(t *testing.T) {
	s := newTestStore(t)

	raw := make([][]string, 1000)
	for i := range raw {
		raw[i] = []string{testutil.LedgerCategory(i), testutil.FormatUSAmount(testutil.LedgerAmount(i))}
	}
	raw[417][1] = "twelve dollars"
	table := testutil.TableOf("quality", []string{"category", "amount"}, raw...)

	meta, err := s.StoreData(context.Background(), "quality", table)
	require.NoError(t, err)
	assert.Equal(t, 1000, meta.Rows)
	assert.Equal(t, 1, meta.ParseFailureCounts["amount"])
	assert.Equal(t, 0, meta.ParseFailureCounts["category"])
	assert.Equal(t, 1, meta.TotalFailures())
	assert.Len(t, meta.FailureReasons["amount"], 1)

	res, err := s.AggregateData(context.Background(), "quality", nil,
		[]Measure{{Column: "amount", Funcs: []AggFunc{AggSum, AggCount}}})
	require.NoError(t, err)
	require.Len(t, res.Groups, 1)

	want := decimal.Zero
	for i := range raw {
		if i != 417 {
			want = want.Add(testutil.LedgerAmount(i))
		}
	}
	sum, _ := res.Groups[0].Get("amount", AggSum)
	count, _ := res.Groups[0].Get("amount", AggCount)
	assert.True(t, want.Equal(sum.Amount), "sum %s want %s", sum.Amount, want)
	assert.Equal(t, int64(999), count.Amount.IntPart())
	assert.Equal(t, map[string]int{"amount": 1}, res.Groups[0].Excluded)
}

func TestStoreData_NullsAreNotFailures(t *testing.T) {
	s := newTestStore(t)
	table := testutil.TableOf("t", []string{"amount"},
		[]string{"1.50"}, []string{""}, []string{"2.25"}, []string{""})

	meta, err := s.StoreData(context.Background(), "t", table)
	require.NoError(t, err)
	assert.Equal(t, 0, meta.ParseFailureCounts["amount"])
	assert.Equal(t, 2, meta.NullCounts["amount"])
}

func TestStoreData_ColumnHints(t *testing.T) {
	s := newTestStore(t)
	table := testutil.TableOf("t", []string{"posted", "code"},
		[]string{"05/06/2023", "00123"}, []string{"07/08/2023", "00456"})

	meta, err := s.StoreData(context.Background(), "t", table, WithColumnHints(map[string]domain.FormatTag{
		"posted": domain.FormatEuDate,
		"code":   domain.FormatAccountCode,
	}))
	require.NoError(t, err)
	assert.Equal(t, domain.DetectionResult{Type: domain.TypeDate, Format: domain.FormatEuDate, Confidence: 1, Sampled: 2}, meta.DTypes["posted"])

	rows, err := s.QueryData(context.Background(), "t", nil)
	require.NoError(t, err)
	assert.Equal(t, "2023-06-05", rows[0].Get("posted").String())
	assert.Equal(t, domain.TextValue("00123"), rows[0].Get("code"))

	_, err = s.StoreData(context.Background(), "u", table, WithColumnHints(map[string]domain.FormatTag{"nope": domain.FormatIsoDate}))
	assert.True(t, errors.Is(err, apperrors.ErrUnknownColumn))
}

func TestStoreData_Cancelled(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.StoreData(ctx, "ledger", testutil.LedgerTable(10))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = s.GetMetadata(context.Background(), "ledger")
	assert.ErrorIs(t, err, apperrors.ErrUnknownDataset)
}

func TestReplaceData(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ingestLedger(t, s, "ledger", 10, WithIndexes("category", "amount"))

	meta, err := s.ReplaceData(ctx, "ledger", testutil.TableOf("ledger", []string{"category", "memo"},
		[]string{"Rent", "march"}, []string{"Travel", "taxi"}))
	require.NoError(t, err)
	assert.Equal(t, 2, meta.Rows)
	assert.Equal(t, []string{"category"}, meta.Indexes)
	assert.Equal(t, domain.RowID(13), meta.NextRowID)

	rows, err := s.QueryData(ctx, "ledger", []Filter{Eq("category", "Rent")})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.RowID(11), rows[0].ID)
	requireIndexesConsistent(t, s, "ledger")
}

func TestAppendRows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ingestLedger(t, s, "ledger", 20, WithIndexes("amount", "category"))

	ids, err := s.AppendRows(ctx, "ledger", [][]domain.Cell{
		testutil.TextCells("2024-02-01", "9000-001", "Travel", "$99,999.99", "INV-99999"),
		testutil.TextCells("2024-02-02", "9000-002", "Travel", "garbage", "INV-99998"),
	})
	require.NoError(t, err)
	assert.Equal(t, []domain.RowID{21, 22}, ids)
	requireIndexesConsistent(t, s, "ledger")

	rows, err := s.QueryData(ctx, "ledger", []Filter{Gt("amount", 99000)})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.RowID(21), rows[0].ID)

	meta, err := s.GetMetadata(ctx, "ledger")
	require.NoError(t, err)
	assert.Equal(t, 22, meta.Rows)
	assert.Equal(t, 1, meta.ParseFailureCounts["amount"])

	_, err = s.AppendRows(ctx, "ledger", [][]domain.Cell{testutil.TextCells("short")})
	typ, _ := apperrors.TypeOf(err)
	assert.Equal(t, apperrors.ErrTypeValidation, typ)

	_, err = s.AppendRows(ctx, "missing", nil)
	assert.ErrorIs(t, err, apperrors.ErrUnknownDataset)
}

func TestUpdateCell(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ingestLedger(t, s, "ledger", 10, WithIndexes("amount"))

	v, err := s.UpdateCell(ctx, "ledger", 3, "amount", domain.TextCell("$5,000,000.00"))
	require.NoError(t, err)
	assert.Equal(t, "5000000", v.Amount.String())
	requireIndexesConsistent(t, s, "ledger")

	rows, err := s.QueryData(ctx, "ledger", []Filter{Eq("amount", "$5,000,000.00")})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.RowID(3), rows[0].ID)

	v, err = s.UpdateCell(ctx, "ledger", 3, "amount", domain.TextCell("n/a"))
	require.NoError(t, err)
	assert.True(t, v.IsFailure())
	requireIndexesConsistent(t, s, "ledger")

	_, err = s.UpdateCell(ctx, "ledger", 999, "amount", domain.TextCell("1"))
	assert.ErrorIs(t, err, apperrors.ErrUnknownRow)
	_, err = s.UpdateCell(ctx, "ledger", 1, "nope", domain.TextCell("1"))
	assert.ErrorIs(t, err, apperrors.ErrUnknownColumn)
}

func TestDeleteRows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ingestLedger(t, s, "ledger", 40, WithIndexes("category"))

	n, err := s.DeleteRows(ctx, "ledger", []Filter{Eq("category", "Rent")})
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	requireIndexesConsistent(t, s, "ledger")

	rows, err := s.QueryData(ctx, "ledger", []Filter{Eq("category", "Rent")})
	require.NoError(t, err)
	assert.Empty(t, rows)

	ids, err := s.AppendRows(ctx, "ledger", [][]domain.Cell{
		testutil.TextCells("2024-01-01", "1000-001", "Rent", "$1.00", "INV-1"),
	})
	require.NoError(t, err)
	assert.Equal(t, []domain.RowID{41}, ids, "row IDs are never reused")

	_, err = s.DeleteRows(ctx, "ledger", nil)
	typ, _ := apperrors.TypeOf(err)
	assert.Equal(t, apperrors.ErrTypeValidation, typ)
}

func TestIndexAndDatasetLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ingestLedger(t, s, "ledger", 10)

	require.NoError(t, s.CreateIndex(ctx, "ledger", "amount"))
	require.NoError(t, s.CreateIndex(ctx, "ledger", "amount"), "rebuilding is idempotent")
	require.NoError(t, s.CreateIndex(ctx, "ledger", "category"))

	meta, err := s.GetMetadata(ctx, "ledger")
	require.NoError(t, err)
	assert.Equal(t, []string{"category", "amount"}, meta.Indexes)

	assert.ErrorIs(t, s.CreateIndex(ctx, "ledger", "nope"), apperrors.ErrUnknownColumn)
	assert.ErrorIs(t, s.CreateIndex(ctx, "nope", "amount"), apperrors.ErrUnknownDataset)

	require.NoError(t, s.DropIndex(ctx, "ledger", "amount"))
	require.NoError(t, s.DropIndex(ctx, "ledger", "amount"))
	meta, err = s.GetMetadata(ctx, "ledger")
	require.NoError(t, err)
	assert.Equal(t, []string{"category"}, meta.Indexes)

	ingestLedger(t, s, "archive", 3)
	list, err := s.ListDatasets(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "archive", list[0].Name)
	assert.Equal(t, "ledger", list[1].Name)

	require.NoError(t, s.DropDataset(ctx, "ledger"))
	assert.ErrorIs(t, s.DropDataset(ctx, "ledger"), apperrors.ErrUnknownDataset)
	_, err = s.QueryData(ctx, "ledger", nil)
	assert.ErrorIs(t, err, apperrors.ErrUnknownDataset)
}

func TestStore_ConcurrentReadersAndWriter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	ingestLedger(t, s, "ledger", 200, WithIndexes("amount", "category"))

	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				rows, err := s.QueryData(ctx, "ledger", []Filter{Eq("category", "Travel")})
				if !assert.NoError(t, err) {
					return
				}
				for _, row := range rows {
					assert.Equal(t, "Travel", row.Get("category").Text)
				}
				_, err = s.AggregateData(ctx, "ledger", []string{"category"},
					[]Measure{{Column: "amount", Funcs: []AggFunc{AggSum}}})
				assert.NoError(t, err)
			}
		}()
	}
	for i := 0; i < 50; i++ {
		_, err := s.AppendRows(ctx, "ledger", [][]domain.Cell{
			testutil.TextCells("2024-03-01", "1000-001", "Travel", "$10.00", "INV-7"),
		})
		require.NoError(t, err)
	}
	wg.Wait()

	requireIndexesConsistent(t, s, "ledger")
	meta, err := s.GetMetadata(ctx, "ledger")
	require.NoError(t, err)
	assert.Equal(t, 250, meta.Rows)
}

func TestWithClock(t *testing.T) {
	fixed := time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC)
	s := newTestStore(t, WithClock(func() time.Time { return fixed }))

	meta := ingestLedger(t, s, "ledger", 1)
	assert.Equal(t, fixed, meta.CreatedAt)
	assert.Equal(t, fixed, meta.UpdatedAt)
}
