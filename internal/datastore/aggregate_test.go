package datastore

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "ledgerlens/internal/errors"
	"ledgerlens/internal/shared/testutil"
	"ledgerlens/pkg/contracts/domain"
)

func TestAggregateData_GroupedSums(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	const n = 480
	ingestLedger(t, s, "ledger", n)

	sums := map[string]decimal.Decimal{}
	counts := map[string]int{}
	for i := 0; i < n; i++ {
		c := testutil.LedgerCategory(i)
		sums[c] = sums[c].Add(testutil.LedgerAmount(i))
		counts[c]++
	}

	res, err := s.AggregateData(ctx, "ledger", []string{"category"}, []Measure{
		{Column: "amount", Funcs: []AggFunc{AggSum, AggCount, AggAvg, AggMin, AggMax}},
	})
	require.NoError(t, err)
	require.Len(t, res.Groups, len(testutil.LedgerCategories))
	assert.Zero(t, res.Excluded)

	for i, g := range res.Groups {
		// first-seen order follows the fixture's category rotation
		cat := testutil.LedgerCategories[i]
		require.Len(t, g.Key, 1)
		assert.Equal(t, cat, g.Key[0].Text)
		assert.Equal(t, counts[cat], g.Rows)

		sum, ok := g.Get("amount", AggSum)
		require.True(t, ok)
		assert.True(t, sums[cat].Equal(sum.Amount), "%s: %s != %s", cat, sums[cat], sum.Amount)
		assert.Equal(t, "USD", sum.Currency)

		count, _ := g.Get("amount", AggCount)
		assert.Equal(t, int64(counts[cat]), count.Amount.IntPart())

		avg, _ := g.Get("amount", AggAvg)
		want := sums[cat].DivRound(decimal.NewFromInt(int64(counts[cat])), AvgPrecision)
		assert.True(t, want.Equal(avg.Amount))

		lo, _ := g.Get("amount", AggMin)
		hi, _ := g.Get("amount", AggMax)
		assert.True(t, lo.Amount.LessThanOrEqual(hi.Amount))
	}
}

func TestAggregateData_SortedGroups(t *testing.T) {
	s := newTestStore(t)
	ingestLedger(t, s, "ledger", 40)

	res, err := s.AggregateData(context.Background(), "ledger", []string{"category"},
		[]Measure{{Column: "amount", Funcs: []AggFunc{AggCount}}}, WithSortedGroups())
	require.NoError(t, err)

	var keys []string
	for _, g := range res.Groups {
		keys = append(keys, g.Key[0].Text)
	}
	assert.Equal(t, []string{"Payroll", "Rent", "Supplies", "Travel"}, keys)
}

func TestAggregateData_NullsAndFailures(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	table := testutil.TableOf("t", []string{"team", "amount"},
		[]string{"a", "10"},
		[]string{"a", ""},
		[]string{"", "5"},
		[]string{"b", "n/a"},
		[]string{"b", "7.5"},
		[]string{"a", "2.5"},
	)
	_, err := s.StoreData(ctx, "t", table, WithColumnHints(map[string]domain.FormatTag{
		"amount": domain.FormatPlainNumber,
	}))
	require.NoError(t, err)

	res, err := s.AggregateData(ctx, "t", []string{"team"}, []Measure{
		{Column: "amount", Funcs: []AggFunc{AggSum, AggCount, AggAvg}},
	})
	require.NoError(t, err)
	require.Len(t, res.Groups, 3)

	a := res.Groups[0]
	assert.Equal(t, "a", a.Key[0].Text)
	assert.Equal(t, 3, a.Rows)
	sum, _ := a.Get("amount", AggSum)
	assert.Equal(t, "12.5", sum.Amount.String())
	count, _ := a.Get("amount", AggCount)
	assert.Equal(t, "2", count.Amount.String())
	assert.Empty(t, a.Excluded)

	null := res.Groups[1]
	assert.True(t, null.Key[0].IsNull(), "missing keys form their own group")
	assert.Equal(t, 1, null.Rows)

	b := res.Groups[2]
	assert.Equal(t, map[string]int{"amount": 1}, b.Excluded)
	avg, _ := b.Get("amount", AggAvg)
	assert.Equal(t, "7.5", avg.Amount.String())
}

func TestAggregateData_FailedGroupKeysAreExcluded(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	table := testutil.TableOf("t", []string{"posted", "amount"},
		[]string{"2023-01-01", "1"},
		[]string{"2023-01-01", "2"},
		[]string{"2023-02-30", "4"},
		[]string{"2023-01-02", "8"},
	)
	_, err := s.StoreData(ctx, "t", table, WithColumnHints(map[string]domain.FormatTag{
		"posted": domain.FormatIsoDate,
		"amount": domain.FormatPlainNumber,
	}))
	require.NoError(t, err)

	res, err := s.AggregateData(ctx, "t", []string{"posted"}, []Measure{{Column: "amount", Funcs: []AggFunc{AggSum}}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Excluded)
	require.Len(t, res.Groups, 2)
	sum, _ := res.Groups[0].Get("amount", AggSum)
	assert.Equal(t, "3", sum.Amount.String())
}

func TestAggregateData_Global(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	ingestLedger(t, s, "ledger", 25)

	total := decimal.Zero
	for i := 0; i < 25; i++ {
		total = total.Add(testutil.LedgerAmount(i))
	}

	res, err := s.AggregateData(ctx, "ledger", nil, []Measure{
		{Column: "amount", Funcs: []AggFunc{AggSum}},
		{Column: "posted", Funcs: []AggFunc{AggMin, AggMax}},
	})
	require.NoError(t, err)
	require.Len(t, res.Groups, 1)
	g := res.Groups[0]
	assert.Empty(t, g.Key)
	assert.Equal(t, 25, g.Rows)

	sum, _ := g.Get("amount", AggSum)
	assert.True(t, total.Equal(sum.Amount))
	first, _ := g.Get("posted", AggMin)
	assert.Equal(t, testutil.LedgerDate(0), first.Date)
	last, _ := g.Get("posted", AggMax)
	assert.Equal(t, testutil.LedgerDate(24), last.Date)

	_, err = s.DeleteRows(ctx, "ledger", []Filter{Gt("amount", -1e12)})
	require.NoError(t, err)
	res, err = s.AggregateData(ctx, "ledger", nil, []Measure{{Column: "amount", Funcs: []AggFunc{AggSum, AggAvg, AggCount}}})
	require.NoError(t, err)
	require.Len(t, res.Groups, 1, "a global aggregate always yields one group")
	sum, _ = res.Groups[0].Get("amount", AggSum)
	assert.True(t, sum.Amount.IsZero())
	avg, _ := res.Groups[0].Get("amount", AggAvg)
	assert.True(t, avg.IsNull())
}

func TestAggregateData_AvgPrecision(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	table := testutil.TableOf("t", []string{"amount"}, []string{"1"}, []string{"1"}, []string{"2"})
	_, err := s.StoreData(ctx, "t", table)
	require.NoError(t, err)

	res, err := s.AggregateData(ctx, "t", nil, []Measure{{Column: "amount", Funcs: []AggFunc{AggAvg}}})
	require.NoError(t, err)
	avg, _ := res.Groups[0].Get("amount", AggAvg)
	assert.Equal(t, "1.3333333333333333", avg.Amount.String())
}

func TestAggregateData_MixedCurrencyDropsCurrency(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	table := testutil.TableOf("t", []string{"amount"}, []string{"$1.00"}, []string{"€2.00"})
	_, err := s.StoreData(ctx, "t", table, WithColumnHints(map[string]domain.FormatTag{
		"amount": domain.FormatUsCurrency,
	}))
	require.NoError(t, err)

	res, err := s.AggregateData(ctx, "t", nil, []Measure{{Column: "amount", Funcs: []AggFunc{AggSum}}})
	require.NoError(t, err)
	sum, _ := res.Groups[0].Get("amount", AggSum)
	assert.Equal(t, "3", sum.Amount.String())
	assert.Empty(t, sum.Currency)
}

func TestAggregateData_Errors(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	ingestLedger(t, s, "ledger", 10)

	tests := []struct {
		name     string
		groupBy  []string
		measures []Measure
		want     apperrors.ErrorType
	}{
		{"sum on string", nil, []Measure{{Column: "category", Funcs: []AggFunc{AggSum}}}, apperrors.ErrTypeTypeMismatch},
		{"avg on date", nil, []Measure{{Column: "posted", Funcs: []AggFunc{AggAvg}}}, apperrors.ErrTypeTypeMismatch},
		{"max on string", nil, []Measure{{Column: "category", Funcs: []AggFunc{AggMax}}}, apperrors.ErrTypeTypeMismatch},
		{"unknown group column", []string{"nope"}, nil, apperrors.ErrTypeUnknownColumn},
		{"unknown measure column", nil, []Measure{{Column: "nope", Funcs: []AggFunc{AggCount}}}, apperrors.ErrTypeUnknownColumn},
		{"no funcs", nil, []Measure{{Column: "amount"}}, apperrors.ErrTypeValidation},
		{"unknown func", nil, []Measure{{Column: "amount", Funcs: []AggFunc{"median"}}}, apperrors.ErrTypeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.AggregateData(ctx, "ledger", tt.groupBy, tt.measures)
			require.Error(t, err)
			typ, ok := apperrors.TypeOf(err)
			require.True(t, ok)
			assert.Equal(t, tt.want, typ)
		})
	}

	_, err := s.AggregateData(ctx, "missing", nil, nil)
	assert.ErrorIs(t, err, apperrors.ErrUnknownDataset)

	res, err := s.AggregateData(ctx, "ledger", nil, []Measure{{Column: "category", Funcs: []AggFunc{AggCount}}})
	require.NoError(t, err)
	count, _ := res.Groups[0].Get("category", AggCount)
	assert.Equal(t, "10", count.Amount.String())
}

func TestParseAggFunc(t *testing.T) {
	fn, ok := ParseAggFunc("AVG")
	assert.True(t, ok)
	assert.Equal(t, AggAvg, fn)

	_, ok = ParseAggFunc("median")
	assert.False(t, ok)
}
