package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgerlens/internal/datastore"
	apperrors "ledgerlens/internal/errors"
	"ledgerlens/internal/shared/testutil"
	"ledgerlens/pkg/contracts/domain"
)

func openStore(t *testing.T, path string) *Store {
	t.Helper()
	logger, _ := testutil.NewTestLogger(t)
	s, err := Open(context.Background(), path, datastore.NewStore(datastore.WithLogger(logger)))
	require.NoError(t, err)
	return s
}

func TestStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "ledger.db")

	s := openStore(t, path)
	assert.Equal(t, path, s.Path())
	_, err := s.StoreData(ctx, "ledger", testutil.LedgerTable(60), datastore.WithIndexes("category"))
	require.NoError(t, err)
	_, err = s.DeleteRows(ctx, "ledger", []datastore.Filter{datastore.Eq("category", "Rent")})
	require.NoError(t, err)
	_, err = s.UpdateCell(ctx, "ledger", 1, "category", domain.TextCell("Office"))
	require.NoError(t, err)
	require.NoError(t, s.CreateIndex(ctx, "ledger", "amount"))
	_, err = s.StoreData(ctx, "scratch", testutil.LedgerTable(3))
	require.NoError(t, err)
	require.NoError(t, s.DropDataset(ctx, "scratch"))

	before, err := s.GetMetadata(ctx, "ledger")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened := openStore(t, path)
	defer func() { _ = reopened.Close() }()

	all, err := reopened.ListDatasets(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	after := all[0]
	assert.Equal(t, before.Rows, after.Rows)
	assert.Equal(t, before.NextRowID, after.NextRowID)
	assert.Equal(t, []string{"category", "amount"}, after.Indexes)
	assert.Equal(t, before.DTypes, after.DTypes)

	rows, err := reopened.QueryData(ctx, "ledger", []datastore.Filter{datastore.Eq("category", "Office")})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.RowID(1), rows[0].ID)

	_, err = reopened.GetMetadata(ctx, "scratch")
	assert.ErrorIs(t, err, apperrors.ErrUnknownDataset)
}

func TestStore_FailedWriteIsNotPersisted(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")

	s := openStore(t, path)
	_, err := s.StoreData(ctx, "ledger", testutil.LedgerTable(5))
	require.NoError(t, err)
	_, err = s.StoreData(ctx, "ledger", testutil.LedgerTable(9))
	require.ErrorIs(t, err, apperrors.ErrDuplicateDatasetName)

	var n int
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM datasets`).Scan(&n))
	assert.Equal(t, 1, n)
	require.NoError(t, s.Close())

	reopened := openStore(t, path)
	defer func() { _ = reopened.Close() }()
	meta, err := reopened.GetMetadata(ctx, "ledger")
	require.NoError(t, err)
	assert.Equal(t, 5, meta.Rows)
}

func TestStore_AppendContinuesRowIDs(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")

	s := openStore(t, path)
	_, err := s.StoreData(ctx, "ledger", testutil.LedgerTable(4))
	require.NoError(t, err)
	_, err = s.DeleteRows(ctx, "ledger", []datastore.Filter{datastore.Gt("amount", -1e12)})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened := openStore(t, path)
	defer func() { _ = reopened.Close() }()
	ids, err := reopened.AppendRows(ctx, "ledger", [][]domain.Cell{
		testutil.TextCells("2023-03-01", "1000-001", "Rent", "$10.00", "INV-00001"),
	})
	require.NoError(t, err)
	assert.Equal(t, []domain.RowID{5}, ids)
}
