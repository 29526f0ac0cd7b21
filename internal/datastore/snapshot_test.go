package datastore

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "ledgerlens/internal/errors"
	"ledgerlens/pkg/contracts/domain"
)

func TestSnapshotRestore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	src := newTestStore(t)
	ingestLedger(t, src, "ledger", 120, WithIndexes("category", "amount"))
	_, err := src.DeleteRows(ctx, "ledger", []Filter{Eq("category", "Payroll")})
	require.NoError(t, err)
	_, err = src.UpdateCell(ctx, "ledger", 1, "amount", domain.TextCell("not money"))
	require.NoError(t, err)

	snap, err := src.Snapshot(ctx, "ledger")
	require.NoError(t, err)
	payload, err := json.Marshal(snap)
	require.NoError(t, err)

	var decoded Snapshot
	require.NoError(t, json.Unmarshal(payload, &decoded))

	dst := newTestStore(t)
	require.NoError(t, dst.Restore(ctx, decoded))
	requireIndexesConsistent(t, dst, "ledger")

	want, err := src.GetMetadata(ctx, "ledger")
	require.NoError(t, err)
	got, err := dst.GetMetadata(ctx, "ledger")
	require.NoError(t, err)
	assert.Equal(t, want.Rows, got.Rows)
	assert.Equal(t, want.NextRowID, got.NextRowID)
	assert.Equal(t, want.Indexes, got.Indexes)
	assert.Equal(t, want.TotalFailures(), got.TotalFailures())

	filters := []Filter{Gt("amount", 1000), In("category", "Rent", "Travel")}
	a, err := src.QueryData(ctx, "ledger", filters)
	require.NoError(t, err)
	b, err := dst.QueryData(ctx, "ledger", filters)
	require.NoError(t, err)
	assert.Equal(t, rowIDs(a), rowIDs(b))

	ids, err := dst.AppendRows(ctx, "ledger", [][]domain.Cell{
		{domain.TextCell("2023-01-01"), domain.TextCell("1000-001"), domain.TextCell("Rent"), domain.TextCell("$1.00"), domain.TextCell("INV-99999")},
	})
	require.NoError(t, err)
	assert.Equal(t, []domain.RowID{121}, ids, "row ids continue after a restore")
}

func TestRestore_ReplacesExisting(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	ingestLedger(t, s, "ledger", 10)
	snap, err := s.Snapshot(ctx, "ledger")
	require.NoError(t, err)

	ingestLedger(t, s, "other", 3)
	snap.Name = "other"
	require.NoError(t, s.Restore(ctx, snap))

	meta, err := s.GetMetadata(ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, 10, meta.Rows)
}

func TestRestore_Validation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	ingestLedger(t, s, "ledger", 5)
	base, err := s.Snapshot(ctx, "ledger")
	require.NoError(t, err)

	t.Run("missing name", func(t *testing.T) {
		snap := base
		snap.Name = ""
		assert.Error(t, s.Restore(ctx, snap))
	})

	t.Run("index on unknown column", func(t *testing.T) {
		snap := base
		snap.Indexes = []string{"nope"}
		assert.ErrorIs(t, s.Restore(ctx, snap), apperrors.ErrUnknownColumn)
	})

	t.Run("repeated row id", func(t *testing.T) {
		snap := base
		snap.Rows = append([]domain.Row{base.Rows[0]}, base.Rows...)
		err := s.Restore(ctx, snap)
		typ, ok := apperrors.TypeOf(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.ErrTypeValidation, typ)
	})

	t.Run("stale counter is raised", func(t *testing.T) {
		snap := base
		snap.Name = "stale"
		snap.NextRowID = 2
		require.NoError(t, s.Restore(ctx, snap))
		meta, err := s.GetMetadata(ctx, "stale")
		require.NoError(t, err)
		assert.Equal(t, domain.RowID(6), meta.NextRowID)
	})

	_, err = s.Snapshot(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrUnknownDataset)
}
