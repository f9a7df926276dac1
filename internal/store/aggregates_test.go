package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmribeiro/ambientd/internal/draft"
)

func TestFinanceSnapshotScopedToUserAndCategory(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	w := NewFinanceWriter(db)
	agg := NewAggregates(db)

	groceries := draft.Draft{
		Kind:    draft.KindFinance,
		Finance: &draft.Finance{Merchant: "continente", Category: "groceries", Amount: amt(45.9)},
	}
	fuel := draft.Draft{
		Kind:    draft.KindFinance,
		Finance: &draft.Finance{Merchant: "galp", Category: "fuel", Amount: amt(60)},
	}

	require.True(t, w.Insert(ctx, "u1", groceries).Executed)
	require.True(t, w.Insert(ctx, "u1", fuel).Executed)
	require.True(t, w.Insert(ctx, "u2", groceries).Executed)

	snap, err := agg.Snapshot(ctx, "u1", groceries)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.EntryCount)
	assert.InDelta(t, 45.9, snap.AmountSum, 0.001)
}

func TestFinanceSnapshotIdempotentWithoutWrites(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	agg := NewAggregates(db)
	d := draft.Draft{
		Kind:    draft.KindFinance,
		Finance: &draft.Finance{Merchant: "continente", Category: "groceries", Amount: amt(10)},
	}

	require.True(t, NewFinanceWriter(db).Insert(ctx, "u1", d).Executed)

	first, err := agg.Snapshot(ctx, "u1", d)
	require.NoError(t, err)
	second, err := agg.Snapshot(ctx, "u1", d)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestTodoSnapshotCountsOpenOnly(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	w := NewTodoWriter(db)
	agg := NewAggregates(db)
	d := draft.Draft{Kind: draft.KindTodo, Todo: &draft.Todo{Title: "pagar seguro"}}

	res := w.Insert(ctx, "u1", d)
	require.True(t, res.Executed)
	require.True(t, w.Insert(ctx, "u1", d).Executed)

	_, err := db.Conn().ExecContext(ctx, `UPDATE todos SET status = 'done' WHERE id = ?`, res.ExternalID)
	require.NoError(t, err)

	snap, err := agg.Snapshot(ctx, "u1", d)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.EntryCount)
}

func TestSnapshotUntrackedKindIsEmpty(t *testing.T) {
	agg := NewAggregates(newTestDB(t))
	snap, err := agg.Snapshot(context.Background(), "u1", draft.Draft{
		Kind: draft.KindLink,
		Link: &draft.Link{URL: "https://example.com"},
	})
	require.NoError(t, err)
	assert.Zero(t, snap.EntryCount)
	assert.Zero(t, snap.AmountSum)
}
