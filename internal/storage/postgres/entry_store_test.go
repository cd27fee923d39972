package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consensus-trader/internal/domain"
	"consensus-trader/internal/storage"
)

func TestEntryStoreUpsertAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewEntryStore(pool)

	entry := domain.NewPipelineEntry("AAPL")
	require.NoError(t, entry.Transition(domain.StateScreening))
	entry.ConsensusResult = &domain.ConsensusResult{
		Symbol:          "AAPL",
		BuyCount:        8,
		PassesThreshold: true,
		AvgConviction:   0.72,
		EvaluatedAt:     time.Now().UTC().Truncate(time.Millisecond),
		Votes: []domain.Vote{
			{PersonaName: "value", Action: domain.ActionBuy, Conviction: 0.75, Category: domain.CategoryValue},
		},
	}

	require.NoError(t, store.Upsert(ctx, entry))

	got, err := store.Get(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, domain.StateScreening, got.State)
	require.Len(t, got.History, 1)
	assert.Equal(t, domain.StateWatchlist, got.History[0].State)
	require.NotNil(t, got.ConsensusResult)
	assert.Equal(t, 8, got.ConsensusResult.BuyCount)
	require.Len(t, got.ConsensusResult.Votes, 1)
	assert.Equal(t, "value", got.ConsensusResult.Votes[0].PersonaName)
}

func TestEntryStoreUpsertReplaces(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewEntryStore(pool)

	entry := domain.NewPipelineEntry("AAPL")
	require.NoError(t, store.Upsert(ctx, entry))

	entry.BuyPrice = 150
	entry.BuyQuantity = 10
	entry.TrailingStop = 145
	require.NoError(t, store.Upsert(ctx, entry))

	got, err := store.Get(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 150.0, got.BuyPrice)
	assert.Equal(t, int64(10), got.BuyQuantity)
	assert.Equal(t, 145.0, got.TrailingStop)
}

func TestEntryStoreListAndDelete(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewEntryStore(pool)

	for _, sym := range []string{"NVDA", "AAPL"} {
		require.NoError(t, store.Upsert(ctx, domain.NewPipelineEntry(sym)))
	}

	entries, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "AAPL", entries[0].Symbol)
	assert.Equal(t, "NVDA", entries[1].Symbol)

	require.NoError(t, store.Delete(ctx, "AAPL"))
	assert.ErrorIs(t, store.Delete(ctx, "AAPL"), storage.ErrNotFound)

	_, err = store.Get(ctx, "AAPL")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
