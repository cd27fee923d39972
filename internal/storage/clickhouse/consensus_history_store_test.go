package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consensus-trader/internal/domain"
	"consensus-trader/internal/storage"
)

func sampleResult(symbol string, at time.Time, passed bool) *domain.ConsensusResult {
	return &domain.ConsensusResult{
		Symbol:            symbol,
		BuyCount:          8,
		HoldCount:         2,
		PassesThreshold:   passed,
		AvgConviction:     0.72,
		CategoryDiversity: 3,
		EvaluatedAt:       at,
		Votes: []domain.Vote{
			{PersonaName: "value", Action: domain.ActionBuy, Conviction: 0.75, Category: domain.CategoryValue},
			{PersonaName: "growth", Action: domain.ActionBuy, Conviction: 0.8, Category: domain.CategoryGrowth},
		},
		AdvisoryVote: &domain.AdvisoryVote{
			PersonaName:     "innovation_scout",
			Action:          domain.ActionBuy,
			InnovationScore: 0.7,
		},
	}
}

func TestConsensusHistoryStoreRoundTrip(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewConsensusHistoryStore(conn)

	at := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)
	require.NoError(t, store.Insert(ctx, sampleResult("AAPL", at, true)))

	results, err := store.ListBySymbol(ctx, "AAPL", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)

	got := results[0]
	assert.Equal(t, "AAPL", got.Symbol)
	assert.True(t, got.PassesThreshold)
	assert.Equal(t, 8, got.BuyCount)
	assert.Equal(t, 2, got.HoldCount)
	assert.InDelta(t, 0.72, got.AvgConviction, 1e-9)
	assert.Equal(t, 3, got.CategoryDiversity)
	require.Len(t, got.Votes, 2)
	assert.Equal(t, "value", got.Votes[0].PersonaName)
	require.NotNil(t, got.AdvisoryVote)
	assert.InDelta(t, 0.7, got.AdvisoryVote.InnovationScore, 1e-9)
}

func TestConsensusHistoryStoreOrderAndLimit(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewConsensusHistoryStore(conn)

	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		r := sampleResult("AAPL", base.Add(time.Duration(i)*time.Hour), i%2 == 0)
		r.BuyCount = 7 + i
		require.NoError(t, store.Insert(ctx, r))
	}
	require.NoError(t, store.Insert(ctx, sampleResult("MSFT", base, false)))

	results, err := store.ListBySymbol(ctx, "AAPL", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, 9, results[0].BuyCount)
	assert.Equal(t, 8, results[1].BuyCount)
}

func TestConsensusHistoryStoreRejectsEmptySymbol(t *testing.T) {
	store := NewConsensusHistoryStore(nil)
	err := store.Insert(context.Background(), &domain.ConsensusResult{})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
