package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consensus-trader/internal/broker/stub"
	"consensus-trader/internal/domain"
	"consensus-trader/internal/events"
	"consensus-trader/internal/execution"
	"consensus-trader/internal/storage/memory"
	"consensus-trader/internal/trade"
)

type fakeEvaluator struct {
	results map[string]*domain.ConsensusResult
	errs    map[string]error
	panics  map[string]bool
}

func (f *fakeEvaluator) Evaluate(_ context.Context, symbol string) (*domain.ConsensusResult, error) {
	if f.panics[symbol] {
		panic("evaluator blew up")
	}
	if err := f.errs[symbol]; err != nil {
		return nil, err
	}
	if r, ok := f.results[symbol]; ok {
		return r, nil
	}
	return &domain.ConsensusResult{Symbol: symbol, EvaluatedAt: time.Now().UTC()}, nil
}

func approvedResult(symbol string) *domain.ConsensusResult {
	votes := make([]domain.Vote, 0, 10)
	categories := []domain.PersonaCategory{
		domain.CategoryValue, domain.CategoryGrowth, domain.CategoryMomentum,
	}
	for i := 0; i < 8; i++ {
		votes = append(votes, domain.Vote{
			PersonaName: "voter",
			Action:      domain.ActionBuy,
			Conviction:  0.75,
			Category:    categories[i%len(categories)],
		})
	}
	votes = append(votes,
		domain.Vote{PersonaName: "h1", Action: domain.ActionHold, Category: domain.CategoryDividend},
		domain.Vote{PersonaName: "h2", Action: domain.ActionHold, Category: domain.CategoryDividend},
	)
	return &domain.ConsensusResult{
		Symbol:            symbol,
		Votes:             votes,
		BuyCount:          8,
		HoldCount:         2,
		PassesThreshold:   true,
		AvgConviction:     0.75,
		CategoryDiversity: 3,
		EvaluatedAt:       time.Now().UTC(),
	}
}

func rejectedResult(symbol string) *domain.ConsensusResult {
	return &domain.ConsensusResult{
		Symbol:      symbol,
		Votes:       []domain.Vote{{PersonaName: "value", Action: domain.ActionHold}},
		HoldCount:   1,
		EvaluatedAt: time.Now().UTC(),
	}
}

func snapshotAt(symbol string, price float64) *domain.MarketSnapshot {
	return &domain.MarketSnapshot{
		Symbol: symbol,
		Price:  price,
		Technicals: domain.Technicals{
			AvgVolume20d: 1_000_000,
		},
		FetchedAt: time.Now().UTC(),
	}
}

func newTestRunner(t *testing.T, opts Options) *Runner {
	t.Helper()
	if opts.Buyer == nil {
		opts.Buyer = trade.NewBuySpecialist(0.1, 10)
	}
	if opts.Seller == nil {
		opts.Seller = trade.NewSellSpecialist()
	}
	if opts.Monitor == nil {
		opts.Monitor = trade.NewPositionMonitor(trade.DefaultMonitorConfig())
	}
	runner, err := NewRunner(opts)
	require.NoError(t, err)
	return runner
}

func TestRunnerFullTradeLifecycle(t *testing.T) {
	ctx := context.Background()

	brk := stub.New(10_000)
	brk.SetSnapshot(snapshotAt("AAPL", 100))

	entryStore := memory.NewEntryStore()
	tradeStore := memory.NewTradeStore()
	historyStore := memory.NewConsensusHistoryStore()

	runner := newTestRunner(t, Options{
		Market:       brk,
		Cash:         brk,
		Evaluator:    &fakeEvaluator{results: map[string]*domain.ConsensusResult{"AAPL": approvedResult("AAPL")}},
		Orders:       execution.NewExecutor(brk),
		EntryStore:   entryStore,
		TradeStore:   tradeStore,
		HistoryStore: historyStore,
	})
	runner.AddSymbol("AAPL")

	expect := func(state domain.PipelineState) {
		t.Helper()
		runner.RunCycle(ctx)
		assert.Equal(t, state, runner.Entry("AAPL").State)
	}

	expect(domain.StateScreening)
	expect(domain.StateEvaluating)
	expect(domain.StateConsensusApproved)
	expect(domain.StateBuyPending)
	expect(domain.StateBought)

	entry := runner.Entry("AAPL")
	assert.Equal(t, 100.0, entry.BuyPrice)
	assert.Equal(t, int64(10), entry.BuyQuantity)

	expect(domain.StateMonitoring)

	// Price holds: monitoring continues.
	expect(domain.StateMonitoring)

	// Price runs 20%: take profit fires, then the sell completes.
	brk.SetPrice("AAPL", 120)
	expect(domain.StateSellPending)
	expect(domain.StateSold)

	trades, err := tradeStore.ListBySymbol(ctx, "AAPL")
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, domain.ExitReasonTakeProfit, trades[0].ExitReason)
	assert.InDelta(t, 200.0, trades[0].RealizedPnl, 1e-9)
	assert.Equal(t, 0, runner.opts.Buyer.OpenPositions())

	// Terminal state is stable.
	expect(domain.StateSold)

	// Consensus history and the entry itself were persisted.
	history, err := historyStore.ListBySymbol(ctx, "AAPL", 10)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	persisted, err := entryStore.Get(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, domain.StateSold, persisted.State)
}

func TestRunnerConsensusRejectedRecycles(t *testing.T) {
	ctx := context.Background()

	brk := stub.New(10_000)
	brk.SetSnapshot(snapshotAt("AAPL", 100))

	runner := newTestRunner(t, Options{
		Market:    brk,
		Cash:      brk,
		Evaluator: &fakeEvaluator{results: map[string]*domain.ConsensusResult{"AAPL": rejectedResult("AAPL")}},
	})
	runner.AddSymbol("AAPL")

	for _, want := range []domain.PipelineState{
		domain.StateScreening,
		domain.StateEvaluating,
		domain.StateConsensusRejected,
		domain.StateWatchlist,
	} {
		runner.RunCycle(ctx)
		assert.Equal(t, want, runner.Entry("AAPL").State)
	}
}

func TestRunnerErrorIsolationAndRecovery(t *testing.T) {
	ctx := context.Background()

	brk := stub.New(10_000)
	brk.SetSnapshot(snapshotAt("AAPL", 100))
	brk.SetSnapshot(snapshotAt("MSFT", 400))

	runner := newTestRunner(t, Options{
		Market: brk,
		Cash:   brk,
		Evaluator: &fakeEvaluator{
			results: map[string]*domain.ConsensusResult{"MSFT": rejectedResult("MSFT")},
			errs:    map[string]error{"AAPL": errors.New("feed outage")},
		},
	})
	runner.AddSymbol("AAPL")
	runner.AddSymbol("MSFT")

	runner.RunCycle(ctx) // both -> SCREENING
	runner.RunCycle(ctx) // both -> EVALUATING
	runner.RunCycle(ctx) // AAPL fails, MSFT rejected

	aapl := runner.Entry("AAPL")
	assert.Equal(t, domain.StateError, aapl.State)
	assert.Contains(t, aapl.ErrorMessage, "feed outage")
	assert.Equal(t, domain.StateConsensusRejected, runner.Entry("MSFT").State)

	// ERROR auto-recovers to WATCHLIST with the message cleared.
	runner.RunCycle(ctx)
	aapl = runner.Entry("AAPL")
	assert.Equal(t, domain.StateWatchlist, aapl.State)
	assert.Empty(t, aapl.ErrorMessage)
}

func TestRunnerRecoversFromHandlerPanic(t *testing.T) {
	ctx := context.Background()

	brk := stub.New(10_000)
	brk.SetSnapshot(snapshotAt("AAPL", 100))

	runner := newTestRunner(t, Options{
		Market:    brk,
		Cash:      brk,
		Evaluator: &fakeEvaluator{panics: map[string]bool{"AAPL": true}},
	})
	runner.AddSymbol("AAPL")

	runner.RunCycle(ctx)
	runner.RunCycle(ctx)
	runner.RunCycle(ctx) // evaluator panics

	entry := runner.Entry("AAPL")
	assert.Equal(t, domain.StateError, entry.State)
	assert.Contains(t, entry.ErrorMessage, "panic")
}

type scriptedScreener struct {
	pass bool
}

func (s *scriptedScreener) Screen(_ context.Context, _ *domain.MarketSnapshot) (bool, string, error) {
	return s.pass, "scripted", nil
}

func TestRunnerScreeningGateHoldsSymbol(t *testing.T) {
	ctx := context.Background()

	brk := stub.New(10_000)
	brk.SetSnapshot(snapshotAt("AAPL", 100))

	gate := &scriptedScreener{pass: false}
	runner := newTestRunner(t, Options{
		Market:    brk,
		Cash:      brk,
		Evaluator: &fakeEvaluator{},
		Screener:  gate,
	})
	runner.AddSymbol("AAPL")

	runner.RunCycle(ctx)
	require.Equal(t, domain.StateScreening, runner.Entry("AAPL").State)

	// Gate keeps failing: the entry stays put.
	runner.RunCycle(ctx)
	runner.RunCycle(ctx)
	assert.Equal(t, domain.StateScreening, runner.Entry("AAPL").State)

	gate.pass = true
	runner.RunCycle(ctx)
	assert.Equal(t, domain.StateEvaluating, runner.Entry("AAPL").State)
}

func TestRunnerBuyOrderFailureMovesToError(t *testing.T) {
	ctx := context.Background()

	brk := stub.New(10_000)
	brk.SetSnapshot(snapshotAt("AAPL", 100))
	brk.FailNextOrders = 1

	runner := newTestRunner(t, Options{
		Market:    brk,
		Cash:      brk,
		Evaluator: &fakeEvaluator{results: map[string]*domain.ConsensusResult{"AAPL": approvedResult("AAPL")}},
		Orders:    execution.NewExecutor(brk),
	})
	runner.AddSymbol("AAPL")

	for i := 0; i < 5; i++ {
		runner.RunCycle(ctx)
	}

	entry := runner.Entry("AAPL")
	assert.Equal(t, domain.StateError, entry.State)
	assert.Contains(t, entry.ErrorMessage, "buy order failed")
	assert.Equal(t, 0, runner.opts.Buyer.OpenPositions())
}

func TestRunnerBuyAtCapacityNeverReachesBroker(t *testing.T) {
	ctx := context.Background()

	brk := stub.New(10_000)
	brk.SetSnapshot(snapshotAt("AAPL", 100))

	buyer := trade.NewBuySpecialist(0.1, 1)
	require.NoError(t, buyer.Reserve()) // the only slot is taken

	runner := newTestRunner(t, Options{
		Market:    brk,
		Cash:      brk,
		Buyer:     buyer,
		Evaluator: &fakeEvaluator{results: map[string]*domain.ConsensusResult{"AAPL": approvedResult("AAPL")}},
		Orders:    execution.NewExecutor(brk),
	})
	runner.AddSymbol("AAPL")

	for i := 0; i < 5; i++ {
		runner.RunCycle(ctx)
	}

	entry := runner.Entry("AAPL")
	assert.Equal(t, domain.StateError, entry.State)
	assert.Contains(t, entry.ErrorMessage, "buy capacity")
	assert.Equal(t, 0, brk.PlaceOrderCalls, "no broker order without a position slot")
	assert.Equal(t, 1, buyer.OpenPositions(), "foreign slot stays claimed")
}

func TestRunnerRestoreSeedsTrackedEntries(t *testing.T) {
	brk := stub.New(10_000)
	runner := newTestRunner(t, Options{
		Market:    brk,
		Cash:      brk,
		Evaluator: &fakeEvaluator{},
	})

	restored := domain.NewPipelineEntry("AAPL")
	require.NoError(t, restored.Transition(domain.StateScreening))
	runner.Restore([]*domain.PipelineEntry{restored})

	entry := runner.Entry("AAPL")
	require.NotNil(t, entry)
	assert.Equal(t, domain.StateScreening, entry.State)
}

func TestRunnerMonitoringEmitsWarningNearStop(t *testing.T) {
	ctx := context.Background()

	brk := stub.New(10_000)
	// Stop-loss sits at 93; 94 is close enough to warn but not to sell.
	brk.SetSnapshot(snapshotAt("AAPL", 94))

	dir := t.TempDir()
	sink, err := events.NewSink(dir, "events")
	require.NoError(t, err)
	defer sink.Close()

	runner := newTestRunner(t, Options{
		Market:    brk,
		Cash:      brk,
		Evaluator: &fakeEvaluator{},
		Events:    sink,
	})

	held := domain.NewPipelineEntry("AAPL")
	held.State = domain.StateMonitoring
	held.BuyPrice = 100
	held.BuyQuantity = 10
	runner.Restore([]*domain.PipelineEntry{held})

	runner.RunCycle(ctx)
	require.Equal(t, domain.StateMonitoring, runner.Entry("AAPL").State)
	require.NoError(t, sink.Close())

	logPath := filepath.Join(dir, fmt.Sprintf("events-%s.jsonl", time.Now().UTC().Format("20060102")))
	raw, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(raw), string(events.EventConditionWarning))
	assert.Contains(t, string(raw), domain.ExitReasonStopLoss)
}

func TestLiquidityScreener(t *testing.T) {
	gate := NewLiquidityScreener()
	ctx := context.Background()

	pass, _, err := gate.Screen(ctx, snapshotAt("AAPL", 100))
	require.NoError(t, err)
	assert.True(t, pass)

	cheap := snapshotAt("PENNY", 2)
	pass, reason, err := gate.Screen(ctx, cheap)
	require.NoError(t, err)
	assert.False(t, pass)
	assert.Contains(t, reason, "price")

	thin := snapshotAt("THIN", 50)
	thin.Technicals.AvgVolume20d = 500
	pass, reason, err = gate.Screen(ctx, thin)
	require.NoError(t, err)
	assert.False(t, pass)
	assert.Contains(t, reason, "volume")
}
