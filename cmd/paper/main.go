// paper runs the consensus trading pipeline against an in-process stub
// broker with synthetic market data. No external services, no real
// orders. Useful for exercising the full state machine end to end.
package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"consensus-trader/internal/broker/stub"
	"consensus-trader/internal/consensus"
	"consensus-trader/internal/domain"
	"consensus-trader/internal/events"
	"consensus-trader/internal/execution"
	"consensus-trader/internal/persona"
	"consensus-trader/internal/pipeline"
	"consensus-trader/internal/risk"
	"consensus-trader/internal/storage/memory"
	"consensus-trader/internal/trade"
)

func main() {
	var (
		cash     float64
		cycles   int
		seed     int64
		symbols  string
		eventDir string
	)

	rootCmd := &cobra.Command{
		Use:   "paper",
		Short: "Paper-trade the consensus pipeline against a stub broker",
		RunE: func(cmd *cobra.Command, _ []string) error {
			list := splitSymbols(symbols)
			if len(list) == 0 {
				return fmt.Errorf("--symbols must name at least one symbol")
			}
			return run(cmd.Context(), cash, cycles, seed, list, eventDir)
		},
	}
	rootCmd.Flags().Float64Var(&cash, "cash", 10_000_000, "starting cash balance")
	rootCmd.Flags().IntVar(&cycles, "cycles", 200, "pipeline cycles to run")
	rootCmd.Flags().Int64Var(&seed, "seed", 1, "random walk seed")
	rootCmd.Flags().StringVar(&symbols, "symbols", "AAPL,MSFT,NVDA", "comma-separated watchlist")
	rootCmd.Flags().StringVar(&eventDir, "event-dir", "logs", "event log directory")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cash float64, cycles int, seed int64, symbols []string, eventDir string) error {
	logger := log.New(os.Stdout, "[paper] ", log.LstdFlags)

	sink, err := events.NewSink(eventDir, "paper")
	if err != nil {
		return fmt.Errorf("open event sink: %w", err)
	}
	defer sink.Close()

	rng := rand.New(rand.NewSource(seed))
	market := stub.New(cash)
	for i, symbol := range symbols {
		market.SetSnapshot(seedSnapshot(symbol, 100+float64(i)*50, rng))
	}

	trades := memory.NewTradeStore()
	limits := domain.DefaultRiskLimits()

	runner, err := pipeline.NewRunner(pipeline.Options{
		Market:    market,
		Cash:      market,
		Evaluator: buildEvaluator(market),
		Screener:  pipeline.NewLiquidityScreener(),
		Buyer:     trade.NewBuySpecialist(limits.MaxPositionPct, limits.MaxPositions),
		Seller:    trade.NewSellSpecialist(),
		Monitor: trade.NewPositionMonitor(trade.MonitorConfig{
			StopLossPct:    limits.DefaultStopLossPct,
			TakeProfitPct:  limits.DefaultTakeProfitPct,
			TrailingPct:    0.05,
			MaxHoldingDays: 90,
		}),
		Orders:     execution.NewExecutor(market, execution.WithJournal(memory.NewOrderStore())),
		Risk:       risk.NewManager(limits),
		Events:     sink,
		EntryStore: memory.NewEntryStore(),
		TradeStore: trades,
	})
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}
	for _, symbol := range symbols {
		runner.AddSymbol(symbol)
	}

	logger.Printf("session %s: %d symbols, %d cycles", sink.SessionID(), len(symbols), cycles)

	for i := 0; i < cycles; i++ {
		if ctx.Err() != nil {
			break
		}
		runner.RunCycle(ctx)
		for _, symbol := range symbols {
			driftPrice(market, symbol, rng)
		}
	}

	return printJournal(ctx, logger, market, trades)
}

// buildEvaluator wires the full persona roster over the stub market.
func buildEvaluator(market *stub.Broker) *consensus.Evaluator {
	roster := persona.DefaultRoster()
	voters := make([]consensus.Voter, 0, len(roster))
	for _, v := range roster {
		voters = append(voters, v)
	}
	return consensus.NewEvaluator(
		market,
		voters,
		persona.NewInnovationScout(),
		consensus.NewAggregator(consensus.DefaultAggregatorConfig()),
		consensus.DefaultEvaluatorConfig(),
	)
}

// seedSnapshot fabricates a snapshot healthy enough that most personas
// can find something to like at the starting price.
func seedSnapshot(symbol string, price float64, rng *rand.Rand) *domain.MarketSnapshot {
	return &domain.MarketSnapshot{
		Symbol: symbol,
		Price:  price,
		Fundamentals: domain.Fundamentals{
			PER:           10 + rng.Float64()*8,
			PBR:           0.8 + rng.Float64()*0.7,
			ROE:           0.12 + rng.Float64()*0.08,
			DebtRatio:     0.4 + rng.Float64()*0.5,
			DividendYield: 0.02 + rng.Float64()*0.03,
			EPSGrowthYoY:  0.10 + rng.Float64()*0.15,
			RevenueGrowth: 0.08 + rng.Float64()*0.12,
		},
		Technicals: domain.Technicals{
			RSI14:        55 + rng.Float64()*10,
			MACD:         0.5,
			MACDSignal:   0.2,
			SMA20:        price * 0.98,
			SMA60:        price * 0.95,
			Volume:       2_000_000,
			AvgVolume20d: 1_500_000,
			High52w:      price * 1.3,
			Low52w:       price * 0.7,
		},
		FetchedAt: time.Now().UTC(),
	}
}

// driftPrice applies a small biased random walk so positions open and
// eventually hit an exit within a few hundred cycles.
func driftPrice(market *stub.Broker, symbol string, rng *rand.Rand) {
	snap, err := market.FetchSnapshot(context.Background(), symbol)
	if err != nil {
		return
	}
	step := 1 + (rng.Float64()-0.48)*0.02
	market.SetPrice(symbol, snap.Price*step)
}

func printJournal(ctx context.Context, logger *log.Logger, market *stub.Broker, trades *memory.TradeStore) error {
	closed, err := trades.ListSince(ctx, time.Time{})
	if err != nil {
		return fmt.Errorf("read trade journal: %w", err)
	}
	total, err := trades.TotalRealizedPnl(ctx)
	if err != nil {
		return fmt.Errorf("sum realized pnl: %w", err)
	}
	remaining, err := market.GetCash(ctx)
	if err != nil {
		return fmt.Errorf("read cash: %w", err)
	}

	for _, t := range closed {
		logger.Printf("trade %s: qty %d, buy %.2f, sell %.2f, pnl %.2f (%s)",
			t.Symbol, t.Quantity, t.BuyPrice, t.SellPrice, t.RealizedPnl, t.ExitReason)
	}
	logger.Printf("closed trades: %d, realized pnl: %.2f, cash: %s",
		len(closed), total, remaining.StringFixed(2))
	return nil
}

func splitSymbols(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
