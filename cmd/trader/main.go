// trader runs the live consensus trading pipeline: watchlist symbols
// are screened, put to a persona vote, bought, monitored and sold
// against a real brokerage API.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"consensus-trader/internal/advisor"
	"consensus-trader/internal/breaker"
	"consensus-trader/internal/broker"
	"consensus-trader/internal/config"
	"consensus-trader/internal/consensus"
	"consensus-trader/internal/domain"
	"consensus-trader/internal/events"
	"consensus-trader/internal/execution"
	"consensus-trader/internal/observability"
	"consensus-trader/internal/persona"
	"consensus-trader/internal/pipeline"
	"consensus-trader/internal/ratelimit"
	"consensus-trader/internal/risk"
	"consensus-trader/internal/storage"
	chstore "consensus-trader/internal/storage/clickhouse"
	"consensus-trader/internal/storage/memory"
	"consensus-trader/internal/storage/migrations"
	pgstore "consensus-trader/internal/storage/postgres"
	"consensus-trader/internal/trade"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "trader",
		Short: "Consensus-driven equities trading pipeline",
		Long: `trader tracks a watchlist of symbols through a state machine:
screening, a multi-persona consensus vote, risk-checked entry, position
monitoring with prioritized exits, and journaled round trips.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context())
		},
	}
	rootCmd.AddCommand(versionCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(*cobra.Command, []string) {
			fmt.Printf("trader version %s\n", version)
		},
	}
}

func run(ctx context.Context) error {
	logger := log.New(os.Stdout, "[trader] ", log.LstdFlags)

	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if len(cfg.Watchlist) == 0 {
		return fmt.Errorf("WATCHLIST is empty, nothing to trade")
	}
	if cfg.BrokerAppKey == "" || cfg.BrokerAppSecret == "" {
		return fmt.Errorf("BROKER_APP_KEY and BROKER_APP_SECRET are required")
	}

	sink, err := events.NewSink(cfg.EventDir, cfg.EventPrefix)
	if err != nil {
		return fmt.Errorf("open event sink: %w", err)
	}
	defer sink.Close()
	logger.Printf("session %s", sink.SessionID())

	limiter := ratelimit.New(cfg.MaxRequestsPerWindow, cfg.RateWindow)
	client := broker.NewRESTClient(cfg.BrokerBaseURL, cfg.BrokerAppKey, cfg.BrokerAppSecret,
		broker.WithLimiter(limiter),
	)

	// With a websocket endpoint configured, snapshot prices ride the
	// live tick overlay instead of waiting on the next REST quote.
	var market broker.MarketData = client
	if cfg.BrokerWSURL != "" {
		stream, err := broker.NewQuoteStream(ctx, cfg.BrokerWSURL, nil)
		if err != nil {
			return fmt.Errorf("quote stream: %w", err)
		}
		defer stream.Close()
		for _, symbol := range cfg.Watchlist {
			if err := stream.Subscribe(symbol); err != nil {
				logger.Printf("subscribe %s: %v", symbol, err)
			}
		}
		streaming := broker.NewStreamingMarketData(client, broker.DefaultQuoteMaxAge)
		go streaming.Consume(stream.Quotes())
		market = streaming
		logger.Printf("quote stream connected at %s", cfg.BrokerWSURL)
	}

	stores, cleanup, err := buildStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	voters := buildVoters(cfg, logger)
	evaluator := consensus.NewEvaluator(
		market,
		voters,
		persona.NewInnovationScout(),
		consensus.NewAggregator(consensus.DefaultAggregatorConfig()),
		consensus.DefaultEvaluatorConfig(),
	)

	limits := domain.DefaultRiskLimits()
	limits.MaxPositionPct = cfg.MaxPositionPct
	limits.MaxPositions = cfg.MaxPositions
	limits.DefaultStopLossPct = cfg.StopLossPct
	limits.DefaultTakeProfitPct = cfg.TakeProfitPct

	runner, err := pipeline.NewRunner(pipeline.Options{
		Market:    market,
		Cash:      client,
		Evaluator: evaluator,
		Screener:  pipeline.NewLiquidityScreener(),
		Buyer:     trade.NewBuySpecialist(cfg.MaxPositionPct, cfg.MaxPositions),
		Seller:    trade.NewSellSpecialist(),
		Monitor: trade.NewPositionMonitor(trade.MonitorConfig{
			StopLossPct:    cfg.StopLossPct,
			TakeProfitPct:  cfg.TakeProfitPct,
			TrailingPct:    cfg.TrailingPct,
			MaxHoldingDays: cfg.MaxHoldingDays,
		}),
		Orders:       execution.NewExecutor(client, execution.WithJournal(stores.orders)),
		Risk:         risk.NewManager(limits),
		Events:       sink,
		EntryStore:   stores.entries,
		TradeStore:   stores.trades,
		HistoryStore: stores.history,
	})
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}

	// Resume tracked symbols from the previous run, then top up from the
	// configured watchlist.
	persisted, err := stores.entries.List(ctx)
	if err != nil {
		logger.Printf("restore entries: %v", err)
	} else if len(persisted) > 0 {
		runner.Restore(persisted)
		logger.Printf("restored %d tracked entries", len(persisted))
	}
	for _, symbol := range cfg.Watchlist {
		runner.AddSymbol(symbol)
	}

	go serveMetrics(ctx, cfg.MetricsAddr, logger)

	logger.Printf("pipeline started: %d symbols, cycle %s", len(cfg.Watchlist), cfg.CycleInterval)
	err = runner.Run(ctx, cfg.CycleInterval)
	if err != nil && ctx.Err() == nil {
		return err
	}
	logger.Printf("shutting down")
	return nil
}

type stores struct {
	entries storage.EntryStore
	orders  storage.OrderStore
	trades  storage.TradeStore
	history storage.ConsensusHistoryStore
}

// buildStores selects durable backends when DSNs are configured and
// falls back to the in-memory stores otherwise.
func buildStores(ctx context.Context, cfg *config.Config, logger *log.Logger) (*stores, func(), error) {
	s := &stores{
		entries: memory.NewEntryStore(),
		orders:  memory.NewOrderStore(),
		trades:  memory.NewTradeStore(),
		history: memory.NewConsensusHistoryStore(),
	}
	cleanups := []func(){}
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	if cfg.PostgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		cleanups = append(cleanups, pool.Close)
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("postgres migrations: %w", err)
		}
		s.entries = pgstore.NewEntryStore(pool)
		s.orders = pgstore.NewOrderStore(pool)
		s.trades = pgstore.NewTradeStore(pool)
		logger.Printf("using postgres stores")
	}

	if cfg.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("clickhouse: %w", err)
		}
		cleanups = append(cleanups, func() { conn.Close() })
		s.history = chstore.NewConsensusHistoryStore(conn)
		logger.Printf("using clickhouse consensus history")
	}

	return s, cleanup, nil
}

// buildVoters assembles the persona roster, wrapping each rule voter
// with the breaker-guarded verifier when one is configured.
func buildVoters(cfg *config.Config, logger *log.Logger) []consensus.Voter {
	roster := persona.DefaultRoster()

	voters := make([]consensus.Voter, 0, len(roster))
	if cfg.AdvisorBaseURL == "" {
		for _, v := range roster {
			voters = append(voters, v)
		}
		return voters
	}

	verifier := advisor.New(cfg.AdvisorBaseURL, cfg.AdvisorAPIKey)
	brk := breaker.New(breaker.DefaultConfig())
	for _, v := range roster {
		voters = append(voters, persona.NewVerifiedVoter(v, verifier, brk, cfg.AdvisorBudget))
	}
	logger.Printf("advisory verifier enabled at %s", cfg.AdvisorBaseURL)
	return voters
}

func serveMetrics(ctx context.Context, addr string, logger *log.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Printf("metrics listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Printf("metrics server: %v", err)
	}
}
