// Package pipeline drives tracked symbols through the trading state
// machine. One Runner owns all entries; each cycle is a single
// synchronous pass where one entry's failure never stalls the rest.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"consensus-trader/internal/broker"
	"consensus-trader/internal/domain"
	"consensus-trader/internal/events"
	"consensus-trader/internal/execution"
	"consensus-trader/internal/observability"
	"consensus-trader/internal/risk"
	"consensus-trader/internal/storage"
	"consensus-trader/internal/trade"
)

// DefaultCycleInterval is the pause between pipeline passes.
const DefaultCycleInterval = 30 * time.Second

// Evaluator runs one consensus round for a symbol.
type Evaluator interface {
	Evaluate(ctx context.Context, symbol string) (*domain.ConsensusResult, error)
}

// Screener gates a symbol before it reaches the evaluation stage.
type Screener interface {
	Screen(ctx context.Context, snapshot *domain.MarketSnapshot) (passed bool, reason string, err error)
}

// OrderPlacer submits orders idempotently.
type OrderPlacer interface {
	Buy(ctx context.Context, symbol string, quantity int64, price decimal.Decimal, idempotencyKey string) execution.Result
	Sell(ctx context.Context, symbol string, quantity int64, price decimal.Decimal, idempotencyKey string) execution.Result
}

// CashSource reports the cash available for new positions.
type CashSource interface {
	GetCash(ctx context.Context) (decimal.Decimal, error)
}

// Options wires the Runner's collaborators. Market, Evaluator, Buyer,
// Seller, Monitor and Cash are required; the rest are optional.
type Options struct {
	Market    broker.MarketData
	Evaluator Evaluator
	Buyer     *trade.BuySpecialist
	Seller    *trade.SellSpecialist
	Monitor   *trade.PositionMonitor
	Cash      CashSource

	Screener Screener
	Orders   OrderPlacer
	Risk     *risk.Manager
	Events   *events.Sink

	EntryStore   storage.EntryStore
	TradeStore   storage.TradeStore
	HistoryStore storage.ConsensusHistoryStore
}

// Runner owns the tracked-entry map and the per-state handlers.
type Runner struct {
	opts Options

	mu           sync.Mutex
	entries      map[string]*domain.PipelineEntry
	pendingExits map[string]string // symbol -> exit reason awaiting sell
}

// NewRunner creates a Runner. Returns an error when a required
// collaborator is missing.
func NewRunner(opts Options) (*Runner, error) {
	switch {
	case opts.Market == nil:
		return nil, fmt.Errorf("pipeline: market data source is required")
	case opts.Evaluator == nil:
		return nil, fmt.Errorf("pipeline: evaluator is required")
	case opts.Buyer == nil:
		return nil, fmt.Errorf("pipeline: buy specialist is required")
	case opts.Seller == nil:
		return nil, fmt.Errorf("pipeline: sell specialist is required")
	case opts.Monitor == nil:
		return nil, fmt.Errorf("pipeline: position monitor is required")
	case opts.Cash == nil:
		return nil, fmt.Errorf("pipeline: cash source is required")
	}
	return &Runner{
		opts:         opts,
		entries:      make(map[string]*domain.PipelineEntry),
		pendingExits: make(map[string]string),
	}, nil
}

// AddSymbol puts a symbol on the watchlist. Adding a tracked symbol is
// a no-op.
func (r *Runner) AddSymbol(symbol string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[symbol]; ok {
		return
	}
	r.entries[symbol] = domain.NewPipelineEntry(symbol)
}

// Restore seeds the tracked map from persisted entries, typically on
// startup.
func (r *Runner) Restore(entries []*domain.PipelineEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range entries {
		r.entries[e.Symbol] = e
	}
}

// Entry returns the tracked entry for a symbol, or nil.
func (r *Runner) Entry(symbol string) *domain.PipelineEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[symbol]
}

// Entries returns all tracked entries ordered by symbol.
func (r *Runner) Entries() []*domain.PipelineEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.PipelineEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Run cycles until the context is cancelled.
func (r *Runner) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultCycleInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		r.RunCycle(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			observability.DefaultMetrics.UptimeSeconds.Add(interval.Seconds())
		}
	}
}

// RunCycle makes one synchronous pass over a snapshot of the tracked
// entries. Errors and panics are contained per entry.
func (r *Runner) RunCycle(ctx context.Context) {
	started := time.Now()

	r.mu.Lock()
	snapshot := make([]*domain.PipelineEntry, 0, len(r.entries))
	for _, e := range r.entries {
		snapshot = append(snapshot, e)
	}
	r.mu.Unlock()
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].Symbol < snapshot[j].Symbol })

	for _, entry := range snapshot {
		r.handleEntry(ctx, entry)
		r.persist(ctx, entry)
	}

	r.updateStateGauges(snapshot)
	observability.RecordCycle(time.Since(started).Seconds())
}

func (r *Runner) handleEntry(ctx context.Context, entry *domain.PipelineEntry) {
	defer func() {
		if rec := recover(); rec != nil {
			r.failEntry(entry, fmt.Sprintf("panic: %v", rec))
		}
	}()

	var err error
	switch entry.State {
	case domain.StateWatchlist:
		err = r.transition(entry, domain.StateScreening, "cycle advance")
	case domain.StateScreening:
		err = r.handleScreening(ctx, entry)
	case domain.StateEvaluating:
		err = r.handleEvaluating(ctx, entry)
	case domain.StateConsensusApproved:
		err = r.transition(entry, domain.StateBuyPending, "consensus approved")
	case domain.StateConsensusRejected:
		err = r.transition(entry, domain.StateWatchlist, "consensus rejected, recycling")
	case domain.StateBuyPending:
		err = r.handleBuy(ctx, entry)
	case domain.StateBought:
		err = r.transition(entry, domain.StateMonitoring, "position opened")
	case domain.StateMonitoring:
		err = r.handleMonitoring(ctx, entry)
	case domain.StateSellPending:
		err = r.handleSell(ctx, entry)
	case domain.StateError:
		entry.ErrorMessage = ""
		err = r.transition(entry, domain.StateWatchlist, "error recovery")
	case domain.StateSold:
		// Terminal, nothing to do.
	default:
		err = fmt.Errorf("unhandled state %s", entry.State)
	}

	if err != nil {
		r.failEntry(entry, err.Error())
	}
}

func (r *Runner) handleScreening(ctx context.Context, entry *domain.PipelineEntry) error {
	if r.opts.Screener == nil {
		return r.transition(entry, domain.StateEvaluating, "no screening gate configured")
	}

	snapshot, err := r.opts.Market.FetchSnapshot(ctx, entry.Symbol)
	if err != nil {
		return fmt.Errorf("screening snapshot: %w", err)
	}

	passed, reason, err := r.opts.Screener.Screen(ctx, snapshot)
	if err != nil {
		return fmt.Errorf("screening: %w", err)
	}
	r.emit(events.EventScreeningComplete, entry.Symbol, map[string]any{
		"passed": passed,
		"reason": reason,
	})
	if !passed {
		// Stay in SCREENING; the gate is re-checked next cycle.
		return nil
	}
	return r.transition(entry, domain.StateEvaluating, reason)
}

func (r *Runner) handleEvaluating(ctx context.Context, entry *domain.PipelineEntry) error {
	started := time.Now()
	result, err := r.opts.Evaluator.Evaluate(ctx, entry.Symbol)
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	entry.ConsensusResult = result
	observability.RecordEvaluation(result.PassesThreshold, time.Since(started).Seconds())

	for _, v := range result.Votes {
		observability.RecordVote(v.PersonaName, string(v.Action))
		r.emit(events.EventAgentVote, entry.Symbol, map[string]any{
			"persona":    v.PersonaName,
			"action":     string(v.Action),
			"conviction": v.Conviction,
			"reasoning":  v.Reasoning,
		})
	}
	if result.AdvisoryVote != nil {
		r.emit(events.EventAdvisoryVote, entry.Symbol, map[string]any{
			"persona":          result.AdvisoryVote.PersonaName,
			"action":           string(result.AdvisoryVote.Action),
			"innovation_score": result.AdvisoryVote.InnovationScore,
		})
	}
	r.emit(events.EventConsensusResult, entry.Symbol, map[string]any{
		"passed":             result.PassesThreshold,
		"buy_count":          result.BuyCount,
		"avg_conviction":     result.AvgConviction,
		"category_diversity": result.CategoryDiversity,
		"evaluated_at":       result.EvaluatedAt,
	})

	if r.opts.HistoryStore != nil {
		if err := r.opts.HistoryStore.Insert(ctx, result); err != nil {
			log.Printf("[pipeline] archive consensus for %s: %v", entry.Symbol, err)
		}
	}

	if result.PassesThreshold {
		return r.transition(entry, domain.StateConsensusApproved, "consensus threshold met")
	}
	return r.transition(entry, domain.StateConsensusRejected, "consensus threshold not met")
}

func (r *Runner) handleBuy(ctx context.Context, entry *domain.PipelineEntry) error {
	snapshot, err := r.opts.Market.FetchSnapshot(ctx, entry.Symbol)
	if err != nil {
		return fmt.Errorf("buy snapshot: %w", err)
	}
	cash, err := r.opts.Cash.GetCash(ctx)
	if err != nil {
		return fmt.Errorf("fetch cash: %w", err)
	}
	price := snapshot.Price
	capital, _ := cash.Float64()

	quantity := r.opts.Buyer.CalculateQuantity(price, capital)
	if r.opts.Risk != nil {
		check := risk.OrderCheck{
			Symbol:         entry.Symbol,
			Side:           domain.SideBuy,
			Quantity:       quantity,
			Price:          price,
			PortfolioValue: capital,
			OpenPositions:  r.opts.Buyer.OpenPositions(),
		}
		result := r.opts.Risk.ValidateOrder(check)
		if !result.Approved {
			return fmt.Errorf("risk rejected buy: %s", result.Reason)
		}
		if result.SuggestedQuantity != nil {
			quantity = *result.SuggestedQuantity
		}
	}
	if quantity <= 0 {
		return fmt.Errorf("calculated quantity is zero at price %.2f", price)
	}

	if r.opts.Orders != nil {
		// The slot is claimed before the broker sees the order, so a
		// fill can never outrun the position limit.
		if err := r.opts.Buyer.Reserve(); err != nil {
			return fmt.Errorf("buy capacity: %w", err)
		}
		key := buyKey(entry)
		res := r.opts.Orders.Buy(ctx, entry.Symbol, quantity, decimal.NewFromFloat(price), key)
		observability.RecordOrder(string(domain.SideBuy), orderStatus(res))
		if !res.Success {
			r.opts.Buyer.ReleasePosition()
			return fmt.Errorf("buy order failed: %s", res.Message)
		}
		r.emit(events.EventOrderExecuted, entry.Symbol, map[string]any{
			"side":            string(domain.SideBuy),
			"quantity":        quantity,
			"price":           decimal.NewFromFloat(price),
			"broker_order_id": res.BrokerOrderID,
		})
		r.opts.Buyer.Commit(entry, price, quantity)
	} else {
		if err := r.opts.Buyer.Execute(entry, price, capital); err != nil {
			return fmt.Errorf("record buy: %w", err)
		}
		entry.BuyQuantity = quantity
	}
	observability.DefaultMetrics.OpenPositions.Set(float64(r.opts.Buyer.OpenPositions()))

	r.emit(events.EventBuyDecision, entry.Symbol, map[string]any{
		"price":    price,
		"quantity": quantity,
		"capital":  capital,
	})
	return r.transition(entry, domain.StateBought, "buy executed")
}

func (r *Runner) handleMonitoring(ctx context.Context, entry *domain.PipelineEntry) error {
	snapshot, err := r.opts.Market.FetchSnapshot(ctx, entry.Symbol)
	if err != nil {
		return fmt.Errorf("monitoring snapshot: %w", err)
	}

	reason := r.opts.Monitor.Check(entry, snapshot.Price)
	r.emit(events.EventConditionCheck, entry.Symbol, map[string]any{
		"price":          snapshot.Price,
		"unrealized_pnl": entry.UnrealizedPnl,
		"trailing_stop":  entry.TrailingStop,
		"exit_reason":    reason,
	})
	if reason == "" {
		if warning := r.opts.Monitor.Warn(entry, snapshot.Price); warning != "" {
			r.emit(events.EventConditionWarning, entry.Symbol, map[string]any{
				"approaching": warning,
				"price":       snapshot.Price,
			})
		}
		return nil
	}

	r.mu.Lock()
	r.pendingExits[entry.Symbol] = reason
	r.mu.Unlock()

	r.emit(events.EventSellTrigger, entry.Symbol, map[string]any{
		"reason": reason,
		"price":  snapshot.Price,
	})
	return r.transition(entry, domain.StateSellPending, reason)
}

func (r *Runner) handleSell(ctx context.Context, entry *domain.PipelineEntry) error {
	snapshot, err := r.opts.Market.FetchSnapshot(ctx, entry.Symbol)
	if err != nil {
		return fmt.Errorf("sell snapshot: %w", err)
	}

	r.mu.Lock()
	reason := r.pendingExits[entry.Symbol]
	r.mu.Unlock()
	if reason == "" {
		reason = domain.ExitReasonStopLoss
	}

	if r.opts.Orders != nil {
		key := sellKey(entry)
		res := r.opts.Orders.Sell(ctx, entry.Symbol, entry.BuyQuantity, decimal.NewFromFloat(snapshot.Price), key)
		observability.RecordOrder(string(domain.SideSell), orderStatus(res))
		if !res.Success {
			return fmt.Errorf("sell order failed: %s", res.Message)
		}
		r.emit(events.EventOrderExecuted, entry.Symbol, map[string]any{
			"side":            string(domain.SideSell),
			"quantity":        entry.BuyQuantity,
			"price":           decimal.NewFromFloat(snapshot.Price),
			"broker_order_id": res.BrokerOrderID,
		})
	}

	tradeLog, err := r.opts.Seller.Execute(entry, reason, snapshot.Price)
	if err != nil {
		return fmt.Errorf("record sell: %w", err)
	}
	r.opts.Buyer.ReleasePosition()
	observability.DefaultMetrics.OpenPositions.Set(float64(r.opts.Buyer.OpenPositions()))

	r.mu.Lock()
	delete(r.pendingExits, entry.Symbol)
	r.mu.Unlock()

	if r.opts.TradeStore != nil {
		if err := r.opts.TradeStore.Insert(ctx, tradeLog); err != nil {
			log.Printf("[pipeline] journal trade for %s: %v", entry.Symbol, err)
		}
	}
	r.emit(events.EventTradeComplete, entry.Symbol, map[string]any{
		"buy_price":    tradeLog.BuyPrice,
		"sell_price":   tradeLog.SellPrice,
		"quantity":     tradeLog.Quantity,
		"realized_pnl": tradeLog.RealizedPnl,
		"exit_reason":  tradeLog.ExitReason,
		"closed_at":    tradeLog.ClosedAt,
	})
	return r.transition(entry, domain.StateSold, reason)
}

// failEntry moves an entry to ERROR with a message. Terminal entries are
// left alone with a warning.
func (r *Runner) failEntry(entry *domain.PipelineEntry, message string) {
	observability.DefaultMetrics.EntryErrors.Inc()
	r.emit(events.EventError, entry.Symbol, map[string]any{
		"state":   string(entry.State),
		"message": message,
	})

	if domain.IsTerminal(entry.State) || entry.State == domain.StateError {
		log.Printf("[pipeline] %s: error in state %s left as-is: %s", entry.Symbol, entry.State, message)
		return
	}
	entry.ErrorMessage = message
	if err := r.transition(entry, domain.StateError, message); err != nil {
		log.Printf("[pipeline] %s: cannot enter ERROR from %s: %v", entry.Symbol, entry.State, err)
	}
}

// transition applies a state change and logs it as a state-change event.
func (r *Runner) transition(entry *domain.PipelineEntry, to domain.PipelineState, reason string) error {
	from := entry.State
	if err := entry.Transition(to); err != nil {
		return err
	}
	observability.RecordTransition(string(from), string(to))
	log.Printf("[pipeline] %s: %s -> %s (%s)", entry.Symbol, from, to, reason)
	r.emit(events.EventStateChange, entry.Symbol, map[string]any{
		"from":   string(from),
		"to":     string(to),
		"reason": reason,
	})
	return nil
}

func (r *Runner) persist(ctx context.Context, entry *domain.PipelineEntry) {
	if r.opts.EntryStore == nil {
		return
	}
	if err := r.opts.EntryStore.Upsert(ctx, entry); err != nil {
		log.Printf("[pipeline] persist %s: %v", entry.Symbol, err)
	}
}

func (r *Runner) emit(eventType events.EventType, symbol string, payload map[string]any) {
	if r.opts.Events == nil {
		return
	}
	r.opts.Events.Emit(eventType, symbol, payload)
}

func (r *Runner) updateStateGauges(entries []*domain.PipelineEntry) {
	counts := make(map[domain.PipelineState]int)
	for _, e := range entries {
		counts[e.State]++
	}
	for _, state := range []domain.PipelineState{
		domain.StateWatchlist, domain.StateScreening, domain.StateEvaluating,
		domain.StateConsensusApproved, domain.StateConsensusRejected,
		domain.StateBuyPending, domain.StateBought, domain.StateMonitoring,
		domain.StateSellPending, domain.StateSold, domain.StateError,
	} {
		observability.DefaultMetrics.EntriesByState.WithLabelValues(string(state)).Set(float64(counts[state]))
	}
}

// buyKey derives a deterministic idempotency key for the pending buy so
// retries within the same BUY_PENDING visit reuse it.
func buyKey(entry *domain.PipelineEntry) string {
	return fmt.Sprintf("%s-BUY-%d", entry.Symbol, entry.EnteredAt.UnixNano())
}

func sellKey(entry *domain.PipelineEntry) string {
	return fmt.Sprintf("%s-SELL-%d", entry.Symbol, entry.EnteredAt.UnixNano())
}

func orderStatus(res execution.Result) string {
	switch {
	case res.Success:
		return "accepted"
	case res.Duplicate:
		return "duplicate"
	default:
		return "failed"
	}
}
