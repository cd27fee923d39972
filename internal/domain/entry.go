package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTransition is returned when a requested state change is not
// present in the transition table. This is a logic error, never swallowed.
var ErrInvalidTransition = errors.New("invalid pipeline state transition")

// PipelineState is the lifecycle state of a tracked symbol.
type PipelineState string

const (
	StateWatchlist         PipelineState = "WATCHLIST"
	StateScreening         PipelineState = "SCREENING"
	StateEvaluating        PipelineState = "EVALUATING"
	StateConsensusApproved PipelineState = "CONSENSUS_APPROVED"
	StateConsensusRejected PipelineState = "CONSENSUS_REJECTED"
	StateBuyPending        PipelineState = "BUY_PENDING"
	StateBought            PipelineState = "BOUGHT"
	StateMonitoring        PipelineState = "MONITORING"
	StateSellPending       PipelineState = "SELL_PENDING"
	StateSold              PipelineState = "SOLD"
	StateError             PipelineState = "ERROR"
)

// transitions is the adjacency set per source state. A state change is
// legal iff the target appears in the source's set. SOLD is terminal.
var transitions = map[PipelineState]map[PipelineState]struct{}{
	StateWatchlist:         stateSet(StateScreening, StateError),
	StateScreening:         stateSet(StateEvaluating, StateError),
	StateEvaluating:        stateSet(StateConsensusApproved, StateConsensusRejected, StateError),
	StateConsensusApproved: stateSet(StateBuyPending, StateError),
	StateConsensusRejected: stateSet(StateWatchlist, StateError),
	StateBuyPending:        stateSet(StateBought, StateError),
	StateBought:            stateSet(StateMonitoring, StateError),
	StateMonitoring:        stateSet(StateSellPending, StateError),
	StateSellPending:       stateSet(StateSold, StateError),
	StateSold:              stateSet(),
	StateError:             stateSet(StateWatchlist),
}

func stateSet(states ...PipelineState) map[PipelineState]struct{} {
	set := make(map[PipelineState]struct{}, len(states))
	for _, s := range states {
		set[s] = struct{}{}
	}
	return set
}

// CanTransition reports whether from→to is present in the transition table.
func CanTransition(from, to PipelineState) bool {
	allowed, ok := transitions[from]
	if !ok {
		return false
	}
	_, ok = allowed[to]
	return ok
}

// IsTerminal reports whether the state has no outgoing transitions.
func IsTerminal(state PipelineState) bool {
	return len(transitions[state]) == 0
}

// TransitionRecord is one appended history row: the state the entry left
// and when the entry had entered it.
type TransitionRecord struct {
	State     PipelineState
	EnteredAt time.Time
}

// PipelineEntry tracks one symbol through the trading pipeline.
// Owned exclusively by the Runner; state changes go through Transition.
type PipelineEntry struct {
	Symbol    string
	State     PipelineState
	EnteredAt time.Time

	ConsensusResult *ConsensusResult

	BuyPrice      float64
	BuyQuantity   int64
	CurrentPrice  float64
	UnrealizedPnl float64

	// TrailingStop ratchets upward with favorable price movement and
	// never retreats once set.
	TrailingStop float64

	History      []TransitionRecord
	ErrorMessage string
}

// NewPipelineEntry creates a watchlist entry for a symbol.
func NewPipelineEntry(symbol string) *PipelineEntry {
	return &PipelineEntry{
		Symbol:    symbol,
		State:     StateWatchlist,
		EnteredAt: time.Now().UTC(),
	}
}

// Transition moves the entry to newState if the transition table allows it.
// On success the old state is appended to History and EnteredAt resets.
func (e *PipelineEntry) Transition(newState PipelineState) error {
	if !CanTransition(e.State, newState) {
		return fmt.Errorf("%w: %s -> %s (%s)", ErrInvalidTransition, e.State, newState, e.Symbol)
	}
	e.History = append(e.History, TransitionRecord{State: e.State, EnteredAt: e.EnteredAt})
	e.State = newState
	e.EnteredAt = time.Now().UTC()
	return nil
}

// DaysHeld returns whole days since the entry entered its current state.
func (e *PipelineEntry) DaysHeld(now time.Time) int {
	return int(now.Sub(e.EnteredAt).Hours() / 24)
}
