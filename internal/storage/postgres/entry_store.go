package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"consensus-trader/internal/domain"
	"consensus-trader/internal/storage"
)

// EntryStore implements storage.EntryStore using PostgreSQL. Transition
// history and the consensus result are stored as JSONB documents; the
// hot fields live in typed columns.
type EntryStore struct {
	pool *Pool
}

// NewEntryStore creates a new EntryStore.
func NewEntryStore(pool *Pool) *EntryStore {
	return &EntryStore{pool: pool}
}

// Compile-time interface check.
var _ storage.EntryStore = (*EntryStore)(nil)

// Upsert inserts or replaces the entry keyed by symbol.
func (s *EntryStore) Upsert(ctx context.Context, e *domain.PipelineEntry) error {
	if e == nil || e.Symbol == "" {
		return storage.ErrInvalidInput
	}

	history, err := json.Marshal(e.History)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	var consensus []byte
	if e.ConsensusResult != nil {
		consensus, err = json.Marshal(e.ConsensusResult)
		if err != nil {
			return fmt.Errorf("marshal consensus: %w", err)
		}
	}

	query := `
		INSERT INTO pipeline_entries (
			symbol, state, entered_at, buy_price, buy_quantity,
			current_price, unrealized_pnl, trailing_stop, error_message,
			history, consensus
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (symbol) DO UPDATE SET
			state = EXCLUDED.state,
			entered_at = EXCLUDED.entered_at,
			buy_price = EXCLUDED.buy_price,
			buy_quantity = EXCLUDED.buy_quantity,
			current_price = EXCLUDED.current_price,
			unrealized_pnl = EXCLUDED.unrealized_pnl,
			trailing_stop = EXCLUDED.trailing_stop,
			error_message = EXCLUDED.error_message,
			history = EXCLUDED.history,
			consensus = EXCLUDED.consensus,
			updated_at = now()
	`

	_, err = s.pool.Exec(ctx, query,
		e.Symbol,
		string(e.State),
		e.EnteredAt,
		e.BuyPrice,
		e.BuyQuantity,
		e.CurrentPrice,
		e.UnrealizedPnl,
		e.TrailingStop,
		e.ErrorMessage,
		history,
		consensus,
	)
	if err != nil {
		return fmt.Errorf("upsert entry: %w", err)
	}
	return nil
}

// Get retrieves an entry by symbol. Returns ErrNotFound if not exists.
func (s *EntryStore) Get(ctx context.Context, symbol string) (*domain.PipelineEntry, error) {
	query := `
		SELECT symbol, state, entered_at, buy_price, buy_quantity,
		       current_price, unrealized_pnl, trailing_stop, error_message,
		       history, consensus
		FROM pipeline_entries
		WHERE symbol = $1
	`

	e, err := scanEntry(s.pool.QueryRow(ctx, query, symbol))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get entry: %w", err)
	}
	return e, nil
}

// List retrieves all entries, ordered by symbol ASC.
func (s *EntryStore) List(ctx context.Context) ([]*domain.PipelineEntry, error) {
	query := `
		SELECT symbol, state, entered_at, buy_price, buy_quantity,
		       current_price, unrealized_pnl, trailing_stop, error_message,
		       history, consensus
		FROM pipeline_entries
		ORDER BY symbol ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var out []*domain.PipelineEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return out, nil
}

// Delete removes an entry. Returns ErrNotFound if not exists.
func (s *EntryStore) Delete(ctx context.Context, symbol string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM pipeline_entries WHERE symbol = $1`, symbol)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func scanEntry(row pgx.Row) (*domain.PipelineEntry, error) {
	var (
		e         domain.PipelineEntry
		state     string
		history   []byte
		consensus []byte
	)
	err := row.Scan(
		&e.Symbol,
		&state,
		&e.EnteredAt,
		&e.BuyPrice,
		&e.BuyQuantity,
		&e.CurrentPrice,
		&e.UnrealizedPnl,
		&e.TrailingStop,
		&e.ErrorMessage,
		&history,
		&consensus,
	)
	if err != nil {
		return nil, err
	}
	e.State = domain.PipelineState(state)

	if len(history) > 0 {
		if err := json.Unmarshal(history, &e.History); err != nil {
			return nil, fmt.Errorf("unmarshal history: %w", err)
		}
	}
	if len(consensus) > 0 {
		var r domain.ConsensusResult
		if err := json.Unmarshal(consensus, &r); err != nil {
			return nil, fmt.Errorf("unmarshal consensus: %w", err)
		}
		e.ConsensusResult = &r
	}
	return &e, nil
}
