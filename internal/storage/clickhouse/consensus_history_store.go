package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"consensus-trader/internal/domain"
	"consensus-trader/internal/storage"
)

// ConsensusHistoryStore implements storage.ConsensusHistoryStore using
// ClickHouse. Votes are archived as JSON strings; the aggregate columns
// are typed for analytical queries.
type ConsensusHistoryStore struct {
	conn *Conn
}

// NewConsensusHistoryStore creates a new ConsensusHistoryStore.
func NewConsensusHistoryStore(conn *Conn) *ConsensusHistoryStore {
	return &ConsensusHistoryStore{conn: conn}
}

// Compile-time interface check.
var _ storage.ConsensusHistoryStore = (*ConsensusHistoryStore)(nil)

// Insert archives one evaluation result with all of its votes.
func (s *ConsensusHistoryStore) Insert(ctx context.Context, r *domain.ConsensusResult) error {
	if r == nil || r.Symbol == "" {
		return storage.ErrInvalidInput
	}

	votes, err := json.Marshal(r.Votes)
	if err != nil {
		return fmt.Errorf("marshal votes: %w", err)
	}
	advisory := ""
	if r.AdvisoryVote != nil {
		data, err := json.Marshal(r.AdvisoryVote)
		if err != nil {
			return fmt.Errorf("marshal advisory: %w", err)
		}
		advisory = string(data)
	}

	query := `
		INSERT INTO consensus_history (
			symbol, evaluated_at, passes_threshold,
			buy_count, sell_count, hold_count, abstain_count,
			avg_conviction, category_diversity, votes, advisory
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	err = s.conn.Exec(ctx, query,
		r.Symbol,
		r.EvaluatedAt,
		boolToUInt8(r.PassesThreshold),
		uint16(r.BuyCount),
		uint16(r.SellCount),
		uint16(r.HoldCount),
		uint16(r.AbstainCount),
		r.AvgConviction,
		uint8(r.CategoryDiversity),
		string(votes),
		advisory,
	)
	if err != nil {
		return fmt.Errorf("insert consensus result: %w", err)
	}
	return nil
}

// ListBySymbol retrieves the most recent results for a symbol, ordered
// by evaluated_at DESC, at most limit rows.
func (s *ConsensusHistoryStore) ListBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.ConsensusResult, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT symbol, evaluated_at, passes_threshold,
		       buy_count, sell_count, hold_count, abstain_count,
		       avg_conviction, category_diversity, votes, advisory
		FROM consensus_history
		WHERE symbol = ?
		ORDER BY evaluated_at DESC
		LIMIT ?
	`

	rows, err := s.conn.Query(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("query consensus history: %w", err)
	}
	defer rows.Close()

	var out []*domain.ConsensusResult
	for rows.Next() {
		var (
			r           domain.ConsensusResult
			passes      uint8
			buyCount    uint16
			sellCount   uint16
			holdCount   uint16
			abstainCnt  uint16
			diversity   uint8
			evaluatedAt time.Time
			votes       string
			advisory    string
		)
		err := rows.Scan(
			&r.Symbol,
			&evaluatedAt,
			&passes,
			&buyCount,
			&sellCount,
			&holdCount,
			&abstainCnt,
			&r.AvgConviction,
			&diversity,
			&votes,
			&advisory,
		)
		if err != nil {
			return nil, fmt.Errorf("scan consensus row: %w", err)
		}
		r.EvaluatedAt = evaluatedAt
		r.PassesThreshold = passes != 0
		r.BuyCount = int(buyCount)
		r.SellCount = int(sellCount)
		r.HoldCount = int(holdCount)
		r.AbstainCount = int(abstainCnt)
		r.CategoryDiversity = int(diversity)

		if votes != "" {
			if err := json.Unmarshal([]byte(votes), &r.Votes); err != nil {
				return nil, fmt.Errorf("unmarshal votes: %w", err)
			}
		}
		if advisory != "" {
			var a domain.AdvisoryVote
			if err := json.Unmarshal([]byte(advisory), &a); err != nil {
				return nil, fmt.Errorf("unmarshal advisory: %w", err)
			}
			r.AdvisoryVote = &a
		}
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate consensus history: %w", err)
	}
	return out, nil
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
