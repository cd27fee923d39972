// Package events writes the structured trading event log: one JSON
// object per line, daily-rotated files, a process-lifetime session id
// on every record.
package events

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventType identifies the record kind. The set is fixed so downstream
// consumers can route on it.
type EventType string

const (
	EventStateChange       EventType = "state_change"
	EventScreeningComplete EventType = "screening_complete"
	EventAgentVote         EventType = "agent_vote"
	EventAdvisoryVote      EventType = "advisory_vote"
	EventConsensusResult   EventType = "consensus_result"
	EventBuyDecision       EventType = "buy_decision"
	EventOrderExecuted     EventType = "order_executed"
	EventConditionCheck    EventType = "condition_check"
	EventConditionWarning  EventType = "condition_warning"
	EventSellTrigger       EventType = "sell_trigger"
	EventTradeComplete     EventType = "trade_complete"
	EventError             EventType = "error"
)

// record is the serialized line shape. Timestamp is ISO-8601; payload
// values pass through normalizePayload so decimals and times land as
// strings.
type record struct {
	Timestamp string         `json:"timestamp"`
	SessionID string         `json:"session_id"`
	Type      EventType      `json:"event_type"`
	Symbol    string         `json:"symbol,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Sink appends events to {prefix}-{YYYYMMDD}.jsonl under a directory,
// switching files when the calendar date changes.
type Sink struct {
	mu        sync.Mutex
	dir       string
	prefix    string
	sessionID string

	file        *os.File
	currentDate string

	now func() time.Time
}

// NewSink creates a sink writing under dir with the given filename
// prefix. The directory is created if missing.
func NewSink(dir, prefix string) (*Sink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create event dir: %w", err)
	}
	return &Sink{
		dir:       dir,
		prefix:    prefix,
		sessionID: uuid.NewString(),
		now:       time.Now,
	}, nil
}

// SessionID returns the process-lifetime session identifier stamped on
// every record.
func (s *Sink) SessionID() string { return s.sessionID }

// Emit writes one event line. Write failures are logged, not returned:
// the event log must never take the pipeline down.
func (s *Sink) Emit(eventType EventType, symbol string, payload map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	if err := s.rotateLocked(now); err != nil {
		log.Printf("[events] rotate failed: %v", err)
		return
	}

	rec := record{
		Timestamp: now.Format(time.RFC3339),
		SessionID: s.sessionID,
		Type:      eventType,
		Symbol:    symbol,
		Payload:   normalizePayload(payload),
	}
	line, err := json.Marshal(rec)
	if err != nil {
		log.Printf("[events] marshal failed: %v", err)
		return
	}
	if _, err := s.file.Write(append(line, '\n')); err != nil {
		log.Printf("[events] write failed: %v", err)
	}
}

// Close flushes and closes the current file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func (s *Sink) rotateLocked(now time.Time) error {
	date := now.Format("20060102")
	if s.file != nil && date == s.currentDate {
		return nil
	}
	if s.file != nil {
		if err := s.file.Close(); err != nil {
			log.Printf("[events] close old file: %v", err)
		}
	}

	path := filepath.Join(s.dir, fmt.Sprintf("%s-%s.jsonl", s.prefix, date))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	s.file = f
	s.currentDate = date
	return nil
}

// normalizePayload renders decimal and time values as strings so the
// log is lossless across JSON round trips.
func normalizePayload(payload map[string]any) map[string]any {
	if payload == nil {
		return nil
	}
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		switch val := v.(type) {
		case decimal.Decimal:
			out[k] = val.String()
		case time.Time:
			out[k] = val.UTC().Format(time.RFC3339)
		case map[string]any:
			out[k] = normalizePayload(val)
		default:
			out[k] = v
		}
	}
	return out
}
