package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

// Quote is one streamed price tick. Prices travel as decimal strings.
type Quote struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
	Volume int64           `json:"volume"`
	At     time.Time       `json:"at"`
}

// StreamConfig configures the quote stream.
type StreamConfig struct {
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	PingInterval      time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
}

// DefaultStreamConfig returns the standard stream configuration.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// QuoteStream maintains a websocket subscription to live quotes,
// reconnecting with exponential backoff and resubscribing on reconnect.
type QuoteStream struct {
	endpoint string
	cfg      StreamConfig

	conn   *websocket.Conn
	connMu sync.Mutex
	closed atomic.Bool

	symbols   map[string]struct{}
	symbolsMu sync.Mutex

	quotes chan Quote
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewQuoteStream connects and starts the reader loop.
func NewQuoteStream(ctx context.Context, endpoint string, cfg *StreamConfig) (*QuoteStream, error) {
	config := DefaultStreamConfig()
	if cfg != nil {
		config = *cfg
	}

	s := &QuoteStream{
		endpoint: endpoint,
		cfg:      config,
		symbols:  make(map[string]struct{}),
		quotes:   make(chan Quote, 256),
		done:     make(chan struct{}),
	}
	if err := s.connect(ctx); err != nil {
		return nil, err
	}

	s.wg.Add(2)
	go s.readLoop()
	go s.pingLoop()
	return s, nil
}

// Quotes returns the tick channel. Slow consumers drop ticks rather than
// backpressure the socket.
func (s *QuoteStream) Quotes() <-chan Quote {
	return s.quotes
}

// Subscribe adds a symbol to the live subscription.
func (s *QuoteStream) Subscribe(symbol string) error {
	s.symbolsMu.Lock()
	s.symbols[symbol] = struct{}{}
	s.symbolsMu.Unlock()
	return s.send(map[string]string{"op": "subscribe", "symbol": symbol})
}

// Unsubscribe removes a symbol from the subscription.
func (s *QuoteStream) Unsubscribe(symbol string) error {
	s.symbolsMu.Lock()
	delete(s.symbols, symbol)
	s.symbolsMu.Unlock()
	return s.send(map[string]string{"op": "unsubscribe", "symbol": symbol})
}

// Close shuts the stream down and waits for the loops to exit.
func (s *QuoteStream) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(s.done)

	s.connMu.Lock()
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.connMu.Unlock()

	s.wg.Wait()
	close(s.quotes)
	return nil
}

func (s *QuoteStream) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.endpoint, nil)
	if err != nil {
		return fmt.Errorf("quote stream dial: %w", err)
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
	return nil
}

func (s *QuoteStream) send(payload any) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("quote stream not connected")
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	return s.conn.WriteJSON(payload)
}

func (s *QuoteStream) readLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.done:
			return
		default:
		}

		s.connMu.Lock()
		conn := s.conn
		s.connMu.Unlock()
		if conn == nil {
			s.reconnect()
			continue
		}

		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			if s.closed.Load() {
				return
			}
			log.Printf("[stream] read error: %v, reconnecting", err)
			s.reconnect()
			continue
		}

		var quote Quote
		if err := json.Unmarshal(data, &quote); err != nil {
			log.Printf("[stream] malformed tick dropped: %v", err)
			continue
		}

		select {
		case s.quotes <- quote:
		default:
			// Consumer is behind; the next tick supersedes this one.
		}
	}
}

// reconnect redials with exponential backoff and replays subscriptions.
func (s *QuoteStream) reconnect() {
	delay := s.cfg.ReconnectDelay
	for {
		select {
		case <-s.done:
			return
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := s.connect(ctx)
		cancel()
		if err == nil {
			s.resubscribe()
			return
		}

		log.Printf("[stream] reconnect failed: %v", err)
		delay *= 2
		if delay > s.cfg.MaxReconnectDelay {
			delay = s.cfg.MaxReconnectDelay
		}
	}
}

func (s *QuoteStream) resubscribe() {
	s.symbolsMu.Lock()
	symbols := make([]string, 0, len(s.symbols))
	for symbol := range s.symbols {
		symbols = append(symbols, symbol)
	}
	s.symbolsMu.Unlock()

	for _, symbol := range symbols {
		if err := s.send(map[string]string{"op": "subscribe", "symbol": symbol}); err != nil {
			log.Printf("[stream] resubscribe %s: %v", symbol, err)
		}
	}
}

func (s *QuoteStream) pingLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.connMu.Lock()
			conn := s.conn
			s.connMu.Unlock()
			if conn == nil {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("[stream] ping failed: %v", err)
			}
		}
	}
}
