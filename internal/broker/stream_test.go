package broker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestQuoteStreamConnect(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	stream, err := NewQuoteStream(context.Background(), wsURL(server), nil)
	require.NoError(t, err)
	require.NoError(t, stream.Close())
}

func TestQuoteStreamSubscribeAndReceive(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req map[string]string
		if err := json.Unmarshal(msg, &req); err != nil {
			return
		}
		if req["op"] != "subscribe" {
			return
		}

		tick := Quote{
			Symbol: req["symbol"],
			Price:  decimal.NewFromFloat(151.30),
			Volume: 1200,
			At:     time.Now().UTC(),
		}
		_ = conn.WriteJSON(tick)

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	stream, err := NewQuoteStream(context.Background(), wsURL(server), nil)
	require.NoError(t, err)
	defer stream.Close()

	require.NoError(t, stream.Subscribe("AAPL"))

	select {
	case quote := <-stream.Quotes():
		require.Equal(t, "AAPL", quote.Symbol)
		require.True(t, quote.Price.Equal(decimal.NewFromFloat(151.30)))
		require.Equal(t, int64(1200), quote.Volume)
	case <-time.After(3 * time.Second):
		t.Fatal("no quote received")
	}
}

func TestQuoteStreamMalformedTickDropped(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_ = conn.WriteMessage(websocket.TextMessage, []byte("not json"))
		_ = conn.WriteJSON(Quote{Symbol: "MSFT", Price: decimal.NewFromInt(400)})

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	stream, err := NewQuoteStream(context.Background(), wsURL(server), nil)
	require.NoError(t, err)
	defer stream.Close()

	select {
	case quote := <-stream.Quotes():
		require.Equal(t, "MSFT", quote.Symbol)
	case <-time.After(3 * time.Second):
		t.Fatal("valid tick after malformed one never arrived")
	}
}

func TestQuoteStreamReconnectResubscribes(t *testing.T) {
	subscribes := make(chan string, 4)
	dropFirst := true

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req map[string]string
			if json.Unmarshal(msg, &req) == nil && req["op"] == "subscribe" {
				subscribes <- req["symbol"]
				if dropFirst {
					dropFirst = false
					conn.Close()
					return
				}
			}
		}
	}))
	defer server.Close()

	cfg := DefaultStreamConfig()
	cfg.ReconnectDelay = 20 * time.Millisecond
	cfg.MaxReconnectDelay = 100 * time.Millisecond

	stream, err := NewQuoteStream(context.Background(), wsURL(server), &cfg)
	require.NoError(t, err)
	defer stream.Close()

	require.NoError(t, stream.Subscribe("NVDA"))

	// First subscribe lands, the server drops the connection, and the
	// stream replays the subscription on the new connection.
	for i := 0; i < 2; i++ {
		select {
		case symbol := <-subscribes:
			require.Equal(t, "NVDA", symbol)
		case <-time.After(3 * time.Second):
			t.Fatalf("subscribe %d never arrived", i+1)
		}
	}
}
