package advisor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consensus-trader/internal/domain"
)

func ruleVote() domain.Vote {
	return domain.Vote{
		PersonaName: "value",
		Action:      domain.ActionBuy,
		Conviction:  0.75,
		Reasoning:   "3/4 criteria met",
		Category:    domain.CategoryValue,
	}
}

func TestVerifyReturnsSecondaryOpinion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/verify", r.URL.Path)
		require.Equal(t, "Bearer key", r.Header.Get("Authorization"))

		var req verifyRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "AAPL", req.Symbol)
		assert.Equal(t, "BUY", req.RuleAction)

		json.NewEncoder(w).Encode(verifyResponse{
			Action:     "HOLD",
			Conviction: 0.6,
			Reasoning:  "valuation stretched",
		})
	}))
	defer srv.Close()

	client := New(srv.URL, "key")
	vote, err := client.Verify(context.Background(), &domain.MarketSnapshot{Symbol: "AAPL", Price: 150}, ruleVote())
	require.NoError(t, err)

	assert.Equal(t, domain.ActionHold, vote.Action)
	assert.Equal(t, 0.6, vote.Conviction)
	assert.Equal(t, "value", vote.PersonaName)
	assert.Equal(t, domain.CategoryValue, vote.Category)
}

func TestVerifyErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := New(srv.URL, "key")
	_, err := client.Verify(context.Background(), &domain.MarketSnapshot{Symbol: "AAPL"}, ruleVote())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestVerifyRejectsUnknownAction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(verifyResponse{Action: "SHORT", Conviction: 0.9})
	}))
	defer srv.Close()

	client := New(srv.URL, "key")
	_, err := client.Verify(context.Background(), &domain.MarketSnapshot{Symbol: "AAPL"}, ruleVote())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown action")
}

func TestVerifyClampsConviction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(verifyResponse{Action: "BUY", Conviction: 1.4})
	}))
	defer srv.Close()

	client := New(srv.URL, "key")
	vote, err := client.Verify(context.Background(), &domain.MarketSnapshot{Symbol: "AAPL"}, ruleVote())
	require.NoError(t, err)
	assert.Equal(t, 1.0, vote.Conviction)
}
