// Package advisor provides an HTTP client for the secondary opinion
// service consulted by verified personas.
package advisor

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"consensus-trader/internal/domain"
)

// DefaultTimeout bounds a single advisory call. Callers typically wrap
// the context with a tighter deadline as well.
const DefaultTimeout = 30 * time.Second

// Client calls the remote verification endpoint. It implements
// persona.Verifier.
type Client struct {
	http *resty.Client
}

// Option configures Client.
type Option func(*Client)

// WithTimeout sets the HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.SetTimeout(d)
	}
}

// New creates an advisory client for the given base URL.
func New(baseURL, apiKey string, opts ...Option) *Client {
	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(DefaultTimeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", "Bearer "+apiKey)

	c := &Client{http: http}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type verifyRequest struct {
	Symbol     string  `json:"symbol"`
	Price      float64 `json:"price"`
	RuleAction string  `json:"rule_action"`
	Conviction float64 `json:"rule_conviction"`
	Reasoning  string  `json:"rule_reasoning"`
}

type verifyResponse struct {
	Action     string  `json:"action"`
	Conviction float64 `json:"conviction"`
	Reasoning  string  `json:"reasoning"`
}

// Verify asks the remote service to confirm or overturn a rule-based
// vote. The caller decides how to merge the answer.
func (c *Client) Verify(ctx context.Context, snapshot *domain.MarketSnapshot, rule domain.Vote) (domain.Vote, error) {
	req := verifyRequest{
		Symbol:     snapshot.Symbol,
		Price:      snapshot.Price,
		RuleAction: string(rule.Action),
		Conviction: rule.Conviction,
		Reasoning:  rule.Reasoning,
	}

	var out verifyResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		ForceContentType("application/json").
		Post("/v1/verify")
	if err != nil {
		return domain.Vote{}, fmt.Errorf("verify %s: %w", snapshot.Symbol, err)
	}
	if resp.IsError() {
		return domain.Vote{}, fmt.Errorf("verify %s: status %d", snapshot.Symbol, resp.StatusCode())
	}

	action, err := parseAction(out.Action)
	if err != nil {
		return domain.Vote{}, fmt.Errorf("verify %s: %w", snapshot.Symbol, err)
	}
	return domain.Vote{
		PersonaName: rule.PersonaName,
		Action:      action,
		Conviction:  clamp01(out.Conviction),
		Reasoning:   out.Reasoning,
		Category:    rule.Category,
	}, nil
}

func parseAction(s string) (domain.VoteAction, error) {
	switch domain.VoteAction(s) {
	case domain.ActionBuy, domain.ActionSell, domain.ActionHold:
		return domain.VoteAction(s), nil
	default:
		return "", fmt.Errorf("unknown action %q", s)
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
