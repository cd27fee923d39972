package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"consensus-trader/internal/domain"
	"consensus-trader/internal/observability"
	"consensus-trader/internal/ratelimit"
)

// Default REST client configuration.
const (
	DefaultHTTPTimeout = 10 * time.Second
	DefaultAcquireWait = 5 * time.Second
)

// ErrThrottled is returned when the rate limiter denies an outbound call
// within the acquire window.
var ErrThrottled = fmt.Errorf("outbound call throttled")

// RESTClient talks to the brokerage REST API. Every outbound call passes
// through the shared rate limiter first.
type RESTClient struct {
	http    *resty.Client
	limiter *ratelimit.Limiter
}

// RESTOption configures RESTClient.
type RESTOption func(*RESTClient)

// WithTimeout sets the HTTP timeout.
func WithTimeout(d time.Duration) RESTOption {
	return func(c *RESTClient) {
		c.http.SetTimeout(d)
	}
}

// WithLimiter sets the outbound rate limiter.
func WithLimiter(l *ratelimit.Limiter) RESTOption {
	return func(c *RESTClient) {
		c.limiter = l
	}
}

// NewRESTClient creates a broker client for the given API base URL.
func NewRESTClient(baseURL, appKey, appSecret string, opts ...RESTOption) *RESTClient {
	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(DefaultHTTPTimeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("appkey", appKey).
		SetHeader("appsecret", appSecret)

	c := &RESTClient{
		http:    http,
		limiter: ratelimit.New(ratelimit.DefaultMaxRequests, ratelimit.DefaultWindow),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *RESTClient) admit(ctx context.Context) error {
	if !c.limiter.Acquire(ctx, DefaultAcquireWait) {
		observability.DefaultMetrics.ThrottledCalls.Inc()
		return ErrThrottled
	}
	observability.DefaultMetrics.LimiterAvailable.Set(float64(c.limiter.Available()))
	return nil
}

// PlaceOrder submits an order. Rejections come back as a response with a
// non-zero result code, not as an error.
func (c *RESTClient) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error) {
	if err := c.admit(ctx); err != nil {
		return nil, err
	}

	var out OrderResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		ForceContentType("application/json").
		Post("/orders")
	if err != nil {
		return nil, fmt.Errorf("place order %s %s: %w", req.Side, req.Symbol, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("place order %s %s: http %d", req.Side, req.Symbol, resp.StatusCode())
	}
	return &out, nil
}

// CancelOrder cancels an open order.
func (c *RESTClient) CancelOrder(ctx context.Context, brokerOrderID string) (bool, error) {
	if err := c.admit(ctx); err != nil {
		return false, err
	}

	var out OrderResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		ForceContentType("application/json").
		Delete("/orders/" + brokerOrderID)
	if err != nil {
		return false, fmt.Errorf("cancel order %s: %w", brokerOrderID, err)
	}
	if resp.IsError() {
		return false, fmt.Errorf("cancel order %s: http %d", brokerOrderID, resp.StatusCode())
	}
	return out.Accepted(), nil
}

// GetOrders lists open orders.
func (c *RESTClient) GetOrders(ctx context.Context) ([]OrderInfo, error) {
	if err := c.admit(ctx); err != nil {
		return nil, err
	}

	var out struct {
		Orders []OrderInfo `json:"orders"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		ForceContentType("application/json").
		Get("/orders")
	if err != nil {
		return nil, fmt.Errorf("get orders: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("get orders: http %d", resp.StatusCode())
	}
	return out.Orders, nil
}

// GetCash returns available trading cash.
func (c *RESTClient) GetCash(ctx context.Context) (decimal.Decimal, error) {
	if err := c.admit(ctx); err != nil {
		return decimal.Zero, err
	}

	var out struct {
		Cash decimal.Decimal `json:"cash"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		ForceContentType("application/json").
		Get("/account/cash")
	if err != nil {
		return decimal.Zero, fmt.Errorf("get cash: %w", err)
	}
	if resp.IsError() {
		return decimal.Zero, fmt.Errorf("get cash: http %d", resp.StatusCode())
	}
	return out.Cash, nil
}

// FetchSnapshot retrieves the market snapshot for a symbol.
func (c *RESTClient) FetchSnapshot(ctx context.Context, symbol string) (*domain.MarketSnapshot, error) {
	if err := c.admit(ctx); err != nil {
		return nil, err
	}

	var out domain.MarketSnapshot
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		ForceContentType("application/json").
		Get("/quotes/" + symbol)
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot %s: %w", symbol, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch snapshot %s: http %d", symbol, resp.StatusCode())
	}
	out.Symbol = symbol
	out.FetchedAt = time.Now().UTC()
	return &out, nil
}

var (
	_ Client     = (*RESTClient)(nil)
	_ MarketData = (*RESTClient)(nil)
)
