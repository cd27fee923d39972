package execution

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"consensus-trader/internal/broker/stub"
	"consensus-trader/internal/domain"
	"consensus-trader/internal/observability"
	"consensus-trader/internal/storage/memory"
)

func price(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func TestBuy_SuccessMarksKeySubmitted(t *testing.T) {
	b := stub.New(1_000_000)
	e := NewExecutor(b)

	result := e.Buy(context.Background(), "AAPL", 10, price(100), "key-1")
	require.True(t, result.Success)
	assert.NotEmpty(t, result.BrokerOrderID)
	assert.Equal(t, int64(10), result.FilledQuantity)
	assert.True(t, e.WasSubmitted("key-1"))
	assert.Equal(t, 1, b.PlaceOrderCalls)
}

func TestBuy_DuplicateKeyNeverReachesBroker(t *testing.T) {
	b := stub.New(1_000_000)
	e := NewExecutor(b)
	duplicatesBefore := testutil.ToFloat64(observability.DefaultMetrics.DuplicateOrders)

	first := e.Buy(context.Background(), "AAPL", 10, price(100), "key-1")
	require.True(t, first.Success)

	second := e.Buy(context.Background(), "AAPL", 10, price(100), "key-1")
	assert.False(t, second.Success)
	assert.True(t, second.Duplicate)
	assert.Equal(t, 1, b.PlaceOrderCalls, "broker must be invoked exactly once")
	assert.Equal(t, duplicatesBefore+1, testutil.ToFloat64(observability.DefaultMetrics.DuplicateOrders))
}

func TestBuy_FailedSubmissionPermitsRetry(t *testing.T) {
	b := stub.New(1_000_000)
	b.FailNextOrders = 1
	e := NewExecutor(b)

	first := e.Buy(context.Background(), "AAPL", 10, price(100), "key-1")
	assert.False(t, first.Success)
	assert.False(t, first.Duplicate)
	assert.False(t, e.WasSubmitted("key-1"), "rejected order must not consume the key")

	second := e.Buy(context.Background(), "AAPL", 10, price(100), "key-1")
	assert.True(t, second.Success)
	assert.Equal(t, 2, b.PlaceOrderCalls)
}

func TestSubmit_ConcurrentSameKeySingleBrokerCall(t *testing.T) {
	b := stub.New(1_000_000)
	e := NewExecutor(b)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]Result, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = e.Buy(context.Background(), "AAPL", 10, price(100), "shared-key")
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, r := range results {
		if r.Success {
			successes++
		} else {
			assert.True(t, r.Duplicate)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, b.PlaceOrderCalls)
}

func TestExecuteWithRetry_BacksOffAndStopsOnSuccess(t *testing.T) {
	b := stub.New(1_000_000)
	b.ErrNextOrders = 2
	e := NewExecutor(b)

	var slept []time.Duration
	e.sleep = func(d time.Duration) { slept = append(slept, d) }

	order := &domain.Order{
		Symbol:         "AAPL",
		Side:           domain.SideBuy,
		Quantity:       10,
		Price:          price(100),
		IdempotencyKey: "retry-key",
		MaxAttempts:    4,
	}
	result := e.ExecuteWithRetry(context.Background(), order)

	require.True(t, result.Success)
	assert.Equal(t, 3, order.SubmissionAttempts)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, slept)
	assert.Equal(t, domain.OrderFilled, order.Status)
}

func TestExecuteWithRetry_ExhaustsAttempts(t *testing.T) {
	b := stub.New(1_000_000)
	b.ErrNextOrders = 10
	e := NewExecutor(b)
	e.sleep = func(time.Duration) {}

	order := &domain.Order{
		Symbol:      "AAPL",
		Side:        domain.SideBuy,
		Quantity:    10,
		Price:       price(100),
		MaxAttempts: 3,
	}
	result := e.ExecuteWithRetry(context.Background(), order)

	assert.False(t, result.Success)
	assert.Equal(t, 3, order.SubmissionAttempts)
	assert.Contains(t, result.Message, "broker call failed")
}

// TestRestartLosesSubmittedKeys documents the known crash window: the
// submitted set lives with the executor, so a new executor over the same
// broker account will resubmit a key the old one had already submitted.
func TestRestartLosesSubmittedKeys(t *testing.T) {
	b := stub.New(1_000_000)

	first := NewExecutor(b)
	require.True(t, first.Buy(context.Background(), "AAPL", 10, price(100), "key-1").Success)

	restarted := NewExecutor(b)
	result := restarted.Buy(context.Background(), "AAPL", 10, price(100), "key-1")
	assert.True(t, result.Success, "restart forgets submitted keys")
	assert.Equal(t, 2, b.PlaceOrderCalls)
}

func TestJournal_RecordsOrderLifecycle(t *testing.T) {
	b := stub.New(1_000_000)
	journal := memory.NewOrderStore()
	e := NewExecutor(b, WithJournal(journal))

	result := e.Buy(context.Background(), "AAPL", 10, price(100), "key-1")
	require.True(t, result.Success)

	o, err := journal.GetByIdempotencyKey(context.Background(), "key-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderFilled, o.Status)
	assert.Equal(t, result.BrokerOrderID, o.BrokerOrderID)
	assert.Equal(t, domain.SideBuy, o.Side)
	assert.Equal(t, int64(10), o.Quantity)
}

func TestJournal_SurvivesRestart(t *testing.T) {
	b := stub.New(1_000_000)
	journal := memory.NewOrderStore()

	first := NewExecutor(b, WithJournal(journal))
	require.True(t, first.Buy(context.Background(), "AAPL", 10, price(100), "key-1").Success)
	require.Equal(t, 1, b.PlaceOrderCalls)

	restarted := NewExecutor(b, WithJournal(journal))
	result := restarted.Buy(context.Background(), "AAPL", 10, price(100), "key-1")
	assert.True(t, result.Duplicate, "journaled fill must block resubmission")
	assert.Equal(t, 1, b.PlaceOrderCalls)
	assert.True(t, restarted.WasSubmitted("key-1"))
}

func TestJournal_RejectedAttemptPermitsRetryThenFills(t *testing.T) {
	b := stub.New(1_000_000)
	b.FailNextOrders = 1
	journal := memory.NewOrderStore()
	e := NewExecutor(b, WithJournal(journal))

	first := e.Buy(context.Background(), "AAPL", 10, price(100), "key-1")
	require.False(t, first.Success)

	o, err := journal.GetByIdempotencyKey(context.Background(), "key-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderRejected, o.Status)

	second := e.Buy(context.Background(), "AAPL", 10, price(100), "key-1")
	require.True(t, second.Success)

	o, err = journal.GetByIdempotencyKey(context.Background(), "key-1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderFilled, o.Status, "retry status lands on the original row")
	assert.Equal(t, second.BrokerOrderID, o.BrokerOrderID)
}
