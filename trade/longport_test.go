package trade

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gtoxlili/echoStock/entity"
	lptrade "github.com/longportapp/openapi-go/trade"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubmitter struct {
	err   error
	calls int
	last  *lptrade.SubmitOrder
}

func (f *fakeSubmitter) SubmitOrder(_ context.Context, params *lptrade.SubmitOrder) (string, error) {
	f.calls++
	f.last = params
	if f.err != nil {
		return "", f.err
	}
	return "701", nil
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func marketOrder(side entity.Side) OrderRequest {
	return OrderRequest{Symbol: "700.HK", Side: side, Quantity: 100, Price: decimal.NewFromInt(300)}
}

func TestLongportBroker_SubmitsMarketOrder(t *testing.T) {
	sub := &fakeSubmitter{}
	b := newLongportBroker(sub, time.Second)

	res := b.SubmitOrder(context.Background(), marketOrder(entity.SideSell))
	require.Equal(t, Filled, res.Kind)
	assert.Equal(t, "701", res.OrderID)
	assert.True(t, res.FillPrice.IsZero())

	require.NotNil(t, sub.last)
	assert.Equal(t, "700.HK", sub.last.Symbol)
	assert.Equal(t, lptrade.OrderSideSell, sub.last.Side)
	assert.Equal(t, lptrade.OrderTypeMO, sub.last.OrderType)
	assert.Equal(t, uint64(100), sub.last.SubmittedQuantity)
}

func TestLongportBroker_ClassifiesErrors(t *testing.T) {
	rejected := newLongportBroker(&fakeSubmitter{err: errors.New("insufficient buying power")}, time.Second)
	res := rejected.SubmitOrder(context.Background(), marketOrder(entity.SideBuy))
	assert.Equal(t, Rejected, res.Kind)

	network := newLongportBroker(&fakeSubmitter{err: timeoutErr{}}, time.Second)
	res = network.SubmitOrder(context.Background(), marketOrder(entity.SideBuy))
	assert.Equal(t, TransportError, res.Kind)
}

func TestLongportBroker_BreakerOpensOnTransportFailures(t *testing.T) {
	sub := &fakeSubmitter{err: timeoutErr{}}
	b := newLongportBroker(sub, time.Second)

	for i := 0; i < 3; i++ {
		assert.Equal(t, TransportError, b.SubmitOrder(context.Background(), marketOrder(entity.SideBuy)).Kind)
	}
	res := b.SubmitOrder(context.Background(), marketOrder(entity.SideBuy))
	assert.Equal(t, TransportError, res.Kind)
	assert.Equal(t, 3, sub.calls, "open breaker fails fast without calling the broker")
}

func TestLongportBroker_RejectionsDoNotTripBreaker(t *testing.T) {
	sub := &fakeSubmitter{err: errors.New("market closed")}
	b := newLongportBroker(sub, time.Second)

	for i := 0; i < 5; i++ {
		assert.Equal(t, Rejected, b.SubmitOrder(context.Background(), marketOrder(entity.SideBuy)).Kind)
	}
	assert.Equal(t, 5, sub.calls)
}
