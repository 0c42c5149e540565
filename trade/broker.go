package trade

import (
	"context"
	"errors"
	"fmt"

	"github.com/gtoxlili/echoStock/entity"
	"github.com/shopspring/decimal"
)

var (
	ErrOrderFailed    = errors.New("order failed")
	ErrBrokerDisabled = errors.New("broker disabled")
)

// ResultKind 券商下单的三种结局
type ResultKind int

const (
	Filled ResultKind = iota
	Rejected
	TransportError
)

func (k ResultKind) String() string {
	switch k {
	case Filled:
		return "filled"
	case Rejected:
		return "rejected"
	case TransportError:
		return "transport_error"
	}
	return fmt.Sprintf("ResultKind(%d)", int(k))
}

// BrokerResult 下单结果。FillPrice 为零表示券商未返回成交价
type BrokerResult struct {
	Kind      ResultKind
	OrderID   string
	FillPrice decimal.Decimal
	Err       error
}

func FilledResult(orderID string, fillPrice decimal.Decimal) BrokerResult {
	return BrokerResult{Kind: Filled, OrderID: orderID, FillPrice: fillPrice}
}

func RejectedResult(err error) BrokerResult {
	return BrokerResult{Kind: Rejected, Err: err}
}

func TransportResult(err error) BrokerResult {
	return BrokerResult{Kind: TransportError, Err: err}
}

// OrderRequest 已通过风控的下单请求，Price 为最近一次行情价
type OrderRequest struct {
	Symbol   string
	Side     entity.Side
	Quantity int64
	Price    decimal.Decimal
}

// Broker 券商下单接口。实现只尝试一次，不做内部重试
type Broker interface {
	SubmitOrder(ctx context.Context, req OrderRequest) BrokerResult
}

// PaperBroker 不接真实券商，每一笔都以传输失败返回，由 Executor 走模拟成交
type PaperBroker struct{}

func (PaperBroker) SubmitOrder(context.Context, OrderRequest) BrokerResult {
	return TransportResult(ErrBrokerDisabled)
}
