package trade

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gtoxlili/echoStock/entity"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Applier 账本写入接口，由 ledger.Ledger 实现
type Applier interface {
	Apply(order entity.Order) (entity.TransactionRecord, error)
}

type Executor struct {
	broker   Broker
	ledger   Applier
	fallback bool
	now      func() time.Time
}

func NewExecutor(broker Broker, ledger Applier, fallbackToSimulated bool) *Executor {
	return &Executor{
		broker:   broker,
		ledger:   ledger,
		fallback: fallbackToSimulated,
		now:      time.Now,
	}
}

func (te *Executor) WithClock(now func() time.Time) *Executor {
	te.now = now
	return te
}

// Execute 向券商提交一次订单，失败时按配置回落为模拟成交。成交的订单恰好写入账本一次，失败的订单不会写入
func (te *Executor) Execute(ctx context.Context, symbol string, side entity.Side, quantity int64, price decimal.Decimal) (entity.Order, entity.TransactionRecord, error) {
	req := OrderRequest{Symbol: symbol, Side: side, Quantity: quantity, Price: price}
	res := te.broker.SubmitOrder(ctx, req)

	order := Resolve(req, res, te.fallback, te.now(), "sim-"+uuid.NewString())
	entry := logrus.WithFields(logrus.Fields{
		"symbol":   symbol,
		"side":     side,
		"quantity": quantity,
		"price":    order.Price.String(),
		"order_id": order.ID,
		"mode":     order.Mode,
	})

	if !order.Filled() {
		entry.WithError(res.Err).Warn("Order failed and simulated fallback is disabled")
		return order, entity.TransactionRecord{}, fmt.Errorf("%s %s %d: %w: %s", side, symbol, quantity, ErrOrderFailed, order.Reason)
	}
	if order.Mode == entity.ModeSimulated {
		entry.WithError(res.Err).Warnf("Broker %s, filled as simulated order", res.Kind)
	} else {
		entry.Info("Order filled")
	}

	record, err := te.ledger.Apply(order)
	if err != nil {
		return order, entity.TransactionRecord{}, fmt.Errorf("apply order %s: %w", order.ID, err)
	}
	return order, record, nil
}

// Resolve 把券商结果映射为最终订单，不产生任何副作用
func Resolve(req OrderRequest, res BrokerResult, fallback bool, at time.Time, simulatedID string) entity.Order {
	order := entity.Order{
		Symbol:    req.Symbol,
		Side:      req.Side,
		Quantity:  req.Quantity,
		Price:     req.Price,
		Mode:      entity.ModeReal,
		CreatedAt: at,
	}

	if res.Kind == Filled {
		order.ID = res.OrderID
		order.Status = entity.StatusFilled
		if res.FillPrice.IsPositive() {
			order.Price = res.FillPrice
		}
		return order
	}

	reason := res.Kind.String()
	if res.Err != nil {
		reason = fmt.Sprintf("%s: %v", res.Kind, res.Err)
	}
	order.Reason = reason

	if !fallback {
		order.ID = res.OrderID
		order.Status = entity.StatusFailed
		return order
	}
	order.ID = simulatedID
	order.Mode = entity.ModeSimulated
	order.Status = entity.StatusFilled
	return order
}
