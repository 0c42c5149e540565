package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

func (s Side) Action() Action {
	if s == SideSell {
		return ActionSell
	}
	return ActionBuy
}

type OrderMode string

const (
	ModeReal      OrderMode = "real"
	ModeSimulated OrderMode = "simulated"
)

type OrderStatus string

const (
	StatusPending OrderStatus = "pending"
	StatusFilled  OrderStatus = "filled"
	StatusFailed  OrderStatus = "failed"
)

// Order 由 Executor 创建，状态确定后即为终态
type Order struct {
	ID        string          `json:"id"`
	Symbol    string          `json:"symbol"`
	Side      Side            `json:"side"`
	Quantity  int64           `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Mode      OrderMode       `json:"mode"`
	Status    OrderStatus     `json:"status"`
	Reason    string          `json:"reason,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func (o Order) Notional() decimal.Decimal {
	return o.Price.Mul(decimal.NewFromInt(o.Quantity))
}

func (o Order) Filled() bool {
	return o.Status == StatusFilled
}
