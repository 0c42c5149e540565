package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position 只由 Ledger 在订单成交后修改。Quantity 为负表示空头（需显式开启）
type Position struct {
	Symbol   string          `json:"symbol"`
	Quantity int64           `json:"quantity"`
	AvgPrice decimal.Decimal `json:"avg_price"`
}

// Unrealized 按 mark 计算的浮动盈亏，空头同样适用
func (p Position) Unrealized(mark decimal.Decimal) decimal.Decimal {
	if p.Quantity == 0 {
		return decimal.Zero
	}
	return mark.Sub(p.AvgPrice).Mul(decimal.NewFromInt(p.Quantity))
}

// UnrealizedPct 相对开仓均价的浮动盈亏百分比，方向已考虑
func (p Position) UnrealizedPct(mark decimal.Decimal) float64 {
	if p.Quantity == 0 || !p.AvgPrice.IsPositive() {
		return 0
	}
	pct := mark.Sub(p.AvgPrice).Div(p.AvgPrice).InexactFloat64() * 100
	if p.Quantity < 0 {
		return -pct
	}
	return pct
}

// Notional 多头部分按 mark 计价的市值
func (p Position) Notional(mark decimal.Decimal) decimal.Decimal {
	if p.Quantity <= 0 {
		return decimal.Zero
	}
	return mark.Mul(decimal.NewFromInt(p.Quantity))
}

// CashAccount Available 任何时刻都不能为负。Reserved 为多头持仓占用的成本，用于资金限额核算
type CashAccount struct {
	Available decimal.Decimal `json:"available"`
	Reserved  decimal.Decimal `json:"reserved"`
}

// TransactionRecord 成交流水，只追加不修改
type TransactionRecord struct {
	ID            string          `json:"id"`
	OrderID       string          `json:"order_id"`
	Symbol        string          `json:"symbol"`
	Side          Side            `json:"side"`
	Quantity      int64           `json:"quantity"`
	Price         decimal.Decimal `json:"price"`
	Mode          OrderMode       `json:"mode"`
	RealizedPnL   decimal.Decimal `json:"realized_pnl"`
	CashAfter     decimal.Decimal `json:"cash_after"`
	PositionAfter int64           `json:"position_after"`
	At            time.Time       `json:"at"`
}

// DailyLog 账户日志，每个交易日一行
type DailyLog struct {
	Date           string          `json:"date"`
	UpdatedAt      time.Time       `json:"updated_at"`
	NetAssets      decimal.Decimal `json:"net_assets"`
	PrevNetAssets  decimal.Decimal `json:"prev_net_assets"`
	DailyProfit    decimal.Decimal `json:"daily_profit"`
	DailyReturnPct float64         `json:"daily_return_pct"`
	Cash           decimal.Decimal `json:"cash"`
	Reserved       decimal.Decimal `json:"reserved"`
	Realized       decimal.Decimal `json:"realized"`
}
