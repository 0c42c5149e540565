package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

type SymbolProfit struct {
	Symbol     string          `json:"symbol"`
	Trades     int             `json:"trades"`
	Wins       int             `json:"wins"`
	Losses     int             `json:"losses"`
	Quantity   int64           `json:"quantity"`
	AvgPrice   decimal.Decimal `json:"avg_price"`
	Mark       decimal.Decimal `json:"mark"`
	Realized   decimal.Decimal `json:"realized"`
	Unrealized decimal.Decimal `json:"unrealized"`
}

// ProfitReport 每次按需从流水与当前持仓重新计算，不缓存
type ProfitReport struct {
	GeneratedAt time.Time           `json:"generated_at"`
	TotalTrades int                 `json:"total_trades"`
	Buys        int                 `json:"buys"`
	Sells       int                 `json:"sells"`
	Simulated   int                 `json:"simulated"`
	Wins        int                 `json:"wins"`
	Losses      int                 `json:"losses"`
	WinRate     float64             `json:"win_rate"`
	Realized    decimal.Decimal     `json:"realized"`
	Unrealized  decimal.Decimal     `json:"unrealized"`
	Total       decimal.Decimal     `json:"total"`
	LargestWin  decimal.Decimal     `json:"largest_win"`
	LargestLoss decimal.Decimal     `json:"largest_loss"`
	Cash        decimal.Decimal     `json:"cash"`
	Equity      decimal.Decimal     `json:"equity"`
	BySymbol    []SymbolProfit      `json:"by_symbol"`
	Recent      []TransactionRecord `json:"recent"`
}
