package report

import (
	"sort"

	"github.com/gtoxlili/echoStock/entity"
	"github.com/gtoxlili/echoStock/ledger"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// RecentLimit 报告中展示的最近成交条数
const RecentLimit = 10

// Generate 是账本快照上的纯函数，任何时候调用都不会修改状态
func Generate(snap ledger.Snapshot) entity.ProfitReport {
	r := entity.ProfitReport{
		GeneratedAt: snap.At,
		TotalTrades: len(snap.History),
		Realized:    snap.Realized,
		Unrealized:  snap.Unrealized(),
		LargestWin:  decimal.Zero,
		LargestLoss: decimal.Zero,
		Cash:        snap.Cash.Available,
		Equity:      snap.Equity(),
	}
	r.Total = r.Realized.Add(r.Unrealized)

	bySymbol := map[string]*entity.SymbolProfit{}
	get := func(symbol string) *entity.SymbolProfit {
		sp, ok := bySymbol[symbol]
		if !ok {
			sp = &entity.SymbolProfit{Symbol: symbol}
			bySymbol[symbol] = sp
		}
		return sp
	}

	for _, rec := range snap.History {
		sp := get(rec.Symbol)
		sp.Trades++
		sp.Realized = sp.Realized.Add(rec.RealizedPnL)

		switch rec.Side {
		case entity.SideBuy:
			r.Buys++
		case entity.SideSell:
			r.Sells++
		}
		if rec.Mode == entity.ModeSimulated {
			r.Simulated++
		}

		// 平仓产生已实现盈亏的成交才计入胜负
		switch {
		case rec.RealizedPnL.IsPositive():
			r.Wins++
			sp.Wins++
			if rec.RealizedPnL.GreaterThan(r.LargestWin) {
				r.LargestWin = rec.RealizedPnL
			}
		case rec.RealizedPnL.IsNegative():
			r.Losses++
			sp.Losses++
			if rec.RealizedPnL.LessThan(r.LargestLoss) {
				r.LargestLoss = rec.RealizedPnL
			}
		}
	}

	for _, p := range snap.Positions {
		sp := get(p.Symbol)
		mark := snap.Mark(p.Symbol, p.AvgPrice)
		sp.Quantity = p.Quantity
		sp.AvgPrice = p.AvgPrice
		sp.Mark = mark
		sp.Unrealized = p.Unrealized(mark)
	}

	if closed := r.Wins + r.Losses; closed > 0 {
		r.WinRate = float64(r.Wins) / float64(closed) * 100
	}

	r.BySymbol = lo.Map(lo.Values(bySymbol), func(sp *entity.SymbolProfit, _ int) entity.SymbolProfit { return *sp })
	sort.Slice(r.BySymbol, func(i, j int) bool { return r.BySymbol[i].Symbol < r.BySymbol[j].Symbol })

	r.Recent = append([]entity.TransactionRecord(nil), lo.Subset(snap.History, -RecentLimit, RecentLimit)...)
	return r
}
