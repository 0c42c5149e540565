package prompts

import (
	"fmt"
	"strings"

	"github.com/gtoxlili/echoStock/entity"
)

const promptTemplate = `A price trigger fired on **{symbol}** at {time}.

---

## PRICE ACTION

- current_price = {price}
- change since reference = {change_pct}%

## TECHNICAL SNAPSHOT (daily candles)

- RSI (14) = {rsi}
- MACD = {macd} | signal = {macd_signal}
- Bollinger bands: upper = {boll_upper} | middle = {boll_middle} | lower = {boll_lower}
- Volume change rate vs. average = {volume_change}%
- Volatility (stddev of daily returns) = {volatility}%

## MARKET CONTEXT

- Market temperature (benchmark change %) = {market_temperature}
- Sector relative strength = {sector_strength}
- Capital flow (signed turnover ratio) = {capital_flow}

## ACCOUNT & POSITION

- Shares held: {quantity}
- Average entry price: {avg_price}
- Unrealized P&L: {unrealized_pct}%
- Available cash: {cash}
- Fund limit: {fund_limit}
- Max notional for a single trade: {max_trade}
{last_buy_block}{hint_block}
## YOUR RECENT DECISIONS ON THIS SYMBOL (oldest → newest)

{history_block}

Based on the above data, provide your trading decision in the required JSON format.
`

func formatFloat(v float64) string {
	return fmt.Sprintf("%.4f", v)
}

func formatHistory(records []entity.DecisionRecord) string {
	if len(records) == 0 {
		return "- none"
	}
	var b strings.Builder
	for i, r := range records {
		b.WriteString(fmt.Sprintf("- %s | %s @ %.4f | %s", r.At.Format("2006-01-02 15:04:05"), r.Action, r.Price, r.Reason))
		if i < len(records)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// LastBuyHint 按当前价相对最近买入价的差距给出定性提示
func LastBuyHint(gapPct float64) string {
	switch {
	case gapPct > 10:
		return "price is far above the last buy, strongly consider taking profit"
	case gapPct > 5:
		return "price is well above the last buy, consider taking partial profit"
	case gapPct > 0:
		return "price is slightly above the last buy"
	case gapPct > -5:
		return "price is slightly below the last buy"
	case gapPct > -10:
		return "price is well below the last buy, watch the stop-loss"
	default:
		return "price is far below the last buy, the stop-loss has likely been breached"
	}
}

func formatLastBuy(lastBuy *entity.LastBuy, price float64) string {
	if lastBuy == nil || lastBuy.Price <= 0 {
		return "- Last buy: none\n"
	}
	gap := (price - lastBuy.Price) / lastBuy.Price * 100
	return fmt.Sprintf("- Last buy: %.4f at %s (gap %+.2f%%, %s)\n",
		lastBuy.Price, lastBuy.At.Format("2006-01-02 15:04"), gap, LastBuyHint(gap))
}

func BuildUserPrompt(req entity.DecisionRequest) string {
	fundLimit := "unlimited"
	if req.FundLimit > 0 {
		fundLimit = fmt.Sprintf("%.2f", req.FundLimit)
	}
	maxTrade := "unlimited"
	if req.MaxTradeNotional > 0 {
		maxTrade = fmt.Sprintf("%.2f", req.MaxTradeNotional)
	}
	hint := ""
	if req.Hint != "" {
		hint = "- Risk note: " + req.Hint + "\n"
	}

	r := strings.NewReplacer(
		"{symbol}", req.Symbol,
		"{time}", req.At.Format("2006-01-02 15:04:05"),
		"{price}", formatFloat(req.Price),
		"{change_pct}", fmt.Sprintf("%+.2f", req.ChangePct),
		"{rsi}", formatFloat(req.Indicators.RSI),
		"{macd}", formatFloat(req.Indicators.MACD),
		"{macd_signal}", formatFloat(req.Indicators.MACDSignal),
		"{boll_upper}", formatFloat(req.Indicators.BollingerUpper),
		"{boll_middle}", formatFloat(req.Indicators.BollingerMiddle),
		"{boll_lower}", formatFloat(req.Indicators.BollingerLower),
		"{volume_change}", fmt.Sprintf("%.2f", req.Indicators.VolumeChangeRate),
		"{volatility}", fmt.Sprintf("%.2f", req.Indicators.Volatility),
		"{market_temperature}", fmt.Sprintf("%.2f", req.Market.MarketTemperature),
		"{sector_strength}", fmt.Sprintf("%.2f", req.Market.SectorStrength),
		"{capital_flow}", fmt.Sprintf("%.3f", req.Market.CapitalFlow),
		"{quantity}", fmt.Sprintf("%d", req.Position.Quantity),
		"{avg_price}", formatFloat(req.Position.AvgPrice),
		"{unrealized_pct}", fmt.Sprintf("%+.2f", req.Position.UnrealizedPct),
		"{cash}", fmt.Sprintf("%.2f", req.CashAvailable),
		"{fund_limit}", fundLimit,
		"{max_trade}", maxTrade,
		"{last_buy_block}", formatLastBuy(req.LastBuy, req.Price),
		"{hint_block}", hint,
		"{history_block}", formatHistory(req.History),
	)
	return r.Replace(promptTemplate)
}
