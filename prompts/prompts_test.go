package prompts

import (
	"strings"
	"testing"
	"time"

	"github.com/gtoxlili/echoStock/entity"
	"github.com/stretchr/testify/assert"
)

func TestBuildSystemPrompt(t *testing.T) {
	p := BuildSystemPrompt(0.1, 2, 3.5)
	assert.Contains(t, p, "must not exceed 10% of the fund limit")
	assert.Contains(t, p, "beyond 2% of the entry price")
	assert.Contains(t, p, "reaches 3.5%")
	assert.NotContains(t, p, "{per_trade_pct}")
}

func TestBuildUserPrompt(t *testing.T) {
	at := time.Date(2025, 3, 4, 10, 30, 0, 0, time.UTC)
	req := entity.DecisionRequest{
		Symbol:    "TEST.US",
		Price:     110,
		ChangePct: 3.2,
		Indicators: entity.Indicators{
			RSI: 62.5,
		},
		Position:      entity.PositionView{Quantity: 10, AvgPrice: 100, UnrealizedPct: 10},
		CashAvailable: 5000,
		LastBuy:       &entity.LastBuy{Price: 100, At: at.Add(-48 * time.Hour)},
		History: []entity.DecisionRecord{
			{At: at.Add(-time.Hour), Action: entity.ActionBuy, Reason: "breakout", Price: 100},
		},
		Hint: "unrealized gain 10.00% reached take-profit 3.00%",
		At:   at,
	}

	p := BuildUserPrompt(req)
	assert.Contains(t, p, "**TEST.US** at 2025-03-04 10:30:00")
	assert.Contains(t, p, "change since reference = +3.20%")
	assert.Contains(t, p, "RSI (14) = 62.5000")
	assert.Contains(t, p, "Fund limit: unlimited")
	assert.Contains(t, p, "gap +10.00%")
	assert.Contains(t, p, "well above the last buy")
	assert.Contains(t, p, "Risk note: unrealized gain")
	assert.Contains(t, p, "buy @ 100.0000 | breakout")
	assert.False(t, strings.Contains(p, "{"), "all placeholders replaced")
}

func TestBuildUserPrompt_NoHistory(t *testing.T) {
	p := BuildUserPrompt(entity.DecisionRequest{Symbol: "X.US", Price: 1, FundLimit: 2000})
	assert.Contains(t, p, "Last buy: none")
	assert.Contains(t, p, "Fund limit: 2000.00")
	assert.Contains(t, p, "- none")
}

func TestLastBuyHint(t *testing.T) {
	assert.Contains(t, LastBuyHint(12), "far above")
	assert.Contains(t, LastBuyHint(7), "well above")
	assert.Contains(t, LastBuyHint(1), "slightly above")
	assert.Contains(t, LastBuyHint(-3), "slightly below")
	assert.Contains(t, LastBuyHint(-7), "well below")
	assert.Contains(t, LastBuyHint(-20), "far below")
}
