package risk

import (
	"testing"

	"github.com/gtoxlili/echoStock/entity"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func defaultLimits() Limits {
	return Limits{
		PerTradeFraction: 0.10,
		MaxPosition:      d("10000"),
		StopLossPct:      2,
		TakeProfitPct:    3,
	}
}

func TestAssess_BuyCappedByAvailableCash(t *testing.T) {
	m := NewManager(defaultLimits())
	res := m.Assess(
		entity.DecisionResult{Action: entity.ActionBuy, Quantity: 20},
		d("100"),
		entity.Position{Symbol: "TEST.US"},
		entity.CashAccount{Available: d("1000")},
		decimal.Zero,
	)
	assert.True(t, res.Approved)
	assert.Equal(t, int64(10), res.Quantity)
}

func TestAssess_BuyPerTradeFraction(t *testing.T) {
	m := NewManager(defaultLimits())
	res := m.Assess(
		entity.DecisionResult{Action: entity.ActionBuy},
		d("33"),
		entity.Position{Symbol: "TEST.US"},
		entity.CashAccount{Available: d("50000")},
		d("20000"),
	)
	// 20000 * 10% = 2000 -> floor(2000/33) = 60
	assert.True(t, res.Approved)
	assert.Equal(t, int64(60), res.Quantity)
}

func TestAssess_BuyRejectedWhenCashTooSmall(t *testing.T) {
	m := NewManager(defaultLimits())
	res := m.Assess(
		entity.DecisionResult{Action: entity.ActionBuy},
		d("100"),
		entity.Position{Symbol: "TEST.US"},
		entity.CashAccount{Available: d("99.99")},
		decimal.Zero,
	)
	assert.False(t, res.Approved)
	assert.Zero(t, res.Quantity)
	assert.Contains(t, res.Reason, "zero shares")

	res = m.Assess(entity.DecisionResult{Action: entity.ActionBuy}, d("1"), entity.Position{}, entity.CashAccount{}, decimal.Zero)
	assert.False(t, res.Approved)
	assert.Equal(t, "insufficient cash", res.Reason)
}

func TestAssess_BuyRejectedAtMaxPosition(t *testing.T) {
	m := NewManager(defaultLimits())
	res := m.Assess(
		entity.DecisionResult{Action: entity.ActionBuy},
		d("100"),
		entity.Position{Symbol: "TEST.US", Quantity: 100, AvgPrice: d("90")},
		entity.CashAccount{Available: d("50000"), Reserved: d("9000")},
		decimal.Zero,
	)
	assert.False(t, res.Approved)
	assert.Contains(t, res.Reason, "max_position")
}

func TestAssess_BuyCappedByMaxPositionHeadroom(t *testing.T) {
	m := NewManager(defaultLimits())
	res := m.Assess(
		entity.DecisionResult{Action: entity.ActionBuy},
		d("100"),
		entity.Position{Symbol: "TEST.US", Quantity: 95, AvgPrice: d("100")},
		entity.CashAccount{Available: d("50000"), Reserved: d("9500")},
		decimal.Zero,
	)
	assert.True(t, res.Approved)
	assert.Equal(t, int64(5), res.Quantity)
}

func TestAssess_BuyFundLimitExhausted(t *testing.T) {
	m := NewManager(defaultLimits())
	res := m.Assess(
		entity.DecisionResult{Action: entity.ActionBuy},
		d("10"),
		entity.Position{Symbol: "TEST.US"},
		entity.CashAccount{Available: d("50000"), Reserved: d("5000")},
		d("5000"),
	)
	assert.False(t, res.Approved)
	assert.Contains(t, res.Reason, "fund limit")
}

func TestAssess_SellWithoutPositionRejected(t *testing.T) {
	m := NewManager(defaultLimits())
	res := m.Assess(
		entity.DecisionResult{Action: entity.ActionSell},
		d("100"),
		entity.Position{Symbol: "TEST.US"},
		entity.CashAccount{Available: d("1000")},
		decimal.Zero,
	)
	assert.False(t, res.Approved)
	assert.Contains(t, res.Reason, "short selling is disabled")
}

func TestAssess_SellNeverExceedsHolding(t *testing.T) {
	m := NewManager(defaultLimits())
	res := m.Assess(
		entity.DecisionResult{Action: entity.ActionSell, Quantity: 500},
		d("100"),
		entity.Position{Symbol: "TEST.US", Quantity: 30, AvgPrice: d("99")},
		entity.CashAccount{Available: d("1000")},
		decimal.Zero,
	)
	assert.True(t, res.Approved)
	assert.False(t, res.StopLoss)
	assert.Equal(t, int64(30), res.Quantity)
}

func TestAssess_StopLossEscalatesSellToFullExit(t *testing.T) {
	m := NewManager(defaultLimits())
	// 单笔预算 20000*10% = 2000，正常只能卖 20 股；止损直接清仓
	res := m.Assess(
		entity.DecisionResult{Action: entity.ActionSell, Quantity: 1},
		d("97"),
		entity.Position{Symbol: "TEST.US", Quantity: 300, AvgPrice: d("100")},
		entity.CashAccount{Available: d("1000"), Reserved: d("30000")},
		d("20000"),
	)
	assert.True(t, res.Approved)
	assert.True(t, res.StopLoss)
	assert.Equal(t, int64(300), res.Quantity)
	assert.NotEmpty(t, res.Hint)
}

func TestAssess_StopLossDoesNotOverrideHold(t *testing.T) {
	m := NewManager(defaultLimits())
	res := m.Assess(
		entity.DecisionResult{Action: entity.ActionHold},
		d("90"),
		entity.Position{Symbol: "TEST.US", Quantity: 10, AvgPrice: d("100")},
		entity.CashAccount{Available: d("1000")},
		decimal.Zero,
	)
	assert.False(t, res.Approved)
	assert.False(t, res.StopLoss)
}

func TestAssess_SmallLossIsNotStopLoss(t *testing.T) {
	m := NewManager(defaultLimits())
	res := m.Assess(
		entity.DecisionResult{Action: entity.ActionSell, Quantity: 5},
		d("98.5"),
		entity.Position{Symbol: "TEST.US", Quantity: 10, AvgPrice: d("100")},
		entity.CashAccount{Available: d("1000")},
		decimal.Zero,
	)
	assert.True(t, res.Approved)
	assert.False(t, res.StopLoss)
	assert.Equal(t, int64(5), res.Quantity)
}

func TestAssess_ShortSellingSizedByBudget(t *testing.T) {
	limits := defaultLimits()
	limits.AllowShort = true
	m := NewManager(limits)
	res := m.Assess(
		entity.DecisionResult{Action: entity.ActionSell},
		d("50"),
		entity.Position{Symbol: "TEST.US"},
		entity.CashAccount{Available: d("1000")},
		d("10000"),
	)
	assert.True(t, res.Approved)
	assert.Equal(t, int64(20), res.Quantity)
}

func TestHint_TakeProfitIsInformational(t *testing.T) {
	m := NewManager(defaultLimits())
	pos := entity.Position{Symbol: "TEST.US", Quantity: 10, AvgPrice: d("100")}

	assert.Contains(t, m.Hint(pos, d("103.5")), "take-profit")
	assert.Empty(t, m.Hint(pos, d("101")))
	assert.Empty(t, m.Hint(entity.Position{}, d("101")))

	res := m.Assess(entity.DecisionResult{Action: entity.ActionBuy}, d("104"), pos, entity.CashAccount{Available: d("5000"), Reserved: d("1000")}, decimal.Zero)
	assert.True(t, res.Approved, "take-profit never blocks a recommendation")
	assert.Contains(t, res.Hint, "take-profit")
}

func TestAssess_InvalidPrice(t *testing.T) {
	m := NewManager(defaultLimits())
	res := m.Assess(entity.DecisionResult{Action: entity.ActionBuy}, decimal.Zero, entity.Position{}, entity.CashAccount{Available: d("1")}, decimal.Zero)
	assert.False(t, res.Approved)
}
