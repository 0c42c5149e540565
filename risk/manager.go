package risk

import (
	"fmt"

	"github.com/gtoxlili/echoStock/entity"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Limits 风控参数。百分比字段均以百分数表示（2 表示 2%）
type Limits struct {
	PerTradeFraction float64
	MaxPosition      decimal.Decimal
	StopLossPct      float64
	TakeProfitPct    float64
	AllowShort       bool
}

type Manager struct {
	limits Limits
}

func NewManager(limits Limits) *Manager {
	return &Manager{limits: limits}
}

func (m *Manager) Limits() Limits {
	return m.limits
}

// Assess 根据决策结果与账本当前状态计算可执行数量。hold 永远不会被批准
func (m *Manager) Assess(
	result entity.DecisionResult,
	price decimal.Decimal,
	pos entity.Position,
	cash entity.CashAccount,
	fundLimit decimal.Decimal,
) entity.RiskAssessment {
	if !price.IsPositive() {
		return reject(fmt.Sprintf("invalid price %s", price))
	}

	hint := m.Hint(pos, price)
	var assessment entity.RiskAssessment
	switch result.Action {
	case entity.ActionBuy:
		assessment = m.assessBuy(result, price, pos, cash, fundLimit)
	case entity.ActionSell:
		assessment = m.assessSell(result, price, pos, fundLimit)
	default:
		assessment = reject("hold is not executable")
	}
	assessment.Hint = hint
	return assessment
}

func (m *Manager) assessBuy(
	result entity.DecisionResult,
	price decimal.Decimal,
	pos entity.Position,
	cash entity.CashAccount,
	fundLimit decimal.Decimal,
) entity.RiskAssessment {
	if !cash.Available.IsPositive() {
		return reject("insufficient cash")
	}
	caps := []decimal.Decimal{cash.Available}

	if budget, ok := m.TradeBudget(fundLimit); ok {
		caps = append(caps, budget)
	}
	if fundLimit.IsPositive() {
		headroom := fundLimit.Sub(cash.Reserved)
		if !headroom.IsPositive() {
			return reject(fmt.Sprintf("fund limit %s exhausted (reserved %s)", fundLimit, cash.Reserved.StringFixed(2)))
		}
		caps = append(caps, headroom)
	}
	if m.limits.MaxPosition.IsPositive() {
		headroom := m.limits.MaxPosition.Sub(pos.Notional(price))
		if !headroom.IsPositive() {
			return reject(fmt.Sprintf("position notional already at max_position %s", m.limits.MaxPosition))
		}
		caps = append(caps, headroom)
	}

	quantity := decimal.Min(caps[0], caps[1:]...).Div(price).Floor().IntPart()
	if result.Quantity > 0 {
		quantity = lo.Min([]int64{quantity, result.Quantity})
	}
	if quantity <= 0 {
		return reject(fmt.Sprintf("approved notional buys zero shares at %s", price))
	}
	return entity.RiskAssessment{Approved: true, Quantity: quantity}
}

func (m *Manager) assessSell(
	result entity.DecisionResult,
	price decimal.Decimal,
	pos entity.Position,
	fundLimit decimal.Decimal,
) entity.RiskAssessment {
	if m.stopLossHit(pos, price) {
		return entity.RiskAssessment{
			Approved: true,
			Quantity: pos.Quantity,
			StopLoss: true,
			Reason:   fmt.Sprintf("stop-loss: price %s below %.2f%% of entry %s", price, 100-m.limits.StopLossPct, pos.AvgPrice.StringFixed(2)),
		}
	}

	if !m.limits.AllowShort && pos.Quantity <= 0 {
		return reject("no position to sell and short selling is disabled")
	}

	var quantities []int64
	if budget, ok := m.TradeBudget(fundLimit); ok {
		quantities = append(quantities, budget.Div(price).Floor().IntPart())
	}
	if !m.limits.AllowShort {
		quantities = append(quantities, pos.Quantity)
	}
	if result.Quantity > 0 {
		quantities = append(quantities, result.Quantity)
	}
	if len(quantities) == 0 {
		return reject("short sell needs a sizing budget")
	}

	quantity := lo.Min(quantities)
	if quantity <= 0 {
		return reject(fmt.Sprintf("approved notional sells zero shares at %s", price))
	}
	return entity.RiskAssessment{Approved: true, Quantity: quantity}
}

// TradeBudget 单笔交易的名义金额上限：有资金限额时取其固定比例，否则退化为 max_position
func (m *Manager) TradeBudget(fundLimit decimal.Decimal) (decimal.Decimal, bool) {
	if fundLimit.IsPositive() && m.limits.PerTradeFraction > 0 {
		return fundLimit.Mul(decimal.NewFromFloat(m.limits.PerTradeFraction)), true
	}
	if m.limits.MaxPosition.IsPositive() {
		return m.limits.MaxPosition, true
	}
	return decimal.Zero, false
}

func (m *Manager) stopLossHit(pos entity.Position, price decimal.Decimal) bool {
	if pos.Quantity <= 0 || !pos.AvgPrice.IsPositive() || m.limits.StopLossPct <= 0 {
		return false
	}
	floor := pos.AvgPrice.Mul(decimal.NewFromFloat(1 - m.limits.StopLossPct/100))
	return price.LessThan(floor)
}

// Hint 给决策服务的止盈止损提示，不影响审批结果
func (m *Manager) Hint(pos entity.Position, price decimal.Decimal) string {
	if pos.Quantity <= 0 || !pos.AvgPrice.IsPositive() {
		return ""
	}
	pct := pos.UnrealizedPct(price)
	switch {
	case m.limits.TakeProfitPct > 0 && pct >= m.limits.TakeProfitPct:
		return fmt.Sprintf("unrealized gain %.2f%% reached take-profit level %.2f%%", pct, m.limits.TakeProfitPct)
	case m.stopLossHit(pos, price):
		return fmt.Sprintf("unrealized loss %.2f%% breached stop-loss level %.2f%%, a sell will exit the whole position", -pct, m.limits.StopLossPct)
	}
	return ""
}

func reject(reason string) entity.RiskAssessment {
	return entity.RiskAssessment{Approved: false, Reason: reason}
}
