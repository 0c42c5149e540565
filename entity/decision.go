package entity

import (
	"fmt"
	"strings"
	"time"

	json "github.com/bytedance/sonic"
)

type Action string

const (
	ActionHold Action = "hold"
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
)

// ParseAction 接受 buy/sell/hold（大小写不敏感），其余一律视为无效
func ParseAction(s string) (Action, bool) {
	switch Action(strings.ToLower(strings.TrimSpace(s))) {
	case ActionBuy:
		return ActionBuy, true
	case ActionSell:
		return ActionSell, true
	case ActionHold:
		return ActionHold, true
	}
	return ActionHold, false
}

// Side 把可执行的动作映射成订单方向，hold 没有方向
func (a Action) Side() (Side, bool) {
	switch a {
	case ActionBuy:
		return SideBuy, true
	case ActionSell:
		return SideSell, true
	}
	return "", false
}

// Indicators 触发时刻的技术指标快照
type Indicators struct {
	RSI              float64 `json:"rsi"`
	MACD             float64 `json:"macd"`
	MACDSignal       float64 `json:"macd_signal"`
	BollingerUpper   float64 `json:"bollinger_upper"`
	BollingerMiddle  float64 `json:"bollinger_middle"`
	BollingerLower   float64 `json:"bollinger_lower"`
	VolumeChangeRate float64 `json:"volume_change_rate"`
	Volatility       float64 `json:"volatility"`
}

// MarketContext 市场层面的因子
type MarketContext struct {
	MarketTemperature float64 `json:"market_temperature"`
	SectorStrength    float64 `json:"sector_strength"`
	CapitalFlow       float64 `json:"capital_flow"`
}

// PositionView 是提示词里展示的持仓视图，金额已转换为 float64
type PositionView struct {
	Quantity      int64   `json:"quantity"`
	AvgPrice      float64 `json:"avg_price"`
	UnrealizedPct float64 `json:"unrealized_pct"`
}

type LastBuy struct {
	Price float64   `json:"price"`
	At    time.Time `json:"at"`
}

// DecisionRequest 每次触发时新建，不落盘
type DecisionRequest struct {
	Symbol           string           `json:"symbol"`
	Price            float64          `json:"price"`
	ChangePct        float64          `json:"change_pct"`
	Indicators       Indicators       `json:"indicators"`
	Market           MarketContext    `json:"market"`
	Position         PositionView     `json:"position"`
	CashAvailable    float64          `json:"cash_available"`
	FundLimit        float64          `json:"fund_limit"`
	MaxTradeNotional float64          `json:"max_trade_notional"`
	LastBuy          *LastBuy         `json:"last_buy,omitempty"`
	History          []DecisionRecord `json:"history,omitempty"`
	Hint             string           `json:"hint,omitempty"`
	At               time.Time        `json:"at"`
}

// DecisionResult 外部决策服务的结论。Malformed 表示原始回复无法解析，Action 已回落为 hold
type DecisionResult struct {
	Action     Action  `json:"action"`
	Reason     string  `json:"reason"`
	Quantity   int64   `json:"quantity"`
	Confidence float64 `json:"confidence"`
	Malformed  bool    `json:"malformed"`
	Raw        string  `json:"-"`
}

// DecisionRecord 单条历史决策，用于提示词中的连续性参考
type DecisionRecord struct {
	At     time.Time `json:"at"`
	Action Action    `json:"action"`
	Reason string    `json:"reason"`
	Price  float64   `json:"price"`
}

// DecisionMemoryEntry 每个 symbol 只保留一条，每轮决策完成后覆盖
type DecisionMemoryEntry struct {
	Symbol string    `json:"symbol"`
	At     time.Time `json:"at"`
	Action Action    `json:"action"`
}

// MemoryState 是决策记忆的可持久化形式
type MemoryState struct {
	Latest  map[string]DecisionMemoryEntry `json:"latest"`
	History map[string][]DecisionRecord    `json:"history"`
}

// RiskAssessment 由决策结果和当前账本状态推导，不落盘
type RiskAssessment struct {
	Approved bool   `json:"approved"`
	Quantity int64  `json:"quantity"`
	Reason   string `json:"reason,omitempty"`
	StopLoss bool   `json:"stop_loss"`
	Hint     string `json:"hint,omitempty"`
}

func (r DecisionResult) String() string {
	display, _ := json.MarshalString(r)
	return fmt.Sprintf("DecisionResult%s", display)
}
