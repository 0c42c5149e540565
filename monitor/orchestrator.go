package monitor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gtoxlili/echoStock/entity"
	"github.com/gtoxlili/echoStock/ledger"
	"github.com/gtoxlili/echoStock/risk"
	"github.com/gtoxlili/echoStock/trigger"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// promptHistory 提示词中展示的历史决策条数
const promptHistory = 5

type OutcomeKind int

const (
	OutcomeSkipped OutcomeKind = iota
	OutcomeNoAction
	OutcomeRejected
	OutcomeExecuted
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSkipped:
		return "skipped"
	case OutcomeNoAction:
		return "no_action"
	case OutcomeRejected:
		return "rejected"
	case OutcomeExecuted:
		return "executed"
	}
	return fmt.Sprintf("OutcomeKind(%d)", int(k))
}

// 跳过原因
const (
	SkipCooldown            = "cooldown"
	SkipSnapshotUnavailable = "snapshot_unavailable"
	SkipDecisionUnavailable = "decision_unavailable"
)

// Outcome 一次触发的处理结果。Skipped/Rejected 不是错误
type Outcome struct {
	Kind       OutcomeKind
	Symbol     string
	Reason     string
	Decision   entity.DecisionResult
	Assessment entity.RiskAssessment
	Order      entity.Order
	Record     entity.TransactionRecord
	// Repeated 冷却结束后与上一次决策动作相同
	Repeated bool
}

type Stage string

const (
	StageExecute Stage = "execute"
	StageLedger  Stage = "ledger"
)

// OrchestrationError 本轮无法完成的硬错误：券商失败且未开启模拟回落，或账本不变量被破坏
type OrchestrationError struct {
	Symbol string
	Stage  Stage
	Err    error
}

func (e *OrchestrationError) Error() string {
	return fmt.Sprintf("%s: %s stage: %v", e.Symbol, e.Stage, e.Err)
}

func (e *OrchestrationError) Unwrap() error {
	return e.Err
}

// DecisionProvider 外部决策服务，llm.Agent 为真实实现
type DecisionProvider interface {
	Evaluate(ctx context.Context, req entity.DecisionRequest) (entity.DecisionResult, error)
}

// SnapshotSource 技术指标与市场因子来源，collector.Provider 满足该接口
type SnapshotSource interface {
	Snapshot(ctx context.Context, symbol string) (entity.Indicators, entity.MarketContext, error)
}

type OrderExecutor interface {
	Execute(ctx context.Context, symbol string, side entity.Side, quantity int64, price decimal.Decimal) (entity.Order, entity.TransactionRecord, error)
}

type Orchestrator struct {
	memory    *trigger.Memory
	snapshots SnapshotSource
	decider   DecisionProvider
	risk      *risk.Manager
	executor  OrderExecutor
	ledger    *ledger.Ledger
	fundLimit decimal.Decimal
	metrics   *Metrics
	now       func() time.Time

	// symbolLocks 串行化同一标的的 读记忆-决策-写记忆
	symbolLocks sync.Map
	// tradeMu 风控审批与下单入账作为一个临界区，避免并发审批重复花费同一笔现金
	tradeMu sync.Mutex
}

type OrchestratorDeps struct {
	Memory    *trigger.Memory
	Snapshots SnapshotSource
	Decider   DecisionProvider
	Risk      *risk.Manager
	Executor  OrderExecutor
	Ledger    *ledger.Ledger
	FundLimit decimal.Decimal
	Metrics   *Metrics
	Now       func() time.Time
}

func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	o := &Orchestrator{
		memory:    deps.Memory,
		snapshots: deps.Snapshots,
		decider:   deps.Decider,
		risk:      deps.Risk,
		executor:  deps.Executor,
		ledger:    deps.Ledger,
		fundLimit: deps.FundLimit,
		metrics:   deps.Metrics,
		now:       deps.Now,
	}
	if o.metrics == nil {
		o.metrics = NewMetrics()
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

func (o *Orchestrator) lock(symbol string) func() {
	v, _ := o.symbolLocks.LoadOrStore(symbol, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// HandleTrigger 依次执行 冷却检查 -> 构建请求 -> 调用决策服务 -> 风控 -> 下单，每一步都可能提前结束
func (o *Orchestrator) HandleTrigger(ctx context.Context, ev entity.TriggerEvent) (Outcome, error) {
	defer o.lock(ev.Symbol)()

	outcome, err := o.handle(ctx, ev)
	o.metrics.outcomes.WithLabelValues(outcome.Kind.String()).Inc()
	return outcome, err
}

func (o *Orchestrator) handle(ctx context.Context, ev entity.TriggerEvent) (Outcome, error) {
	symbol := ev.Symbol
	now := o.now()
	log := logrus.WithFields(logrus.Fields{"symbol": symbol, "price": ev.Price, "change_pct": fmt.Sprintf("%.2f", ev.ChangePct)})

	if !o.memory.IsEligible(symbol, now) {
		log.Debug("Symbol in cooldown, trigger skipped")
		return Outcome{Kind: OutcomeSkipped, Symbol: symbol, Reason: SkipCooldown}, nil
	}

	ind, mc, err := o.snapshots.Snapshot(ctx, symbol)
	if err != nil {
		log.WithError(err).Warn("Market snapshot unavailable, trigger skipped")
		return Outcome{Kind: OutcomeSkipped, Symbol: symbol, Reason: SkipSnapshotUnavailable}, nil
	}

	price := decimal.NewFromFloat(ev.Price)
	req := o.buildRequest(ev, ind, mc, price)
	result, err := o.decider.Evaluate(ctx, req)
	if err != nil {
		log.WithError(err).Warn("Decision service unavailable, trigger skipped")
		return Outcome{Kind: OutcomeSkipped, Symbol: symbol, Reason: SkipDecisionUnavailable}, nil
	}
	if _, ok := result.Action.Side(); !ok {
		result.Action = entity.ActionHold
	}
	o.metrics.decisions.WithLabelValues(string(result.Action), strconv.FormatBool(result.Malformed)).Inc()

	if result.Action == entity.ActionHold {
		o.memory.Record(symbol, entity.ActionHold, result.Reason, ev.Price, now)
		log.WithField("reason", result.Reason).Info("Decision is hold")
		return Outcome{Kind: OutcomeNoAction, Symbol: symbol, Reason: result.Reason, Decision: result}, nil
	}

	// 冷却只限制频率，同向连续下单仍然允许，这里只标记出来
	repeated := false
	if last, ok := o.memory.Last(symbol); ok && last.Action == result.Action {
		repeated = true
		log.WithFields(logrus.Fields{"action": result.Action, "previous_at": last.At}).Info("Same action as previous decision")
	}

	o.tradeMu.Lock()
	assessment := o.risk.Assess(result, price, o.ledger.Position(symbol), o.ledger.Cash(), o.fundLimit)
	if !assessment.Approved {
		o.tradeMu.Unlock()
		o.memory.Record(symbol, entity.ActionHold, "risk rejected "+string(result.Action)+": "+assessment.Reason, ev.Price, now)
		log.WithFields(logrus.Fields{"action": result.Action, "reason": assessment.Reason}).Warn("Decision rejected by risk manager")
		return Outcome{Kind: OutcomeRejected, Symbol: symbol, Reason: assessment.Reason, Decision: result, Assessment: assessment, Repeated: repeated}, nil
	}

	side, _ := result.Action.Side()
	order, record, err := o.executor.Execute(ctx, symbol, side, assessment.Quantity, price)
	o.tradeMu.Unlock()
	o.metrics.orders.WithLabelValues(string(order.Mode), string(order.Status)).Inc()

	outcome := Outcome{Symbol: symbol, Decision: result, Assessment: assessment, Order: order, Record: record, Repeated: repeated}
	if err != nil {
		stage := StageExecute
		if errors.Is(err, ledger.ErrInvariantViolation) {
			stage = StageLedger
			log.WithError(err).Error("Ledger invariant violated, operator attention required")
		} else {
			log.WithError(err).Warn("Order failed, nothing recorded")
		}
		outcome.Kind = OutcomeSkipped
		outcome.Reason = err.Error()
		return outcome, &OrchestrationError{Symbol: symbol, Stage: stage, Err: err}
	}

	reason := result.Reason
	if assessment.StopLoss {
		reason = "stop-loss exit: " + reason
	}
	fillPrice := order.Price.InexactFloat64()
	o.memory.Record(symbol, order.Side.Action(), reason, fillPrice, now)

	log.WithFields(logrus.Fields{
		"side":     order.Side,
		"quantity": order.Quantity,
		"fill":     order.Price.String(),
		"mode":     order.Mode,
		"realized": record.RealizedPnL.String(),
	}).Info("Decision executed")
	outcome.Kind = OutcomeExecuted
	outcome.Reason = reason
	return outcome, nil
}

func (o *Orchestrator) buildRequest(ev entity.TriggerEvent, ind entity.Indicators, mc entity.MarketContext, price decimal.Decimal) entity.DecisionRequest {
	pos := o.ledger.Position(ev.Symbol)
	cash := o.ledger.Cash()

	req := entity.DecisionRequest{
		Symbol:     ev.Symbol,
		Price:      ev.Price,
		ChangePct:  ev.ChangePct,
		Indicators: ind,
		Market:     mc,
		Position: entity.PositionView{
			Quantity:      pos.Quantity,
			AvgPrice:      pos.AvgPrice.InexactFloat64(),
			UnrealizedPct: pos.UnrealizedPct(price),
		},
		CashAvailable: cash.Available.InexactFloat64(),
		FundLimit:     o.fundLimit.InexactFloat64(),
		History:       o.memory.History(ev.Symbol, promptHistory),
		Hint:          o.risk.Hint(pos, price),
		At:            ev.At,
	}
	if budget, ok := o.risk.TradeBudget(o.fundLimit); ok {
		req.MaxTradeNotional = budget.InexactFloat64()
	}
	if last, ok := o.ledger.LastBuy(ev.Symbol); ok {
		req.LastBuy = &entity.LastBuy{Price: last.Price.InexactFloat64(), At: last.At}
	}
	if req.At.IsZero() {
		req.At = o.now()
	}
	return req
}
