package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gtoxlili/echoStock/entity"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

var (
	ErrInvariantViolation = errors.New("ledger invariant violation")
	ErrInsufficientCash   = fmt.Errorf("insufficient cash: %w", ErrInvariantViolation)
	ErrShortNotAllowed    = fmt.Errorf("sell exceeds position and short selling is disabled: %w", ErrInvariantViolation)
	ErrPersistence        = errors.New("ledger persistence failed")
)

// Store 账本的持久化后端
type Store interface {
	AppendTransactions(ctx context.Context, records []entity.TransactionRecord) error
	UpsertDaily(ctx context.Context, log entity.DailyLog) error
	LatestDailyBefore(ctx context.Context, date string) (entity.DailyLog, bool, error)
}

// Snapshot 账本在某一时刻的只读副本
type Snapshot struct {
	InitialCash decimal.Decimal
	Cash        entity.CashAccount
	Positions   []entity.Position
	Marks       map[string]decimal.Decimal
	Realized    decimal.Decimal
	History     []entity.TransactionRecord
	At          time.Time
}

// Mark 返回标的的最新标记价格，没有行情时退回持仓均价
func (s Snapshot) Mark(symbol string, fallback decimal.Decimal) decimal.Decimal {
	if m, ok := s.Marks[symbol]; ok && m.IsPositive() {
		return m
	}
	return fallback
}

// Ledger 现金与持仓的唯一写入方，Apply 是唯一的修改入口
type Ledger struct {
	mu          sync.RWMutex
	initialCash decimal.Decimal
	available   decimal.Decimal
	reserved    decimal.Decimal
	realized    decimal.Decimal
	positions   map[string]entity.Position
	marks       map[string]decimal.Decimal
	history     []entity.TransactionRecord
	pending     []entity.TransactionRecord

	allowShort bool
	store      Store
	now        func() time.Time
}

type Option func(*Ledger)

func WithStore(store Store) Option {
	return func(l *Ledger) { l.store = store }
}

func WithShortSelling(allow bool) Option {
	return func(l *Ledger) { l.allowShort = allow }
}

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func New(initialCash decimal.Decimal, opts ...Option) *Ledger {
	l := &Ledger{
		initialCash: initialCash,
		available:   initialCash,
		positions:   make(map[string]entity.Position),
		marks:       make(map[string]decimal.Decimal),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Apply 把一笔已成交订单记入账本。任何不变量被破坏时账本保持原状并返回 ErrInvariantViolation
func (l *Ledger) Apply(order entity.Order) (entity.TransactionRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	record, err := l.apply(order, l.now())
	if err != nil {
		return entity.TransactionRecord{}, err
	}
	l.pending = append(l.pending, record)
	return record, nil
}

func (l *Ledger) apply(order entity.Order, at time.Time) (entity.TransactionRecord, error) {
	switch {
	case !order.Filled():
		return entity.TransactionRecord{}, fmt.Errorf("%w: order %s is %s, not filled", ErrInvariantViolation, order.ID, order.Status)
	case order.Symbol == "":
		return entity.TransactionRecord{}, fmt.Errorf("%w: order %s has no symbol", ErrInvariantViolation, order.ID)
	case order.Quantity <= 0:
		return entity.TransactionRecord{}, fmt.Errorf("%w: order %s quantity %d", ErrInvariantViolation, order.ID, order.Quantity)
	case !order.Price.IsPositive():
		return entity.TransactionRecord{}, fmt.Errorf("%w: order %s price %s", ErrInvariantViolation, order.ID, order.Price)
	}

	pos := l.positions[order.Symbol]
	pos.Symbol = order.Symbol
	notional := order.Notional()

	signed := order.Quantity
	available := l.available
	switch order.Side {
	case entity.SideBuy:
		if notional.GreaterThan(available) {
			return entity.TransactionRecord{}, fmt.Errorf("%s buy %d @ %s needs %s, available %s: %w",
				order.Symbol, order.Quantity, order.Price, notional, available, ErrInsufficientCash)
		}
		available = available.Sub(notional)
	case entity.SideSell:
		if !l.allowShort && order.Quantity > pos.Quantity {
			return entity.TransactionRecord{}, fmt.Errorf("%s sell %d, held %d: %w",
				order.Symbol, order.Quantity, pos.Quantity, ErrShortNotAllowed)
		}
		signed = -signed
		available = available.Add(notional)
	default:
		return entity.TransactionRecord{}, fmt.Errorf("%w: order %s has unknown side %q", ErrInvariantViolation, order.ID, order.Side)
	}

	next, realized := fill(pos, signed, order.Price)

	l.available = available
	l.realized = l.realized.Add(realized)
	if next.Quantity == 0 {
		next.AvgPrice = decimal.Zero
	}
	l.positions[order.Symbol] = next
	l.marks[order.Symbol] = order.Price
	l.reserved = l.costBasis()

	record := entity.TransactionRecord{
		ID:            uuid.NewString(),
		OrderID:       order.ID,
		Symbol:        order.Symbol,
		Side:          order.Side,
		Quantity:      order.Quantity,
		Price:         order.Price,
		Mode:          order.Mode,
		RealizedPnL:   realized,
		CashAfter:     l.available,
		PositionAfter: next.Quantity,
		At:            at,
	}
	l.history = append(l.history, record)
	return record, nil
}

// fill 按平均成本法合并一笔成交。signed 为带方向的数量，买入为正卖出为负
func fill(pos entity.Position, signed int64, price decimal.Decimal) (entity.Position, decimal.Decimal) {
	realized := decimal.Zero
	old := pos.Quantity
	next := old + signed

	switch {
	case old == 0 || (old > 0) == (signed > 0):
		// 同向加仓，重新计算加权均价
		total := pos.AvgPrice.Mul(decimal.NewFromInt(abs(old))).Add(price.Mul(decimal.NewFromInt(abs(signed))))
		pos.AvgPrice = total.Div(decimal.NewFromInt(abs(next)))
	default:
		closing := min(abs(signed), abs(old))
		direction := decimal.NewFromInt(sign(old))
		realized = price.Sub(pos.AvgPrice).Mul(decimal.NewFromInt(closing)).Mul(direction)
		if next != 0 && sign(next) != sign(old) {
			// 反手，剩余部分以成交价开新仓
			pos.AvgPrice = price
		}
	}
	pos.Quantity = next
	return pos, realized
}

func (l *Ledger) costBasis() decimal.Decimal {
	return lo.Reduce(lo.Values(l.positions), func(acc decimal.Decimal, p entity.Position, _ int) decimal.Decimal {
		if p.Quantity <= 0 {
			return acc
		}
		return acc.Add(p.AvgPrice.Mul(decimal.NewFromInt(p.Quantity)))
	}, decimal.Zero)
}

// Restore 以初始资金为起点重放历史流水，重建现金与持仓。重放的记录不会再次写入存储
func (l *Ledger) Restore(records []entity.TransactionRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.available = l.initialCash
	l.reserved = decimal.Zero
	l.realized = decimal.Zero
	l.positions = make(map[string]entity.Position)
	l.marks = make(map[string]decimal.Decimal)
	l.history = nil
	l.pending = nil

	for _, r := range records {
		replayed, err := l.apply(entity.Order{
			ID:       r.OrderID,
			Symbol:   r.Symbol,
			Side:     r.Side,
			Quantity: r.Quantity,
			Price:    r.Price,
			Mode:     r.Mode,
			Status:   entity.StatusFilled,
		}, r.At)
		if err != nil {
			return fmt.Errorf("replay transaction %s: %w", r.ID, err)
		}
		l.history[len(l.history)-1].ID = lo.Ternary(r.ID != "", r.ID, replayed.ID)
	}
	return nil
}

// Mark 更新标的的最新价格，只影响浮动盈亏，不修改现金与持仓
func (l *Ledger) Mark(symbol string, price decimal.Decimal) {
	if !price.IsPositive() {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.marks[symbol] = price
}

func (l *Ledger) Position(symbol string) entity.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pos, ok := l.positions[symbol]
	if !ok {
		return entity.Position{Symbol: symbol}
	}
	return pos
}

func (l *Ledger) Cash() entity.CashAccount {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return entity.CashAccount{Available: l.available, Reserved: l.reserved}
}

// LastBuy 最近一次买入成交
func (l *Ledger) LastBuy(symbol string) (entity.TransactionRecord, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for i := len(l.history) - 1; i >= 0; i-- {
		if r := l.history[i]; r.Symbol == symbol && r.Side == entity.SideBuy {
			return r, true
		}
	}
	return entity.TransactionRecord{}, false
}

// Unrealized 所有未平仓头寸的浮动盈亏之和
func (l *Ledger) Unrealized() decimal.Decimal {
	return l.Snapshot().Unrealized()
}

func (s Snapshot) Unrealized() decimal.Decimal {
	return lo.Reduce(s.Positions, func(acc decimal.Decimal, p entity.Position, _ int) decimal.Decimal {
		return acc.Add(p.Unrealized(s.Mark(p.Symbol, p.AvgPrice)))
	}, decimal.Zero)
}

// Equity 现金加上按标记价计的持仓市值，空头为负
func (s Snapshot) Equity() decimal.Decimal {
	return lo.Reduce(s.Positions, func(acc decimal.Decimal, p entity.Position, _ int) decimal.Decimal {
		return acc.Add(s.Mark(p.Symbol, p.AvgPrice).Mul(decimal.NewFromInt(p.Quantity)))
	}, s.Cash.Available)
}

func (l *Ledger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	positions := lo.Filter(lo.Values(l.positions), func(p entity.Position, _ int) bool { return p.Quantity != 0 })
	sort.Slice(positions, func(i, j int) bool { return positions[i].Symbol < positions[j].Symbol })

	marks := make(map[string]decimal.Decimal, len(l.marks))
	for k, v := range l.marks {
		marks[k] = v
	}
	return Snapshot{
		InitialCash: l.initialCash,
		Cash:        entity.CashAccount{Available: l.available, Reserved: l.reserved},
		Positions:   positions,
		Marks:       marks,
		Realized:    l.realized,
		History:     append([]entity.TransactionRecord(nil), l.history...),
		At:          l.now(),
	}
}

// Pending 尚未成功写入存储的流水条数
func (l *Ledger) Pending() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.pending)
}

// Flush 写入待持久化的流水并更新当日账户日志。失败时流水保留在内存中，下次 Flush 重试
func (l *Ledger) Flush(ctx context.Context) error {
	if l.store == nil {
		return nil
	}

	l.mu.RLock()
	batch := append([]entity.TransactionRecord(nil), l.pending...)
	l.mu.RUnlock()

	if len(batch) > 0 {
		if err := l.store.AppendTransactions(ctx, batch); err != nil {
			return fmt.Errorf("%w: append %d transactions: %w", ErrPersistence, len(batch), err)
		}
		l.mu.Lock()
		l.pending = l.pending[len(batch):]
		l.mu.Unlock()
	}

	daily, err := l.dailyLog(ctx)
	if err != nil {
		return err
	}
	if err := l.store.UpsertDaily(ctx, daily); err != nil {
		return fmt.Errorf("%w: upsert daily log %s: %w", ErrPersistence, daily.Date, err)
	}
	return nil
}

func (l *Ledger) dailyLog(ctx context.Context) (entity.DailyLog, error) {
	snap := l.Snapshot()
	date := snap.At.Format(time.DateOnly)

	prevNet := snap.InitialCash
	prev, ok, err := l.store.LatestDailyBefore(ctx, date)
	if err != nil {
		return entity.DailyLog{}, fmt.Errorf("%w: load previous daily log: %w", ErrPersistence, err)
	}
	if ok {
		prevNet = prev.NetAssets
	}

	net := snap.Equity()
	profit := net.Sub(prevNet)
	var pct float64
	if prevNet.IsPositive() {
		pct = profit.Div(prevNet).InexactFloat64() * 100
	}
	return entity.DailyLog{
		Date:           date,
		UpdatedAt:      snap.At,
		NetAssets:      net,
		PrevNetAssets:  prevNet,
		DailyProfit:    profit,
		DailyReturnPct: pct,
		Cash:           snap.Cash.Available,
		Reserved:       snap.Cash.Reserved,
		Realized:       snap.Realized,
	}, nil
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func sign(v int64) int64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}
