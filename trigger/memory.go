package trigger

import (
	"sync"
	"time"

	"github.com/gtoxlili/echoStock/entity"
	"github.com/samber/lo"
)

// HistoryLimit 每个标的保留的历史决策条数
const HistoryLimit = 20

// Memory 决策记忆。latest 只保存每个标的最近一次决策，用于冷却判断；history 供提示词参考
type Memory struct {
	mu       sync.RWMutex
	cooldown time.Duration
	latest   map[string]entity.DecisionMemoryEntry
	history  map[string][]entity.DecisionRecord
}

func NewMemory(cooldown time.Duration) *Memory {
	return &Memory{
		cooldown: cooldown,
		latest:   make(map[string]entity.DecisionMemoryEntry),
		history:  make(map[string][]entity.DecisionRecord),
	}
}

// Seed 用配置中的 initial_action 初始化记忆。零时间戳的条目不会触发冷却，已有记录的标的保持不变
func (m *Memory) Seed(watches []entity.WatchConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range watches {
		if _, ok := m.latest[w.Symbol]; ok {
			continue
		}
		m.latest[w.Symbol] = entity.DecisionMemoryEntry{Symbol: w.Symbol, Action: w.InitialAction}
	}
}

// IsEligible 冷却窗口内返回 false。时钟回拨（now 早于记录时间）同样视为仍在冷却中
func (m *Memory) IsEligible(symbol string, now time.Time) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	last, ok := m.latest[symbol]
	if !ok || last.At.IsZero() {
		return true
	}
	if now.Before(last.At) {
		return false
	}
	return now.Sub(last.At) >= m.cooldown
}

// Record 覆盖最近一次决策，同时追加到历史
func (m *Memory) Record(symbol string, action entity.Action, reason string, price float64, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest[symbol] = entity.DecisionMemoryEntry{Symbol: symbol, At: now, Action: action}

	records := append(m.history[symbol], entity.DecisionRecord{
		At:     now,
		Action: action,
		Reason: reason,
		Price:  price,
	})
	if len(records) > HistoryLimit {
		records = records[len(records)-HistoryLimit:]
	}
	m.history[symbol] = records
}

// Last 返回最近一次决策
func (m *Memory) Last(symbol string) (entity.DecisionMemoryEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.latest[symbol]
	return e, ok
}

// History 返回最近 n 条决策，按时间升序
func (m *Memory) History(symbol string, n int) []entity.DecisionRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	records := m.history[symbol]
	if n <= 0 || len(records) == 0 {
		return nil
	}
	return append([]entity.DecisionRecord(nil), lo.Subset(records, -n, uint(n))...)
}

// Snapshot 返回一个副本以保证线程安全
func (m *Memory) Snapshot() entity.MemoryState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state := entity.MemoryState{
		Latest:  make(map[string]entity.DecisionMemoryEntry, len(m.latest)),
		History: make(map[string][]entity.DecisionRecord, len(m.history)),
	}
	for k, v := range m.latest {
		state.Latest[k] = v
	}
	for k, v := range m.history {
		state.History[k] = append([]entity.DecisionRecord(nil), v...)
	}
	return state
}

// Restore 用持久化状态替换当前记忆
func (m *Memory) Restore(state entity.MemoryState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latest = make(map[string]entity.DecisionMemoryEntry, len(state.Latest))
	m.history = make(map[string][]entity.DecisionRecord, len(state.History))
	for k, v := range state.Latest {
		m.latest[k] = v
	}
	for k, v := range state.History {
		if len(v) > HistoryLimit {
			v = v[len(v)-HistoryLimit:]
		}
		m.history[k] = append([]entity.DecisionRecord(nil), v...)
	}
}
