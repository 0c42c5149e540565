package trigger

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gtoxlili/echoStock/entity"
	"github.com/samber/lo"
)

var (
	ErrZeroReference = errors.New("reference price is zero")
	ErrInvalidPrice  = errors.New("invalid price")
)

// 阈值比较的浮点容差
const epsilon = 1e-9

// Detector 维护每个标的的参考价，价格变动超过阈值时发出 TriggerEvent 并重置参考价
type Detector struct {
	mu      sync.Mutex
	configs map[string]entity.WatchConfig
	order   []string
	samples map[string]entity.PriceSample
	now     func() time.Time
}

func NewDetector(watches []entity.WatchConfig) *Detector {
	return &Detector{
		configs: lo.KeyBy(watches, func(w entity.WatchConfig) string { return w.Symbol }),
		order:   lo.Uniq(lo.Map(watches, func(w entity.WatchConfig, _ int) string { return w.Symbol })),
		samples: make(map[string]entity.PriceSample, len(watches)),
		now:     time.Now,
	}
}

// WithClock 替换时间源，主要用于测试
func (d *Detector) WithClock(now func() time.Time) *Detector {
	d.now = now
	return d
}

// Observe 喂入一个价格。未配置或 watch=false 的标的直接忽略；首个价格只用于初始化参考价
func (d *Detector) Observe(symbol string, price float64) (*entity.TriggerEvent, error) {
	cfg, ok := d.configs[symbol]
	if !ok || !cfg.Watch {
		return nil, nil
	}
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return nil, fmt.Errorf("%s: %w: %v", symbol, ErrInvalidPrice, price)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	sample, seen := d.samples[symbol]
	if !seen {
		reference := price
		if cfg.Baseline > 0 {
			reference = cfg.Baseline
		}
		d.samples[symbol] = entity.PriceSample{Symbol: symbol, LastPrice: price, Reference: reference, At: now}
		if cfg.Baseline <= 0 {
			return nil, nil
		}
		sample = d.samples[symbol]
	}

	if sample.Reference == 0 {
		return nil, fmt.Errorf("%s: %w", symbol, ErrZeroReference)
	}

	change := (price - sample.Reference) * 100 / sample.Reference
	sample.LastPrice = price
	sample.At = now

	if math.Abs(change)+epsilon < cfg.Threshold {
		d.samples[symbol] = sample
		return nil, nil
	}

	event := &entity.TriggerEvent{
		Symbol:    symbol,
		Price:     price,
		Reference: sample.Reference,
		ChangePct: change,
		At:        now,
	}
	sample.Reference = price
	d.samples[symbol] = sample
	return event, nil
}

// Sample 返回标的当前的参考价状态
func (d *Detector) Sample(symbol string) (entity.PriceSample, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.samples[symbol]
	return s, ok
}

// Symbols 按配置顺序返回所有处于监控状态的标的
func (d *Detector) Symbols() []string {
	return lo.Filter(d.order, func(symbol string, _ int) bool { return d.configs[symbol].Watch })
}
