package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/gtoxlili/echoStock/entity"
	"github.com/gtoxlili/echoStock/ledger"
	"github.com/gtoxlili/echoStock/report"
	"github.com/gtoxlili/echoStock/trigger"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// QuoteSource 批量行情，取不到的标的不出现在结果里
type QuoteSource interface {
	Quotes(ctx context.Context, symbols []string) (map[string]entity.Quote, error)
}

// StateSaver 决策记忆的持久化，config.StateFile 为实现
type StateSaver interface {
	Save(state entity.MemoryState) error
}

type Options struct {
	Interval       time.Duration
	ReportInterval time.Duration
	// Parallel 大于 1 时按标的并行处理，否则顺序处理
	Parallel int
	// Window 交易时段，时段外不轮询。零值表示全天
	Window trigger.Window
	Now    func() time.Time
}

type Monitor struct {
	quotes       QuoteSource
	detector     *trigger.Detector
	memory       *trigger.Memory
	orchestrator *Orchestrator
	ledger       *ledger.Ledger
	state        StateSaver
	metrics      *Metrics
	opts         Options

	// inWindow 上一次检查时是否处于交易时段，仅 Run 所在的 goroutine 读写
	inWindow *bool
}

func New(
	quotes QuoteSource,
	detector *trigger.Detector,
	memory *trigger.Memory,
	orchestrator *Orchestrator,
	l *ledger.Ledger,
	state StateSaver,
	opts Options,
) *Monitor {
	if opts.Parallel < 1 {
		opts.Parallel = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Monitor{
		quotes:       quotes,
		detector:     detector,
		memory:       memory,
		orchestrator: orchestrator,
		ledger:       l,
		state:        state,
		metrics:      orchestrator.metrics,
		opts:         opts,
	}
}

func (m *Monitor) Metrics() *Metrics {
	return m.metrics
}

// Run 按固定间隔轮询直到 ctx 结束，退出前输出最终报告并落盘。账本不变量被破坏时立即返回
func (m *Monitor) Run(ctx context.Context) error {
	logrus.WithFields(logrus.Fields{
		"symbols":  m.detector.Symbols(),
		"interval": m.opts.Interval,
		"parallel": m.opts.Parallel,
		"window":   m.opts.Window.String(),
	}).Info("Monitor started")
	m.logReport("Initial profit report")

	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()

	var reportC <-chan time.Time
	if m.opts.ReportInterval > 0 {
		reportTicker := time.NewTicker(m.opts.ReportInterval)
		defer reportTicker.Stop()
		reportC = reportTicker.C
	}

	if err := m.tick(ctx); err != nil {
		return m.shutdown(err)
	}
	for {
		select {
		case <-ctx.Done():
			return m.shutdown(nil)
		case <-reportC:
			m.logReport("Periodic profit report")
		case <-ticker.C:
			if err := m.tick(ctx); err != nil {
				return m.shutdown(err)
			}
		}
	}
}

// tick 只在交易时段内执行一轮轮询，进出时段时各记一条日志
func (m *Monitor) tick(ctx context.Context) error {
	open := m.opts.Window.Contains(m.opts.Now())
	if m.inWindow == nil || *m.inWindow != open {
		m.inWindow = &open
		if open {
			logrus.WithField("window", m.opts.Window.String()).Info("Inside trading window, polling")
		} else {
			logrus.WithField("window", m.opts.Window.String()).Info("Outside trading window, polling paused")
		}
	}
	if !open {
		return nil
	}
	return m.RunCycle(ctx)
}

func (m *Monitor) shutdown(cause error) error {
	// ctx 可能已取消，落盘使用独立的超时
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	m.persist(ctx)
	m.logReport("Final profit report")
	if cause != nil {
		logrus.WithError(cause).Error("Monitor stopped on fatal error")
	} else {
		logrus.Info("Monitor stopped")
	}
	return cause
}

// RunCycle 执行一轮轮询并落盘。单个标的的外部失败只跳过该标的，账本不变量错误直接返回，由 Run 退出前落盘
func (m *Monitor) RunCycle(ctx context.Context) error {
	start := time.Now()
	defer func() { m.metrics.cycle.Observe(time.Since(start).Seconds()) }()

	symbols := m.detector.Symbols()
	if len(symbols) == 0 {
		return nil
	}
	quotes, err := m.quotes.Quotes(ctx, symbols)
	if err != nil {
		logrus.WithError(err).Warn("Failed to fetch quotes, cycle skipped")
		return nil
	}

	if m.opts.Parallel <= 1 {
		for _, symbol := range symbols {
			if err := m.process(ctx, symbol, quotes); err != nil {
				return err
			}
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(m.opts.Parallel)
		for _, symbol := range symbols {
			symbol := symbol
			g.Go(func() error {
				return m.process(gctx, symbol, quotes)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}

	m.persist(ctx)
	return nil
}

func (m *Monitor) process(ctx context.Context, symbol string, quotes map[string]entity.Quote) error {
	log := logrus.WithField("symbol", symbol)
	q, ok := quotes[symbol]
	if !ok {
		log.Debug("No quote this cycle")
		return nil
	}
	m.ledger.Mark(symbol, decimal.NewFromFloat(q.Last))

	ev, err := m.detector.Observe(symbol, q.Last)
	if err != nil {
		log.WithError(err).Warn("Price sample rejected")
		return nil
	}
	if ev == nil {
		return nil
	}
	m.metrics.triggers.WithLabelValues(symbol).Inc()
	log.WithFields(logrus.Fields{
		"price":     ev.Price,
		"reference": ev.Reference,
		"change":    ev.ChangePct,
	}).Info("Price trigger fired")

	outcome, err := m.orchestrator.HandleTrigger(ctx, *ev)
	if err != nil {
		if errors.Is(err, ledger.ErrInvariantViolation) {
			return err
		}
		return nil
	}
	log.WithFields(logrus.Fields{"outcome": outcome.Kind, "reason": outcome.Reason}).Debug("Trigger handled")
	return nil
}

// persist 持久化失败只记录日志，内存状态仍以本进程为准，下一轮重试
func (m *Monitor) persist(ctx context.Context) {
	if err := m.ledger.Flush(ctx); err != nil {
		logrus.WithError(err).WithField("pending", m.ledger.Pending()).Error("Failed to persist ledger, will retry next cycle")
	}
	if m.state != nil {
		if err := m.state.Save(m.memory.Snapshot()); err != nil {
			logrus.WithError(err).Error("Failed to persist decision memory")
		}
	}
	snap := m.ledger.Snapshot()
	m.metrics.observeAccount(snap.Cash.Available, snap.Equity())
}

func (m *Monitor) Report() entity.ProfitReport {
	return report.Generate(m.ledger.Snapshot())
}

func (m *Monitor) logReport(msg string) {
	logrus.WithFields(report.Fields(m.Report())).Info(msg)
}
