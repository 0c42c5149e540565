package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/gtoxlili/echoStock/collector"
	"github.com/gtoxlili/echoStock/config"
	"github.com/gtoxlili/echoStock/ledger"
	"github.com/gtoxlili/echoStock/llm"
	"github.com/gtoxlili/echoStock/logger"
	"github.com/gtoxlili/echoStock/monitor"
	"github.com/gtoxlili/echoStock/risk"
	"github.com/gtoxlili/echoStock/trade"
	"github.com/gtoxlili/echoStock/trigger"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

func initLogger(cfg *config.Config) error {
	return logger.Init(logger.Config{
		Level:      cfg.App.LogLevel,
		OutputFile: cfg.App.LogFile,
		MaxSize:    50,
		MaxBackups: 7,
		MaxAge:     30,
		Compress:   true,
	})
}

// openLedger 打开 SQLite 并重放历史流水
func openLedger(ctx context.Context, cfg *config.Config) (*ledger.Ledger, *ledger.SQLiteStore, error) {
	store, err := ledger.OpenSQLite(cfg.TransactionsPath())
	if err != nil {
		return nil, nil, err
	}
	records, err := store.LoadTransactions(ctx)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	l := ledger.New(
		decimal.NewFromFloat(cfg.Trading.InitialCash),
		ledger.WithStore(store),
		ledger.WithShortSelling(cfg.App.AllowShort),
	)
	if err := l.Restore(records); err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	logrus.WithFields(logrus.Fields{
		"transactions": len(records),
		"cash":         l.Cash().Available.StringFixed(2),
	}).Info("Ledger restored")
	return l, store, nil
}

func loadMemory(cfg *config.Config, state *config.StateFile) *trigger.Memory {
	memory := trigger.NewMemory(cfg.Cooldown())
	saved, err := state.Load()
	switch {
	case err == nil:
		memory.Restore(saved)
	case errors.Is(err, config.ErrStateNotExists):
	default:
		logrus.WithError(err).Warn("Failed to load decision memory, starting empty")
	}
	memory.Seed(cfg.Watches())
	return memory
}

func resolveBroker(ctx context.Context, cfg *config.Config) (trade.Broker, error) {
	switch cfg.Broker.Provider {
	case "paper":
		return trade.PaperBroker{}, nil
	default:
		broker, err := trade.NewLongportBroker(ctx, cfg.Longport.AppKey, cfg.Longport.AppSecret, cfg.Longport.AccessToken, config.BrokerTimeout)
		if err != nil {
			return nil, err
		}
		return broker, nil
	}
}

// buildMonitor 组装完整的监控管线，返回的 cleanup 关闭底层存储
func buildMonitor(ctx context.Context, cfg *config.Config) (*monitor.Monitor, func(), error) {
	l, store, err := openLedger(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open ledger: %w", err)
	}
	cleanup := func() { _ = store.Close() }

	provider, err := collector.ResolveCollector(ctx, collector.Options{
		Provider:            cfg.Market.Provider,
		Benchmark:           cfg.Market.Benchmark,
		Sector:              cfg.Market.Sector,
		History:             cfg.Market.History,
		LongportAppKey:      cfg.Longport.AppKey,
		LongportAppSecret:   cfg.Longport.AppSecret,
		LongportAccessToken: cfg.Longport.AccessToken,
		BinanceAPIKey:       cfg.Binance.APIKey,
		BinanceSecretKey:    cfg.Binance.SecretKey,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("resolve market data provider: %w", err)
	}

	agent, err := llm.NewAgent(llm.Options{
		Provider:         cfg.Decision.Provider,
		Model:            cfg.Decision.Model,
		APIURL:           cfg.Decision.APIURL,
		APIKey:           cfg.Decision.APIKey,
		Temperature:      *cfg.Decision.Temperature,
		Timeout:          cfg.DecisionTimeout(),
		RatePerMinute:    cfg.Decision.RatePerMinute,
		PerTradeFraction: cfg.Trading.PerTradeFraction,
		StopLossPct:      cfg.Trading.StopLossPct,
		TakeProfitPct:    cfg.Trading.TakeProfitPct,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("create decision agent: %w", err)
	}

	broker, err := resolveBroker(ctx, cfg)
	if err != nil {
		if !*cfg.App.FallbackToSimulated {
			cleanup()
			return nil, nil, fmt.Errorf("create broker: %w", err)
		}
		// 券商不可用但允许模拟成交，所有订单直接走模拟
		logrus.WithError(err).Warn("Broker unavailable, every order will be simulated")
		broker = trade.PaperBroker{}
	}

	state := config.NewStateFile(cfg.StatePath())
	memory := loadMemory(cfg, state)
	watches := cfg.Watches()

	orchestrator := monitor.NewOrchestrator(monitor.OrchestratorDeps{
		Memory:    memory,
		Snapshots: provider,
		Decider:   agent,
		Risk: risk.NewManager(risk.Limits{
			PerTradeFraction: cfg.Trading.PerTradeFraction,
			MaxPosition:      decimal.NewFromFloat(cfg.App.MaxPosition),
			StopLossPct:      cfg.Trading.StopLossPct,
			TakeProfitPct:    cfg.Trading.TakeProfitPct,
			AllowShort:       cfg.App.AllowShort,
		}),
		Executor:  trade.NewExecutor(broker, l, *cfg.App.FallbackToSimulated),
		Ledger:    l,
		FundLimit: decimal.NewFromFloat(cfg.Trading.FundLimit),
	})

	window, err := cfg.TradingWindow()
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("trading window: %w", err)
	}
	m := monitor.New(provider, trigger.NewDetector(watches), memory, orchestrator, l, state, monitor.Options{
		Interval:       cfg.CheckInterval(),
		ReportInterval: cfg.ProfitReportInterval(),
		Parallel:       cfg.App.ParallelSymbols,
		Window:         window,
	})
	return m, cleanup, nil
}
