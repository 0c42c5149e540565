package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gtoxlili/echoStock/entity"
	"github.com/gtoxlili/echoStock/utils"
	lpconfig "github.com/longportapp/openapi-go/config"
	"github.com/longportapp/openapi-go/quote"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type longportProvider struct {
	fetchQuotes  func(ctx context.Context, symbols []string) ([]entity.Quote, error)
	fetchCandles func(ctx context.Context, symbol string, count int) ([]candle, error)
	benchmark    string
	sector       string
	history      int
}

func newLongportProvider(ctx context.Context, opts Options) (*longportProvider, error) {
	if opts.LongportAppKey == "" || opts.LongportAppSecret == "" || opts.LongportAccessToken == "" {
		return nil, errors.New("longport API credentials not configured")
	}
	conf, err := lpconfig.New(lpconfig.WithConfigKey(opts.LongportAppKey, opts.LongportAppSecret, opts.LongportAccessToken))
	if err != nil {
		return nil, err
	}
	// 建立长连接偶尔会失败，按指数退避重试
	quoteCtx, err := utils.RetryWithBackoff(ctx, 3, func() (*quote.QuoteContext, error) {
		return quote.NewFromCfg(conf)
	})
	if err != nil {
		return nil, fmt.Errorf("connect longport quote: %w", err)
	}

	return &longportProvider{
		fetchQuotes: func(ctx context.Context, symbols []string) ([]entity.Quote, error) {
			quotes, err := quoteCtx.Quote(ctx, symbols)
			if err != nil {
				return nil, err
			}
			return lo.Map(quotes, func(q *quote.SecurityQuote, _ int) entity.Quote {
				last, _ := q.LastDone.Float64()
				prev, _ := q.PrevClose.Float64()
				turnover, _ := q.Turnover.Float64()
				return entity.Quote{
					Symbol:    q.Symbol,
					Last:      last,
					PrevClose: prev,
					Volume:    q.Volume,
					Turnover:  turnover,
					At:        time.Unix(q.Timestamp, 0),
				}
			}), nil
		},
		fetchCandles: func(ctx context.Context, symbol string, count int) ([]candle, error) {
			sticks, err := quoteCtx.Candlesticks(ctx, symbol, quote.PeriodDay, int32(count), quote.AdjustTypeNo)
			if err != nil {
				return nil, err
			}
			return lo.Map(sticks, func(s *quote.Candlestick, _ int) candle {
				c, _ := s.Close.Float64()
				turnover, _ := s.Turnover.Float64()
				return candle{Close: c, Volume: float64(s.Volume), Turnover: turnover}
			}), nil
		},
		benchmark: opts.Benchmark,
		sector:    opts.Sector,
		history:   opts.History,
	}, nil
}

// Quotes 一次批量请求获取所有标的行情，价格非正的标的视为本轮无数据
func (p *longportProvider) Quotes(ctx context.Context, symbols []string) (map[string]entity.Quote, error) {
	if len(symbols) == 0 {
		return map[string]entity.Quote{}, nil
	}
	quotes, err := p.fetchQuotes(ctx, symbols)
	if err != nil {
		return nil, fmt.Errorf("fetch quotes: %w", err)
	}
	valid := lo.Filter(quotes, func(q entity.Quote, _ int) bool { return q.Last > 0 })
	return lo.KeyBy(valid, func(q entity.Quote) string { return q.Symbol }), nil
}

// Snapshot 并行获取日 K 与基准行情，计算技术指标与市场因子。基准行情失败只降级为 0，不影响指标
func (p *longportProvider) Snapshot(ctx context.Context, symbol string) (entity.Indicators, entity.MarketContext, error) {
	var (
		mu      sync.Mutex
		candles []candle
		quotes  = map[string]entity.Quote{}
		g, gctx = errgroup.WithContext(ctx)
	)

	g.Go(func() error {
		sticks, err := p.fetchCandles(gctx, symbol, p.history)
		if err != nil {
			return fmt.Errorf("failed to fetch candlesticks for %s: %w", symbol, err)
		}
		candles = sticks
		return nil
	})

	g.Go(func() error {
		symbols := lo.Uniq(lo.Compact([]string{symbol, p.benchmark, p.sector}))
		res, err := p.Quotes(gctx, symbols)
		if err != nil {
			// 非致命错误：只记录日志
			logrus.WithField("symbol", symbol).WithError(err).Warn("Failed to fetch market context quotes")
			return nil
		}
		mu.Lock()
		quotes = res
		mu.Unlock()
		return nil
	})

	if err := g.Wait(); err != nil {
		return lo.Empty[entity.Indicators](), lo.Empty[entity.MarketContext](), err
	}

	_, hasSector := quotes[p.sector]
	mc := marketContext(
		quotes[symbol].ChangePct(),
		quotes[p.benchmark].ChangePct(),
		quotes[p.sector].ChangePct(),
		p.sector != "" && hasSector,
		candles,
	)
	return computeIndicators(candles), mc, nil
}
