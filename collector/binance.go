package collector

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/gtoxlili/echoStock/entity"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	usdtSuffix = "USDT"
	// klineInterval1d 日 K，与股票行情的周期保持一致
	klineInterval1d = "1d"
)

// binanceProvider 用 USDT 永续合约行情监控加密资产，配置中的 BTC 对应 BTCUSDT
type binanceProvider struct {
	client    *futures.Client
	benchmark string
	sector    string
	history   int
}

func newBinanceProvider(opts Options) *binanceProvider {
	futuresClient := binance.NewFuturesClient(opts.BinanceAPIKey, opts.BinanceSecretKey) // USDT-M Futures
	return &binanceProvider{
		client:    futuresClient,
		benchmark: opts.Benchmark,
		sector:    opts.Sector,
		history:   opts.History,
	}
}

func toPair(symbol string) string {
	s := strings.ToUpper(symbol)
	if strings.HasSuffix(s, usdtSuffix) {
		return s
	}
	return s + usdtSuffix
}

func (b *binanceProvider) Quotes(ctx context.Context, symbols []string) (map[string]entity.Quote, error) {
	var (
		mu      sync.Mutex
		quotes  = make(map[string]entity.Quote, len(symbols))
		g, gctx = errgroup.WithContext(ctx)
	)

	for _, symbol := range symbols {
		local := symbol
		g.Go(func() error {
			q, err := b.fetchQuote(gctx, local)
			if err != nil {
				// 非致命错误：该标的本轮无数据
				logrus.WithField("symbol", local).WithError(err).Warn("Failed to fetch binance quote")
				return nil
			}
			mu.Lock()
			quotes[local] = q
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return quotes, nil
}

func (b *binanceProvider) fetchQuote(ctx context.Context, symbol string) (entity.Quote, error) {
	pair := toPair(symbol)
	var q entity.Quote
	var g, gctx = errgroup.WithContext(ctx)

	g.Go(func() error {
		price, err := b.fetchCurrentPrice(gctx, pair)
		if err != nil {
			return fmt.Errorf("failed to fetch current price for %s: %w", pair, err)
		}
		q.Last = price
		return nil
	})

	g.Go(func() error {
		candles, err := b.fetchCandles(gctx, pair, 2)
		if err != nil || len(candles) < 2 {
			return nil
		}
		prev := candles[len(candles)-2]
		q.PrevClose = prev.Close
		q.Volume = int64(candles[len(candles)-1].Volume)
		q.Turnover = candles[len(candles)-1].Turnover
		return nil
	})

	if err := g.Wait(); err != nil {
		return lo.Empty[entity.Quote](), err
	}
	if q.Last <= 0 {
		return lo.Empty[entity.Quote](), ErrNoQuote
	}
	q.Symbol = symbol
	return q, nil
}

func (b *binanceProvider) Snapshot(ctx context.Context, symbol string) (entity.Indicators, entity.MarketContext, error) {
	var (
		candles           []candle
		benchmark, sector []candle
		g, gctx           = errgroup.WithContext(ctx)
	)

	g.Go(func() error {
		c, err := b.fetchCandles(gctx, toPair(symbol), b.history)
		if err != nil {
			return fmt.Errorf("failed to fetch 1d klines for %s: %w", symbol, err)
		}
		candles = c
		return nil
	})
	if b.benchmark != "" {
		g.Go(func() error {
			benchmark, _ = b.fetchCandles(gctx, toPair(b.benchmark), 2)
			return nil
		})
	}
	if b.sector != "" {
		g.Go(func() error {
			sector, _ = b.fetchCandles(gctx, toPair(b.sector), 2)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return lo.Empty[entity.Indicators](), lo.Empty[entity.MarketContext](), err
	}

	mc := marketContext(lastChange(candles), lastChange(benchmark), lastChange(sector), len(sector) >= 2, candles)
	return computeIndicators(candles), mc, nil
}

// lastChange 最新一根 K 线相对前一根收盘的涨跌幅
func lastChange(candles []candle) float64 {
	if len(candles) < 2 || candles[len(candles)-2].Close == 0 {
		return 0
	}
	prev := candles[len(candles)-2].Close
	return (candles[len(candles)-1].Close - prev) / prev * 100
}

// fetchCandles 获取K线数据并将其解析为 candle，成交额以收盘价乘成交量近似
func (b *binanceProvider) fetchCandles(ctx context.Context, pair string, limit int) ([]candle, error) {
	klines, err := b.client.NewKlinesService().Symbol(pair).Interval(klineInterval1d).Limit(limit).Do(ctx)
	if err != nil {
		return nil, err
	}
	return lo.Map(klines, func(kline *futures.Kline, _ int) candle {
		c, _ := strconv.ParseFloat(kline.Close, 64)
		v, _ := strconv.ParseFloat(kline.Volume, 64)
		return candle{Close: c, Volume: v, Turnover: c * v}
	}), nil
}

func (b *binanceProvider) fetchCurrentPrice(ctx context.Context, pair string) (float64, error) {
	prices, err := b.client.NewListPricesService().Symbol(pair).Do(ctx)
	if err != nil {
		return 0, err
	}
	// 即使指定了 symbol，API 仍然返回一个切片
	for _, p := range prices {
		if p.Symbol == pair {
			return strconv.ParseFloat(p.Price, 64)
		}
	}
	return 0, fmt.Errorf("%s: %w", pair, ErrNoQuote)
}
