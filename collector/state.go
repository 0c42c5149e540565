package collector

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gtoxlili/echoStock/entity"
)

var ErrNoQuote = errors.New("no quote")

// Provider 行情数据源。Quotes 为批量调用，缺失的标的不出现在结果中
type Provider interface {
	Quotes(ctx context.Context, symbols []string) (map[string]entity.Quote, error)
	Snapshot(ctx context.Context, symbol string) (entity.Indicators, entity.MarketContext, error)
}

type Options struct {
	Provider string
	// Benchmark 用于计算市场温度的指数标的，Sector 用于计算板块强度
	Benchmark string
	Sector    string
	History   int

	LongportAppKey      string
	LongportAppSecret   string
	LongportAccessToken string

	BinanceAPIKey    string
	BinanceSecretKey string
}

func ResolveCollector(ctx context.Context, opts Options) (Provider, error) {
	if opts.History <= 0 {
		opts.History = defaultHistory
	}
	switch strings.ToLower(opts.Provider) {
	case "", "longport":
		p, err := newLongportProvider(ctx, opts)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "binance":
		return newBinanceProvider(opts), nil
	default:
		return nil, fmt.Errorf("unsupported market provider: %s", opts.Provider)
	}
}
