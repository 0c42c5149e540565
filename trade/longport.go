package trade

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/gtoxlili/echoStock/entity"
	"github.com/gtoxlili/echoStock/utils"
	lpconfig "github.com/longportapp/openapi-go/config"
	lptrade "github.com/longportapp/openapi-go/trade"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// rejection 券商已响应但拒绝了订单，不计入熔断失败
type rejection struct{ err error }

func (r rejection) Error() string { return r.err.Error() }
func (r rejection) Unwrap() error { return r.err }

type submitter interface {
	SubmitOrder(ctx context.Context, params *lptrade.SubmitOrder) (string, error)
}

// LongportBroker 通过 LongPort TradeContext 下市价单
type LongportBroker struct {
	tc      submitter
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
}

func NewLongportBroker(ctx context.Context, appKey, appSecret, accessToken string, timeout time.Duration) (*LongportBroker, error) {
	if appKey == "" || appSecret == "" || accessToken == "" {
		return nil, errors.New("longport API credentials not configured")
	}
	conf, err := lpconfig.New(lpconfig.WithConfigKey(appKey, appSecret, accessToken))
	if err != nil {
		return nil, err
	}
	// 只重试建连，下单本身不重试
	tradeContext, err := utils.RetryWithBackoff(ctx, 3, func() (*lptrade.TradeContext, error) {
		return lptrade.NewFromCfg(conf)
	})
	if err != nil {
		return nil, fmt.Errorf("connect longport trade: %w", err)
	}
	return newLongportBroker(tradeContext, timeout), nil
}

func newLongportBroker(tc submitter, timeout time.Duration) *LongportBroker {
	settings := gobreaker.Settings{
		Name:        "longport-trade",
		MaxRequests: 1,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		IsSuccessful: func(err error) bool {
			var r rejection
			return err == nil || errors.As(err, &r)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logrus.WithFields(logrus.Fields{"breaker": name, "from": from.String(), "to": to.String()}).
				Warn("Circuit breaker state changed")
		},
	}
	return &LongportBroker{
		tc:      tc,
		breaker: gobreaker.NewCircuitBreaker(settings),
		timeout: timeout,
	}
}

func (b *LongportBroker) SubmitOrder(ctx context.Context, req OrderRequest) BrokerResult {
	if req.Quantity <= 0 {
		return RejectedResult(fmt.Errorf("invalid quantity %d", req.Quantity))
	}
	side := lptrade.OrderSideBuy
	if req.Side == entity.SideSell {
		side = lptrade.OrderSideSell
	}

	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	id, err := b.breaker.Execute(func() (interface{}, error) {
		orderID, err := b.tc.SubmitOrder(ctx, &lptrade.SubmitOrder{
			Symbol:            req.Symbol,
			OrderType:         lptrade.OrderTypeMO,
			Side:              side,
			SubmittedQuantity: uint64(req.Quantity),
			TimeInForce:       lptrade.TimeTypeDay,
		})
		if err != nil && !isTransport(ctx, err) {
			return nil, rejection{err: err}
		}
		return orderID, err
	})
	if err != nil {
		var r rejection
		if errors.As(err, &r) {
			return RejectedResult(r.err)
		}
		return TransportResult(err)
	}
	// 市价单提交成功时券商不返回成交价，由 Executor 使用最近行情价
	return FilledResult(id.(string), decimal.Zero)
}

func isTransport(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
