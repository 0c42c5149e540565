package monitor

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Metrics 监控循环的 Prometheus 指标，注册在独立的 Registry 上
type Metrics struct {
	registry  *prometheus.Registry
	triggers  *prometheus.CounterVec
	decisions *prometheus.CounterVec
	orders    *prometheus.CounterVec
	outcomes  *prometheus.CounterVec
	cash      prometheus.Gauge
	equity    prometheus.Gauge
	cycle     prometheus.Histogram
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		triggers: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "echostock_triggers_total",
			Help: "Price threshold triggers by symbol",
		}, []string{"symbol"}),
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "echostock_decisions_total",
			Help: "Decisions returned by the decision service by action",
		}, []string{"action", "malformed"}),
		orders: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "echostock_orders_total",
			Help: "Orders by mode and final status",
		}, []string{"mode", "status"}),
		outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "echostock_outcomes_total",
			Help: "Decision cycle outcomes by kind",
		}, []string{"kind"}),
		cash: factory.NewGauge(prometheus.GaugeOpts{
			Name: "echostock_cash_available",
			Help: "Available cash in the ledger",
		}),
		equity: factory.NewGauge(prometheus.GaugeOpts{
			Name: "echostock_equity",
			Help: "Cash plus marked position value",
		}),
		cycle: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "echostock_cycle_seconds",
			Help:    "Duration of one polling cycle",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) observeAccount(cash, equity decimal.Decimal) {
	m.cash.Set(cash.InexactFloat64())
	m.equity.Set(equity.InexactFloat64())
}

// Serve 在 addr 上暴露 /metrics，ctx 结束时关闭
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logrus.WithField("addr", addr).Info("Serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
