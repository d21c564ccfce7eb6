// Package metrics exposes Prometheus instruments for backtests and live
// trading.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"traderbot/internal/domain"
	"traderbot/internal/engine"
)

var (
	BacktestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "traderbot_backtests_total", Help: "Backtests run, by outcome"},
		[]string{"strategy", "outcome"},
	)
	BacktestReturn = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "traderbot_backtest_total_return", Help: "Total return of the latest backtest"},
		[]string{"strategy", "symbol"},
	)
	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "traderbot_ticks_total", Help: "Live trading ticks, by action"},
		[]string{"symbol", "action"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "traderbot_orders_total", Help: "Orders submitted by the live trader"},
		[]string{"symbol", "side", "status"},
	)
	PositionQty = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "traderbot_position_qty", Help: "Shares held before the latest tick's order"},
		[]string{"symbol"},
	)
	LastClose = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: "traderbot_last_close", Help: "Close of the newest bar seen by the trader"},
		[]string{"symbol"},
	)
)

func init() {
	prometheus.MustRegister(BacktestsTotal, BacktestReturn, TicksTotal, OrdersTotal, PositionQty, LastClose)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveBacktest records the outcome of one backtest.
func ObserveBacktest(strategy, symbol string, report domain.PerformanceReport, err error) {
	if err != nil {
		BacktestsTotal.WithLabelValues(strategy, "error").Inc()
		return
	}
	BacktestsTotal.WithLabelValues(strategy, "ok").Inc()
	BacktestReturn.WithLabelValues(strategy, symbol).Set(report.TotalReturn)
}

// ObserveTick records one live trading tick. It has the signature expected
// by engine.Trader.OnTick.
func ObserveTick(r engine.TickResult) {
	TicksTotal.WithLabelValues(r.Symbol, r.Action).Inc()
	if r.Close > 0 {
		LastClose.WithLabelValues(r.Symbol).Set(r.Close)
		PositionQty.WithLabelValues(r.Symbol).Set(r.HeldQty)
	}
	if r.Order != nil {
		OrdersTotal.WithLabelValues(r.Symbol, string(r.Order.Side), string(r.Order.Status)).Inc()
	}
}
