// Package metrics holds the Prometheus series the executor updates during a pass.
// They are served by the HTTP server at /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	ordersPlaced = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spot_orders_placed_total",
			Help: "Orders accepted by the exchange",
		},
		[]string{"kind"}, // entry|oco|amend|market_sell
	)

	orderErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spot_order_errors_total",
			Help: "Order submissions that failed, by classification",
		},
		[]string{"kind", "class"}, // class: transient|precision|rejected|other
	)

	transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spot_position_transitions_total",
			Help: "Position state transitions",
		},
		[]string{"origin", "to"},
	)

	tradesClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "spot_trades_closed_total",
			Help: "Closed trades by exit reason",
		},
		[]string{"reason"},
	)

	realizedPnL = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "spot_realized_pnl_quote_total",
			Help: "Sum of realized PnL of winning trades in quote currency",
		},
	)

	openPositions = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "spot_open_positions",
			Help: "Open positions per state at the end of the last pass",
		},
		[]string{"state"},
	)

	unprotectedFills = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "spot_unprotected_fills",
			Help: "Filled positions without an accepted protective order",
		},
	)

	passDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "spot_pass_duration_seconds",
			Help:    "Duration of one evaluation pass",
			Buckets: prometheus.DefBuckets,
		},
	)

	gridCycles = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "spot_grid_cycles_completed_total",
			Help: "Grid cycles whose legs all reached a terminal state",
		},
	)
)

func init() {
	prometheus.MustRegister(ordersPlaced, orderErrors, transitions)
	prometheus.MustRegister(tradesClosed, realizedPnL)
	prometheus.MustRegister(openPositions, unprotectedFills, passDuration, gridCycles)
}

func IncOrderPlaced(kind string)           { ordersPlaced.WithLabelValues(kind).Inc() }
func IncOrderError(kind, class string)     { orderErrors.WithLabelValues(kind, class).Inc() }
func IncTransition(origin, to string)      { transitions.WithLabelValues(origin, to).Inc() }
func IncGridCycleCompleted()               { gridCycles.Inc() }
func ObservePass(seconds float64)          { passDuration.Observe(seconds) }
func SetUnprotectedFills(n int)            { unprotectedFills.Set(float64(n)) }
func SetOpenPositions(state string, n int) { openPositions.WithLabelValues(state).Set(float64(n)) }

// ObserveTrade counts a closed trade. Losses are not subtracted since
// counters only go up; the daily summary carries the net figure.
func ObserveTrade(reason string, pnl float64) {
	tradesClosed.WithLabelValues(reason).Inc()
	if pnl > 0 {
		realizedPnL.Add(pnl)
	}
}
