// Package metrics exposes the Prometheus instrumentation surface the engine
// and analyzer report through when a Recorder is supplied. Registration
// happens once, at init, exactly as in the source codebase's metrics
// package.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	tradesOpened = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "btsim_trades_opened_total",
			Help: "Total number of positions opened, by direction.",
		},
		[]string{"direction"},
	)

	tradesClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "btsim_trades_closed_total",
			Help: "Total number of positions closed, by direction and exit reason.",
		},
		[]string{"direction", "exit_reason"},
	)

	equityGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "btsim_equity",
			Help: "Working capital after the most recently analyzed trade sequence.",
		},
	)

	maxDrawdownGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "btsim_max_drawdown_pct",
			Help: "Most recently computed peak-to-trough drawdown, percent (<= 0).",
		},
	)

	sharpeGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "btsim_sharpe_ratio",
			Help: "Most recently computed annualized Sharpe ratio.",
		},
	)
)

func init() {
	prometheus.MustRegister(tradesOpened, tradesClosed, equityGauge, maxDrawdownGauge, sharpeGauge)
}

// Recorder is the instrumentation side-channel passed into SimOptions and
// AnalysisOptions. It never influences simulation or analysis output — it
// only observes it, matching the source's "submit order, then bump a
// counter" pattern.
type Recorder struct{}

// NewRecorder returns a Recorder wired to the package-level collectors.
func NewRecorder() *Recorder { return &Recorder{} }

// TradeOpened increments the opened-positions counter for dir.
func (r *Recorder) TradeOpened(dir string) {
	if r == nil {
		return
	}
	tradesOpened.WithLabelValues(dir).Inc()
}

// TradeClosed increments the closed-positions counter for dir/reason.
func (r *Recorder) TradeClosed(dir, reason string) {
	if r == nil {
		return
	}
	tradesClosed.WithLabelValues(dir, reason).Inc()
}

// SetAnalysis publishes the post-hoc equity/drawdown/Sharpe gauges once an
// Analysis has been fully computed.
func (r *Recorder) SetAnalysis(finalCapital, maxDrawdownPct, sharpe float64) {
	if r == nil {
		return
	}
	equityGauge.Set(finalCapital)
	maxDrawdownGauge.Set(maxDrawdownPct)
	sharpeGauge.Set(sharpe)
}
