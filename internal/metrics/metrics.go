package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all Prometheus metrics for the trading engine.
type Registry struct {
	*prometheus.Registry

	cyclesTotal      prometheus.Counter
	cycleDuration    prometheus.Histogram
	signalsGenerated *prometheus.CounterVec
	tradesTotal      *prometheus.CounterVec
}

// NewRegistry creates a registry with all engine metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		cyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tradebot_cycles_total",
			Help: "Total number of trading cycles run",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradebot_cycle_duration_seconds",
			Help:    "Trading cycle duration in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		signalsGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradebot_signals_generated_total",
			Help: "Total number of strategy signals generated",
		}, []string{"strategy", "action"}),
		tradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradebot_trades_total",
			Help: "Total number of trade attempts by outcome",
		}, []string{"action", "status"}),
	}

	reg.MustRegister(r.cyclesTotal, r.cycleDuration, r.signalsGenerated, r.tradesTotal)
	return r
}

// CycleCompleted records one finished trading cycle.
func (r *Registry) CycleCompleted(seconds float64) {
	r.cyclesTotal.Inc()
	r.cycleDuration.Observe(seconds)
}

// SignalGenerated counts one strategy signal.
func (r *Registry) SignalGenerated(strategy, action string) {
	r.signalsGenerated.WithLabelValues(strategy, action).Inc()
}

// TradeRecorded counts one trade attempt outcome.
func (r *Registry) TradeRecorded(action, status string) {
	r.tradesTotal.WithLabelValues(action, status).Inc()
}

// Handler returns the HTTP handler serving this registry.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.Registry, promhttp.HandlerOpts{})
}
