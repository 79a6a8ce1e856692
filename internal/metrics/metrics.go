// Package metrics exposes the scheduler and exit engine's Prometheus
// counters/histograms (spec §9 domain stack), grounded on
// chidi150c-coinbase's use of prometheus/client_golang as its sole
// observability dependency.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	TradesOpened = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "optionagent", Name: "trades_opened_total", Help: "Trades admitted and opened.",
	})
	TradesClosed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "optionagent", Name: "trades_closed_total", Help: "Trades closed, by exit reason.",
	}, []string{"reason"})
	AlertsRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "optionagent", Name: "alerts_rejected_total", Help: "Alerts rejected by admission, by reason.",
	}, []string{"reason"})
	PollLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "optionagent", Name: "poll_latency_seconds", Help: "Latency of scheduler poll loops.",
		Buckets: prometheus.DefBuckets,
	}, []string{"loop"})
	OpenPositions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "optionagent", Name: "open_positions", Help: "Currently open trades.",
	})
)

// Registry is the collector set the httpapi /metrics endpoint serves.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(TradesOpened, TradesClosed, AlertsRejected, PollLatency, OpenPositions)
}
