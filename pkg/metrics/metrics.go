package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// CheckoutMetrics is safe to use through a nil pointer; every method is then a no-op.
type CheckoutMetrics struct {
	Checkouts   *prometheus.CounterVec
	Adjustments *prometheus.CounterVec
	LatencyMS   prometheus.Histogram
}

func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: "checkout",
		Name:      "results_total",
		Help:      "Checkout runs by overall result.",
	}, []string{"result"})
	adjustments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Subsystem: "stock",
		Name:      "adjustments_total",
		Help:      "Per-product stock adjustments by path and result.",
	}, []string{"path", "result"})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "storefront",
		Subsystem: "checkout",
		Name:      "reconcile_duration_ms",
		Help:      "Time spent reconciling one cart against the stock store.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	})

	reg.MustRegister(checkouts, adjustments, latency)
	return &CheckoutMetrics{Checkouts: checkouts, Adjustments: adjustments, LatencyMS: latency}
}

func (m *CheckoutMetrics) ObserveCheckout(succeeded bool) {
	if m == nil {
		return
	}

	result := "failure"
	if succeeded {
		result = "success"
	}
	m.Checkouts.WithLabelValues(result).Inc()
}

func (m *CheckoutMetrics) ObserveAdjustment(path, result string) {
	if m == nil {
		return
	}
	m.Adjustments.WithLabelValues(path, result).Inc()
}

func (m *CheckoutMetrics) ObserveReconcile(ms float64) {
	if m == nil {
		return
	}
	m.LatencyMS.Observe(ms)
}

func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
