package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LedgerMetrics records contract access activity.
type LedgerMetrics struct {
	reads        *prometheus.CounterVec
	writes       *prometheus.CounterVec
	scanDuration prometheus.Histogram
}

// HTTPMetrics records gateway boundary activity.
type HTTPMetrics struct {
	requests  *prometheus.CounterVec
	throttled *prometheus.CounterVec
}

var (
	ledgerOnce     sync.Once
	ledgerRegistry *LedgerMetrics

	httpOnce     sync.Once
	httpRegistry *HTTPMetrics
)

// Ledger returns the lazily-initialised ledger metrics registry.
func Ledger() *LedgerMetrics {
	ledgerOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			reads: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "chai",
				Subsystem: "ledger",
				Name:      "reads_total",
				Help:      "Contract read calls segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			writes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "chai",
				Subsystem: "ledger",
				Name:      "writes_total",
				Help:      "Submitted contract transactions segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			scanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "chai",
				Subsystem: "ledger",
				Name:      "scan_duration_seconds",
				Help:      "Latency distribution of sequential-ID discovery passes.",
				Buckets:   prometheus.DefBuckets,
			}),
		}
		prometheus.MustRegister(ledgerRegistry.reads, ledgerRegistry.writes, ledgerRegistry.scanDuration)
	})
	return ledgerRegistry
}

// ObserveRead records one contract read call.
func (m *LedgerMetrics) ObserveRead(method string, err error) {
	if m == nil {
		return
	}
	m.reads.WithLabelValues(method, outcome(err)).Inc()
}

// ObserveWrite records one submitted contract transaction.
func (m *LedgerMetrics) ObserveWrite(method string, err error) {
	if m == nil {
		return
	}
	m.writes.WithLabelValues(method, outcome(err)).Inc()
}

// ObserveScan records one discovery pass.
func (m *LedgerMetrics) ObserveScan(d time.Duration) {
	if m == nil {
		return
	}
	m.scanDuration.Observe(d.Seconds())
}

// HTTP returns the lazily-initialised gateway metrics registry.
func HTTP() *HTTPMetrics {
	httpOnce.Do(func() {
		httpRegistry = &HTTPMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "chai",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests segmented by route, method, and status.",
			}, []string{"route", "method", "status"}),
			throttled: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "chai",
				Subsystem: "http",
				Name:      "throttled_total",
				Help:      "Requests rejected by the rate limiter segmented by scope.",
			}, []string{"scope"}),
		}
		prometheus.MustRegister(httpRegistry.requests, httpRegistry.throttled)
	})
	return httpRegistry
}

// ObserveRequest records one served request.
func (m *HTTPMetrics) ObserveRequest(route, method string, status int) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
}

// ObserveThrottle records one rate-limited rejection.
func (m *HTTPMetrics) ObserveThrottle(scope string) {
	if m == nil {
		return
	}
	m.throttled.WithLabelValues(scope).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
