package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Marketen/exitbus-verifier/internal/logger"
)

const namespace = "exitbus"

// BucketHTTPReqs are the api_duration_ms buckets.
var BucketHTTPReqs = []float64{0, 1, 2, 5, 10, 20, 50, 100, 200, 500, 1000, 2000, 5000}

var (
	ProofVerifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "proof_verifications_total",
		Help:      "Proof verifications by kind and result.",
	}, []string{"kind", "result"})

	ExitRequestsDelivered = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "exit_requests_delivered_total",
		Help:      "Exit request entries delivered as exit events.",
	})

	Deliveries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "deliveries_total",
		Help:      "Delivery calls that advanced a batch.",
	})

	LimitUpdates = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "limit_updates_total",
		Help:      "Limiter reconfigurations.",
	}, []string{"limiter"})

	LimitMax = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "limit_max",
		Help:      "Configured maximum of each limiter. Zero is unlimited.",
	}, []string{"limiter"})

	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "api_request_count",
		Help:      "API requests by route name, status code and method.",
	}, []string{"name", "code", "method"})

	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "api_duration_ms",
		Help:      "API request durations in milliseconds.",
		Buckets:   BucketHTTPReqs,
	}, []string{"name", "code", "method"})
)

var registerOnce sync.Once

// Register adds every collector to the default prometheus registry. Calling it
// more than once is harmless.
func Register() {
	registerOnce.Do(func() {
		for _, c := range []prometheus.Collector{
			ProofVerifications, ExitRequestsDelivered, Deliveries, LimitUpdates, LimitMax, HTTPRequests, HTTPDuration,
		} {
			register(c)
		}
	})
}

func register(c prometheus.Collector) {
	if err := prometheus.Register(c); err != nil {
		logger.Warn("unable to register metric: %v", err)
	}
}

// WatchLimiter exports the available budget of a limiter, read at scrape time.
func WatchLimiter(name string, current func() uint64) {
	register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   namespace,
		Name:        "limit_current",
		Help:        "Requests a limiter allows right now.",
		ConstLabels: prometheus.Labels{"limiter": name},
	}, func() float64 { return float64(current()) }))
}

// ObserveProof counts one proof verification.
func ObserveProof(kind string, err error) {
	result := "valid"
	if err != nil {
		result = "invalid"
	}
	ProofVerifications.WithLabelValues(kind, result).Inc()
}

func Handler() http.Handler {
	return promhttp.Handler()
}
