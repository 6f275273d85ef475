package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the engine.
	Registry = prometheus.NewRegistry()

	// HTTPRequests counts requests by method, path, and status.
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds.
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// SolveDuration tracks end-to-end solve latency by outcome.
	SolveDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "solve_duration_seconds", Help: "Solve latency in seconds.", Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30}},
		[]string{"outcome"},
	)
	// DroppedRides counts rides the solver could not serve.
	DroppedRides = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "solve_dropped_rides_total", Help: "Rides left unserved across all solves."},
	)
	// OSRMRequests counts road-network calls by endpoint and status.
	OSRMRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "osrm_requests_total", Help: "OSRM requests by endpoint and status."},
		[]string{"endpoint", "status"},
	)
)

// RegisterDefault registers collectors to the engine registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(SolveDuration)
		Registry.MustRegister(DroppedRides)
		Registry.MustRegister(OSRMRequests)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
