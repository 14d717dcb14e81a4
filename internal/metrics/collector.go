package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector registers and records the process metrics. A nil Collector
// is valid and records nothing, so metrics stay optional in wiring.
type Collector struct {
	// HTTP surface
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// task lifecycle
	tasksTotal    *prometheus.CounterVec
	taskDuration  *prometheus.HistogramVec
	tasksInFlight prometheus.Gauge

	// specialist branches
	branchesTotal  *prometheus.CounterVec
	branchDuration *prometheus.HistogramVec

	// identity delegation
	tokenExchangesTotal *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector creates the collector under the given namespace.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.tasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Total number of routed tasks by terminal state",
		},
		[]string{"state"},
	)

	c.taskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Task duration from submission to terminal state",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"state"},
	)

	c.tasksInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tasks_in_flight",
			Help:      "Number of tasks currently running",
		},
	)

	c.branchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "branches_total",
			Help:      "Total number of specialist branches by tag and outcome",
		},
		[]string{"tag", "outcome"},
	)

	c.branchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "branch_duration_seconds",
			Help:      "Specialist branch duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"tag"},
	)

	c.tokenExchangesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "token_exchanges_total",
			Help:      "Total number of identity token exchanges",
		},
		[]string{"outcome"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// RecordHTTPRequest records one served HTTP request.
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, path, statusClass(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// TaskStarted marks one task entering the running state.
func (c *Collector) TaskStarted() {
	if c == nil {
		return
	}
	c.tasksInFlight.Inc()
}

// TaskFinished records one task reaching a terminal state.
func (c *Collector) TaskFinished(state string, duration time.Duration) {
	if c == nil {
		return
	}
	c.tasksInFlight.Dec()
	c.tasksTotal.WithLabelValues(state).Inc()
	c.taskDuration.WithLabelValues(state).Observe(duration.Seconds())
}

// RecordBranch records one specialist branch. outcome is "ok" or the
// branch error code.
func (c *Collector) RecordBranch(tag, outcome string, duration time.Duration) {
	if c == nil {
		return
	}
	c.branchesTotal.WithLabelValues(tag, outcome).Inc()
	c.branchDuration.WithLabelValues(tag).Observe(duration.Seconds())
}

// RecordTokenExchange records one exchange attempt against the trusted
// token endpoint.
func (c *Collector) RecordTokenExchange(success bool) {
	if c == nil {
		return
	}
	outcome := "ok"
	if !success {
		outcome = "error"
	}
	c.tokenExchangesTotal.WithLabelValues(outcome).Inc()
}

// statusClass groups an HTTP status code for labeling.
func statusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
