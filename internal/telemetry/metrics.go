package telemetry

import "github.com/prometheus/client_golang/prometheus"

// HTTPRequestDuration records request duration, labeled by method, route
// pattern, and status code. Observed by the httpserver.Metrics middleware.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "redisgate",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	},
	[]string{"method", "route", "status"},
)

// CommandsTotal counts dispatched Redis commands by name and outcome.
var CommandsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "redisgate",
		Subsystem: "command",
		Name:      "total",
		Help:      "Total number of dispatched Redis commands by command name and outcome.",
	},
	[]string{"command", "outcome"},
)

// CommandDuration records the time spent executing a Redis command on a
// pooled connection, not including HTTP parsing/encoding.
var CommandDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "redisgate",
		Subsystem: "command",
		Name:      "duration_seconds",
		Help:      "Redis command execution duration in seconds.",
		Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	},
	[]string{"command"},
)

// PoolsActive reports the current number of registered per-instance pools.
var PoolsActive = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "redisgate",
		Subsystem: "pool",
		Name:      "active",
		Help:      "Current number of instances with a live connection pool.",
	},
)

// PoolEvictionsTotal counts pool evictions by reason.
var PoolEvictionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "redisgate",
		Subsystem: "pool",
		Name:      "evictions_total",
		Help:      "Total number of connection pool evictions by reason.",
	},
	[]string{"reason"},
)

// AuthRejectionsTotal counts gate rejections by kind (unauthenticated,
// forbidden, instance_not_found).
var AuthRejectionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "redisgate",
		Subsystem: "auth",
		Name:      "rejections_total",
		Help:      "Total number of authorization gate rejections by kind.",
	},
	[]string{"kind"},
)

// All returns all RedisGate-specific metrics for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		HTTPRequestDuration,
		CommandsTotal,
		CommandDuration,
		PoolsActive,
		PoolEvictionsTotal,
		AuthRejectionsTotal,
	}
}
