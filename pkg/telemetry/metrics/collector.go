package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Admission outcomes recorded on the admissions counter.
const (
	OutcomeAllowed  = "allowed"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Config contains configuration for the collector.
type Config struct {
	// Namespace and Subsystem prefix every metric name.
	Namespace string
	Subsystem string
}

// Collector registers and records all gateway metrics. Updates are cheap:
// every metric instance is pre-allocated at construction.
type Collector struct {
	registry *prometheus.Registry

	admissionsTotal   *prometheus.CounterVec
	admissionDuration *prometheus.HistogramVec
	partitionsActive  prometheus.GaugeFunc
	evictionsTotal    *prometheus.CounterVec
	proxiedTotal      *prometheus.CounterVec
}

// NewCollector creates a collector with the given configuration and
// registry. A nil registry gets a fresh private one. partitionCount, when
// non-nil, feeds the active-partitions gauge on each scrape.
func NewCollector(cfg Config, registry *prometheus.Registry, partitionCount func() int) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "floodgate"
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = "gateway"
	}

	c := &Collector{
		registry: registry,

		admissionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "admissions_total",
				Help:      "Admission decisions by policy and outcome",
			},
			[]string{"policy", "outcome"},
		),

		admissionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "admission_duration_seconds",
				Help:      "Latency of admission decisions",
				// Decisions are in-memory: sub-millisecond in the common case.
				Buckets: []float64{0.00001, 0.0001, 0.001, 0.01, 0.1},
			},
			[]string{"outcome"},
		),

		evictionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "partition_evictions_total",
				Help:      "Partitioned limiters evicted after idling",
			},
			[]string{"policy"},
		),

		proxiedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "proxied_requests_total",
				Help:      "Responses returned from the upstream by status class",
			},
			[]string{"code"},
		),
	}

	if partitionCount != nil {
		c.partitionsActive = prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "partitions_active",
				Help:      "Live partitioned limiter instances",
			},
			func() float64 { return float64(partitionCount()) },
		)
		registry.MustRegister(c.partitionsActive)
	}

	registry.MustRegister(c.admissionsTotal, c.admissionDuration, c.evictionsTotal, c.proxiedTotal)
	return c
}

// RecordAdmission records one admission decision and its latency.
func (c *Collector) RecordAdmission(policy, outcome string, duration time.Duration) {
	if policy == "" {
		policy = "none"
	}
	c.admissionsTotal.WithLabelValues(policy, outcome).Inc()
	c.admissionDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordEviction records an idle partition eviction.
func (c *Collector) RecordEviction(policy string) {
	c.evictionsTotal.WithLabelValues(policy).Inc()
}

// RecordProxied records an upstream response by status class ("2xx", ...).
func (c *Collector) RecordProxied(statusCode int) {
	var code string
	switch {
	case statusCode >= 500:
		code = "5xx"
	case statusCode >= 400:
		code = "4xx"
	case statusCode >= 300:
		code = "3xx"
	default:
		code = "2xx"
	}
	c.proxiedTotal.WithLabelValues(code).Inc()
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }
