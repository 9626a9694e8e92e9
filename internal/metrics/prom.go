package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PromSink is a Sink backed by github.com/prometheus/client_golang.
type PromSink struct {
	latency  *prometheus.HistogramVec
	counters *prometheus.CounterVec
}

// NewPromSink registers and returns a Prometheus-backed sink. reg may be
// nil, in which case the default registerer is used.
func NewPromSink(reg prometheus.Registerer) *PromSink {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "kvengine",
		Name:      "operation_latency_seconds",
		Help:      "Latency of engine operations by name.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})

	counters := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "kvengine",
		Name:      "operation_total",
		Help:      "Count of engine operations by name and outcome.",
	}, []string{"op", "outcome"})

	reg.MustRegister(latency, counters)

	return &PromSink{latency: latency, counters: counters}
}

// ObserveLatency implements Sink.
func (p *PromSink) ObserveLatency(op string, d time.Duration) {
	p.latency.WithLabelValues(op).Observe(d.Seconds())
}

// IncCounter implements Sink.
func (p *PromSink) IncCounter(op, outcome string) {
	p.counters.WithLabelValues(op, outcome).Inc()
}
