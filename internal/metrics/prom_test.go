package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestNopSinkDiscardsObservations(t *testing.T) {
	var s Sink = NopSink{}
	s.ObserveLatency("op", time.Millisecond)
	s.IncCounter("op", "success")
}

func TestPromSinkRecordsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink := NewPromSink(reg)

	sink.IncCounter("GET", "success")
	sink.IncCounter("GET", "success")
	sink.ObserveLatency("GET", 5*time.Millisecond)

	metricFamilies, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, mf := range metricFamilies {
		if mf.GetName() == "kvengine_operation_total" {
			found = true
			for _, m := range mf.GetMetric() {
				if labelValue(m, "op") == "GET" && labelValue(m, "outcome") == "success" {
					require.Equal(t, float64(2), m.GetCounter().GetValue())
				}
			}
		}
	}
	require.True(t, found, "expected kvengine_operation_total metric to be registered")
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}
