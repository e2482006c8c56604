package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

func newTestRegistry() *Registry {
	return New(prometheus.NewRegistry())
}

func TestSnapshot_ReflectsIncrements(t *testing.T) {
	r := newTestRegistry()

	r.Request()
	r.Request()
	r.Served()
	r.TimedOut()

	snap := r.Snapshot()
	assert.Equal(t, 2.0, snap.Requests)
	assert.Equal(t, 1.0, snap.Served)
	assert.Equal(t, 1.0, snap.TimeOuts)
}

func TestProcessing_IsRequestsMinusServedMinusTimeouts(t *testing.T) {
	r := newTestRegistry()

	for i := 0; i < 5; i++ {
		r.Request()
	}
	r.Served()
	r.Served()
	r.TimedOut()

	assert.Equal(t, 2.0, r.Snapshot().Processing())
}

func TestDrop_IncrementsByReason(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.Drop(ReasonOversized)
	r.Drop(ReasonOversized)
	r.Drop(ReasonForeignUpstream)

	metricFamilies, err := reg.Gather()
	assert.NoError(t, err)

	var total float64
	for _, mf := range metricFamilies {
		if mf.GetName() != "relaydns_dropped_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	assert.Equal(t, 3.0, total)
}

func TestSetInFlight_UpdatesGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.SetInFlight(42)

	metricFamilies, err := reg.Gather()
	assert.NoError(t, err)

	var found bool
	for _, mf := range metricFamilies {
		if mf.GetName() != "relaydns_in_flight" {
			continue
		}
		found = true
		assert.Equal(t, 42.0, mf.GetMetric()[0].GetGauge().GetValue())
	}
	assert.True(t, found, "expected relaydns_in_flight metric to be registered")
}
