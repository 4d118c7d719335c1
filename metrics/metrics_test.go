package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"iot-dashboard/widget"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(reg)

	r.ObserveOutcome(widget.TypeGauge, widget.StateRendered)
	r.ObserveOutcome(widget.TypeGauge, widget.StateRendered)
	r.ObserveOutcome(widget.TypeCamera, widget.StateError)
	r.ObserveFault(widget.TypeCamera)
	r.ObserveSample("mqtt")
	r.ObserveCommand("http", "error")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.outcomes.WithLabelValues("gauge", "rendered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.outcomes.WithLabelValues("camera", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.faults.WithLabelValues("camera")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.samples.WithLabelValues("mqtt")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.commands.WithLabelValues("http", "error")))
}

func TestRegisterSubscriptions(t *testing.T) {
	reg := prometheus.NewRegistry()
	RegisterSubscriptions(reg, func() int { return 3 })

	n, err := testutil.GatherAndCount(reg, "dashboard_live_subscriptions")
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewRecorder(reg)
	assert.Panics(t, func() { NewRecorder(reg) })
}
