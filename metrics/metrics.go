// Package metrics exposes dashboard counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"iot-dashboard/widget"
)

// Recorder implements the observer hooks of the render engine, the live data
// manager and the command channel.
type Recorder struct {
	outcomes *prometheus.CounterVec
	faults   *prometheus.CounterVec
	samples  *prometheus.CounterVec
	commands *prometheus.CounterVec
}

// NewRecorder creates the collectors and registers them with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_render_outcomes_total",
			Help: "Render passes by widget type and terminal state.",
		}, []string{"widget_type", "state"}),
		faults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_render_faults_total",
			Help: "Renderer faults contained at the dispatch boundary.",
		}, []string{"widget_type"}),
		samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_live_samples_total",
			Help: "Live samples received per transport.",
		}, []string{"transport"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dashboard_commands_total",
			Help: "Device commands sent per transport and result.",
		}, []string{"transport", "result"}),
	}
	reg.MustRegister(r.outcomes, r.faults, r.samples, r.commands)
	return r
}

// RegisterSubscriptions exposes the number of running live subscriptions.
func RegisterSubscriptions(reg prometheus.Registerer, count func() int) {
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "dashboard_live_subscriptions",
		Help: "Running live data subscriptions.",
	}, func() float64 { return float64(count()) }))
}

func (r *Recorder) ObserveOutcome(widgetType string, state widget.State) {
	r.outcomes.WithLabelValues(widgetType, string(state)).Inc()
}

func (r *Recorder) ObserveFault(widgetType string) {
	r.faults.WithLabelValues(widgetType).Inc()
}

func (r *Recorder) ObserveSample(transport string) {
	r.samples.WithLabelValues(transport).Inc()
}

func (r *Recorder) ObserveCommand(transport, result string) {
	r.commands.WithLabelValues(transport, result).Inc()
}
