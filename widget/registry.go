package widget

import (
	"fmt"
	"sort"
	"sync"
)

// BindContext carries everything a binder may inject into a renderer's props.
type BindContext struct {
	Widget         Descriptor
	Config         Config
	Interpretation Interpretation
	Input          RenderInput
	Commands       CommandBinding
	OnConfigChange ConfigChangeFunc
}

// Binder adds the type-specific collaborator bindings to the base prop bag.
type Binder func(bc BindContext, props Props) error

// Registration maps one type tag to its renderer.
type Registration struct {
	Type     string
	Renderer string
	Bind     Binder
}

// Registry is the closed set of dispatchable widget types.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Registration)}
}

// Register adds a registration. Registering a tag twice is a programming error.
func (r *Registry) Register(reg Registration) error {
	if reg.Type == "" {
		return fmt.Errorf("widget registry: empty type tag")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[reg.Type]; exists {
		return fmt.Errorf("widget registry: type %q already registered", reg.Type)
	}
	r.entries[reg.Type] = reg
	return nil
}

// MustRegister is Register for startup code.
func (r *Registry) MustRegister(reg Registration) {
	if err := r.Register(reg); err != nil {
		panic(err)
	}
}

// Lookup returns the registration of a type tag.
func (r *Registry) Lookup(widgetType string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.entries[widgetType]
	return reg, ok
}

// Types returns all registered tags in sorted order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.entries))
	for t := range r.entries {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// DefaultRegistry returns a registry holding every built-in widget type.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	plain := map[string]string{
		TypeValueCard:       "ValueCard",
		TypeLineChart:       "LineChart",
		TypeBarChart:        "BarChart",
		TypeTimeSeriesChart: "TimeSeriesChart",
		TypeAreaChart:       "AreaChart",
		TypePieChart:        "PieChart",
		TypeDonutChart:      "DonutChart",
		TypeScatterChart:    "ScatterChart",
		TypeRadarChart:      "RadarChart",
		TypeHeatmap:         "Heatmap",
		TypeProgressBar:     "ProgressBar",
		TypeLevelIndicator:  "LevelIndicator",
		TypeThermometer:     "Thermometer",
		TypeBattery:         "BatteryIndicator",
		TypeStatusIndicator: "StatusIndicator",
		TypeLED:             "LedIndicator",
		TypeImage:           "ImageWidget",
		TypeMap:             "MapWidget",
		TypeAlarmTable:      "AlarmTable",
		TypeDataTable:       "DataTable",
		TypeEventLog:        "EventLog",
		TypeText:            "TextWidget",
		TypeMarkdown:        "MarkdownWidget",
		TypeClock:           "ClockWidget",
		TypeIframe:          "IframeWidget",
	}
	for t, renderer := range plain {
		r.MustRegister(Registration{Type: t, Renderer: renderer})
	}

	r.MustRegister(Registration{Type: TypeGauge, Renderer: "GaugeWidget", Bind: bindSettings})
	r.MustRegister(Registration{Type: TypeRadialGauge, Renderer: "RadialGauge", Bind: bindSettings})
	r.MustRegister(Registration{Type: TypeCamera, Renderer: "CameraWidget", Bind: bindCamera})
	r.MustRegister(Registration{Type: TypeVideoStream, Renderer: "VideoStream", Bind: bindCamera})
	r.MustRegister(Registration{Type: TypeSlider, Renderer: "SliderControl", Bind: bindSlider})
	r.MustRegister(Registration{Type: TypeKnob, Renderer: "KnobControl", Bind: bindSlider})
	r.MustRegister(Registration{Type: TypeSwitch, Renderer: "SwitchControl", Bind: bindSwitch})
	r.MustRegister(Registration{Type: TypeToggle, Renderer: "ToggleControl", Bind: bindSwitch})
	r.MustRegister(Registration{Type: TypeButton, Renderer: "ButtonControl", Bind: bindSwitch})
	r.MustRegister(Registration{Type: TypeFanControl, Renderer: "FanControl", Bind: bindFans})
	r.MustRegister(Registration{Type: TypeDeviceCommand, Renderer: "DeviceCommand", Bind: bindDeviceCommand})

	return r
}
