// Package widget resolves the data every dashboard widget needs and dispatches it
// to the renderer registered for the widget's type tag.
//
// One render pass runs Interpret -> Normalize -> EvaluateGuards -> Dispatch against a
// single snapshot of the widget configuration and its live data.
package widget

import (
	"context"
	"time"
)

// Widget type tags known to the default registry.
const (
	TypeValueCard       = "value-card"
	TypeLineChart       = "line-chart"
	TypeBarChart        = "bar-chart"
	TypeTimeSeriesChart = "time-series-chart"
	TypeAreaChart       = "area-chart"
	TypePieChart        = "pie-chart"
	TypeDonutChart      = "donut-chart"
	TypeScatterChart    = "scatter-chart"
	TypeRadarChart      = "radar-chart"
	TypeHeatmap         = "heatmap"
	TypeGauge           = "gauge"
	TypeRadialGauge     = "radial-gauge"
	TypeProgressBar     = "progress-bar"
	TypeLevelIndicator  = "level-indicator"
	TypeThermometer     = "thermometer"
	TypeBattery         = "battery"
	TypeStatusIndicator = "status-indicator"
	TypeLED             = "led"
	TypeSwitch          = "switch"
	TypeToggle          = "toggle"
	TypeButton          = "button"
	TypeSlider          = "slider"
	TypeKnob            = "knob"
	TypeFanControl      = "fan-control"
	TypeDeviceCommand   = "device-command"
	TypeCamera          = "camera"
	TypeVideoStream     = "video-stream"
	TypeImage           = "image"
	TypeMap             = "map"
	TypeAlarmTable      = "alarm-table"
	TypeDataTable       = "data-table"
	TypeEventLog        = "event-log"
	TypeText            = "text"
	TypeMarkdown        = "markdown"
	TypeClock           = "clock"
	TypeIframe          = "iframe"
)

// Data source types.
const (
	SourceStatic = "static"
	SourceMQTT   = "mqtt"
	SourceCoAP   = "coap"
	SourceHTTP   = "http"
	SourceDevice = "device"
)

// IsLive reports whether a data source type is fed by a live transport.
func IsLive(sourceType string) bool {
	switch sourceType {
	case SourceMQTT, SourceCoAP, SourceHTTP, SourceDevice:
		return true
	}
	return false
}

// Descriptor identifies one widget on the dashboard.
type Descriptor struct {
	ID   string `json:"id" yaml:"id"`
	Type string `json:"type" yaml:"type"`
}

// Sample is one live reading keyed by telemetry key.
type Sample map[string]interface{}

// Selection is either TelemetrySelection or JSONObjectSelection, never both.
type Selection interface {
	selection()
}

// TelemetrySelection selects named series from the data source.
type TelemetrySelection struct {
	Keys []string
}

// JSONObjectSelection passes a configured object through to the renderer verbatim.
type JSONObjectSelection struct {
	Value interface{}
}

func (TelemetrySelection) selection()  {}
func (JSONObjectSelection) selection() {}

// DataSource is the decoded `dataSource` section of a widget configuration.
type DataSource struct {
	Type         string
	Selection    Selection
	StreamURL    string
	TelemetryOut []string

	// Transport locators
	Topic        string
	URL          string
	DeviceID     string
	CommandTopic string
	CommandURL   string
	Interval     time.Duration

	raw map[string]interface{}
}

// JSONObject returns the pass-through value when the source is in JSON-object mode.
func (ds DataSource) JSONObject() (interface{}, bool) {
	sel, ok := ds.Selection.(JSONObjectSelection)
	if !ok {
		return nil, false
	}
	return sel.Value, true
}

// Raw returns the undecoded dataSource object (nil if absent).
func (ds DataSource) Raw() map[string]interface{} {
	return ds.raw
}

// Interpretation is what the Config Interpreter extracts from a widget configuration.
type Interpretation struct {
	TelemetryKeys  []string
	BufferSize     int
	DataSourceType string
	DataSource     DataSource
}

// RenderInput is the only data shape renderers may depend on.
type RenderInput struct {
	Data     interface{} `json:"data"`
	DataKeys []string    `json:"dataKeys"`
	Theme    string      `json:"theme"`
}

// Command senders handed to interactive renderers.
type (
	SendCommandFunc               func(ctx context.Context, key string, value interface{}) error
	FanSendCommandFunc            func(ctx context.Context, fanID, command string, value interface{}) error
	CommandControlSendCommandFunc func(ctx context.Context, command string, payload interface{}) error
	SaveSettingsFunc              func(settings map[string]interface{})
)

// CommandBinding is the outbound side of a writable widget as provided by the command channel.
type CommandBinding struct {
	SendCommand               SendCommandFunc
	FanSendCommand            FanSendCommandFunc
	CommandControlSendCommand CommandControlSendCommandFunc
	IsSending                 bool
	Connected                 bool
}

// ConfigChangeFunc forwards a merged configuration to the owner of the layout.
type ConfigChangeFunc func(widgetID string, merged Config)

// LiveView is the current state of a live subscription.
// Version increases with every new sample.
type LiveView struct {
	Data    interface{}
	Version uint64
}

// LiveSource delivers continuously updated sample views for live widgets.
type LiveSource interface {
	Subscribe(desc Descriptor, cfg Config) LiveView
	Release(widgetID string)
}

// CommandChannel binds command senders for a data source.
type CommandChannel interface {
	Bind(ds DataSource) CommandBinding
}

// Entry is one widget of a layout together with its configuration.
type Entry struct {
	Descriptor
	Config Config
}
