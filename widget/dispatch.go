package widget

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/sirupsen/logrus"
)

// State is the terminal state of a widget for one render pass.
type State string

const (
	StateNoTelemetry State = "no-telemetry"
	StateLoading     State = "loading"
	StateRendered    State = "rendered"
	StateError       State = "error"
	StateUnknownType State = "unknown-type"
)

// Props is the prop bag handed to a renderer.
type Props map[string]interface{}

// Serializable returns the props without function values, for the wire.
func (p Props) Serializable() Props {
	out := make(Props, len(p))
	for k, v := range p {
		if v != nil && reflect.TypeOf(v).Kind() == reflect.Func {
			continue
		}
		out[k] = v
	}
	return out
}

// Output is what one render pass produces for one widget.
type Output struct {
	WidgetID   string `json:"widgetId"`
	WidgetType string `json:"widgetType"`
	State      State  `json:"state"`
	Renderer   string `json:"renderer,omitempty"`
	Props      Props  `json:"props,omitempty"`
	Message    string `json:"message,omitempty"`
}

// RenderFault is a failure raised while building a renderer's output.
type RenderFault struct {
	WidgetType string
	Err        error
}

func (f *RenderFault) Error() string {
	return fmt.Sprintf("error rendering widget %q: %v", f.WidgetType, f.Err)
}

func (f *RenderFault) Unwrap() error {
	return f.Err
}

// Result is either a renderable output or a contained fault.
type Result struct {
	Output Output
	Fault  *RenderFault
}

// Renderable returns the output, or the error placeholder if the dispatch faulted.
func (r Result) Renderable() Output {
	if r.Fault == nil {
		return r.Output
	}
	return Output{
		WidgetID:   r.Output.WidgetID,
		WidgetType: r.Fault.WidgetType,
		State:      StateError,
		Message:    "Error rendering widget: " + r.Fault.WidgetType,
	}
}

// Dispatcher maps a widget's type tag to its registration and builds the props.
type Dispatcher struct {
	registry *Registry
	log      logrus.FieldLogger
}

// NewDispatcher creates a dispatcher over a registry.
func NewDispatcher(registry *Registry, log logrus.FieldLogger) *Dispatcher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Dispatcher{registry: registry, log: log}
}

// Dispatch builds the renderer output inside a failure boundary. A binder error or
// panic never escapes; it is returned as Result.Fault.
func (d *Dispatcher) Dispatch(bc BindContext) (res Result) {
	desc := bc.Widget
	reg, ok := d.registry.Lookup(desc.Type)
	if !ok {
		d.log.WithFields(logrus.Fields{
			"widget_id":   desc.ID,
			"widget_type": desc.Type,
		}).Warn("WIDGET: Unknown widget type")
		return Result{Output: Output{
			WidgetID:   desc.ID,
			WidgetType: desc.Type,
			State:      StateUnknownType,
			Message:    "Unknown widget type: " + desc.Type,
		}}
	}

	defer func() {
		if r := recover(); r != nil {
			res = d.fault(desc, fmt.Errorf("panic: %v", r))
		}
	}()

	props := baseProps(bc.Config, bc.Input)
	if reg.Bind != nil {
		if err := reg.Bind(bc, props); err != nil {
			return d.fault(desc, err)
		}
	}

	return Result{Output: Output{
		WidgetID:   desc.ID,
		WidgetType: desc.Type,
		State:      StateRendered,
		Renderer:   reg.Renderer,
		Props:      props,
	}}
}

func (d *Dispatcher) fault(desc Descriptor, err error) Result {
	d.log.WithFields(logrus.Fields{
		"widget_id":   desc.ID,
		"widget_type": desc.Type,
	}).Errorf("WIDGET: Error rendering widget: %v", err)
	return Result{
		Output: Output{WidgetID: desc.ID, WidgetType: desc.Type},
		Fault:  &RenderFault{WidgetType: desc.Type, Err: err},
	}
}

// baseProps is the uniform contract: every config field plus data, dataKeys and theme.
func baseProps(cfg Config, input RenderInput) Props {
	props := make(Props, len(cfg)+3)
	for k, v := range cfg {
		props[k] = v
	}
	props["data"] = input.Data
	props["dataKeys"] = input.DataKeys
	props["theme"] = input.Theme
	return props
}

// settingsSaver merges new settings over the current config and hands the result
// to the layout owner. Nothing is persisted here.
func settingsSaver(bc BindContext) SaveSettingsFunc {
	id, cfg, onChange := bc.Widget.ID, bc.Config, bc.OnConfigChange
	return func(settings map[string]interface{}) {
		merged := cfg.Clone()
		for k, v := range settings {
			merged[k] = v
		}
		if onChange != nil {
			onChange(id, merged)
		}
	}
}

func bindSettings(bc BindContext, props Props) error {
	props["onSaveSettings"] = settingsSaver(bc)
	return nil
}

func bindCamera(bc BindContext, props Props) error {
	props["streamUrl"] = ResolveStreamURL(bc.Config, bc.Interpretation)
	props["onSaveSettings"] = settingsSaver(bc)
	return nil
}

func bindCommand(bc BindContext, props Props, send interface{}) {
	props["sendCommand"] = send
	props["isSending"] = bc.Commands.IsSending
	props["connected"] = bc.Commands.Connected
}

func bindSwitch(bc BindContext, props Props) error {
	bindCommand(bc, props, bc.Commands.SendCommand)
	return nil
}

func bindSlider(bc BindContext, props Props) error {
	bindCommand(bc, props, bc.Commands.SendCommand)
	out := toStrings(bc.Config["telemetryOut"])
	if len(out) == 0 {
		out = append(out, bc.Interpretation.DataSource.TelemetryOut...)
	}
	props["telemetryOut"] = out
	return nil
}

func bindFans(bc BindContext, props Props) error {
	bindCommand(bc, props, bc.Commands.FanSendCommand)
	fans, ok := bc.Config["fans"].([]interface{})
	if !ok || fans == nil {
		fans = []interface{}{}
	}
	props["fans"] = fans
	return nil
}

func bindDeviceCommand(bc BindContext, props Props) error {
	bindCommand(bc, props, bc.Commands.CommandControlSendCommand)
	return nil
}

var streamSchemes = []string{"rtsp://", "rtmp://", "http://", "https://", "ws://", "wss://"}
var streamSuffixes = []string{".m3u8", ".mjpg", ".mjpeg"}

// ResolveStreamURL picks config.streamUrl, then dataSource.streamUrl, then the first
// telemetry key if it looks like a stream locator. The result is always a string.
func ResolveStreamURL(cfg Config, in Interpretation) string {
	if s := cfg.String("streamUrl"); s != "" {
		return s
	}
	if in.DataSource.StreamURL != "" {
		return in.DataSource.StreamURL
	}
	if len(in.TelemetryKeys) > 0 && looksLikeStream(in.TelemetryKeys[0]) {
		return in.TelemetryKeys[0]
	}
	return ""
}

func looksLikeStream(s string) bool {
	lower := strings.ToLower(strings.TrimSpace(s))
	for _, scheme := range streamSchemes {
		if strings.HasPrefix(lower, scheme) {
			return true
		}
	}
	for _, suffix := range streamSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}
