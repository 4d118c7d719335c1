package widget

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
)

// ErrNoCommandChannel is returned by senders of widgets rendered without a command channel.
var ErrNoCommandChannel = errors.New("widget: no command channel configured")

// Observer is notified about the outcome of every render pass.
type Observer interface {
	ObserveOutcome(widgetType string, state State)
	ObserveFault(widgetType string)
}

// Engine runs the complete render pass for a widget.
type Engine struct {
	registry   *Registry
	dispatcher *Dispatcher
	memo       *Memo
	live       LiveSource
	commands   CommandChannel
	onChange   ConfigChangeFunc
	observer   Observer
	log        logrus.FieldLogger
}

// Option configures an Engine.
type Option func(*Engine)

// WithRegistry replaces the default registry.
func WithRegistry(r *Registry) Option {
	return func(e *Engine) { e.registry = r }
}

// WithLiveSource sets the live data adapter.
func WithLiveSource(src LiveSource) Option {
	return func(e *Engine) { e.live = src }
}

// WithCommandChannel sets the outbound command channel.
func WithCommandChannel(ch CommandChannel) Option {
	return func(e *Engine) { e.commands = ch }
}

// WithConfigChange sets the callback that receives merged configurations.
func WithConfigChange(fn ConfigChangeFunc) Option {
	return func(e *Engine) { e.onChange = fn }
}

// WithObserver sets the render outcome observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(e *Engine) { e.log = log }
}

// NewEngine creates an engine. Without options it renders static widgets only.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		memo: NewMemo(),
		log:  logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.registry == nil {
		e.registry = DefaultRegistry()
	}
	e.dispatcher = NewDispatcher(e.registry, e.log)
	return e
}

// Registry returns the registry used by the engine.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Render runs one render pass for a widget. It never panics and always returns an output.
func (e *Engine) Render(desc Descriptor, cfg Config) Output {
	if cfg == nil {
		cfg = Config{}
	}
	in := Interpret(desc, cfg)

	var view LiveView
	_, jsonMode := in.DataSource.JSONObject()
	if e.live != nil {
		if IsLive(in.DataSourceType) && !jsonMode {
			view = e.live.Subscribe(desc, cfg.With("bufferSize", in.BufferSize))
		} else {
			e.live.Release(desc.ID)
		}
	}

	input, cached := e.memo.Normalize(desc, in, cfg, view)
	log := e.log.WithFields(logrus.Fields{
		"widget_id":   desc.ID,
		"widget_type": desc.Type,
		"source":      in.DataSourceType,
		"cached":      cached,
	})

	var out Output
	switch EvaluateGuards(desc, in, input) {
	case GuardNoTelemetry:
		log.Info("WIDGET: No telemetry keys selected")
		out = Output{
			WidgetID:   desc.ID,
			WidgetType: desc.Type,
			State:      StateNoTelemetry,
			Message:    "No telemetry keys selected",
		}
	case GuardNoData:
		out = Output{
			WidgetID:   desc.ID,
			WidgetType: desc.Type,
			State:      StateLoading,
			Message:    "Waiting for data...",
		}
	default:
		res := e.dispatcher.Dispatch(BindContext{
			Widget:         desc,
			Config:         cfg,
			Interpretation: in,
			Input:          input,
			Commands:       e.bindCommands(in.DataSource),
			OnConfigChange: e.onChange,
		})
		if res.Fault != nil && e.observer != nil {
			e.observer.ObserveFault(desc.Type)
		}
		out = res.Renderable()
	}

	log.WithField("state", out.State).Debug("WIDGET: render pass finished")
	if e.observer != nil {
		e.observer.ObserveOutcome(desc.Type, out.State)
	}
	return out
}

// RenderAll renders every entry of a layout. A fault in one widget does not affect the others.
func (e *Engine) RenderAll(entries []Entry) []Output {
	outputs := make([]Output, 0, len(entries))
	for _, entry := range entries {
		outputs = append(outputs, e.Render(entry.Descriptor, entry.Config))
	}
	return outputs
}

// Forget releases the subscription and cache entry of a removed widget.
func (e *Engine) Forget(widgetID string) {
	e.memo.Forget(widgetID)
	if e.live != nil {
		e.live.Release(widgetID)
	}
}

func (e *Engine) bindCommands(ds DataSource) CommandBinding {
	if e.commands != nil {
		return e.commands.Bind(ds)
	}
	return CommandBinding{
		SendCommand: func(context.Context, string, interface{}) error {
			return ErrNoCommandChannel
		},
		FanSendCommand: func(context.Context, string, string, interface{}) error {
			return ErrNoCommandChannel
		},
		CommandControlSendCommand: func(context.Context, string, interface{}) error {
			return ErrNoCommandChannel
		},
	}
}
