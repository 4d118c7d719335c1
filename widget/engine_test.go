package widget

import (
	"context"
	"sync"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLive struct {
	mu         sync.Mutex
	views      map[string]LiveView
	subscribed map[string]Config
	released   []string
}

func newFakeLive() *fakeLive {
	return &fakeLive{views: map[string]LiveView{}, subscribed: map[string]Config{}}
}

func (f *fakeLive) Subscribe(desc Descriptor, cfg Config) LiveView {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed[desc.ID] = cfg
	return f.views[desc.ID]
}

func (f *fakeLive) Release(widgetID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, widgetID)
}

type fakeCommands struct {
	bound []DataSource
}

func (f *fakeCommands) Bind(ds DataSource) CommandBinding {
	f.bound = append(f.bound, ds)
	return CommandBinding{
		SendCommand: func(context.Context, string, interface{}) error { return nil },
		Connected:   true,
	}
}

type countingObserver struct {
	outcomes map[State]int
	faults   map[string]int
}

func (o *countingObserver) ObserveOutcome(_ string, state State) { o.outcomes[state]++ }
func (o *countingObserver) ObserveFault(widgetType string)       { o.faults[widgetType]++ }

func quietEngine(opts ...Option) *Engine {
	log, _ := test.NewNullLogger()
	return NewEngine(append([]Option{WithLogger(log)}, opts...)...)
}

func TestEngineLiveWidget(t *testing.T) {
	live := newFakeLive()
	e := quietEngine(WithLiveSource(live))
	desc := Descriptor{ID: "temp-chart", Type: TypeLineChart}
	cfg := Config{"dataSource": map[string]interface{}{
		"type":      "mqtt",
		"topic":     "sensors/room1",
		"telemetry": []interface{}{"temp"},
	}}

	out := e.Render(desc, cfg)
	assert.Equal(t, StateLoading, out.State)
	require.Contains(t, live.subscribed, "temp-chart")
	assert.Equal(t, ChartBufferSize, live.subscribed["temp-chart"]["bufferSize"])
	_, touched := cfg["bufferSize"]
	assert.False(t, touched, "the caller's config must not be modified")

	samples := []Sample{{"temp": 21.5}}
	live.views["temp-chart"] = LiveView{Data: samples, Version: 1}
	out = e.Render(desc, cfg)
	assert.Equal(t, StateRendered, out.State)
	assert.Equal(t, samples, out.Props["data"])
}

func TestEngineStaticWidgetReleasesSubscription(t *testing.T) {
	live := newFakeLive()
	e := quietEngine(WithLiveSource(live))

	out := e.Render(Descriptor{ID: "card", Type: TypeValueCard}, Config{
		"data":       []interface{}{map[string]interface{}{"v": 1}},
		"dataSource": map[string]interface{}{"telemetry": "v"},
	})
	assert.Equal(t, StateRendered, out.State)
	assert.NotContains(t, live.subscribed, "card")
	assert.Equal(t, []string{"card"}, live.released)
}

func TestEngineJSONObjectModeSkipsSubscription(t *testing.T) {
	live := newFakeLive()
	e := quietEngine(WithLiveSource(live))

	out := e.Render(Descriptor{ID: "table", Type: TypeDataTable}, Config{"dataSource": map[string]interface{}{
		"type":            "mqtt",
		"topic":           "x",
		"isJsonObject":    true,
		"jsonObjectValue": []interface{}{"row"},
	}})
	assert.Equal(t, StateRendered, out.State)
	assert.Equal(t, []interface{}{"row"}, out.Props["data"])
	assert.Empty(t, live.subscribed)
}

func TestEngineNoTelemetry(t *testing.T) {
	out := quietEngine().Render(Descriptor{ID: "v", Type: TypeValueCard}, nil)
	assert.Equal(t, StateNoTelemetry, out.State)
	assert.NotEmpty(t, out.Message)
}

func TestEngineSiblingSurvivesFault(t *testing.T) {
	reg := DefaultRegistry()
	reg.MustRegister(Registration{Type: "exploding", Bind: func(BindContext, Props) error {
		panic("renderer bug")
	}})
	obs := &countingObserver{outcomes: map[State]int{}, faults: map[string]int{}}
	e := quietEngine(WithRegistry(reg), WithObserver(obs))

	keyed := func() Config {
		return Config{
			"data":       []interface{}{1},
			"dataSource": map[string]interface{}{"telemetry": "v"},
		}
	}
	outs := e.RenderAll([]Entry{
		{Descriptor: Descriptor{ID: "a", Type: "exploding"}, Config: keyed()},
		{Descriptor: Descriptor{ID: "b", Type: TypeValueCard}, Config: keyed()},
		{Descriptor: Descriptor{ID: "c", Type: "teapot"}, Config: keyed()},
	})

	require.Len(t, outs, 3)
	assert.Equal(t, StateError, outs[0].State)
	assert.Contains(t, outs[0].Message, "exploding")
	assert.Equal(t, StateRendered, outs[1].State)
	assert.Equal(t, StateUnknownType, outs[2].State)

	assert.Equal(t, 1, obs.faults["exploding"])
	assert.Equal(t, 1, obs.outcomes[StateError])
	assert.Equal(t, 1, obs.outcomes[StateRendered])
	assert.Equal(t, 1, obs.outcomes[StateUnknownType])
}

func TestEngineCommandBinding(t *testing.T) {
	desc := Descriptor{ID: "sw", Type: TypeSwitch}
	cfg := Config{"dataSource": map[string]interface{}{"telemetry": "on"}}

	out := quietEngine().Render(desc, cfg)
	require.Equal(t, StateRendered, out.State)
	send := out.Props["sendCommand"].(SendCommandFunc)
	assert.ErrorIs(t, send(context.Background(), "on", true), ErrNoCommandChannel)

	commands := &fakeCommands{}
	out = quietEngine(WithCommandChannel(commands)).Render(desc, cfg)
	send = out.Props["sendCommand"].(SendCommandFunc)
	assert.NoError(t, send(context.Background(), "on", true))
	assert.Equal(t, true, out.Props["connected"])
	require.Len(t, commands.bound, 1)
	assert.Equal(t, SourceStatic, commands.bound[0].Type)
}

func TestEngineConfigChange(t *testing.T) {
	var merged Config
	e := quietEngine(WithConfigChange(func(_ string, cfg Config) { merged = cfg }))

	out := e.Render(Descriptor{ID: "g", Type: TypeGauge}, Config{"data": 12.5, "max": 50})
	require.Equal(t, StateRendered, out.State)
	out.Props["onSaveSettings"].(SaveSettingsFunc)(map[string]interface{}{"max": 80})
	assert.Equal(t, Config{"data": 12.5, "max": 80}, merged)
}

func TestEngineForget(t *testing.T) {
	live := newFakeLive()
	e := quietEngine(WithLiveSource(live))
	desc := Descriptor{ID: "card", Type: TypeValueCard}
	e.Render(desc, Config{"data": []interface{}{1}, "dataSource": map[string]interface{}{"telemetry": "v"}})
	require.Equal(t, 1, e.memo.Len())

	e.Forget("card")
	assert.Equal(t, 0, e.memo.Len())
	assert.Equal(t, []string{"card", "card"}, live.released)
}
