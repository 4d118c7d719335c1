package widget

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func guard(widgetType string, cfg Config, data interface{}) GuardOutcome {
	desc := Descriptor{ID: "w", Type: widgetType}
	in := Interpret(desc, cfg)
	return EvaluateGuards(desc, in, RenderInput{Data: data, DataKeys: in.TelemetryKeys})
}

func TestNoTelemetryGuard(t *testing.T) {
	assert.Equal(t, GuardPass, guard(TypeCamera, Config{}, []interface{}{}),
		"camera renders without telemetry keys")
	assert.Equal(t, GuardNoTelemetry, guard(TypeValueCard, Config{}, []interface{}{1}))
	assert.Equal(t, GuardNoTelemetry, guard(TypeLineChart, Config{}, nil))
	assert.Equal(t, GuardNoTelemetry, guard("unknown-widget", Config{}, nil))
}

func TestGuardOrder(t *testing.T) {
	// both guards would fire; the telemetry guard wins
	assert.Equal(t, GuardNoTelemetry, guard(TypeValueCard, Config{}, []interface{}{}))
}

func TestNoDataGuard(t *testing.T) {
	keyed := Config{"dataSource": map[string]interface{}{"telemetry": "temp"}}

	assert.Equal(t, GuardNoData, guard(TypeLineChart, keyed, []interface{}{}))
	assert.Equal(t, GuardNoData, guard(TypeLineChart, keyed, map[string]interface{}{}))
	assert.Equal(t, GuardNoData, guard(TypeLineChart, keyed, nil))
	assert.Equal(t, GuardPass, guard(TypeLineChart, keyed, []Sample{{"temp": 1}}))

	// controls render before their first reading
	assert.Equal(t, GuardPass, guard(TypeSwitch, keyed, []interface{}{}))
	assert.Equal(t, GuardPass, guard(TypeSlider, keyed, []interface{}{}))

	// gauge is exempt from the telemetry guard only
	assert.Equal(t, GuardNoData, guard(TypeGauge, Config{}, []interface{}{}))
	assert.Equal(t, GuardPass, guard(TypeGauge, Config{}, 42.0))
}

func TestGuardJSONObjectMode(t *testing.T) {
	cfg := Config{"dataSource": map[string]interface{}{
		"isJsonObject":    true,
		"jsonObjectValue": map[string]interface{}{"k": "v"},
	}}
	assert.Equal(t, GuardPass, guard(TypeDataTable, cfg, map[string]interface{}{"k": "v"}))
}

func TestIsEmpty(t *testing.T) {
	var nilSample Sample
	var nilPtr *int

	assert.True(t, IsEmpty(nil))
	assert.True(t, IsEmpty([]interface{}{}))
	assert.True(t, IsEmpty(map[string]interface{}{}))
	assert.True(t, IsEmpty(nilSample))
	assert.True(t, IsEmpty(nilPtr))
	assert.False(t, IsEmpty(0))
	assert.False(t, IsEmpty(""))
	assert.False(t, IsEmpty([]Sample{{}}))
}

func TestGuardOutcomeString(t *testing.T) {
	assert.Equal(t, "pass", GuardPass.String())
	assert.Equal(t, "no-telemetry", GuardNoTelemetry.String())
	assert.Equal(t, "no-data", GuardNoData.String())
}
