package widget

import "time"

// Buffer depths handed to the live data adapter.
const (
	ChartBufferSize   = 50
	DefaultBufferSize = 1
)

const defaultPollInterval = time.Second

// bufferedTypes keep the latest ChartBufferSize samples. value-card is buffered
// for its sparkline.
var bufferedTypes = map[string]bool{
	TypeLineChart:       true,
	TypeBarChart:        true,
	TypeTimeSeriesChart: true,
	TypeValueCard:       true,
}

// BufferSize returns how many samples the live subscription of a widget type keeps.
func BufferSize(widgetType string) int {
	if bufferedTypes[widgetType] {
		return ChartBufferSize
	}
	return DefaultBufferSize
}

// Interpret extracts telemetry keys, buffer depth and data source type from a configuration.
func Interpret(desc Descriptor, cfg Config) Interpretation {
	ds := ParseDataSource(cfg)
	keys := []string{}
	if ds.raw != nil {
		keys = ExtractTelemetryKeys(ds.raw["telemetry"])
	}
	return Interpretation{
		TelemetryKeys:  keys,
		BufferSize:     BufferSize(desc.Type),
		DataSourceType: ds.Type,
		DataSource:     ds,
	}
}

// ExtractTelemetryKeys normalizes the three legal shapes of `telemetry`
// (list, single string, absent) into an ordered key list. Empty entries are dropped.
func ExtractTelemetryKeys(v interface{}) []string {
	if s, ok := v.(string); ok {
		if s == "" {
			return []string{}
		}
		return []string{s}
	}
	return toStrings(v)
}

// ParseDataSource decodes the dataSource section once, applying defaults.
func ParseDataSource(cfg Config) DataSource {
	raw, _ := cfg.Object("dataSource")
	ds := DataSource{
		Type:     SourceStatic,
		Interval: defaultPollInterval,
		raw:      raw,
	}
	if raw == nil {
		ds.Selection = TelemetrySelection{Keys: []string{}}
		return ds
	}

	src := Config(raw)
	if t := src.String("type"); t != "" {
		ds.Type = t
	}
	ds.StreamURL = src.String("streamUrl")
	ds.TelemetryOut = toStrings(raw["telemetryOut"])
	ds.Topic = src.String("topic")
	ds.URL = src.String("url")
	ds.DeviceID = src.String("deviceId")
	ds.CommandTopic = src.String("commandTopic")
	ds.CommandURL = src.String("commandUrl")
	if ms := src.Int("interval", 0); ms > 0 {
		ds.Interval = time.Duration(ms) * time.Millisecond
	}

	// JSON-object mode wins over telemetry selection
	if value, ok := raw["jsonObjectValue"]; ok && value != nil && toBool(raw["isJsonObject"]) {
		ds.Selection = JSONObjectSelection{Value: value}
		return ds
	}
	ds.Selection = TelemetrySelection{Keys: ExtractTelemetryKeys(raw["telemetry"])}
	return ds
}
