package widget

import "reflect"

// GuardOutcome tells the engine whether a widget may be dispatched.
type GuardOutcome int

const (
	GuardPass GuardOutcome = iota
	GuardNoTelemetry
	GuardNoData
)

func (g GuardOutcome) String() string {
	switch g {
	case GuardNoTelemetry:
		return "no-telemetry"
	case GuardNoData:
		return "no-data"
	}
	return "pass"
}

// Widget types that render without selected telemetry keys.
var telemetryExempt = map[string]bool{
	TypeCamera:        true,
	TypeVideoStream:   true,
	TypeImage:         true,
	TypeMap:           true,
	TypeText:          true,
	TypeMarkdown:      true,
	TypeClock:         true,
	TypeIframe:        true,
	TypeButton:        true,
	TypeDeviceCommand: true,
	TypeFanControl:    true,
	TypeAlarmTable:    true,
	TypeEventLog:      true,
	TypeGauge:         true,
}

// Widget types that render before any data arrived.
var dataExempt = map[string]bool{
	TypeCamera:        true,
	TypeVideoStream:   true,
	TypeImage:         true,
	TypeMap:           true,
	TypeText:          true,
	TypeMarkdown:      true,
	TypeClock:         true,
	TypeIframe:        true,
	TypeDeviceCommand: true,
	TypeFanControl:    true,
	TypeSwitch:        true,
	TypeSlider:        true,
}

// EvaluateGuards checks the no-telemetry guard first, then the no-data guard.
func EvaluateGuards(desc Descriptor, in Interpretation, input RenderInput) GuardOutcome {
	_, jsonMode := in.DataSource.JSONObject()
	if !jsonMode && len(in.TelemetryKeys) == 0 && !telemetryExempt[desc.Type] {
		return GuardNoTelemetry
	}
	if IsEmpty(input.Data) && !dataExempt[desc.Type] {
		return GuardNoData
	}
	return GuardPass
}

// IsEmpty reports whether data is nil, an empty sequence or an object without keys.
func IsEmpty(data interface{}) bool {
	if data == nil {
		return true
	}
	rv := reflect.ValueOf(data)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() == 0
	case reflect.Ptr, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
