package livedata

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"iot-dashboard/widget"
)

// TimestampKey is added to every sample that does not carry its own timestamp.
const TimestampKey = "timestamp"

// DecodeSamples turns a transport payload into samples. A JSON object becomes one sample,
// a JSON array of objects one sample per object, and anything else a single reading
// named after the last segment of the topic or path.
func DecodeSamples(name string, payload []byte, now time.Time) ([]widget.Sample, error) {
	var v interface{}
	if err := json.Unmarshal(payload, &v); err != nil {
		raw := strings.TrimSpace(string(payload))
		if raw == "" {
			return nil, fmt.Errorf("empty payload on %s", name)
		}
		v = raw
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			v = f
		}
	}

	var samples []widget.Sample
	switch val := v.(type) {
	case map[string]interface{}:
		samples = []widget.Sample{widget.Sample(val)}
	case []interface{}:
		for i, item := range val {
			obj, ok := item.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("element %d of payload on %s is not an object", i, name)
			}
			samples = append(samples, widget.Sample(obj))
		}
	case nil:
		return nil, fmt.Errorf("null payload on %s", name)
	default:
		samples = []widget.Sample{{lastSegment(name): val}}
	}

	for _, s := range samples {
		if _, ok := s[TimestampKey]; !ok {
			s[TimestampKey] = now.UnixMilli()
		}
	}
	return samples, nil
}

func lastSegment(name string) string {
	name = strings.TrimRight(name, "/")
	if i := strings.LastIndexAny(name, "/"); i >= 0 {
		return name[i+1:]
	}
	return name
}
