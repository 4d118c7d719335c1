package livedata

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iot-dashboard/widget"
)

func TestDecodeSamples(t *testing.T) {
	now := time.UnixMilli(1700000000000)
	ts := now.UnixMilli()

	tests := []struct {
		name    string
		topic   string
		payload string
		want    []widget.Sample
	}{
		{
			name:    "object",
			topic:   "plant/room1",
			payload: `{"temp": 21.5, "humidity": 40}`,
			want:    []widget.Sample{{"temp": 21.5, "humidity": 40.0, "timestamp": ts}},
		},
		{
			name:    "object with own timestamp",
			topic:   "plant/room1",
			payload: `{"temp": 1, "timestamp": "2024-01-01T00:00:00Z"}`,
			want:    []widget.Sample{{"temp": 1.0, "timestamp": "2024-01-01T00:00:00Z"}},
		},
		{
			name:    "array of objects",
			topic:   "/api/values",
			payload: `[{"a": 1}, {"a": 2}]`,
			want:    []widget.Sample{{"a": 1.0, "timestamp": ts}, {"a": 2.0, "timestamp": ts}},
		},
		{
			name:    "json scalar",
			topic:   "plant/room1/temp",
			payload: `22.25`,
			want:    []widget.Sample{{"temp": 22.25, "timestamp": ts}},
		},
		{
			name:    "plain text",
			topic:   "plant/room1/pressure",
			payload: ` 1.5bar`,
			want:    []widget.Sample{{"pressure": "1.5bar", "timestamp": ts}},
		},
		{
			name:    "bool",
			topic:   "door",
			payload: `true`,
			want:    []widget.Sample{{"door": true, "timestamp": ts}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeSamples(tt.topic, []byte(tt.payload), now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeSamplesRejects(t *testing.T) {
	now := time.Now()
	for _, payload := range []string{"", "   ", "null", `[1, 2]`} {
		_, err := DecodeSamples("t", []byte(payload), now)
		assert.Error(t, err, payload)
	}
}
