package livedata

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"iot-dashboard/logic"
	"iot-dashboard/widget"
)

func TestDeviceMirrorFeedsDeviceTransport(t *testing.T) {
	db := openDeviceDB(t)
	log, _ := test.NewNullLogger()
	mirror := NewDeviceMirror(db, log)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		mirror.Run(ctx)
		close(done)
	}()

	at := time.Date(2025, 1, 1, 10, 0, 0, 0, time.Local)
	mirror.Record("plant/line1", widget.Sample{TimestampKey: at.UnixMilli(), "temp": 20.5, "running": true})
	mirror.Record("plant/line1", widget.Sample{TimestampKey: at.Add(time.Second).UnixMilli(), "temp": 21.0, "mode": "auto"})
	mirror.Record("plant/line2", widget.Sample{"temp": 5.0})
	cancel()
	<-done

	sample, _, err := NewDeviceTransport(db, log).fetch(context.Background(), "plant/line1", 0)
	require.NoError(t, err)
	assert.Equal(t, widget.Sample{
		"temp":       21.0,
		"running":    true,
		"mode":       "auto",
		TimestampKey: at.Add(time.Second).Format(logic.DeviceTimestampLayout),
	}, sample)

	var rows int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM device_data WHERE deviceId = ?`, "plant/line2").Scan(&rows))
	assert.Equal(t, 1, rows)
}

func TestDeviceMirrorDropsWhenQueueFull(t *testing.T) {
	log, hook := test.NewNullLogger()
	mirror := NewDeviceMirror(nil, log)
	for i := 0; i < mirrorQueueSize+1; i++ {
		mirror.Record("plant/line1", widget.Sample{"temp": float64(i)})
	}

	assert.Len(t, mirror.queue, mirrorQueueSize)
	require.NotNil(t, hook.LastEntry())
	assert.Contains(t, hook.LastEntry().Message, "queue full")
}

func TestFormatValue(t *testing.T) {
	for _, tc := range []struct {
		in   interface{}
		want string
	}{
		{20.5, "20.5"},
		{true, "true"},
		{int64(7), "7"},
		{"auto", "auto"},
		{map[string]interface{}{"a": 1.0}, `{"a":1}`},
	} {
		got, err := formatValue(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}

	_, err := formatValue(nil)
	assert.Error(t, err)
}
