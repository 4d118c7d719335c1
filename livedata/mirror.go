package livedata

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"iot-dashboard/logic"
	"iot-dashboard/widget"
)

const (
	mirrorQueueSize = 1024
	mirrorBatchSize = 50
	mirrorFlush     = time.Second
)

// DeviceMirror copies received MQTT samples into the device_data cache so that device
// widgets can show topics that no gateway driver writes. Rows are keyed by the topic.
type DeviceMirror struct {
	db    *sql.DB
	queue chan []logic.DeviceData
	now   func() time.Time
	log   logrus.FieldLogger
}

// NewDeviceMirror creates a mirror. Nothing is written until Run is started.
func NewDeviceMirror(db *sql.DB, log logrus.FieldLogger) *DeviceMirror {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &DeviceMirror{
		db:    db,
		queue: make(chan []logic.DeviceData, mirrorQueueSize),
		now:   time.Now,
		log:   log,
	}
}

// Record queues one sample. It never blocks; samples are dropped while the queue is full.
func (m *DeviceMirror) Record(topic string, s widget.Sample) {
	rows := m.rows(topic, s)
	if len(rows) == 0 {
		return
	}
	select {
	case m.queue <- rows:
	default:
		m.log.WithField("topic", topic).Warn("LIVE: Device cache queue full, sample dropped")
	}
}

// Run writes queued rows in batches until ctx ends, then flushes what is left.
func (m *DeviceMirror) Run(ctx context.Context) {
	ticker := time.NewTicker(mirrorFlush)
	defer ticker.Stop()

	var batch []logic.DeviceData
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := logic.SaveDeviceData(m.db, batch); err != nil {
			m.log.Errorf("LIVE: Error writing batch to device cache: %v", err)
		}
		batch = nil
	}

	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case rows := <-m.queue:
					batch = append(batch, rows...)
				default:
					flush()
					return
				}
			}
		case rows := <-m.queue:
			batch = append(batch, rows...)
			if len(batch) >= mirrorBatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (m *DeviceMirror) rows(topic string, s widget.Sample) []logic.DeviceData {
	timestamp := m.timestamp(s[TimestampKey])

	keys := make([]string, 0, len(s))
	for k := range s {
		if k != TimestampKey {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	rows := make([]logic.DeviceData, 0, len(keys))
	for _, k := range keys {
		value, err := formatValue(s[k])
		if err != nil {
			m.log.WithField("topic", topic).Debugf("LIVE: Skipping %s for device cache: %v", k, err)
			continue
		}
		rows = append(rows, logic.DeviceData{
			DeviceName:  topic,
			DeviceId:    topic,
			Datapoint:   k,
			DatapointId: topic + "/" + k,
			Value:       value,
			Timestamp:   timestamp,
		})
	}
	return rows
}

func (m *DeviceMirror) timestamp(v interface{}) string {
	switch ts := v.(type) {
	case string:
		return ts
	case int64:
		return time.UnixMilli(ts).Format(logic.DeviceTimestampLayout)
	case float64:
		return time.UnixMilli(int64(ts)).Format(logic.DeviceTimestampLayout)
	}
	return m.now().Format(logic.DeviceTimestampLayout)
}

// formatValue stores values the way parseValue reads them back.
func formatValue(v interface{}) (string, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(val), nil
	case int, int64, int32, uint, uint64:
		return fmt.Sprint(val), nil
	case nil:
		return "", fmt.Errorf("empty value")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
