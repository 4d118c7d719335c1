package livedata

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"

	"iot-dashboard/widget"
)

const deviceBatchLimit = 500

// DeviceTransport reads the gateway's device_data cache. All rows written since the
// previous poll are folded into one sample keyed by datapoint name.
type DeviceTransport struct {
	db  *sql.DB
	log logrus.FieldLogger
}

// NewDeviceTransport creates a poller on the SQLite device cache.
func NewDeviceTransport(db *sql.DB, log logrus.FieldLogger) *DeviceTransport {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &DeviceTransport{db: db, log: log}
}

func (t *DeviceTransport) Start(ds widget.DataSource, push func(widget.Sample)) (func(), error) {
	if ds.DeviceID == "" {
		return nil, fmt.Errorf("device data source without deviceId")
	}
	var lastID int64
	fetch := func(ctx context.Context) ([]widget.Sample, error) {
		sample, newest, err := t.fetch(ctx, ds.DeviceID, lastID)
		if err != nil {
			return nil, err
		}
		if sample == nil {
			return nil, nil
		}
		lastID = newest
		return []widget.Sample{sample}, nil
	}
	return poll(ds.Interval, fetch, push, t.log.WithField("device", ds.DeviceID)), nil
}

// fetch folds the newest rows after the given id into one sample. The query reads newest
// first so a backlog larger than deviceBatchLimit still yields the current values.
func (t *DeviceTransport) fetch(ctx context.Context, deviceID string, after int64) (widget.Sample, int64, error) {
	rows, err := t.db.QueryContext(ctx, `
		SELECT id, datapoint, value, timestamp
		FROM device_data
		WHERE deviceId = ? AND id > ?
		ORDER BY id DESC
		LIMIT ?`, deviceID, after, deviceBatchLimit)
	if err != nil {
		return nil, after, fmt.Errorf("error querying device_data: %w", err)
	}
	defer rows.Close()

	type deviceRow struct {
		id                          int64
		datapoint, value, timestamp string
	}
	var batch []deviceRow
	for rows.Next() {
		var r deviceRow
		if err := rows.Scan(&r.id, &r.datapoint, &r.value, &r.timestamp); err != nil {
			return nil, after, fmt.Errorf("error scanning device_data: %w", err)
		}
		batch = append(batch, r)
	}
	if err := rows.Err(); err != nil {
		return nil, after, fmt.Errorf("error reading device_data: %w", err)
	}
	if len(batch) == 0 {
		return nil, after, nil
	}

	sample := widget.Sample{}
	for i := len(batch) - 1; i >= 0; i-- {
		sample[batch[i].datapoint] = parseValue(batch[i].value)
		sample[TimestampKey] = batch[i].timestamp
	}
	return sample, batch[0].id, nil
}

// values are stored as text by the gateway drivers
func parseValue(v string) interface{} {
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return v
}
