package livedata

import (
	"context"
	"fmt"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"iot-dashboard/widget"
)

// InfluxConfig addresses the bucket the gateway forwards telemetry into.
type InfluxConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
	// Lookback limits how far back the backfill query reaches.
	Lookback time.Duration `json:"-"`
}

// InfluxBackfiller pre-fills chart buffers from InfluxDB. The measurement is the data
// source locator (topic, url or device id), fields are the telemetry keys.
type InfluxBackfiller struct {
	client   influxdb2.Client
	query    api.QueryAPI
	bucket   string
	lookback time.Duration
}

// NewInfluxBackfiller connects a query client.
func NewInfluxBackfiller(cfg InfluxConfig) *InfluxBackfiller {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	lookback := cfg.Lookback
	if lookback <= 0 {
		lookback = time.Hour
	}
	return &InfluxBackfiller{
		client:   client,
		query:    client.QueryAPI(cfg.Org),
		bucket:   cfg.Bucket,
		lookback: lookback,
	}
}

func (b *InfluxBackfiller) Backfill(ctx context.Context, ds widget.DataSource, keys []string, limit int) ([]widget.Sample, error) {
	q := BackfillQuery(b.bucket, Locator(ds), keys, b.lookback, limit)
	result, err := b.query.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer result.Close()

	var newestFirst []widget.Sample
	for result.Next() {
		rec := result.Record()
		newestFirst = append(newestFirst, RecordSample(rec.Values(), rec.Time(), keys))
	}
	if result.Err() != nil {
		return nil, fmt.Errorf("error processing query results: %w", result.Err())
	}

	samples := make([]widget.Sample, len(newestFirst))
	for i, s := range newestFirst {
		samples[len(newestFirst)-1-i] = s
	}
	return samples, nil
}

// Close releases the HTTP client.
func (b *InfluxBackfiller) Close() {
	b.client.Close()
}

// BackfillQuery builds the Flux query for the newest limit points of a measurement,
// pivoted to one row per timestamp.
func BackfillQuery(bucket, measurement string, keys []string, lookback time.Duration, limit int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "from(bucket: %q)\n", bucket)
	fmt.Fprintf(&sb, "  |> range(start: -%s)\n", lookback)
	fmt.Fprintf(&sb, "  |> filter(fn: (r) => r[\"_measurement\"] == %q)\n", measurement)
	if len(keys) > 0 {
		conds := make([]string, len(keys))
		for i, k := range keys {
			conds[i] = fmt.Sprintf("r[\"_field\"] == %q", k)
		}
		fmt.Fprintf(&sb, "  |> filter(fn: (r) => %s)\n", strings.Join(conds, " or "))
	}
	sb.WriteString("  |> pivot(rowKey: [\"_time\"], columnKey: [\"_field\"], valueColumn: \"_value\")\n")
	sb.WriteString("  |> sort(columns: [\"_time\"], desc: true)\n")
	fmt.Fprintf(&sb, "  |> limit(n: %d)\n", limit)
	return sb.String()
}

// RecordSample converts one pivoted Flux row. Without keys every non-internal column is kept.
func RecordSample(values map[string]interface{}, at time.Time, keys []string) widget.Sample {
	s := widget.Sample{TimestampKey: at.UnixMilli()}
	if len(keys) > 0 {
		for _, k := range keys {
			if v, ok := values[k]; ok {
				s[k] = v
			}
		}
		return s
	}
	for k, v := range values {
		if strings.HasPrefix(k, "_") || k == "result" || k == "table" {
			continue
		}
		s[k] = v
	}
	return s
}
