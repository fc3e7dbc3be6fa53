package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/usagecast/usagecast/core/metrics"
	"github.com/usagecast/usagecast/infra/logger"
)

// InfluxSink writes delivery events to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordDelivery writes the delivery attempt as a line protocol point.
func (s *InfluxSink) RecordDelivery(rec coremetrics.DeliveryRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ts := rec.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	p := write.NewPointWithMeasurement("notification_delivery").
		AddTag("transport", rec.Transport).
		AddTag("event", rec.Event).
		AddTag("outcome", rec.Outcome).
		AddTag("resource_id", strconv.Itoa(rec.ResourceID)).
		AddTag("component", "notifier").
		AddField("target", rec.Target).
		AddField("attempts", rec.Attempts).
		AddField("latency_ms", rec.Latency.Seconds()*1000).
		AddField("errors", rec.Error).
		SetTime(ts)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordQueueDepth persists a retry queue depth snapshot.
func (s *InfluxSink) RecordQueueDepth(rec coremetrics.QueueDepthRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ts := rec.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	p := write.NewPointWithMeasurement("retry_queue_depth").
		AddTag("transport", rec.Transport).
		AddTag("component", "notifier").
		AddField("depth", rec.Depth).
		SetTime(ts)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordConnection persists a broker connection state change.
func (s *InfluxSink) RecordConnection(rec coremetrics.ConnectionRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ts := rec.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	p := write.NewPointWithMeasurement("mqtt_connection").
		AddTag("server_id", strconv.Itoa(rec.ServerID)).
		AddTag("component", "mqtt_manager").
		AddField("connected", rec.Connected).
		SetTime(ts)
	return s.writeAPI.WritePoint(ctx, p)
}

// Close releases the underlying InfluxDB client.
func (s *InfluxSink) Close() {
	s.client.Close()
}
