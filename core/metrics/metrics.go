package metrics

import "time"

// DeliveryRecord describes one notification delivery attempt outcome.
type DeliveryRecord struct {
	Transport  string
	Event      string
	Target     string
	ResourceID int
	Outcome    string
	Attempts   int
	Latency    time.Duration
	Error      string
	Time       time.Time
}

// QueueDepthRecord is a snapshot of one retry queue's size.
type QueueDepthRecord struct {
	Transport string
	Depth     int
	Time      time.Time
}

// ConnectionRecord captures a broker connection state change.
type ConnectionRecord struct {
	ServerID  int
	Connected bool
	Time      time.Time
}

// MetricsSink records delivery outcomes. Optional recorder interfaces extend
// it for sinks that support more signals.
type MetricsSink interface {
	RecordDelivery(rec DeliveryRecord) error
}

// QueueDepthRecorder is implemented by sinks that track queue depth.
type QueueDepthRecorder interface {
	RecordQueueDepth(rec QueueDepthRecord) error
}

// ConnectionRecorder is implemented by sinks that track broker connectivity.
type ConnectionRecorder interface {
	RecordConnection(rec ConnectionRecord) error
}

// NopSink discards all records.
type NopSink struct{}

func (NopSink) RecordDelivery(DeliveryRecord) error     { return nil }
func (NopSink) RecordQueueDepth(QueueDepthRecord) error { return nil }
func (NopSink) RecordConnection(ConnectionRecord) error { return nil }
