package events

import "time"

// Delivery outcomes.
const (
	OutcomeDelivered = "delivered"
	OutcomeFailed    = "failed"
	OutcomeRetried   = "retried"
	OutcomeDropped   = "dropped"
)

// Transports.
const (
	TransportMQTT    = "mqtt"
	TransportWebhook = "webhook"
)

// DeliveryEvent is emitted for every outbound notification attempt so the
// metrics collector can record it without coupling publishers to sinks.
type DeliveryEvent struct {
	Transport  string
	Event      string
	Target     string
	ResourceID int
	Outcome    string
	Attempts   int
	Err        error
	Latency    time.Duration
	Time       time.Time
}

// QueueDepthEvent is emitted after each retry queue sweep with the number of
// items still waiting for redelivery.
type QueueDepthEvent struct {
	Transport string
	Depth     int
	Time      time.Time
}
