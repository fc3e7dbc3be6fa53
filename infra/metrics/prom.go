package metrics

import (
	"strconv"

	coremetrics "github.com/usagecast/usagecast/core/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// PromSink records notification deliveries in Prometheus metrics.
type PromSink struct {
	deliveries  *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	queueDepth  *prometheus.GaugeVec
	connections *prometheus.GaugeVec
}

// NewPromSink registers delivery metrics on the default Prometheus registerer.
// The Prometheus server should be started separately using cfg.PrometheusPort.
func NewPromSink(cfg coremetrics.Config) (coremetrics.MetricsSink, error) {
	return NewPromSinkWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(_ coremetrics.Config, reg prometheus.Registerer) (coremetrics.MetricsSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	deliveries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_deliveries_total",
		Help: "Total number of notification delivery attempts",
	}, []string{"transport", "event", "outcome"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "notification_delivery_latency_seconds",
		Help:    "Time spent delivering one notification",
		Buckets: prometheus.DefBuckets,
	}, []string{"transport", "event"})
	queueDepth := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "notification_retry_queue_depth",
		Help: "Number of notifications waiting in the retry queue",
	}, []string{"transport"})
	connections := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mqtt_server_connected",
		Help: "Connection state per MQTT server (1 connected, 0 disconnected)",
	}, []string{"server_id"})

	if err := reg.Register(deliveries); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			deliveries = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(latency); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			latency = are.ExistingCollector.(*prometheus.HistogramVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(queueDepth); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			queueDepth = are.ExistingCollector.(*prometheus.GaugeVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(connections); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			connections = are.ExistingCollector.(*prometheus.GaugeVec)
		} else {
			return nil, err
		}
	}

	return &PromSink{
		deliveries:  deliveries,
		latency:     latency,
		queueDepth:  queueDepth,
		connections: connections,
	}, nil
}

// RecordDelivery increments the delivery counter and observes the latency.
func (s *PromSink) RecordDelivery(rec coremetrics.DeliveryRecord) error {
	s.deliveries.WithLabelValues(rec.Transport, rec.Event, rec.Outcome).Inc()
	if rec.Latency > 0 {
		s.latency.WithLabelValues(rec.Transport, rec.Event).Observe(rec.Latency.Seconds())
	}
	return nil
}

// RecordQueueDepth sets the retry queue gauge for a transport.
func (s *PromSink) RecordQueueDepth(rec coremetrics.QueueDepthRecord) error {
	s.queueDepth.WithLabelValues(rec.Transport).Set(float64(rec.Depth))
	return nil
}

// RecordConnection sets the per-server connection gauge.
func (s *PromSink) RecordConnection(rec coremetrics.ConnectionRecord) error {
	v := 0.0
	if rec.Connected {
		v = 1.0
	}
	s.connections.WithLabelValues(strconv.Itoa(rec.ServerID)).Set(v)
	return nil
}
