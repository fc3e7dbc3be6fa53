package metrics

import coremetrics "github.com/usagecast/usagecast/core/metrics"

// MultiSink fans records out to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordDelivery forwards the record to all sinks, returning the first error encountered.
func (m *MultiSink) RecordDelivery(rec coremetrics.DeliveryRecord) error {
	for _, s := range m.Sinks {
		if err := s.RecordDelivery(rec); err != nil {
			return err
		}
	}
	return nil
}

// RecordQueueDepth forwards depth snapshots to sinks that support them.
func (m *MultiSink) RecordQueueDepth(rec coremetrics.QueueDepthRecord) error {
	for _, s := range m.Sinks {
		if qr, ok := s.(coremetrics.QueueDepthRecorder); ok {
			if err := qr.RecordQueueDepth(rec); err != nil {
				return err
			}
		}
	}
	return nil
}

// RecordConnection forwards connection state changes to sinks that support them.
func (m *MultiSink) RecordConnection(rec coremetrics.ConnectionRecord) error {
	for _, s := range m.Sinks {
		if cr, ok := s.(coremetrics.ConnectionRecorder); ok {
			if err := cr.RecordConnection(rec); err != nil {
				return err
			}
		}
	}
	return nil
}
