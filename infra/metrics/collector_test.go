package metrics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/usagecast/usagecast/core/events"
	coremetrics "github.com/usagecast/usagecast/core/metrics"
	"github.com/usagecast/usagecast/internal/eventbus"
)

type captureSink struct {
	mu      sync.Mutex
	records []coremetrics.DeliveryRecord
	depths  []coremetrics.QueueDepthRecord
}

func (s *captureSink) RecordDelivery(rec coremetrics.DeliveryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *captureSink) RecordQueueDepth(rec coremetrics.QueueDepthRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.depths = append(s.depths, rec)
	return nil
}

func (s *captureSink) snapshot() []coremetrics.DeliveryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]coremetrics.DeliveryRecord(nil), s.records...)
}

func (s *captureSink) depthSnapshot() []coremetrics.QueueDepthRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]coremetrics.QueueDepthRecord(nil), s.depths...)
}

func TestEventCollectorRecordsDeliveries(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	sink := &captureSink{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	StartEventCollector(ctx, bus, sink)

	bus.Publish(events.DeliveryEvent{
		Transport:  events.TransportWebhook,
		Event:      "usage_started",
		Target:     "https://example.com/hook",
		ResourceID: 5,
		Outcome:    events.OutcomeFailed,
		Attempts:   2,
		Err:        errors.New("boom"),
		Time:       time.Now(),
	})

	deadline := time.After(time.Second)
	for {
		recs := sink.snapshot()
		if len(recs) == 1 {
			if recs[0].Transport != "webhook" || recs[0].Outcome != "failed" || recs[0].Error != "boom" {
				t.Fatalf("unexpected record: %+v", recs[0])
			}
			return
		}
		select {
		case <-deadline:
			t.Fatalf("no record collected")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestEventCollectorForwardsQueueDepth(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	sink := &captureSink{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	StartEventCollector(ctx, bus, sink)
	bus.Publish(events.QueueDepthEvent{Transport: events.TransportMQTT, Depth: 4, Time: time.Now()})

	deadline := time.After(time.Second)
	for {
		depths := sink.depthSnapshot()
		if len(depths) == 1 {
			if depths[0].Transport != "mqtt" || depths[0].Depth != 4 {
				t.Fatalf("unexpected depth record: %+v", depths[0])
			}
			return
		}
		select {
		case <-deadline:
			t.Fatalf("no depth record collected")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestEventCollectorIgnoresOtherEvents(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	sink := &captureSink{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	StartEventCollector(ctx, bus, sink)
	bus.Publish(events.UsageStartedEvent{ResourceID: 1})

	time.Sleep(50 * time.Millisecond)
	if recs := sink.snapshot(); len(recs) != 0 {
		t.Fatalf("expected no records, got %d", len(recs))
	}
}
