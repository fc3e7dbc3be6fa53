package metrics

import (
	"context"
	"time"

	"github.com/usagecast/usagecast/core/events"
	coremetrics "github.com/usagecast/usagecast/core/metrics"
	"github.com/usagecast/usagecast/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and records a metric for
// every delivery event. It stops when the context is canceled.
func StartEventCollector(ctx context.Context, bus eventbus.EventBus, sink coremetrics.MetricsSink) {
	if bus == nil || sink == nil {
		return
	}
	sub := bus.Subscribe()
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				switch e := ev.(type) {
				case events.DeliveryEvent:
					errStr := ""
					if e.Err != nil {
						errStr = e.Err.Error()
					}
					ts := e.Time
					if ts.IsZero() {
						ts = time.Now()
					}
					_ = sink.RecordDelivery(coremetrics.DeliveryRecord{
						Transport:  e.Transport,
						Event:      e.Event,
						Target:     e.Target,
						ResourceID: e.ResourceID,
						Outcome:    e.Outcome,
						Attempts:   e.Attempts,
						Latency:    e.Latency,
						Error:      errStr,
						Time:       ts,
					})
				case events.QueueDepthEvent:
					if rec, ok := sink.(coremetrics.QueueDepthRecorder); ok {
						_ = rec.RecordQueueDepth(coremetrics.QueueDepthRecord{
							Transport: e.Transport,
							Depth:     e.Depth,
							Time:      e.Time,
						})
					}
				}
			}
		}
	}()
}
