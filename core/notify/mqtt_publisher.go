package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/usagecast/usagecast/core/events"
	"github.com/usagecast/usagecast/core/logger"
	"github.com/usagecast/usagecast/core/model"
	coremqtt "github.com/usagecast/usagecast/core/mqtt"
	"github.com/usagecast/usagecast/core/queue"
	"github.com/usagecast/usagecast/core/template"
	"github.com/usagecast/usagecast/internal/eventbus"
)

// MQTTRetryPolicy is the global retry budget applied to every MQTT message.
// Unlike webhooks, broker bindings carry no per-config retry settings.
type MQTTRetryPolicy struct {
	MaxRetries    int
	RetryDelay    time.Duration
	SweepInterval time.Duration
}

// SetDefaults applies the stock policy of 3 retries 5 seconds apart.
func (p *MQTTRetryPolicy) SetDefaults() {
	if p.MaxRetries == 0 {
		p.MaxRetries = 3
	}
	if p.RetryDelay == 0 {
		p.RetryDelay = 5 * time.Second
	}
	if p.SweepInterval == 0 {
		p.SweepInterval = 5 * time.Second
	}
}

// mqttJob is one rendered message queued for redelivery.
type mqttJob struct {
	ServerID   int
	Topic      string
	Payload    string
	Event      string
	ResourceID int
}

// MQTTPublisher consumes usage events and publishes rendered messages to the
// brokers bound to each resource.
type MQTTPublisher struct {
	bus       eventbus.EventBus
	sub       <-chan eventbus.Event
	resources ResourceStore
	configs   MQTTConfigStore
	publisher coremqtt.Publisher
	renderer  *template.Renderer
	queue     *queue.Queue[mqttJob]
	retry     MQTTRetryPolicy
	log       logger.Logger
}

// NewMQTTPublisher creates the publisher and subscribes it to the bus. Call
// Start to begin consuming.
func NewMQTTPublisher(
	bus eventbus.EventBus,
	resources ResourceStore,
	configs MQTTConfigStore,
	publisher coremqtt.Publisher,
	renderer *template.Renderer,
	retry MQTTRetryPolicy,
	log logger.Logger,
) *MQTTPublisher {
	retry.SetDefaults()
	p := &MQTTPublisher{
		bus:       bus,
		sub:       bus.Subscribe(),
		resources: resources,
		configs:   configs,
		publisher: publisher,
		renderer:  renderer,
		retry:     retry,
		log:       log,
	}
	p.queue = queue.New("mqtt", retry.SweepInterval, p.deliverJob, log, queue.Hooks[mqttJob]{
		Delivered: func(_ string, it queue.Item[mqttJob]) {
			p.emit(it.Payload, events.OutcomeDelivered, 1+it.Retries+1, nil)
		},
		Retried: func(_ string, it queue.Item[mqttJob], err error) {
			p.emit(it.Payload, events.OutcomeRetried, 1+it.Retries, err)
		},
		Dropped: func(_ string, it queue.Item[mqttJob], err error) {
			p.emit(it.Payload, events.OutcomeDropped, 1+it.Retries, err)
		},
		Depth: func(total int) {
			p.log.Debugf("mqtt retry queue depth: %d", total)
			p.bus.Publish(events.QueueDepthEvent{Transport: events.TransportMQTT, Depth: total, Time: time.Now()})
		},
	})
	return p
}

// QueueLen reports the number of messages waiting for redelivery.
func (p *MQTTPublisher) QueueLen() int { return p.queue.Len() }

// Start launches the retry queue and the event consume loop. Both stop when
// ctx is cancelled.
func (p *MQTTPublisher) Start(ctx context.Context) {
	p.queue.Start(ctx)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-p.sub:
				if !ok {
					return
				}
				switch e := ev.(type) {
				case events.UsageStartedEvent:
					p.HandleUsageStarted(ctx, e)
				case events.UsageEndedEvent:
					p.HandleUsageEnded(ctx, e)
				case events.UsageTakenOverEvent:
					p.HandleUsageTakenOver(ctx, e)
				}
			}
		}
	}()
}

// Stop halts the retry queue and detaches from the bus.
func (p *MQTTPublisher) Stop() {
	p.queue.Stop()
	p.bus.Unsubscribe(p.sub)
}

// HandleUsageStarted publishes the in-use message of every binding.
func (p *MQTTPublisher) HandleUsageStarted(ctx context.Context, ev events.UsageStartedEvent) {
	configs, tctx, ok := p.prepare(ctx, ev.ResourceID, ev.User, ev.StartTime)
	if !ok {
		return
	}
	for _, cfg := range configs {
		p.dispatch(ctx, cfg, "usage_started", cfg.InUseTopic, cfg.InUseMessage, tctx)
	}
}

// HandleUsageEnded publishes the not-in-use message of every binding.
func (p *MQTTPublisher) HandleUsageEnded(ctx context.Context, ev events.UsageEndedEvent) {
	configs, tctx, ok := p.prepare(ctx, ev.ResourceID, ev.User, ev.EndTime)
	if !ok {
		return
	}
	for _, cfg := range configs {
		p.dispatch(ctx, cfg, "usage_ended", cfg.NotInUseTopic, cfg.NotInUseMessage, tctx)
	}
}

// HandleUsageTakenOver publishes up to three messages per binding: a stop for
// the previous user, a takeover notice, and a start for the new user. Each
// sub-message is gated by its binding toggle and isolated from the others'
// failures.
func (p *MQTTPublisher) HandleUsageTakenOver(ctx context.Context, ev events.UsageTakenOverEvent) {
	configs, tctx, ok := p.prepare(ctx, ev.ResourceID, ev.NewUser, ev.TakeoverTime)
	if !ok {
		return
	}
	for _, cfg := range configs {
		if cfg.OnTakeoverSendStop && ev.PreviousUser != nil {
			stopCtx := tctx.WithUser(*ev.PreviousUser)
			p.dispatch(ctx, cfg, "takeover_stop", cfg.NotInUseTopic, cfg.NotInUseMessage, stopCtx)
		}
		// A missing takeover template disables the notice even when the
		// toggle is on.
		if cfg.OnTakeoverSendTakeover && cfg.HasTakeoverTemplate() {
			takeoverCtx := tctx
			if ev.PreviousUser != nil {
				takeoverCtx = takeoverCtx.WithPreviousUser(*ev.PreviousUser)
			}
			p.dispatch(ctx, cfg, "takeover", cfg.TakeoverTopic, cfg.TakeoverMessage, takeoverCtx)
		}
		if cfg.OnTakeoverSendStart {
			p.dispatch(ctx, cfg, "takeover_start", cfg.InUseTopic, cfg.InUseMessage, tctx)
		}
	}
}

// prepare loads the bindings and resource of an event and builds the shared
// template context. A missing resource or an empty binding list
// short-circuits the whole event.
func (p *MQTTPublisher) prepare(ctx context.Context, resourceID int, user model.User, ts time.Time) ([]model.MQTTConfig, template.Context, bool) {
	configs, err := p.configs.GetMQTTConfigs(ctx, resourceID)
	if err != nil {
		p.log.Errorf("load mqtt configs for resource %d: %v", resourceID, err)
		return nil, template.Context{}, false
	}
	if len(configs) == 0 {
		p.log.Debugf("resource %d has no mqtt configs", resourceID)
		return nil, template.Context{}, false
	}
	res, err := p.resources.GetResource(ctx, resourceID)
	if err != nil {
		p.log.Errorf("load resource %d: %v", resourceID, err)
		return nil, template.Context{}, false
	}
	if res == nil {
		p.log.Warnf("resource %d not found, skipping mqtt notifications", resourceID)
		return nil, template.Context{}, false
	}
	return configs, template.NewContext(*res, user, ts), true
}

// dispatch renders one topic/message pair and performs the initial publish
// attempt. Transport failures enqueue the rendered message; render failures
// are terminal.
func (p *MQTTPublisher) dispatch(ctx context.Context, cfg model.MQTTConfig, event, topicTmpl, msgTmpl string, tctx template.Context) {
	if topicTmpl == "" || msgTmpl == "" {
		p.log.Debugf("mqtt config %d has no %s templates", cfg.ID, event)
		return
	}
	topic, err := p.renderer.Render(topicTmpl, tctx)
	if err != nil {
		p.log.Errorf("render %s topic for mqtt config %d: %v", event, cfg.ID, err)
		return
	}
	payload, err := p.renderer.Render(msgTmpl, tctx)
	if err != nil {
		p.log.Errorf("render %s message for mqtt config %d: %v", event, cfg.ID, err)
		return
	}

	job := mqttJob{
		ServerID:   cfg.ServerID,
		Topic:      topic,
		Payload:    payload,
		Event:      event,
		ResourceID: cfg.ResourceID,
	}
	start := time.Now()
	if err := p.publisher.Publish(ctx, cfg.ServerID, topic, payload); err != nil {
		p.log.Warnf("mqtt publish for resource %d failed: %v", cfg.ResourceID, err)
		p.emitWithLatency(job, events.OutcomeFailed, 1, err, time.Since(start))
		if p.retry.MaxRetries > 0 {
			p.queue.Enqueue(queueKey(cfg.ResourceID), job, p.retry.MaxRetries, p.retry.RetryDelay)
		}
		return
	}
	p.emitWithLatency(job, events.OutcomeDelivered, 1, nil, time.Since(start))
}

// deliverJob is the retry queue's delivery function.
func (p *MQTTPublisher) deliverJob(ctx context.Context, job mqttJob) error {
	return p.publisher.Publish(ctx, job.ServerID, job.Topic, job.Payload)
}

func (p *MQTTPublisher) emit(job mqttJob, outcome string, attempts int, err error) {
	p.emitWithLatency(job, outcome, attempts, err, 0)
}

func (p *MQTTPublisher) emitWithLatency(job mqttJob, outcome string, attempts int, err error, latency time.Duration) {
	p.bus.Publish(events.DeliveryEvent{
		Transport:  events.TransportMQTT,
		Event:      job.Event,
		Target:     job.Topic,
		ResourceID: job.ResourceID,
		Outcome:    outcome,
		Attempts:   attempts,
		Err:        err,
		Latency:    latency,
		Time:       time.Now(),
	})
}

// queueKey groups retries by resource so redelivery order per resource is
// preserved.
func queueKey(resourceID int) string {
	return fmt.Sprintf("resource:%d", resourceID)
}
