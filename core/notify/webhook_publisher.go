package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/usagecast/usagecast/core/events"
	"github.com/usagecast/usagecast/core/logger"
	"github.com/usagecast/usagecast/core/model"
	"github.com/usagecast/usagecast/core/queue"
	"github.com/usagecast/usagecast/core/template"
	corewebhook "github.com/usagecast/usagecast/core/webhook"
	"github.com/usagecast/usagecast/internal/eventbus"
)

// defaultSweepInterval paces the webhook retry queue.
const defaultSweepInterval = 5 * time.Second

// webhookJob is one fully rendered request queued for redelivery.
type webhookJob struct {
	Request    corewebhook.Request
	ConfigID   int
	ResourceID int
	Event      string
}

// WebhookPublisher consumes usage events and posts rendered requests to the
// webhooks bound to each resource. Retry budgets are per config, unlike the
// MQTT transport's global policy.
type WebhookPublisher struct {
	bus       eventbus.EventBus
	sub       <-chan eventbus.Event
	resources ResourceStore
	configs   WebhookConfigStore
	sender    corewebhook.Sender
	renderer  *template.Renderer
	queue     *queue.Queue[webhookJob]
	log       logger.Logger

	now func() time.Time
}

// NewWebhookPublisher creates the publisher and subscribes it to the bus.
// A sweepInterval of zero uses the 5 second default.
func NewWebhookPublisher(
	bus eventbus.EventBus,
	resources ResourceStore,
	configs WebhookConfigStore,
	sender corewebhook.Sender,
	renderer *template.Renderer,
	sweepInterval time.Duration,
	log logger.Logger,
) *WebhookPublisher {
	if sweepInterval == 0 {
		sweepInterval = defaultSweepInterval
	}
	p := &WebhookPublisher{
		bus:       bus,
		sub:       bus.Subscribe(),
		resources: resources,
		configs:   configs,
		sender:    sender,
		renderer:  renderer,
		log:       log,
		now:       time.Now,
	}
	p.queue = queue.New("webhook", sweepInterval, p.deliverJob, log, queue.Hooks[webhookJob]{
		Delivered: func(_ string, it queue.Item[webhookJob]) {
			p.emit(it.Payload, events.OutcomeDelivered, 1+it.Retries+1, nil, 0)
		},
		Retried: func(_ string, it queue.Item[webhookJob], err error) {
			p.emit(it.Payload, events.OutcomeRetried, 1+it.Retries, err, 0)
		},
		Dropped: func(_ string, it queue.Item[webhookJob], err error) {
			p.emit(it.Payload, events.OutcomeDropped, 1+it.Retries, err, 0)
		},
		Depth: func(total int) {
			p.log.Debugf("webhook retry queue depth: %d", total)
			p.bus.Publish(events.QueueDepthEvent{Transport: events.TransportWebhook, Depth: total, Time: time.Now()})
		},
	})
	return p
}

// QueueLen reports the number of requests waiting for redelivery.
func (p *WebhookPublisher) QueueLen() int { return p.queue.Len() }

// Start launches the retry queue and the event consume loop. Both stop when
// ctx is cancelled.
func (p *WebhookPublisher) Start(ctx context.Context) {
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
func (p *WebhookPublisher) Stop() {
	p.queue.Stop()
	p.bus.Unsubscribe(p.sub)
}

// HandleUsageStarted posts the in-use payload of every active webhook.
func (p *WebhookPublisher) HandleUsageStarted(ctx context.Context, ev events.UsageStartedEvent) {
	configs, tctx, ok := p.prepare(ctx, ev.ResourceID, ev.User, ev.StartTime)
	if !ok {
		return
	}
	for _, cfg := range configs {
		p.dispatch(ctx, cfg, "usage_started", cfg.InUseTemplate, tctx)
	}
}

// HandleUsageEnded posts the not-in-use payload of every active webhook.
func (p *WebhookPublisher) HandleUsageEnded(ctx context.Context, ev events.UsageEndedEvent) {
	configs, tctx, ok := p.prepare(ctx, ev.ResourceID, ev.User, ev.EndTime)
	if !ok {
		return
	}
	for _, cfg := range configs {
		p.dispatch(ctx, cfg, "usage_ended", cfg.NotInUseTemplate, tctx)
	}
}

// HandleUsageTakenOver posts up to three requests per webhook: a stop for the
// previous user, a takeover notice, and a start for the new user. Each
// sub-request is gated by its config toggle and isolated from the others'
// failures.
func (p *WebhookPublisher) HandleUsageTakenOver(ctx context.Context, ev events.UsageTakenOverEvent) {
	configs, tctx, ok := p.prepare(ctx, ev.ResourceID, ev.NewUser, ev.TakeoverTime)
	if !ok {
		return
	}
	for _, cfg := range configs {
		if cfg.SendOnStop && ev.PreviousUser != nil {
			stopCtx := tctx.WithUser(*ev.PreviousUser)
			p.dispatch(ctx, cfg, "takeover_stop", cfg.NotInUseTemplate, stopCtx)
		}
		// A missing takeover template disables the notice even when the
		// toggle is on.
		if cfg.SendOnTakeover && cfg.TakeoverTemplate != "" {
			takeoverCtx := tctx
			if ev.PreviousUser != nil {
				takeoverCtx = takeoverCtx.WithPreviousUser(*ev.PreviousUser)
			}
			p.dispatch(ctx, cfg, "takeover", cfg.TakeoverTemplate, takeoverCtx)
		}
		if cfg.SendOnStart {
			p.dispatch(ctx, cfg, "takeover_start", cfg.InUseTemplate, tctx)
		}
	}
}

// TestWebhook renders the in-use template against a synthetic context and
// performs a single real delivery. The retry queue is never touched.
func (p *WebhookPublisher) TestWebhook(ctx context.Context, configID int) model.TestResult {
	cfg, err := p.configs.GetWebhookConfig(ctx, configID)
	if err != nil {
		return model.TestResult{Success: false, Message: fmt.Sprintf("load webhook config %d: %v", configID, err)}
	}
	if cfg == nil {
		return model.TestResult{Success: false, Message: fmt.Sprintf("webhook config %d not found", configID)}
	}

	res := model.Resource{ID: cfg.ResourceID, Name: fmt.Sprintf("resource %d", cfg.ResourceID)}
	if stored, err := p.resources.GetResource(ctx, cfg.ResourceID); err == nil && stored != nil {
		res = *stored
	}
	tctx := template.NewContext(res, model.User{ID: 0, Username: "webhook-test"}, p.now())

	req, err := p.buildRequest(*cfg, tctx)
	if err != nil {
		return model.TestResult{Success: false, Message: fmt.Sprintf("render failed: %v", err)}
	}
	status, err := p.sender.Deliver(ctx, req)
	if err != nil {
		return model.TestResult{Success: false, Message: fmt.Sprintf("delivery failed: %v", err)}
	}
	return model.TestResult{Success: true, Message: fmt.Sprintf("Webhook delivered (%d)", status)}
}

func (p *WebhookPublisher) prepare(ctx context.Context, resourceID int, user model.User, ts time.Time) ([]model.WebhookConfig, template.Context, bool) {
	configs, err := p.configs.GetWebhookConfigs(ctx, resourceID)
	if err != nil {
		p.log.Errorf("load webhook configs for resource %d: %v", resourceID, err)
		return nil, template.Context{}, false
	}
	if len(configs) == 0 {
		p.log.Debugf("resource %d has no active webhooks", resourceID)
		return nil, template.Context{}, false
	}
	res, err := p.resources.GetResource(ctx, resourceID)
	if err != nil {
		p.log.Errorf("load resource %d: %v", resourceID, err)
		return nil, template.Context{}, false
	}
	if res == nil {
		p.log.Warnf("resource %d not found, skipping webhook notifications", resourceID)
		return nil, template.Context{}, false
	}
	return configs, template.NewContext(*res, user, ts), true
}

// dispatch renders one request and performs the initial delivery attempt.
// Transport failures enqueue the rendered request when the config's retry
// budget allows; render failures are terminal.
func (p *WebhookPublisher) dispatch(ctx context.Context, cfg model.WebhookConfig, event, bodyTmpl string, tctx template.Context) {
	if bodyTmpl == "" {
		p.log.Debugf("webhook config %d has no %s template", cfg.ID, event)
		return
	}
	body, err := p.renderer.Render(bodyTmpl, tctx)
	if err != nil {
		p.log.Errorf("render %s body for webhook config %d: %v", event, cfg.ID, err)
		return
	}
	req, err := p.buildRequestWithBody(cfg, tctx, body)
	if err != nil {
		p.log.Errorf("build %s request for webhook config %d: %v", event, cfg.ID, err)
		return
	}

	job := webhookJob{Request: req, ConfigID: cfg.ID, ResourceID: cfg.ResourceID, Event: event}
	start := time.Now()
	if _, err := p.sender.Deliver(ctx, req); err != nil {
		maxRetries := cfg.EffectiveMaxRetries()
		p.log.Warnf("webhook delivery for config %d failed: %v", cfg.ID, err)
		p.emit(job, events.OutcomeFailed, 1, err, time.Since(start))
		if maxRetries > 0 {
			p.queue.Enqueue(queueKey(cfg.ResourceID), job, maxRetries, time.Duration(cfg.RetryDelayMs)*time.Millisecond)
		} else {
			p.log.Debugf("webhook config %d has retries disabled, dropping", cfg.ID)
		}
		return
	}
	p.emit(job, events.OutcomeDelivered, 1, nil, time.Since(start))
}

// buildRequest renders the full request for a config, using the in-use
// template as body. Used by the test endpoint.
func (p *WebhookPublisher) buildRequest(cfg model.WebhookConfig, tctx template.Context) (corewebhook.Request, error) {
	body := ""
	if cfg.InUseTemplate != "" {
		rendered, err := p.renderer.Render(cfg.InUseTemplate, tctx)
		if err != nil {
			return corewebhook.Request{}, err
		}
		body = rendered
	}
	return p.buildRequestWithBody(cfg, tctx, body)
}

// buildRequestWithBody assembles URL, method and headers around an already
// rendered body. URLs containing template markers are rendered too; header
// values are always rendered. A malformed header JSON object logs a warning
// and proceeds with no custom headers.
func (p *WebhookPublisher) buildRequestWithBody(cfg model.WebhookConfig, tctx template.Context, body string) (corewebhook.Request, error) {
	url := cfg.URL
	if strings.Contains(url, "{{") {
		rendered, err := p.renderer.Render(url, tctx)
		if err != nil {
			return corewebhook.Request{}, fmt.Errorf("render url: %w", err)
		}
		url = rendered
	}

	headers := map[string]string{}
	if cfg.Headers != "" {
		var raw map[string]string
		if err := json.Unmarshal([]byte(cfg.Headers), &raw); err != nil {
			p.log.Warnf("webhook config %d has malformed headers, ignoring: %v", cfg.ID, err)
		} else {
			for k, v := range raw {
				if strings.Contains(v, "{{") {
					rendered, err := p.renderer.Render(v, tctx)
					if err != nil {
						p.log.Warnf("render header %s for webhook config %d: %v", k, cfg.ID, err)
						continue
					}
					v = rendered
				}
				headers[k] = v
			}
		}
	}

	method := strings.ToUpper(cfg.Method)
	if method == "" {
		method = http.MethodPost
	}
	return corewebhook.Request{
		URL:             url,
		Method:          method,
		Headers:         headers,
		Body:            body,
		Secret:          cfg.Secret,
		SignatureHeader: cfg.EffectiveSignatureHeader(),
	}, nil
}

// deliverJob is the retry queue's delivery function.
func (p *WebhookPublisher) deliverJob(ctx context.Context, job webhookJob) error {
	_, err := p.sender.Deliver(ctx, job.Request)
	return err
}

func (p *WebhookPublisher) emit(job webhookJob, outcome string, attempts int, err error, latency time.Duration) {
	p.bus.Publish(events.DeliveryEvent{
		Transport:  events.TransportWebhook,
		Event:      job.Event,
		Target:     job.Request.URL,
		ResourceID: job.ResourceID,
		Outcome:    outcome,
		Attempts:   attempts,
		Err:        err,
		Latency:    latency,
		Time:       time.Now(),
	})
}
