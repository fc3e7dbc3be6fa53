package notify

import (
	"context"
	"errors"
	"sync"

	"github.com/usagecast/usagecast/core/events"
	"github.com/usagecast/usagecast/core/model"
	corewebhook "github.com/usagecast/usagecast/core/webhook"
	"github.com/usagecast/usagecast/internal/eventbus"
)

// fakeStore backs both publishers in tests.
type fakeStore struct {
	resources map[int]model.Resource
	mqtt      []model.MQTTConfig
	webhooks  []model.WebhookConfig
	listErr   error
}

func (s *fakeStore) GetResource(_ context.Context, id int) (*model.Resource, error) {
	if r, ok := s.resources[id]; ok {
		return &r, nil
	}
	return nil, nil
}

func (s *fakeStore) GetMQTTConfigs(_ context.Context, resourceID int) ([]model.MQTTConfig, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []model.MQTTConfig
	for _, c := range s.mqtt {
		if c.ResourceID == resourceID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *fakeStore) GetWebhookConfigs(_ context.Context, resourceID int) ([]model.WebhookConfig, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []model.WebhookConfig
	for _, c := range s.webhooks {
		if c.ResourceID == resourceID && c.Active {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *fakeStore) GetWebhookConfig(_ context.Context, id int) (*model.WebhookConfig, error) {
	for _, c := range s.webhooks {
		if c.ID == id {
			return &c, nil
		}
	}
	return nil, nil
}

// fakeMQTT records publishes and fails topics listed in failTopics.
type fakeMQTT struct {
	mu         sync.Mutex
	published  []publishedMsg
	failTopics map[string]bool
	failAll    bool
}

type publishedMsg struct {
	ServerID int
	Topic    string
	Payload  string
}

func (f *fakeMQTT) Publish(_ context.Context, serverID int, topic, payload string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll || f.failTopics[topic] {
		return errors.New("broker unavailable")
	}
	f.published = append(f.published, publishedMsg{ServerID: serverID, Topic: topic, Payload: payload})
	return nil
}

func (f *fakeMQTT) messages() []publishedMsg {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]publishedMsg(nil), f.published...)
}

// fakeSender records webhook deliveries and fails while failing is set.
type fakeSender struct {
	mu        sync.Mutex
	delivered []corewebhook.Request
	failing   bool
	failURLs  map[string]bool
}

func (f *fakeSender) Deliver(_ context.Context, req corewebhook.Request) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing || f.failURLs[req.URL] {
		return 0, errors.New("no response received")
	}
	f.delivered = append(f.delivered, req)
	return 200, nil
}

func (f *fakeSender) requests() []corewebhook.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]corewebhook.Request(nil), f.delivered...)
}

func (f *fakeSender) setFailing(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing = v
}

// collectDeliveryEvents drains the subscriber channel into a slice.
func collectDeliveryEvents(sub <-chan eventbus.Event) []events.DeliveryEvent {
	var out []events.DeliveryEvent
	for {
		select {
		case ev := <-sub:
			if de, ok := ev.(events.DeliveryEvent); ok {
				out = append(out, de)
			}
		default:
			return out
		}
	}
}
