package store

import (
	"context"
	"sort"
	"sync"

	"github.com/usagecast/usagecast/core/model"
)

// Memory is a mutable in-memory configuration store. It implements the
// notify store interfaces and the mqtt ServerSource, and is the default
// backend when no database path is configured.
type Memory struct {
	mu        sync.RWMutex
	resources map[int]model.Resource
	servers   map[int]model.MQTTServer
	mqtt      map[int]model.MQTTConfig
	webhooks  map[int]model.WebhookConfig
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		resources: make(map[int]model.Resource),
		servers:   make(map[int]model.MQTTServer),
		mqtt:      make(map[int]model.MQTTConfig),
		webhooks:  make(map[int]model.WebhookConfig),
	}
}

// PutResource inserts or replaces a resource.
func (m *Memory) PutResource(r model.Resource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resources[r.ID] = r
}

// PutMQTTServer inserts or replaces a broker definition.
func (m *Memory) PutMQTTServer(s model.MQTTServer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.servers[s.ID] = s
}

// PutMQTTConfig inserts or replaces a resource-to-broker binding.
func (m *Memory) PutMQTTConfig(c model.MQTTConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mqtt[c.ID] = c
}

// PutWebhookConfig inserts or replaces a webhook binding.
func (m *Memory) PutWebhookConfig(c model.WebhookConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.webhooks[c.ID] = c
}

// DeleteMQTTServer removes a broker definition.
func (m *Memory) DeleteMQTTServer(id int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.servers, id)
}

// GetResource returns the resource or nil when unknown.
func (m *Memory) GetResource(_ context.Context, id int) (*model.Resource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if r, ok := m.resources[id]; ok {
		return &r, nil
	}
	return nil, nil
}

// GetMQTTServer returns the broker definition or nil when unknown.
func (m *Memory) GetMQTTServer(_ context.Context, id int) (*model.MQTTServer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.servers[id]; ok {
		return &s, nil
	}
	return nil, nil
}

// GetMQTTConfigs returns the bindings of a resource ordered by id.
func (m *Memory) GetMQTTConfigs(_ context.Context, resourceID int) ([]model.MQTTConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.MQTTConfig
	for _, c := range m.mqtt {
		if c.ResourceID == resourceID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetWebhookConfigs returns the active webhook bindings of a resource
// ordered by id.
func (m *Memory) GetWebhookConfigs(_ context.Context, resourceID int) ([]model.WebhookConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.WebhookConfig
	for _, c := range m.webhooks {
		if c.ResourceID == resourceID && c.Active {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetWebhookConfig returns the webhook binding by id, active or not.
func (m *Memory) GetWebhookConfig(_ context.Context, id int) (*model.WebhookConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.webhooks[id]; ok {
		return &c, nil
	}
	return nil, nil
}
