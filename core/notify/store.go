package notify

import (
	"context"

	"github.com/usagecast/usagecast/core/model"
)

// ResourceStore resolves managed resources. A nil resource with a nil error
// means the resource does not exist.
type ResourceStore interface {
	GetResource(ctx context.Context, id int) (*model.Resource, error)
}

// MQTTConfigStore provides the broker bindings of a resource.
type MQTTConfigStore interface {
	GetMQTTConfigs(ctx context.Context, resourceID int) ([]model.MQTTConfig, error)
}

// WebhookConfigStore provides the webhook bindings of a resource. Listing
// returns only active configs; lookup by id returns inactive ones too so the
// test endpoint can exercise them before activation.
type WebhookConfigStore interface {
	GetWebhookConfigs(ctx context.Context, resourceID int) ([]model.WebhookConfig, error)
	GetWebhookConfig(ctx context.Context, id int) (*model.WebhookConfig, error)
}
