package mqtt

import (
	"context"

	"github.com/usagecast/usagecast/core/model"
)

// Publisher publishes a rendered message to a configured broker. The
// implementation owns connection establishment; publish failures surface as
// errors so the caller can queue a retry.
type Publisher interface {
	Publish(ctx context.Context, serverID int, topic, payload string) error
}

// StatusReporter exposes the connection state of configured brokers.
type StatusReporter interface {
	Status(serverID int) model.MQTTServerStatus
	AllStatuses() []model.MQTTServerStatus
}

// ConnectionTester performs a one-off connection check against a broker.
type ConnectionTester interface {
	TestConnection(ctx context.Context, serverID int) model.TestResult
}
