package mqtt

import (
	"fmt"
	"sync"
	"time"

	coremetrics "github.com/usagecast/usagecast/core/metrics"
	"github.com/usagecast/usagecast/core/model"
)

// unhealthyFailureRatio is the connect failure ratio above which a connected
// broker is still reported unhealthy.
const unhealthyFailureRatio = 0.3

// Monitor tracks per-broker connection statistics. All methods are safe for
// concurrent use; status queries may run while connects and publishes mutate
// the counters.
type Monitor struct {
	mu    sync.RWMutex
	stats map[int]*model.ConnectionStats
	sink  coremetrics.MetricsSink
	now   func() time.Time
}

// NewMonitor creates a Monitor. The sink may be nil.
func NewMonitor(sink coremetrics.MetricsSink) *Monitor {
	if sink == nil {
		sink = coremetrics.NopSink{}
	}
	return &Monitor{
		stats: make(map[int]*model.ConnectionStats),
		sink:  sink,
		now:   time.Now,
	}
}

func (m *Monitor) get(serverID int) *model.ConnectionStats {
	if s, ok := m.stats[serverID]; ok {
		return s
	}
	s := &model.ConnectionStats{}
	m.stats[serverID] = s
	return s
}

// Register ensures a stats entry exists for the server.
func (m *Monitor) Register(serverID int) {
	m.mu.Lock()
	m.get(serverID)
	m.mu.Unlock()
}

// ConnectAttempt records a connection or reconnection attempt.
func (m *Monitor) ConnectAttempt(serverID int) {
	m.mu.Lock()
	m.get(serverID).ConnectAttempts++
	m.mu.Unlock()
}

// ConnectSuccess records an acknowledged connection.
func (m *Monitor) ConnectSuccess(serverID int) {
	now := m.now()
	m.mu.Lock()
	s := m.get(serverID)
	s.ConnectSuccesses++
	s.LastConnectedAt = now.UTC().Format(time.RFC3339)
	m.mu.Unlock()
	if rec, ok := m.sink.(coremetrics.ConnectionRecorder); ok {
		_ = rec.RecordConnection(coremetrics.ConnectionRecord{ServerID: serverID, Connected: true, Time: now})
	}
}

// ConnectFailure records a failed connection attempt with its reason.
func (m *Monitor) ConnectFailure(serverID int, reason string) {
	m.mu.Lock()
	s := m.get(serverID)
	s.ConnectFailures++
	s.LastError = reason
	m.mu.Unlock()
}

// Disconnect records a connection loss.
func (m *Monitor) Disconnect(serverID int) {
	now := m.now()
	m.mu.Lock()
	m.get(serverID).LastDisconnectAt = now.UTC().Format(time.RFC3339)
	m.mu.Unlock()
	if rec, ok := m.sink.(coremetrics.ConnectionRecorder); ok {
		_ = rec.RecordConnection(coremetrics.ConnectionRecord{ServerID: serverID, Connected: false, Time: now})
	}
}

// PublishSuccess records a successful publish.
func (m *Monitor) PublishSuccess(serverID int) {
	m.mu.Lock()
	m.get(serverID).PublishSuccesses++
	m.mu.Unlock()
}

// PublishFailure records a failed publish with its reason.
func (m *Monitor) PublishFailure(serverID int, reason string) {
	m.mu.Lock()
	s := m.get(serverID)
	s.PublishFailures++
	s.LastError = reason
	m.mu.Unlock()
}

// Stats returns a snapshot of the server's counters.
func (m *Monitor) Stats(serverID int) model.ConnectionStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.stats[serverID]; ok {
		return *s
	}
	return model.ConnectionStats{}
}

// ServerIDs lists all servers with recorded stats.
func (m *Monitor) ServerIDs() []int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]int, 0, len(m.stats))
	for id := range m.stats {
		ids = append(ids, id)
	}
	return ids
}

// Reset clears the server's counters. External configuration flows call this
// when a broker is deleted or replaced.
func (m *Monitor) Reset(serverID int) {
	m.mu.Lock()
	delete(m.stats, serverID)
	m.mu.Unlock()
}

// FailureRatio reports connect failures over attempts, guarding the zero
// attempt case.
func (m *Monitor) FailureRatio(serverID int) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.stats[serverID]
	if !ok {
		return 0
	}
	attempts := s.ConnectAttempts
	if attempts < 1 {
		attempts = 1
	}
	return float64(s.ConnectFailures) / float64(attempts)
}

// Healthy applies the health heuristic for a broker in the given connected
// state.
func (m *Monitor) Healthy(serverID int, connected bool) bool {
	return connected && m.FailureRatio(serverID) < unhealthyFailureRatio
}

// HealthDetails renders a human-readable health summary for test endpoints.
func (m *Monitor) HealthDetails(serverID int, connected bool) string {
	s := m.Stats(serverID)
	state := "disconnected"
	if connected {
		state = "connected"
	}
	return fmt.Sprintf("%s, %d/%d connect attempts failed", state, s.ConnectFailures, s.ConnectAttempts)
}
