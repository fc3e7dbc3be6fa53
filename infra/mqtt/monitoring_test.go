package mqtt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	coremetrics "github.com/usagecast/usagecast/core/metrics"
)

type recordingConnSink struct {
	coremetrics.NopSink
	records []coremetrics.ConnectionRecord
}

func (s *recordingConnSink) RecordConnection(rec coremetrics.ConnectionRecord) error {
	s.records = append(s.records, rec)
	return nil
}

func TestMonitorCounters(t *testing.T) {
	mon := NewMonitor(nil)
	mon.ConnectAttempt(1)
	mon.ConnectSuccess(1)
	mon.PublishSuccess(1)
	mon.PublishFailure(1, "boom")

	s := mon.Stats(1)
	assert.Equal(t, int64(1), s.ConnectAttempts)
	assert.Equal(t, int64(1), s.ConnectSuccesses)
	assert.Equal(t, int64(1), s.PublishSuccesses)
	assert.Equal(t, int64(1), s.PublishFailures)
	assert.Equal(t, "boom", s.LastError)
	assert.NotEmpty(t, s.LastConnectedAt)
}

func TestMonitorFailureRatio(t *testing.T) {
	mon := NewMonitor(nil)

	// No attempts yet: ratio guards division by zero.
	assert.Equal(t, 0.0, mon.FailureRatio(1))
	assert.True(t, mon.Healthy(1, true))
	// Healthy requires connected.
	assert.False(t, mon.Healthy(1, false))

	for i := 0; i < 10; i++ {
		mon.ConnectAttempt(1)
	}
	mon.ConnectFailure(1, "x")
	mon.ConnectFailure(1, "x")
	assert.InDelta(t, 0.2, mon.FailureRatio(1), 1e-9)
	assert.True(t, mon.Healthy(1, true))

	mon.ConnectFailure(1, "x")
	assert.InDelta(t, 0.3, mon.FailureRatio(1), 1e-9)
	assert.False(t, mon.Healthy(1, true))
}

func TestMonitorReset(t *testing.T) {
	mon := NewMonitor(nil)
	mon.ConnectAttempt(1)
	mon.Reset(1)
	assert.Equal(t, int64(0), mon.Stats(1).ConnectAttempts)
	assert.Empty(t, mon.ServerIDs())
}

func TestMonitorSinkNotifications(t *testing.T) {
	sink := &recordingConnSink{}
	mon := NewMonitor(sink)
	mon.now = func() time.Time { return time.Unix(1234, 0) }

	mon.ConnectSuccess(7)
	mon.Disconnect(7)

	assert.Len(t, sink.records, 2)
	assert.True(t, sink.records[0].Connected)
	assert.False(t, sink.records[1].Connected)
	assert.Equal(t, 7, sink.records[0].ServerID)
}
