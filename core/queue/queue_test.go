package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usagecast/usagecast/infra/logger"
)

type failingDeliverer struct {
	mu       sync.Mutex
	fail     bool
	attempts []string
}

func (d *failingDeliverer) deliver(_ context.Context, payload string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attempts = append(d.attempts, payload)
	if d.fail {
		return errors.New("destination down")
	}
	return nil
}

func (d *failingDeliverer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.attempts)
}

func newTestQueue(d *failingDeliverer, hooks Hooks[string]) *Queue[string] {
	return New[string]("test", 10*time.Millisecond, d.deliver, logger.NopLogger{}, hooks)
}

func TestSweepDeliversAndDrops(t *testing.T) {
	d := &failingDeliverer{}
	q := newTestQueue(d, Hooks[string]{})
	q.Enqueue("resource:1", "msg", 3, 0)
	require.Equal(t, 1, q.Len())

	q.Sweep(context.Background())
	assert.Equal(t, 1, d.count())
	assert.Equal(t, 0, q.Len())
}

func TestRetryExhaustion(t *testing.T) {
	d := &failingDeliverer{fail: true}
	var dropped []Item[string]
	q := newTestQueue(d, Hooks[string]{
		Dropped: func(_ string, it Item[string], _ error) { dropped = append(dropped, it) },
	})

	// Immediate attempt happens at the publisher; the queue owns the two
	// retries of a maxRetries=2 policy.
	q.Enqueue("resource:1", "msg", 2, 0)
	for i := 0; i < 5; i++ {
		q.Sweep(context.Background())
	}

	assert.Equal(t, 2, d.count())
	assert.Equal(t, 0, q.Len())
	require.Len(t, dropped, 1)
	assert.Equal(t, 2, dropped[0].Retries)
}

func TestZeroRetriesDroppedWithoutAttempt(t *testing.T) {
	d := &failingDeliverer{fail: true}
	q := newTestQueue(d, Hooks[string]{})
	q.Enqueue("resource:1", "msg", 0, 0)

	q.Sweep(context.Background())
	assert.Equal(t, 0, d.count())
	assert.Equal(t, 0, q.Len())
}

func TestRetryDelayRespected(t *testing.T) {
	d := &failingDeliverer{fail: true}
	q := newTestQueue(d, Hooks[string]{})
	base := time.Unix(1000, 0)
	q.now = func() time.Time { return base }

	q.Enqueue("resource:1", "msg", 5, time.Minute)
	q.Sweep(context.Background()) // first attempt: LastAttempt was zero
	require.Equal(t, 1, d.count())

	// Not enough time elapsed, item must be skipped.
	q.now = func() time.Time { return base.Add(30 * time.Second) }
	q.Sweep(context.Background())
	assert.Equal(t, 1, d.count())
	assert.Equal(t, 1, q.Len())

	// Past the delay the item is eligible again.
	q.now = func() time.Time { return base.Add(2 * time.Minute) }
	q.Sweep(context.Background())
	assert.Equal(t, 2, d.count())
}

func TestOrderWithinKeyPreserved(t *testing.T) {
	d := &failingDeliverer{fail: true}
	q := newTestQueue(d, Hooks[string]{})
	q.Enqueue("resource:1", "first", 10, 0)
	q.Enqueue("resource:1", "second", 10, 0)

	q.Sweep(context.Background())
	require.Equal(t, []string{"first", "second"}, d.attempts)

	d.attempts = nil
	q.Sweep(context.Background())
	assert.Equal(t, []string{"first", "second"}, d.attempts)
}

func TestIndependentKeys(t *testing.T) {
	downDeliverer := func(_ context.Context, payload string) error {
		if payload == "down" {
			return errors.New("unreachable")
		}
		return nil
	}
	q := New[string]("test", 10*time.Millisecond, downDeliverer, logger.NopLogger{}, Hooks[string]{})
	q.Enqueue("resource:1", "down", 5, 0)
	q.Enqueue("resource:2", "up", 5, 0)

	q.Sweep(context.Background())
	assert.Equal(t, 1, q.Len())
}

func TestDepthHook(t *testing.T) {
	d := &failingDeliverer{fail: true}
	var depths []int
	q := newTestQueue(d, Hooks[string]{Depth: func(n int) { depths = append(depths, n) }})
	q.Enqueue("resource:1", "msg", 5, time.Hour)

	q.Sweep(context.Background())
	require.NotEmpty(t, depths)
	assert.Equal(t, 1, depths[len(depths)-1])
}

func TestStartStop(t *testing.T) {
	d := &failingDeliverer{}
	q := newTestQueue(d, Hooks[string]{})
	q.Enqueue("resource:1", "msg", 3, 0)

	q.Start(context.Background())
	require.Eventually(t, func() bool { return q.Len() == 0 }, time.Second, 5*time.Millisecond)
	q.Stop()

	// Stop is idempotent.
	q.Stop()
}
