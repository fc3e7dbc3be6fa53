package queue

import (
	"context"
	"sync"
	"time"

	"github.com/usagecast/usagecast/core/logger"
)

// Item is one queued delivery. LastAttempt is zero until the first retry;
// such items are always eligible for the next sweep.
type Item[T any] struct {
	Payload     T
	Retries     int
	MaxRetries  int
	RetryDelay  time.Duration
	LastAttempt time.Time
	EnqueuedAt  time.Time
}

// DeliverFunc performs one delivery attempt for a queued payload.
type DeliverFunc[T any] func(ctx context.Context, payload T) error

// Hooks receive queue lifecycle notifications. All fields are optional.
type Hooks[T any] struct {
	Delivered func(key string, it Item[T])
	Retried   func(key string, it Item[T], err error)
	Dropped   func(key string, it Item[T], err error)
	Depth     func(total int)
}

// Queue retries failed deliveries grouped by destination key. Order within a
// key follows enqueue order; no ordering exists across keys.
type Queue[T any] struct {
	name     string
	interval time.Duration
	deliver  DeliverFunc[T]
	log      logger.Logger
	hooks    Hooks[T]

	mu     sync.Mutex
	groups map[string][]*Item[T]

	cancel context.CancelFunc
	done   chan struct{}

	now func() time.Time
}

// New creates a Queue swept every interval by deliver.
func New[T any](name string, interval time.Duration, deliver DeliverFunc[T], log logger.Logger, hooks Hooks[T]) *Queue[T] {
	return &Queue[T]{
		name:     name,
		interval: interval,
		deliver:  deliver,
		log:      log,
		hooks:    hooks,
		groups:   make(map[string][]*Item[T]),
		now:      time.Now,
	}
}

// Enqueue appends a payload to the key's group. maxRetries zero means the
// item is dropped on the next sweep without another attempt.
func (q *Queue[T]) Enqueue(key string, payload T, maxRetries int, retryDelay time.Duration) {
	it := &Item[T]{
		Payload:    payload,
		MaxRetries: maxRetries,
		RetryDelay: retryDelay,
		EnqueuedAt: q.now(),
	}
	q.mu.Lock()
	q.groups[key] = append(q.groups[key], it)
	q.mu.Unlock()
}

// Len returns the total number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, items := range q.groups {
		n += len(items)
	}
	return n
}

// Start launches the background sweep loop. It returns immediately; the loop
// stops when ctx is cancelled or Stop is called.
func (q *Queue[T]) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	q.done = make(chan struct{})
	go func() {
		defer close(q.done)
		ticker := time.NewTicker(q.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				q.Sweep(ctx)
			}
		}
	}()
}

// Stop halts the sweep loop and waits for it to exit.
func (q *Queue[T]) Stop() {
	if q.cancel == nil {
		return
	}
	q.cancel()
	<-q.done
	q.cancel = nil
}

// Sweep runs one pass over all groups: eligible items are re-attempted,
// delivered items dropped, exhausted items dropped with an error log, and
// empty groups pruned. Each group's item list is snapshotted before any
// delivery so concurrent enqueues are not lost.
func (q *Queue[T]) Sweep(ctx context.Context) {
	now := q.now()

	q.mu.Lock()
	keys := make([]string, 0, len(q.groups))
	for k := range q.groups {
		keys = append(keys, k)
	}
	q.mu.Unlock()

	for _, key := range keys {
		q.mu.Lock()
		items := q.groups[key]
		delete(q.groups, key)
		q.mu.Unlock()

		var remaining []*Item[T]
		for _, it := range items {
			if !it.LastAttempt.IsZero() && now.Sub(it.LastAttempt) < it.RetryDelay {
				remaining = append(remaining, it)
				continue
			}
			if it.Retries >= it.MaxRetries {
				// Retry budget already spent (or retries disabled): the
				// item is dropped without another attempt.
				q.log.Errorf("%s queue: dropping item for %s after %d retries", q.name, key, it.Retries)
				if q.hooks.Dropped != nil {
					q.hooks.Dropped(key, *it, nil)
				}
				continue
			}

			err := q.deliver(ctx, it.Payload)
			if err == nil {
				q.log.Infof("%s queue: delivered queued item for %s after retry", q.name, key)
				if q.hooks.Delivered != nil {
					q.hooks.Delivered(key, *it)
				}
				continue
			}

			it.Retries++
			it.LastAttempt = now
			if it.Retries < it.MaxRetries {
				q.log.Warnf("%s queue: delivery for %s failed: %v, retry %d/%d", q.name, key, err, it.Retries, it.MaxRetries)
				if q.hooks.Retried != nil {
					q.hooks.Retried(key, *it, err)
				}
				remaining = append(remaining, it)
			} else {
				q.log.Errorf("%s queue: delivery for %s failed after %d retries, discarding: %v", q.name, key, it.MaxRetries, err)
				if q.hooks.Dropped != nil {
					q.hooks.Dropped(key, *it, err)
				}
			}
		}

		if len(remaining) > 0 {
			q.mu.Lock()
			// Survivors keep their place ahead of items enqueued mid-sweep.
			q.groups[key] = append(remaining, q.groups[key]...)
			q.mu.Unlock()
		}
	}

	if q.hooks.Depth != nil {
		q.hooks.Depth(q.Len())
	}
}
