// Package recall schedules delayed deletion of delivered messages.
package recall

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/crystaldolphin/outpipe/internal/metrics"
	"github.com/crystaldolphin/outpipe/internal/schema"
)

// Tracker owns every pending deletion so they can be cancelled and joined
// together on shutdown.
type Tracker struct {
	mu      sync.Mutex
	tasks   map[uint64]context.CancelFunc
	next    uint64
	closed  bool
	wg      sync.WaitGroup
	base    context.Context
	stop    context.CancelFunc
	log     zerolog.Logger
	metrics *metrics.Metrics
}

// NewTracker returns an empty Tracker. m may be nil.
func NewTracker(log zerolog.Logger, m *metrics.Metrics) *Tracker {
	base, stop := context.WithCancel(context.Background())
	return &Tracker{
		tasks:   make(map[uint64]context.CancelFunc),
		base:    base,
		stop:    stop,
		log:     log.With().Str("component", "recall").Logger(),
		metrics: m,
	}
}

// Schedule deletes r through d after delay. It returns false once the
// tracker is closed.
func (t *Tracker) Schedule(d schema.Deleter, r schema.Receipt, delay time.Duration, reason string) bool {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return false
	}
	ctx, cancel := context.WithCancel(t.base)
	id := t.next
	t.next++
	t.tasks[id] = cancel
	t.wg.Add(1)
	t.mu.Unlock()

	t.metrics.RecallScheduled()
	go t.run(ctx, id, d, r, delay, reason)
	return true
}

func (t *Tracker) run(ctx context.Context, id uint64, d schema.Deleter, r schema.Receipt, delay time.Duration, reason string) {
	defer t.wg.Done()
	defer t.forget(id)

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		t.metrics.RecallFinished("cancelled")
		return
	case <-timer.C:
	}

	if err := d.DeleteMessage(ctx, r); err != nil {
		t.metrics.RecallFinished("error")
		t.log.Error().Err(err).Str("message_id", r.MessageID).Str("reason", reason).Msg("recall failed")
		return
	}
	t.metrics.RecallFinished("ok")
	t.log.Debug().Str("message_id", r.MessageID).Str("reason", reason).Msg("message recalled")
}

func (t *Tracker) forget(id uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cancel, ok := t.tasks[id]; ok {
		cancel()
		delete(t.tasks, id)
	}
}

// Pending returns the number of tasks not yet finished.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tasks)
}

// Close cancels every pending task and waits for all of them to return.
// Task errors are not reported.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()

	t.stop()
	t.wg.Wait()
}
