package notify

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quakewatch/quakewatch/internal/quake"
)

// Deliverer sends one event. *Gotify satisfies it.
type Deliverer interface {
	Deliver(ctx context.Context, ev quake.Event) Result
}

// Queue buffers admitted events between the stream runners and the gateway.
type Queue struct {
	d       Deliverer
	workers int
	buf     chan quake.Event

	mu      sync.Mutex // guards closed and sends on buf
	closed  bool
	started bool
	cancel  context.CancelFunc
	done    chan struct{}

	onResult func(quake.Event, Result)
	evicted  atomic.Uint64
}

// NewQueue returns a Queue holding at most size pending events, drained by
// workers goroutines once Run is called.
func NewQueue(d Deliverer, size, workers int) *Queue {
	if size <= 0 {
		size = 16
	}
	if workers <= 0 {
		workers = 1
	}
	return &Queue{
		d:       d,
		workers: workers,
		buf:     make(chan quake.Event, size),
		done:    make(chan struct{}),
	}
}

// OnResult registers fn to observe every delivery outcome. Call before Run.
func (q *Queue) OnResult(fn func(quake.Event, Result)) {
	q.onResult = fn
}

// Submit enqueues ev without blocking. If the buffer is full the oldest
// pending event is evicted. It returns false once Shutdown has begun.
func (q *Queue) Submit(ev quake.Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	select {
	case q.buf <- ev:
		return true
	default:
	}

	select {
	case old := <-q.buf:
		q.evicted.Add(1)
		slog.Warn("notify: queue full, evicted oldest notification",
			"source", old.Source, "key", old.Key, "queue_cap", cap(q.buf))
	default:
	}
	select {
	case q.buf <- ev:
	default:
		// Only consumers remove entries, so this cannot happen while mu is held.
		q.evicted.Add(1)
	}
	return true
}

func (q *Queue) running() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.started
}

// Len returns the number of pending events.
func (q *Queue) Len() int { return len(q.buf) }

// Evicted returns how many events were dropped because the buffer was full.
func (q *Queue) Evicted() uint64 { return q.evicted.Load() }

// Run starts the workers and blocks until they exit: after Shutdown has
// drained the buffer, or when ctx is cancelled.
func (q *Queue) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	q.mu.Lock()
	q.started = true
	q.cancel = cancel
	q.mu.Unlock()
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < q.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.work(ctx)
		}()
	}
	wg.Wait()
	close(q.done)
}

// Shutdown stops intake and waits up to grace for pending and in-flight
// deliveries. After grace the remaining retries are abandoned.
func (q *Queue) Shutdown(grace time.Duration) {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.buf)
	}
	started, cancel := q.started, q.cancel
	q.mu.Unlock()

	if !started {
		return
	}

	t := time.NewTimer(grace)
	defer t.Stop()
	select {
	case <-q.done:
		return
	case <-t.C:
		slog.Warn("notify: shutdown grace elapsed, abandoning pending deliveries",
			"pending", len(q.buf), "grace", grace)
		cancel()
	}
	<-q.done
}

func (q *Queue) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-q.buf:
			if !ok {
				return
			}
			res := q.d.Deliver(ctx, ev)
			if q.onResult != nil {
				q.onResult(ev, res)
			}
		}
	}
}
