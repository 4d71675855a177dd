package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/quakewatch/quakewatch/internal/metrics"
	"github.com/quakewatch/quakewatch/internal/notify"
	"github.com/quakewatch/quakewatch/internal/quake"
)

// Dispatcher is the queue side the coordinator manages. *notify.Queue
// satisfies it.
type Dispatcher interface {
	Submitter
	Run(ctx context.Context)
	Shutdown(grace time.Duration)
}

// Coordinator runs every source runner and the dispatch queue.
type Coordinator struct {
	runners []*Runner
	queue   Dispatcher
	grace   time.Duration
}

// NewCoordinator returns a Coordinator. grace bounds how long in-flight
// deliveries may continue after shutdown begins.
func NewCoordinator(runners []*Runner, queue Dispatcher, grace time.Duration) *Coordinator {
	return &Coordinator{runners: runners, queue: queue, grace: grace}
}

// Run blocks until ctx is cancelled and everything has stopped.
func (c *Coordinator) Run(ctx context.Context) {
	// Deliveries outlive ctx by up to grace, so the queue gets its own context.
	queueDone := make(chan struct{})
	go func() {
		defer close(queueDone)
		c.queue.Run(context.Background())
	}()

	var wg sync.WaitGroup
	for _, r := range c.runners {
		wg.Add(1)
		go func(r *Runner) {
			defer wg.Done()
			r.Run(ctx)
		}(r)
	}
	slog.Info("pipeline: started", "sources", len(c.runners))

	<-ctx.Done()
	wg.Wait()
	slog.Info("pipeline: streams stopped, draining notifications", "grace", c.grace)

	c.queue.Shutdown(c.grace)
	<-queueDone
	slog.Info("pipeline: stopped")
}

// DeliveryObserver returns a notify.Queue result hook that counts outcomes.
func DeliveryObserver(m *metrics.Counters) func(quake.Event, notify.Result) {
	return func(ev quake.Event, res notify.Result) {
		if res.Delivered() {
			m.Inc(ev.Source, metrics.NotificationsDelivered)
			slog.Info("pipeline: notification delivered",
				"source", ev.Source, "delivery_id", res.DeliveryID, "attempts", res.Attempts)
			return
		}
		m.Inc(ev.Source, metrics.NotificationsFailed)
	}
}
