package events

import (
	"context"
	"sync"
	"time"

	"referrald/internal/models"
	"referrald/internal/providers"
	"referrald/internal/structures"
)

const deliverTimeout = 5 * time.Second

// Dispatcher fans events out to sinks on a fixed pool of workers. Enqueue
// never blocks: when the queue is full the event is dropped for every sink
// and stays readable from the journal.
type Dispatcher struct {
	sinks   []Sink
	queue   chan *models.Event
	workers int
	metrics providers.MetricsProviderInterface
	logger  providers.Logger

	mu      sync.RWMutex
	started bool
	stopped bool
	wg      sync.WaitGroup
}

func NewDispatcher(conf *structures.Config, sinks []Sink, metrics providers.MetricsProviderInterface, logger providers.Logger) *Dispatcher {
	queueSize := max(conf.Events.QueueSize, 1)
	workers := max(conf.Events.Workers, 1)
	return &Dispatcher{
		sinks:   sinks,
		queue:   make(chan *models.Event, queueSize),
		workers: workers,
		metrics: metrics,
		logger:  logger,
	}
}

func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started || d.stopped {
		return
	}
	d.started = true
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
	d.logger.Infof(providers.TypeEvents, "Event dispatcher started: %d workers, %d sinks", d.workers, len(d.sinks))
}

func (d *Dispatcher) Enqueue(evt *models.Event) {
	if len(d.sinks) == 0 {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		d.drop(evt)
		return
	}
	select {
	case d.queue <- evt:
	default:
		d.drop(evt)
	}
}

func (d *Dispatcher) drop(evt *models.Event) {
	for _, s := range d.sinks {
		d.metrics.IncEvents(s.Name(), providers.EventOutcomeDropped)
	}
	d.logger.Warnf(providers.TypeEvents, "Dispatch queue full, event %d dropped", evt.Seq)
}

// Stop drains the queue and waits for the workers.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	close(d.queue)
	started := d.started
	d.mu.Unlock()

	if !started {
		return
	}
	d.wg.Wait()
	d.logger.Infof(providers.TypeEvents, "Event dispatcher stopped")
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for evt := range d.queue {
		d.deliver(evt)
	}
}

func (d *Dispatcher) deliver(evt *models.Event) {
	for _, s := range d.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
		err := s.Deliver(ctx, evt)
		cancel()
		if err != nil {
			d.metrics.IncEvents(s.Name(), providers.EventOutcomeFailed)
			d.logger.Warnf(providers.TypeEvents, "Sink %s failed on event %d: %s", s.Name(), evt.Seq, err)
			continue
		}
		d.metrics.IncEvents(s.Name(), providers.EventOutcomeDelivered)
	}
}
