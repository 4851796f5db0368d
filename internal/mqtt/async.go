package mqtt

import (
	"log"
	"sync"

	"github.com/sweeney/pigeon-feeder/internal/feeder"
)

// Async hands actuation events to a single background worker so broker
// latency never holds up an HTTP response. Events are published in order.
// When the queue is full new events are dropped and logged.
type Async struct {
	next  Publisher
	queue chan feeder.Event
	wg    sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewAsync starts the worker. size is the queue depth.
func NewAsync(next Publisher, size int) *Async {
	a := &Async{
		next:  next,
		queue: make(chan feeder.Event, size),
	}
	a.wg.Add(1)
	go a.run()
	return a
}

func (a *Async) run() {
	defer a.wg.Done()
	for ev := range a.queue {
		if err := a.next.Publish(ev); err != nil {
			log.Printf("mqtt: publish %s event: %v", ev.Action, err)
		}
	}
}

// Publish enqueues the event and returns immediately.
func (a *Async) Publish(ev feeder.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	select {
	case a.queue <- ev:
	default:
		log.Printf("mqtt: queue full, dropping %s event", ev.Action)
	}
	return nil
}

// PublishSystem is synchronous; lifecycle events are rare and callers want
// to know they went out before continuing (e.g. before exit).
func (a *Async) PublishSystem(ev SystemEvent) error {
	return a.next.PublishSystem(ev)
}

// Flush stops accepting events and waits for the queue to drain.
// The wrapped publisher stays open so a final PublishSystem can follow.
func (a *Async) Flush() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	a.wg.Wait()
}

// Close drains the queue, then closes the wrapped publisher.
func (a *Async) Close() error {
	a.Flush()
	return a.next.Close()
}

// IsConnected reports the wrapped publisher's connection state, if known.
func (a *Async) IsConnected() bool {
	if cs, ok := a.next.(ConnectionStatus); ok {
		return cs.IsConnected()
	}
	return false
}
