// Package broker implements the process-wide in-process multicast of domain
// events. One Broker is constructed at startup and passed by reference to
// producers and consumers; it is the only piece of shared mutable state in
// the core and all synchronization on the stream lives here.
package broker

import (
	"errors"
	"reflect"
	"sync"

	"github.com/rs/zerolog"

	"github.com/example/issue-tracker/internal/domain"
	"github.com/example/issue-tracker/internal/metrics"
)

var (
	// ErrClosed is returned by Publish after the broker has been closed.
	ErrClosed = errors.New("broker: closed")
	// ErrEventsDropped is returned by Publish when the capped buffer policy
	// discarded backlog for at least one slow subscriber. The event was
	// still delivered to every subscriber that kept up.
	ErrEventsDropped = errors.New("broker: events dropped for slow subscriber")
)

// Option customises the broker during construction.
type Option func(*Broker)

// WithCapacity bounds each subscriber's backlog to n events. When a
// subscriber falls further behind, its oldest pending events are dropped.
// Zero keeps the unbounded default, which never drops and never blocks the
// producer at the cost of memory.
func WithCapacity(n int) Option {
	return func(b *Broker) {
		if n > 0 {
			b.capacity = n
		}
	}
}

// WithMetrics wires the prometheus counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Broker) {
		b.metrics = m
	}
}

// Broker is a multicast channel of domain events. Every subscriber active
// at the moment of Publish observes the event exactly once, in publish
// order; subscribers joining later see only subsequent events.
type Broker struct {
	logger   zerolog.Logger
	capacity int
	metrics  *metrics.Metrics

	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

// New constructs a Broker.
func New(logger zerolog.Logger, opts ...Option) *Broker {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}

	b := &Broker{
		logger: logger.With().Str("component", "event_broker").Logger(),
		subs:   make(map[*Subscription]struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Publish offers the event to every active subscriber without blocking.
// Under the default unbounded policy it always succeeds while the broker is
// open. Under a capped policy it may report ErrEventsDropped.
func (b *Broker) Publish(ev domain.Event) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	subs := make([]*Subscription, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	dropped := false
	for _, s := range subs {
		if s.enqueue(ev, b.capacity) {
			dropped = true
			b.metrics.EventDropped()
			b.logger.Warn().
				Str("event_id", ev.EventID).
				Str("event_name", ev.EventName).
				Int("capacity", b.capacity).
				Msg("broker: dropped oldest backlog entry for slow subscriber")
		}
	}

	b.metrics.EventPublished()

	if dropped {
		return ErrEventsDropped
	}
	return nil
}

// Subscribe registers a new independent view of the stream starting now.
func (b *Broker) Subscribe() *Subscription {
	s := &Subscription{
		broker: b,
		ch:     make(chan domain.Event),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		drain:  make(chan struct{}),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		s.stopped = true
		close(s.ch)
		close(s.done)
		return s
	}
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	go s.pump()
	return s
}

// Close stops intake and flushes every subscription: each subscriber's
// channel keeps delivering the pending backlog and is closed once it is
// empty. Events the broker accepted are never silently discarded on
// shutdown.
func (b *Broker) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*Subscription, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.subs = make(map[*Subscription]struct{})
	b.mu.Unlock()

	for _, s := range subs {
		s.flush()
	}
}

func (b *Broker) remove(s *Subscription) {
	b.mu.Lock()
	delete(b.subs, s)
	b.mu.Unlock()
}

// Subscription is one live consumer of the stream. Closing it never blocks
// or slows the producer and does not affect other subscribers.
type Subscription struct {
	broker *Broker
	ch     chan domain.Event
	wake   chan struct{}
	done   chan struct{}
	drain  chan struct{}

	mu      sync.Mutex
	stopped bool
	backlog []domain.Event

	closeOnce sync.Once
	drainOnce sync.Once
}

// C returns the channel events are delivered on. The channel is closed when
// the subscription or the broker closes.
func (s *Subscription) C() <-chan domain.Event {
	return s.ch
}

// Close cancels the subscription immediately, discarding any pending
// backlog. Idempotent.
func (s *Subscription) Close() {
	s.broker.remove(s)
	s.stop()
}

func (s *Subscription) stop() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// flush stops intake for the subscription but lets the pump deliver the
// pending backlog before closing the channel. Used by broker shutdown.
func (s *Subscription) flush() {
	s.drainOnce.Do(func() {
		close(s.drain)
	})
}

// terminate marks the subscription dead and releases the backlog. Runs
// under s.mu so enqueue can never append to a subscription whose pump has
// already exited.
func (s *Subscription) terminate() {
	s.mu.Lock()
	s.stopped = true
	s.backlog = nil
	s.mu.Unlock()
}

// enqueue appends the event to the backlog, applying the drop-oldest policy
// when capacity is bounded. Reports whether a drop occurred.
func (s *Subscription) enqueue(ev domain.Event, capacity int) bool {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return false
	}
	dropped := false
	if capacity > 0 && len(s.backlog) >= capacity {
		s.backlog = s.backlog[1:]
		dropped = true
	}
	s.backlog = append(s.backlog, ev)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return dropped
}

// pump moves events from the backlog to the delivery channel one at a time,
// preserving publish order for this subscriber. A flush lets it run the
// backlog dry before closing; a stop ends it immediately.
func (s *Subscription) pump() {
	defer close(s.ch)
	defer s.terminate()

	for {
		s.mu.Lock()
		if len(s.backlog) == 0 {
			select {
			case <-s.drain:
				s.mu.Unlock()
				return
			default:
			}
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-s.drain:
				continue
			case <-s.done:
				return
			}
		}
		ev := s.backlog[0]
		s.backlog = s.backlog[1:]
		s.mu.Unlock()

		select {
		case s.ch <- ev:
		case <-s.done:
			return
		}
	}
}
