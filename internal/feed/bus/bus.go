// Package bus is the in-process feed driver: one broadcast bus per process
// that every open view attaches its own filtered subscription to.
package bus

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vendalink/salechat-server/internal/feed"
)

// subscriberBuffer bounds how far a slow consumer may lag before its
// subscription is dropped. Dropped consumers refetch on resubscribe.
const subscriberBuffer = 64

// Bus implements feed.Feed with per-subscriber buffered channels.
type Bus struct {
	mu     sync.Mutex
	subs   map[*subscription]struct{}
	closed bool
	log    *zerolog.Logger
}

type subscription struct {
	bus    *Bus
	filter feed.Filter
	events chan feed.Event
	once   sync.Once
}

// New creates an empty bus.
func New(logger *zerolog.Logger) *Bus {
	return &Bus{
		subs: make(map[*subscription]struct{}),
		log:  logger,
	}
}

// Publish fans the event out to every matching subscription in publish
// order. A subscriber whose buffer is full is dropped: its channel closes
// and it must resubscribe with a reconciliation fetch.
func (b *Bus) Publish(_ context.Context, ev feed.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return feed.ErrSubscriptionClosed
	}

	for sub := range b.subs {
		if sub.filter != nil && !sub.filter(ev) {
			continue
		}
		select {
		case sub.events <- ev:
		default:
			// Slow consumer: drop the subscription rather than block or
			// silently skip events.
			delete(b.subs, sub)
			sub.closeChan()
			if b.log != nil {
				b.log.Warn().Msg("dropped slow feed subscriber")
			}
		}
	}
	return nil
}

// Subscribe registers a new filtered subscription.
func (b *Bus) Subscribe(_ context.Context, filter feed.Filter) (feed.Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, feed.ErrSubscriptionClosed
	}

	sub := &subscription{
		bus:    b,
		filter: filter,
		events: make(chan feed.Event, subscriberBuffer),
	}
	b.subs[sub] = struct{}{}
	return sub, nil
}

// Close shuts the bus down and releases every subscription.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	for sub := range b.subs {
		delete(b.subs, sub)
		sub.closeChan()
	}
	return nil
}

func (s *subscription) Events() <-chan feed.Event {
	return s.events
}

func (s *subscription) Close() error {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	delete(s.bus.subs, s)
	s.closeChan()
	return nil
}

func (s *subscription) closeChan() {
	s.once.Do(func() {
		close(s.events)
	})
}

var _ feed.Feed = (*Bus)(nil)
