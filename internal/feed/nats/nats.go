// Package nats is the JetStream-backed feed driver for multi-process
// deployments. Every server process publishes row changes to one stream
// and each view's subscription consumes it with its own ephemeral
// consumer, so delivery guarantees match the in-process bus: per-consumer
// publish order, at-least-once.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"github.com/vendalink/salechat-server/internal/feed"
)

const (
	subscriberBuffer = 64
	setupTimeout     = 5 * time.Second
)

// Feed implements feed.Feed on top of a NATS JetStream stream.
type Feed struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	stream  string
	subject string
	log     *zerolog.Logger
}

// New connects to NATS and ensures the change-feed stream exists.
func New(url, stream string, logger *zerolog.Logger) (*Feed, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
	defer cancel()

	subject := stream + ".changes"
	if _, err := js.Stream(ctx, stream); err != nil {
		_, err = js.CreateStream(ctx, jetstream.StreamConfig{
			Name:        stream,
			Description: "message and notification row changes",
			Subjects:    []string{subject},
			MaxAge:      24 * time.Hour,
			Storage:     jetstream.FileStorage,
		})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("create stream %q: %w", stream, err)
		}
	}

	return &Feed{nc: nc, js: js, stream: stream, subject: subject, log: logger}, nil
}

// Publish serializes the event onto the stream.
func (f *Feed) Publish(ctx context.Context, ev feed.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := f.js.Publish(ctx, f.subject, data); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Subscribe creates an ephemeral consumer starting from now; the filter is
// applied before events are forwarded. Missed history is the consumer's
// problem by contract: views refetch on (re)subscribe.
func (f *Feed) Subscribe(ctx context.Context, filter feed.Filter) (feed.Subscription, error) {
	cons, err := f.js.CreateOrUpdateConsumer(ctx, f.stream, jetstream.ConsumerConfig{
		FilterSubject: f.subject,
		DeliverPolicy: jetstream.DeliverNewPolicy,
		AckPolicy:     jetstream.AckNonePolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("create consumer: %w", err)
	}

	sub := &subscription{
		events: make(chan feed.Event, subscriberBuffer),
	}

	consumeCtx, err := cons.Consume(func(jsMsg jetstream.Msg) {
		var ev feed.Event
		if err := json.Unmarshal(jsMsg.Data(), &ev); err != nil {
			if f.log != nil {
				f.log.Warn().Err(err).Msg("unmarshal feed event")
			}
			return
		}
		if filter != nil && !filter(ev) {
			return
		}
		if !sub.send(ev) && f.log != nil {
			// Slow consumer: the subscription is dropped; the view
			// resubscribes and reconciles with a refetch.
			f.log.Warn().Msg("dropped slow feed subscriber")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("start consumer: %w", err)
	}
	sub.setConsume(consumeCtx)

	return sub, nil
}

// Close drains the NATS connection.
func (f *Feed) Close() error {
	f.nc.Close()
	return nil
}

type subscription struct {
	mu      sync.Mutex
	closed  bool
	events  chan feed.Event
	consume jetstream.ConsumeContext
}

func (s *subscription) Events() <-chan feed.Event {
	return s.events
}

func (s *subscription) Close() error {
	s.mu.Lock()
	consume := s.consume
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	s.mu.Unlock()

	if consume != nil {
		consume.Stop()
	}
	return nil
}

func (s *subscription) setConsume(c jetstream.ConsumeContext) {
	s.mu.Lock()
	s.consume = c
	closed := s.closed
	s.mu.Unlock()

	if closed {
		c.Stop()
	}
}

// send forwards an event, dropping the subscription when the consumer has
// fallen subscriberBuffer events behind.
func (s *subscription) send(ev feed.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	select {
	case s.events <- ev:
		return true
	default:
		s.closed = true
		close(s.events)
		return false
	}
}

var _ feed.Feed = (*Feed)(nil)
