package feed

import (
	"context"
	"errors"

	"github.com/vendalink/salechat-server/internal/store"
)

// ErrSubscriptionClosed is returned when publishing to or reading from a
// subscription that has been released or dropped by the feed. Consumers
// recover by resubscribing and performing a reconciliation fetch.
var ErrSubscriptionClosed = errors.New("subscription closed")

// Kind identifies what changed in the underlying stores.
type Kind int

const (
	// KindMessageInserted is emitted once per durably appended message.
	KindMessageInserted Kind = iota
	// KindMessagesRead is emitted when message read flags transition.
	KindMessagesRead
	// KindNotificationInserted is emitted once per created notification.
	KindNotificationInserted
	// KindNotificationsRead is emitted when notification read flags transition.
	KindNotificationsRead
)

// Event is a row-change record pushed to subscribers.
//
// Delivery is at-least-once: the same message id may be observed more than
// once by a subscriber (e.g. an optimistic local echo followed by the
// confirmed insert), so all consumers merge idempotently by id.
type Event struct {
	Kind         Kind
	Message      *store.Message      // set for message kinds
	MessageIDs   []int64             // set for KindMessagesRead
	ReceiverID   int64               // viewer whose unread state the read event affects
	Notification *store.Notification // set for KindNotificationInserted
	UserID       int64               // recipient for notification kinds
	NotifIDs     []int64             // set for KindNotificationsRead
}

// Filter decides whether a subscription wants an event.
type Filter func(Event) bool

// ForRecipient matches message traffic addressed to the viewer plus read
// transitions of the viewer's own inbox. Used by conversation list views.
func ForRecipient(viewerID int64) Filter {
	return func(ev Event) bool {
		switch ev.Kind {
		case KindMessageInserted:
			return ev.Message != nil &&
				(ev.Message.ReceiverID == viewerID || ev.Message.SenderID == viewerID)
		case KindMessagesRead:
			return ev.ReceiverID == viewerID
		default:
			return false
		}
	}
}

// ForPair matches message traffic between exactly two users. Used by open
// thread views.
func ForPair(a, b int64) Filter {
	return func(ev Event) bool {
		switch ev.Kind {
		case KindMessageInserted:
			if ev.Message == nil {
				return false
			}
			s, r := ev.Message.SenderID, ev.Message.ReceiverID
			return (s == a && r == b) || (s == b && r == a)
		case KindMessagesRead:
			return ev.ReceiverID == a || ev.ReceiverID == b
		default:
			return false
		}
	}
}

// NotificationsFor matches notification traffic for one user. Used by the
// bell badge.
func NotificationsFor(userID int64) Filter {
	return func(ev Event) bool {
		switch ev.Kind {
		case KindNotificationInserted:
			return ev.Notification != nil && ev.Notification.UserID == userID
		case KindNotificationsRead:
			return ev.UserID == userID
		default:
			return false
		}
	}
}

// Subscription is one live delivery channel. Events arrive in publish
// order. The channel is closed when the subscription is released or when
// the feed drops it; a consumer observing closure resubscribes and
// refetches.
type Subscription interface {
	Events() <-chan Event

	// Close releases the subscription synchronously. Safe to call twice.
	Close() error
}

// Feed is the publish/subscribe change feed over store row inserts and
// read-state transitions.
type Feed interface {
	Publish(ctx context.Context, ev Event) error
	Subscribe(ctx context.Context, filter Filter) (Subscription, error)

	// Close shuts the feed down and releases every subscription.
	Close() error
}
