package chat

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vendalink/salechat-server/internal/feed"
	"github.com/vendalink/salechat-server/internal/store"
)

// BellView is the live notification-bell badge for one user. Its count is
// computed from the notification store only and is independent of any
// per-thread unread count.
type BellView struct {
	userID int64
	store  store.NotificationStore
	feed   feed.Feed
	log    *zerolog.Logger

	mu     sync.Mutex
	count  int
	closed bool

	updates chan int
	cancel  context.CancelFunc
	done    chan struct{}
}

// OpenBellView fetches the current unread notification count and keeps it
// live against notification inserts and read transitions.
func OpenBellView(ctx context.Context, ns store.NotificationStore, f feed.Feed, userID int64, logger *zerolog.Logger) (*BellView, error) {
	count, err := ns.CountUnreadNotifications(ctx, userID)
	if err != nil {
		return nil, err
	}

	sub, err := f.Subscribe(ctx, feed.NotificationsFor(userID))
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	v := &BellView{
		userID:  userID,
		store:   ns,
		feed:    f,
		log:     logger,
		count:   count,
		updates: make(chan int, snapshotBuffer),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	v.push()

	go v.run(ctx, sub)
	return v, nil
}

// Count returns the current badge count.
func (v *BellView) Count() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.count
}

// Updates delivers coalesced badge counts; closes on Close.
func (v *BellView) Updates() <-chan int {
	return v.updates
}

// Close releases the subscription and stops the view.
func (v *BellView) Close() {
	v.cancel()
	<-v.done
}

func (v *BellView) run(ctx context.Context, sub feed.Subscription) {
	defer close(v.done)
	defer func() {
		v.mu.Lock()
		v.closed = true
		v.mu.Unlock()
		close(v.updates)
	}()
	defer func() {
		if sub != nil {
			_ = sub.Close()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				_ = sub.Close()
				next, err := v.resubscribe(ctx)
				if err != nil {
					if v.log != nil && ctx.Err() == nil {
						v.log.Warn().Err(err).Int64("user_id", v.userID).Msg("bell view resubscribe failed")
					}
					sub = nil
					return
				}
				sub = next
				continue
			}
			v.apply(ev)
		}
	}
}

func (v *BellView) resubscribe(ctx context.Context) (feed.Subscription, error) {
	sub, err := v.feed.Subscribe(ctx, feed.NotificationsFor(v.userID))
	if err != nil {
		return nil, err
	}
	count, err := v.store.CountUnreadNotifications(ctx, v.userID)
	if err != nil {
		_ = sub.Close()
		return nil, err
	}

	v.mu.Lock()
	v.count = count
	v.mu.Unlock()
	v.push()
	return sub, nil
}

func (v *BellView) apply(ev feed.Event) {
	v.mu.Lock()
	switch ev.Kind {
	case feed.KindNotificationInserted:
		v.count++
	case feed.KindNotificationsRead:
		v.count -= len(ev.NotifIDs)
		if v.count < 0 {
			v.count = 0
		}
	default:
		v.mu.Unlock()
		return
	}
	v.mu.Unlock()
	v.push()
}

func (v *BellView) push() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	for {
		select {
		case v.updates <- v.count:
			return
		default:
			select {
			case <-v.updates:
			default:
			}
		}
	}
}
