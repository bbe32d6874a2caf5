package chat

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vendalink/salechat-server/internal/feed"
	"github.com/vendalink/salechat-server/internal/store"
)

// snapshotBuffer bounds pending snapshots per view; pushes coalesce to the
// latest state when the consumer lags.
const snapshotBuffer = 16

// ListView is a live conversation list for one viewer. It owns its own
// subscription and local state; concurrent views for the same viewer do
// not share anything.
type ListView struct {
	viewerID int64
	store    store.MessageStore
	feed     feed.Feed
	log      *zerolog.Logger

	mu    sync.Mutex
	convs []Conversation

	updates chan []Conversation
	cancel  context.CancelFunc
	done    chan struct{}
}

// OpenListView bulk-fetches the viewer's messages, derives the
// conversation list, subscribes to the change feed and starts applying
// live events. Close must be called when the owning surface goes away.
func OpenListView(ctx context.Context, st store.MessageStore, f feed.Feed, viewerID int64, logger *zerolog.Logger) (*ListView, error) {
	msgs, err := st.ListForUser(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	sub, err := f.Subscribe(ctx, feed.ForRecipient(viewerID))
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	v := &ListView{
		viewerID: viewerID,
		store:    st,
		feed:     f,
		log:      logger,
		convs:    BuildConversations(viewerID, FromStoreSlice(msgs)),
		updates:  make(chan []Conversation, snapshotBuffer),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	v.push()

	go v.run(ctx, sub)
	return v, nil
}

// Conversations returns the current derived list.
func (v *ListView) Conversations() []Conversation {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]Conversation, len(v.convs))
	copy(out, v.convs)
	return out
}

// Updates delivers coalesced snapshots; the channel closes on Close.
func (v *ListView) Updates() <-chan []Conversation {
	return v.updates
}

// Close releases the subscription and stops the view. Blocks until the
// event loop has exited, so no callback runs after it returns.
func (v *ListView) Close() {
	v.cancel()
	<-v.done
}

func (v *ListView) run(ctx context.Context, sub feed.Subscription) {
	defer close(v.done)
	defer close(v.updates)
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
				// Subscription dropped: resubscribe, then reconcile with a
				// fresh bulk fetch since pushes may have been missed.
				_ = sub.Close()
				next, err := v.resubscribe(ctx)
				if err != nil {
					if v.log != nil && ctx.Err() == nil {
						v.log.Warn().Err(err).Int64("viewer_id", v.viewerID).Msg("list view resubscribe failed")
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

func (v *ListView) resubscribe(ctx context.Context) (feed.Subscription, error) {
	sub, err := v.feed.Subscribe(ctx, feed.ForRecipient(v.viewerID))
	if err != nil {
		return nil, err
	}
	msgs, err := v.store.ListForUser(ctx, v.viewerID)
	if err != nil {
		_ = sub.Close()
		return nil, err
	}

	v.mu.Lock()
	v.convs = BuildConversations(v.viewerID, FromStoreSlice(msgs))
	v.mu.Unlock()
	v.push()
	return sub, nil
}

func (v *ListView) apply(ev feed.Event) {
	v.mu.Lock()
	switch ev.Kind {
	case feed.KindMessageInserted:
		if ev.Message == nil {
			v.mu.Unlock()
			return
		}
		v.convs = MergeMessage(v.viewerID, v.convs, FromStore(ev.Message))
	case feed.KindMessagesRead:
		v.convs = ApplyRead(v.viewerID, v.convs, ev.MessageIDs)
	default:
		v.mu.Unlock()
		return
	}
	v.mu.Unlock()
	v.push()
}

// push enqueues the current snapshot, discarding the oldest pending one
// when the consumer lags.
func (v *ListView) push() {
	snap := v.Conversations()
	for {
		select {
		case v.updates <- snap:
			return
		default:
			select {
			case <-v.updates:
			default:
			}
		}
	}
}
