package chat

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vendalink/salechat-server/internal/feed"
	"github.com/vendalink/salechat-server/internal/store"
	"github.com/vendalink/salechat-server/internal/utils"
)

// ThreadView is a live two-party thread for one viewer. Opening it marks
// the backlog read before the first snapshot; messages arriving live are
// marked read after the tracker delay while the view stays open.
type ThreadView struct {
	viewerID int64
	peerID   int64
	store    store.MessageStore
	feed     feed.Feed
	tracker  *Tracker
	log      *zerolog.Logger

	mu     sync.Mutex
	msgs   []Message
	closed bool

	updates chan []Message
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// OpenThreadView bulk-fetches the thread, transitions the viewer's unread
// backlog as a batch, subscribes to pair traffic and starts the live loop.
func OpenThreadView(ctx context.Context, st store.MessageStore, f feed.Feed, tracker *Tracker, viewerID, peerID int64, logger *zerolog.Logger) (*ThreadView, error) {
	rows, err := st.ListBetween(ctx, viewerID, peerID)
	if err != nil {
		return nil, err
	}

	readIDs, err := tracker.MarkThreadRead(ctx, viewerID, peerID)
	if err != nil {
		return nil, err
	}

	sub, err := f.Subscribe(ctx, feed.ForPair(viewerID, peerID))
	if err != nil {
		return nil, err
	}

	msgs := FromStoreSlice(rows)
	flagRead(msgs, readIDs)

	ctx, cancel := context.WithCancel(ctx)
	v := &ThreadView{
		viewerID: viewerID,
		peerID:   peerID,
		store:    st,
		feed:     f,
		tracker:  tracker,
		log:      logger,
		msgs:     msgs,
		updates:  make(chan []Message, snapshotBuffer),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	v.push()

	go v.run(ctx, sub)
	return v, nil
}

// Messages returns the current ordered thread.
func (v *ThreadView) Messages() []Message {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]Message, len(v.msgs))
	copy(out, v.msgs)
	return out
}

// Updates delivers coalesced thread snapshots; closes on Close.
func (v *ThreadView) Updates() <-chan []Message {
	return v.updates
}

// AppendLocal inserts an optimistic local echo for a send that has not
// been confirmed yet and returns it. The entry carries a client key and is
// replaced in place when the confirmed row arrives on the feed.
func (v *ThreadView) AppendLocal(senderName, body string) Message {
	m := Message{
		ClientKey:  utils.NewClientKey(),
		SenderID:   v.viewerID,
		SenderName: senderName,
		ReceiverID: v.peerID,
		Body:       body,
		CreatedAt:  time.Now(),
	}

	v.mu.Lock()
	if !v.closed {
		v.msgs = mergeInto(v.msgs, m)
	}
	v.mu.Unlock()
	v.push()
	return m
}

// DropLocal removes an optimistic entry whose durable append failed, so no
// partial state stays displayed.
func (v *ThreadView) DropLocal(clientKey string) {
	if clientKey == "" {
		return
	}
	v.mu.Lock()
	for i := range v.msgs {
		if v.msgs[i].ClientKey == clientKey && !v.msgs[i].Confirmed() {
			v.msgs = append(v.msgs[:i], v.msgs[i+1:]...)
			break
		}
	}
	v.mu.Unlock()
	v.push()
}

// UnreadCount reports unread messages addressed to the viewer still in the
// thread (pending delayed mark-read).
func (v *ThreadView) UnreadCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := 0
	for _, m := range v.msgs {
		if m.ReceiverID == v.viewerID && !m.Read {
			n++
		}
	}
	return n
}

// Close releases the subscription, cancels pending mark-read timers and
// stops the view.
func (v *ThreadView) Close() {
	v.cancel()
	<-v.done
}

func (v *ThreadView) run(ctx context.Context, sub feed.Subscription) {
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
						v.log.Warn().Err(err).Int64("viewer_id", v.viewerID).Int64("peer_id", v.peerID).Msg("thread view resubscribe failed")
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

func (v *ThreadView) resubscribe(ctx context.Context) (feed.Subscription, error) {
	sub, err := v.feed.Subscribe(ctx, feed.ForPair(v.viewerID, v.peerID))
	if err != nil {
		return nil, err
	}
	rows, err := v.store.ListBetween(ctx, v.viewerID, v.peerID)
	if err != nil {
		_ = sub.Close()
		return nil, err
	}

	v.mu.Lock()
	// Refetch replaces confirmed state but keeps optimistic entries that
	// are still awaiting confirmation.
	fresh := FromStoreSlice(rows)
	for _, m := range v.msgs {
		if !m.Confirmed() {
			fresh = mergeInto(fresh, m)
		}
	}
	v.msgs = fresh
	v.mu.Unlock()
	v.push()
	return sub, nil
}

func (v *ThreadView) apply(ev feed.Event) {
	switch ev.Kind {
	case feed.KindMessageInserted:
		if ev.Message == nil {
			return
		}
		m := FromStore(ev.Message)

		v.mu.Lock()
		before := len(v.msgs)
		v.msgs = mergeInto(v.msgs, m)
		inserted := len(v.msgs) > before
		v.mu.Unlock()

		// A message addressed to the viewer while the thread is open is
		// marked read after the delay, not instantly, to ride out the
		// insert confirmation still being in flight.
		if inserted && m.ReceiverID == v.viewerID && !m.Read {
			v.tracker.ScheduleMarkRead(v.ctx, v.viewerID, m.ID)
		}
	case feed.KindMessagesRead:
		v.mu.Lock()
		flagRead(v.msgs, ev.MessageIDs)
		v.mu.Unlock()
	default:
		return
	}
	v.push()
}

// push enqueues a snapshot while holding the lock: the closing path also
// takes the lock, so a send can never race the channel close.
func (v *ThreadView) push() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	snap := make([]Message, len(v.msgs))
	copy(snap, v.msgs)

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

func flagRead(msgs []Message, ids []int64) {
	if len(ids) == 0 {
		return
	}
	idSet := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		idSet[id] = struct{}{}
	}
	for i := range msgs {
		if _, ok := idSet[msgs[i].ID]; ok {
			msgs[i].Read = true
		}
	}
}
