package chat

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/vendalink/salechat-server/internal/feed"
	"github.com/vendalink/salechat-server/internal/store"
)

// DefaultReadDelay is how long a live-arrived message sits in an open
// thread before being marked read, tolerating eventual consistency of the
// push against the still-in-flight insert.
const DefaultReadDelay = time.Second

// Tracker owns every unread -> read transition for messages. No other
// component writes the read flag.
type Tracker struct {
	store store.MessageStore
	feed  feed.Feed
	delay time.Duration
	log   *zerolog.Logger
}

// NewTracker creates a tracker. A non-positive delay falls back to
// DefaultReadDelay.
func NewTracker(st store.MessageStore, f feed.Feed, delay time.Duration, logger *zerolog.Logger) *Tracker {
	if delay <= 0 {
		delay = DefaultReadDelay
	}
	return &Tracker{store: st, feed: f, delay: delay, log: logger}
}

// Delay returns the live-arrival mark-read delay.
func (t *Tracker) Delay() time.Duration {
	return t.delay
}

// MarkThreadRead transitions every unread message from peer to viewer in
// one batch, used when a thread view opens. Returns the ids that
// transitioned.
func (t *Tracker) MarkThreadRead(ctx context.Context, viewerID, peerID int64) ([]int64, error) {
	ids, err := t.store.MarkAllReadFrom(ctx, peerID, viewerID)
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		t.publishRead(ctx, viewerID, ids)
	}
	return ids, nil
}

// ScheduleMarkRead marks one message read after the configured delay,
// used when a message arrives live in an already-open thread. The timer is
// bound to ctx: a closed view cancels it without writing. Store failures
// are logged and ignored; a count stale by one is an accepted degraded
// state.
func (t *Tracker) ScheduleMarkRead(ctx context.Context, viewerID, messageID int64) {
	timer := time.NewTimer(t.delay)
	go func() {
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		// Detach from the view context so teardown mid-write cannot leave
		// the row half-observed; the write itself is a single-row update.
		writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		changed, err := t.store.MarkRead(writeCtx, messageID)
		if err != nil {
			if t.log != nil {
				t.log.Warn().Err(err).Int64("message_id", messageID).Msg("delayed mark-read failed")
			}
			return
		}
		if changed {
			t.publishRead(writeCtx, viewerID, []int64{messageID})
		}
	}()
}

func (t *Tracker) publishRead(ctx context.Context, viewerID int64, ids []int64) {
	if t.feed == nil {
		return
	}
	err := t.feed.Publish(ctx, feed.Event{
		Kind:       feed.KindMessagesRead,
		ReceiverID: viewerID,
		MessageIDs: ids,
	})
	if err != nil && t.log != nil {
		t.log.Warn().Err(err).Msg("publish read event")
	}
}
