package chat

import (
	"context"
	"testing"
	"time"

	"github.com/vendalink/salechat-server/internal/feed"
)

func TestTracker_DefaultsDelay(t *testing.T) {
	tracker := NewTracker(nil, nil, 0, nil)
	if tracker.Delay() != DefaultReadDelay {
		t.Errorf("expected default delay %v, got %v", DefaultReadDelay, tracker.Delay())
	}

	tracker = NewTracker(nil, nil, 42*time.Millisecond, nil)
	if tracker.Delay() != 42*time.Millisecond {
		t.Errorf("expected configured delay, got %v", tracker.Delay())
	}
}

func TestMarkThreadRead_PublishesTransitionedIDs(t *testing.T) {
	st, b := newTestEnv(t)
	ctx := context.Background()

	first := appendAndPublish(t, st, b, 2, "Bob", 1, "a")
	second := appendAndPublish(t, st, b, 2, "Bob", 1, "b")
	// Traffic in the other direction must not transition.
	appendAndPublish(t, st, b, 1, "Alice", 2, "c")

	sub, err := b.Subscribe(ctx, feed.ForRecipient(1))
	if err != nil {
		t.Fatalf("failed to subscribe: %v", err)
	}
	defer sub.Close()

	tracker := newTestTracker(t, st, b, time.Millisecond)
	ids, err := tracker.MarkThreadRead(ctx, 1, 2)
	if err != nil {
		t.Fatalf("mark thread read failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != first.ID || ids[1] != second.ID {
		t.Fatalf("unexpected transitioned ids: %v", ids)
	}

	select {
	case ev := <-sub.Events():
		if ev.Kind != feed.KindMessagesRead {
			t.Fatalf("expected read event, got kind %v", ev.Kind)
		}
		if ev.ReceiverID != 1 || len(ev.MessageIDs) != 2 {
			t.Fatalf("unexpected read event: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("read event never published")
	}
}

func TestMarkThreadRead_NoEventWhenNothingUnread(t *testing.T) {
	st, b := newTestEnv(t)
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, feed.ForRecipient(1))
	if err != nil {
		t.Fatalf("failed to subscribe: %v", err)
	}
	defer sub.Close()

	tracker := newTestTracker(t, st, b, time.Millisecond)
	ids, err := tracker.MarkThreadRead(ctx, 1, 2)
	if err != nil {
		t.Fatalf("mark thread read failed: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected no transitions, got %v", ids)
	}

	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected event published: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMarkThreadRead_Idempotent(t *testing.T) {
	st, b := newTestEnv(t)
	ctx := context.Background()

	appendAndPublish(t, st, b, 2, "Bob", 1, "a")

	tracker := newTestTracker(t, st, b, time.Millisecond)
	ids, err := tracker.MarkThreadRead(ctx, 1, 2)
	if err != nil || len(ids) != 1 {
		t.Fatalf("first mark failed: ids=%v err=%v", ids, err)
	}

	ids, err = tracker.MarkThreadRead(ctx, 1, 2)
	if err != nil {
		t.Fatalf("second mark failed: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("second mark transitioned rows again: %v", ids)
	}
}

func TestScheduleMarkRead_FiresAfterDelay(t *testing.T) {
	st, b := newTestEnv(t)
	ctx := context.Background()

	msg := appendAndPublish(t, st, b, 2, "Bob", 1, "ping")

	tracker := newTestTracker(t, st, b, 5*time.Millisecond)
	tracker.ScheduleMarkRead(ctx, 1, msg.ID)

	waitFor(t, func() bool {
		rows, err := st.ListBetween(ctx, 1, 2)
		if err != nil || len(rows) == 0 {
			return false
		}
		return rows[0].Read
	}, "scheduled mark-read never fired")
}

func TestScheduleMarkRead_CancelledWithContext(t *testing.T) {
	st, b := newTestEnv(t)

	msg := appendAndPublish(t, st, b, 2, "Bob", 1, "ping")

	ctx, cancel := context.WithCancel(context.Background())
	tracker := newTestTracker(t, st, b, 100*time.Millisecond)
	tracker.ScheduleMarkRead(ctx, 1, msg.ID)
	cancel()

	time.Sleep(200 * time.Millisecond)

	rows, err := st.ListBetween(context.Background(), 1, 2)
	if err != nil || len(rows) == 0 {
		t.Fatalf("failed to list thread: %v", err)
	}
	if rows[0].Read {
		t.Error("cancelled mark-read still wrote the transition")
	}
}
