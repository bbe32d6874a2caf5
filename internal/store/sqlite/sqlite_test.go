package sqlite

import (
	"context"
	"database/sql"
	"testing"

	"github.com/vendalink/salechat-server/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNewWithSetup_SeedsRows(t *testing.T) {
	s, err := NewWithSetup(":memory:", func(db *sql.DB) error {
		_, err := db.Exec(
			`INSERT INTO messages (sender_id, sender_name, receiver_id, body) VALUES (?, ?, ?, ?)`,
			1, "Alice", 2, "seeded",
		)
		return err
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	msgs, err := s.ListForUser(context.Background(), 2)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Body != "seeded" {
		t.Fatalf("expected seeded row, got %+v", msgs)
	}
}

func TestAppendMessage_ReturnsStoredRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	msg, err := s.AppendMessage(ctx, 1, "Alice", 2, "hello")
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}

	if msg.ID == 0 {
		t.Error("expected server-assigned id")
	}
	if msg.SenderID != 1 || msg.ReceiverID != 2 || msg.Body != "hello" {
		t.Errorf("unexpected row: %+v", msg)
	}
	if msg.SenderName != "Alice" {
		t.Errorf("expected sender name Alice, got %q", msg.SenderName)
	}
	if msg.Read {
		t.Error("new message must start unread")
	}
	if msg.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}
}

func TestListBetween_UnorderedPair(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.AppendMessage(ctx, 1, "Alice", 2, "a"); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if _, err := s.AppendMessage(ctx, 2, "Bob", 1, "b"); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	// Unrelated pair must not appear.
	if _, err := s.AppendMessage(ctx, 1, "Alice", 3, "c"); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	forward, err := s.ListBetween(ctx, 1, 2)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(forward) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(forward))
	}
	if forward[0].Body != "a" || forward[1].Body != "b" {
		t.Errorf("unexpected order: %q then %q", forward[0].Body, forward[1].Body)
	}

	// Swapping the arguments yields the same thread.
	reverse, err := s.ListBetween(ctx, 2, 1)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(reverse) != len(forward) {
		t.Fatalf("pair order changed the result: %d vs %d", len(reverse), len(forward))
	}
	for i := range forward {
		if forward[i].ID != reverse[i].ID {
			t.Errorf("position %d differs: %d vs %d", i, forward[i].ID, reverse[i].ID)
		}
	}
}

func TestListForUser_BothDirections(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.AppendMessage(ctx, 1, "Alice", 2, "sent"); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if _, err := s.AppendMessage(ctx, 3, "Carol", 1, "received"); err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if _, err := s.AppendMessage(ctx, 2, "Bob", 3, "other"); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	msgs, err := s.ListForUser(ctx, 1)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
}

func TestMarkRead_TransitionsOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	msg, err := s.AppendMessage(ctx, 1, "Alice", 2, "hello")
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}

	changed, err := s.MarkRead(ctx, msg.ID)
	if err != nil {
		t.Fatalf("mark read failed: %v", err)
	}
	if !changed {
		t.Fatal("expected first mark to transition")
	}

	changed, err = s.MarkRead(ctx, msg.ID)
	if err != nil {
		t.Fatalf("second mark read failed: %v", err)
	}
	if changed {
		t.Fatal("expected second mark to be a no-op")
	}

	changed, err = s.MarkRead(ctx, 9999)
	if err != nil {
		t.Fatalf("mark read of missing row failed: %v", err)
	}
	if changed {
		t.Fatal("expected missing row to be a no-op")
	}
}

func TestMarkAllReadFrom_ReturnsTransitionedIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.AppendMessage(ctx, 2, "Bob", 1, "a")
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}
	second, err := s.AppendMessage(ctx, 2, "Bob", 1, "b")
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}
	// Opposite direction stays untouched.
	outgoing, err := s.AppendMessage(ctx, 1, "Alice", 2, "c")
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}

	ids, err := s.MarkAllReadFrom(ctx, 2, 1)
	if err != nil {
		t.Fatalf("mark all read failed: %v", err)
	}
	if len(ids) != 2 || ids[0] != first.ID || ids[1] != second.ID {
		t.Fatalf("unexpected transitioned ids: %v", ids)
	}

	rows, err := s.ListBetween(ctx, 1, 2)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	for _, m := range rows {
		switch m.ID {
		case first.ID, second.ID:
			if !m.Read {
				t.Errorf("message %d should be read", m.ID)
			}
		case outgoing.ID:
			if m.Read {
				t.Errorf("outgoing message %d must stay unread", m.ID)
			}
		}
	}

	// Second pass finds nothing to transition.
	ids, err = s.MarkAllReadFrom(ctx, 2, 1)
	if err != nil {
		t.Fatalf("second mark all read failed: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected no ids on second pass, got %v", ids)
	}
}

func TestNotifications_Lifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ref := int64(7)
	n := &store.Notification{
		UserID:      1,
		Title:       "New message from Bob",
		Message:     "hello there",
		Type:        store.TypeMessage,
		ReferenceID: &ref,
	}
	if err := s.CreateNotification(ctx, n); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if n.ID == 0 {
		t.Fatal("expected server-assigned id")
	}
	if n.ReferenceID == nil || *n.ReferenceID != 7 {
		t.Errorf("reference id lost: %v", n.ReferenceID)
	}

	other := &store.Notification{UserID: 2, Title: "Not yours", Type: store.TypeSystem}
	if err := s.CreateNotification(ctx, other); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	list, err := s.ListNotifications(ctx, 1)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(list) != 1 || list[0].ID != n.ID {
		t.Fatalf("unexpected list: %+v", list)
	}

	count, err := s.CountUnreadNotifications(ctx, 1)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 unread, got %d", count)
	}

	changed, err := s.MarkNotificationRead(ctx, n.ID)
	if err != nil || !changed {
		t.Fatalf("mark read failed: changed=%v err=%v", changed, err)
	}
	changed, err = s.MarkNotificationRead(ctx, n.ID)
	if err != nil {
		t.Fatalf("second mark read failed: %v", err)
	}
	if changed {
		t.Fatal("expected second mark to be a no-op")
	}

	count, err = s.CountUnreadNotifications(ctx, 1)
	if err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 unread, got %d", count)
	}
}

func TestMarkAllNotificationsRead(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var created []int64
	for _, title := range []string{"one", "two", "three"} {
		n := &store.Notification{UserID: 1, Title: title, Type: store.TypeBilling}
		if err := s.CreateNotification(ctx, n); err != nil {
			t.Fatalf("create failed: %v", err)
		}
		created = append(created, n.ID)
	}

	ids, err := s.MarkAllNotificationsRead(ctx, 1)
	if err != nil {
		t.Fatalf("mark all failed: %v", err)
	}
	if len(ids) != len(created) {
		t.Fatalf("expected %d ids, got %v", len(created), ids)
	}
	for i, id := range created {
		if ids[i] != id {
			t.Errorf("position %d: expected id %d, got %d", i, id, ids[i])
		}
	}

	ids, err = s.MarkAllNotificationsRead(ctx, 1)
	if err != nil {
		t.Fatalf("second mark all failed: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected empty second pass, got %v", ids)
	}
}

func TestSearchUsers_MatchesUsernameAndDisplayName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seed := []struct{ username, display string }{
		{"alice", "Alice Johnson"},
		{"alex", "Alex Murphy"},
		{"bob", "Robert Paulson"},
	}
	for _, u := range seed {
		if _, err := s.CreateUser(ctx, u.username, u.display, "hash"); err != nil {
			t.Fatalf("failed to create user %s: %v", u.username, err)
		}
	}

	tests := []struct {
		name     string
		query    string
		expected []string
	}{
		{name: "username prefix", query: "al", expected: []string{"alex", "alice"}},
		{name: "display name", query: "Paulson", expected: []string{"bob"}},
		{name: "no match", query: "zed", expected: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := s.SearchUsers(ctx, tt.query)
			if err != nil {
				t.Fatalf("SearchUsers failed: %v", err)
			}
			if len(results) != len(tt.expected) {
				t.Fatalf("expected %d results, got %d", len(tt.expected), len(results))
			}
			for i, u := range results {
				if u.Username != tt.expected[i] {
					t.Errorf("expected %s at index %d, got %s", tt.expected[i], i, u.Username)
				}
			}
		})
	}
}

func TestCreateUser_DefaultsDisplayName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, "dana", "", "hash")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if u.DisplayName != "dana" {
		t.Errorf("expected display name to default to username, got %q", u.DisplayName)
	}
}
