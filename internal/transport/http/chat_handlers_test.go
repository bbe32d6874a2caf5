package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/vendalink/salechat-server/internal/proto"
)

func TestSendMessageREST(t *testing.T) {
	s := newTestServer(t)

	aliceToken, aliceID := s.registerUser(t, "alice", "Alice")
	_, bobID := s.registerUser(t, "bob", "Bob")

	body := fmt.Sprintf(`{"receiver_id":%d,"body":"hello bob","client_key":"ck-1"}`, bobID)
	resp := s.do(t, http.MethodPost, "/api/messages", aliceToken, body)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}

	var payload proto.MessagePayload
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if payload.ID == 0 {
		t.Error("expected server-assigned id")
	}
	if payload.SenderID != aliceID || payload.ReceiverID != bobID {
		t.Errorf("unexpected participants: %+v", payload)
	}
	if payload.ClientKey != "ck-1" {
		t.Errorf("expected client key echoed back, got %q", payload.ClientKey)
	}
	if payload.SenderName != "Alice" {
		t.Errorf("expected sender display name, got %q", payload.SenderName)
	}
}

func TestSendMessageREST_Validation(t *testing.T) {
	s := newTestServer(t)

	aliceToken, aliceID := s.registerUser(t, "alice", "Alice")
	_, bobID := s.registerUser(t, "bob", "Bob")

	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "missing receiver", body: `{"body":"hi"}`, want: http.StatusBadRequest},
		{name: "empty body", body: fmt.Sprintf(`{"receiver_id":%d,"body":""}`, bobID), want: http.StatusBadRequest},
		{name: "whitespace body", body: fmt.Sprintf(`{"receiver_id":%d,"body":"   "}`, bobID), want: http.StatusBadRequest},
		{name: "self message", body: fmt.Sprintf(`{"receiver_id":%d,"body":"hi"}`, aliceID), want: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := s.do(t, http.MethodPost, "/api/messages", aliceToken, tt.body)
			if resp.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, resp.Code, resp.Body.String())
			}
		})
	}
}

func TestConversationsAndThreadREST(t *testing.T) {
	s := newTestServer(t)

	aliceToken, _ := s.registerUser(t, "alice", "Alice")
	bobToken, bobID := s.registerUser(t, "bob", "Bob")

	for _, text := range []string{"one", "two"} {
		body := fmt.Sprintf(`{"receiver_id":%d,"body":%q}`, bobID, text)
		if resp := s.do(t, http.MethodPost, "/api/messages", aliceToken, body); resp.Code != http.StatusCreated {
			t.Fatalf("send failed: %d %s", resp.Code, resp.Body.String())
		}
	}

	// Bob sees one conversation with two unread messages.
	resp := s.do(t, http.MethodGet, "/api/conversations", bobToken, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var convs []proto.ConversationPayload
	if err := json.Unmarshal(resp.Body.Bytes(), &convs); err != nil {
		t.Fatalf("failed to unmarshal conversations: %v", err)
	}
	if len(convs) != 1 || convs[0].UnreadCount != 2 {
		t.Fatalf("unexpected conversations: %+v", convs)
	}
	if convs[0].PeerName != "Alice" {
		t.Errorf("expected peer name Alice, got %q", convs[0].PeerName)
	}
	if convs[0].LastMessage.Body != "two" {
		t.Errorf("expected last message 'two', got %q", convs[0].LastMessage.Body)
	}

	// Thread endpoint returns both messages in order.
	alicePeerID := convs[0].PeerID
	resp = s.do(t, http.MethodGet, fmt.Sprintf("/api/conversations/%d/messages", alicePeerID), bobToken, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var msgs []proto.MessagePayload
	if err := json.Unmarshal(resp.Body.Bytes(), &msgs); err != nil {
		t.Fatalf("failed to unmarshal thread: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Body != "one" || msgs[1].Body != "two" {
		t.Fatalf("unexpected thread: %+v", msgs)
	}

	// Mark the thread read; the snapshot follows.
	resp = s.do(t, http.MethodPost, fmt.Sprintf("/api/conversations/%d/read", alicePeerID), bobToken, "")
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = s.do(t, http.MethodGet, "/api/conversations", bobToken, "")
	if err := json.Unmarshal(resp.Body.Bytes(), &convs); err != nil {
		t.Fatalf("failed to unmarshal conversations: %v", err)
	}
	if convs[0].UnreadCount != 0 {
		t.Errorf("expected 0 unread after mark read, got %d", convs[0].UnreadCount)
	}

	// Invalid peer id.
	resp = s.do(t, http.MethodGet, "/api/conversations/nope/messages", bobToken, "")
	if resp.Code != http.StatusBadRequest {
		t.Errorf("expected 400 on bad peer id, got %d", resp.Code)
	}
}

func TestNotificationEndpoints(t *testing.T) {
	s := newTestServer(t)

	aliceToken, _ := s.registerUser(t, "alice", "Alice")
	bobToken, bobID := s.registerUser(t, "bob", "Bob")

	// A send dispatches exactly one notification to the recipient.
	body := fmt.Sprintf(`{"receiver_id":%d,"body":"ping"}`, bobID)
	if resp := s.do(t, http.MethodPost, "/api/messages", aliceToken, body); resp.Code != http.StatusCreated {
		t.Fatalf("send failed: %d %s", resp.Code, resp.Body.String())
	}

	resp := s.do(t, http.MethodGet, "/api/notifications/unread-count", bobToken, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var count UnreadCountResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &count); err != nil || count.Count != 1 {
		t.Fatalf("expected count 1, got %s (err %v)", resp.Body.String(), err)
	}

	resp = s.do(t, http.MethodGet, "/api/notifications", bobToken, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var notifications []NotificationResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &notifications); err != nil {
		t.Fatalf("failed to unmarshal notifications: %v", err)
	}
	if len(notifications) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(notifications))
	}
	n := notifications[0]
	if n.Type != "message" || n.Read {
		t.Errorf("unexpected notification: %+v", n)
	}
	if n.ReferenceID == nil {
		t.Error("expected reference to the triggering message")
	}

	// The sender's bell stays quiet.
	resp = s.do(t, http.MethodGet, "/api/notifications/unread-count", aliceToken, "")
	if err := json.Unmarshal(resp.Body.Bytes(), &count); err != nil || count.Count != 0 {
		t.Fatalf("expected sender count 0, got %s", resp.Body.String())
	}

	// Mark one read, then all read.
	resp = s.do(t, http.MethodPost, fmt.Sprintf("/api/notifications/%d/read", n.ID), bobToken, "")
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
	resp = s.do(t, http.MethodPost, "/api/notifications/read-all", bobToken, "")
	if resp.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.Code)
	}
	resp = s.do(t, http.MethodGet, "/api/notifications/unread-count", bobToken, "")
	if err := json.Unmarshal(resp.Body.Bytes(), &count); err != nil || count.Count != 0 {
		t.Fatalf("expected count 0 after read-all, got %s", resp.Body.String())
	}
}
