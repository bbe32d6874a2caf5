// Package messaging composes the direct-message surface exposed to the
// rest of the dashboard: sending, live conversation lists, live threads
// and the bell badge. Every call takes the viewer id explicitly; nothing
// reads ambient session state.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/vendalink/salechat-server/internal/chat"
	"github.com/vendalink/salechat-server/internal/feed"
	"github.com/vendalink/salechat-server/internal/service/notify"
	"github.com/vendalink/salechat-server/internal/store"
)

// Validation errors, rejected before any write.
var (
	ErrEmptyBody   = errors.New("message body is empty")
	ErrMissingPeer = errors.New("missing peer id")
	ErrSelfMessage = errors.New("cannot message yourself")
)

// notificationPreview caps how much of the body is copied into the bell
// notification.
const notificationPreview = 120

// Service provides the messaging core business logic.
type Service struct {
	store    store.Store
	feed     feed.Feed
	notifier *notify.Service
	tracker  *chat.Tracker
	log      *zerolog.Logger
}

// New creates the messaging service.
func New(st store.Store, f feed.Feed, notifier *notify.Service, tracker *chat.Tracker, logger *zerolog.Logger) *Service {
	return &Service{
		store:    st,
		feed:     f,
		notifier: notifier,
		tracker:  tracker,
		log:      logger,
	}
}

// Tracker exposes the read-state tracker for view wiring.
func (s *Service) Tracker() *chat.Tracker {
	return s.tracker
}

// SendMessage validates, durably appends, fans the insert out on the feed
// and dispatches the recipient's notification.
//
// Append failures propagate to the sender. Notification dispatch failures
// are logged and swallowed: message delivery is the primary guarantee and
// the already-appended row is never rolled back.
func (s *Service) SendMessage(ctx context.Context, senderID int64, senderName string, receiverID int64, body string) (*store.Message, error) {
	if receiverID <= 0 {
		return nil, ErrMissingPeer
	}
	if receiverID == senderID {
		return nil, ErrSelfMessage
	}
	if strings.TrimSpace(body) == "" {
		return nil, ErrEmptyBody
	}

	msg, err := s.store.AppendMessage(ctx, senderID, senderName, receiverID, body)
	if err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}

	if err := s.feed.Publish(ctx, feed.Event{
		Kind:    feed.KindMessageInserted,
		Message: msg,
	}); err != nil && s.log != nil {
		// Subscribers reconcile with a refetch; the append already succeeded.
		s.log.Warn().Err(err).Int64("message_id", msg.ID).Msg("publish message event")
	}

	refID := msg.ID
	if _, err := s.notifier.Dispatch(ctx, receiverID,
		"New message from "+senderName, preview(body), store.TypeMessage, &refID); err != nil && s.log != nil {
		s.log.Warn().Err(err).
			Int64("message_id", msg.ID).
			Int64("receiver_id", receiverID).
			Msg("notification dispatch failed")
	}

	return msg, nil
}

// ListBetween returns the full thread for the unordered pair.
func (s *Service) ListBetween(ctx context.Context, a, b int64) ([]*store.Message, error) {
	msgs, err := s.store.ListBetween(ctx, a, b)
	if err != nil {
		return nil, fmt.Errorf("list thread: %w", err)
	}
	return msgs, nil
}

// Conversations derives a one-shot conversation list snapshot for the
// viewer, without a live subscription.
func (s *Service) Conversations(ctx context.Context, viewerID int64) ([]chat.Conversation, error) {
	msgs, err := s.store.ListForUser(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return chat.BuildConversations(viewerID, chat.FromStoreSlice(msgs)), nil
}

// MarkThreadRead bulk-transitions the viewer's unread backlog from a peer.
func (s *Service) MarkThreadRead(ctx context.Context, viewerID, peerID int64) error {
	_, err := s.tracker.MarkThreadRead(ctx, viewerID, peerID)
	return err
}

// OpenConversationList opens a live conversation list view for the viewer.
// The caller owns the returned view and must Close it.
func (s *Service) OpenConversationList(ctx context.Context, viewerID int64) (*chat.ListView, error) {
	return chat.OpenListView(ctx, s.store, s.feed, viewerID, s.log)
}

// OpenThread opens a live thread view; the viewer's backlog from the peer
// is marked read before the first snapshot.
func (s *Service) OpenThread(ctx context.Context, viewerID, peerID int64) (*chat.ThreadView, error) {
	if peerID <= 0 {
		return nil, ErrMissingPeer
	}
	return chat.OpenThreadView(ctx, s.store, s.feed, s.tracker, viewerID, peerID, s.log)
}

// OpenBell opens the live notification badge view for the viewer.
func (s *Service) OpenBell(ctx context.Context, viewerID int64) (*chat.BellView, error) {
	return chat.OpenBellView(ctx, s.store, s.feed, viewerID, s.log)
}

func preview(body string) string {
	body = strings.TrimSpace(body)
	if len(body) <= notificationPreview {
		return body
	}
	return body[:notificationPreview]
}
