// Package notify is the side-channel notification dispatcher: one
// notification per triggering event, addressed to the recipient only,
// decoupled from whether any chat surface is open.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/vendalink/salechat-server/internal/feed"
	"github.com/vendalink/salechat-server/internal/store"
)

// ErrDispatch wraps notification persistence failures. Callers on the send
// path log it and carry on; a recipient's missed bell never fails a send.
var ErrDispatch = errors.New("notification dispatch failed")

// Service provides notification business logic.
type Service struct {
	store store.NotificationStore
	feed  feed.Feed
	log   *zerolog.Logger
}

// New creates a notification service.
func New(st store.NotificationStore, f feed.Feed, logger *zerolog.Logger) *Service {
	return &Service{store: st, feed: f, log: logger}
}

// Dispatch durably creates one notification for the recipient and emits
// its insert event on the feed.
func (s *Service) Dispatch(ctx context.Context, recipientID int64, title, body string, typ store.NotificationType, referenceID *int64) (*store.Notification, error) {
	if recipientID <= 0 {
		return nil, fmt.Errorf("%w: missing recipient", ErrDispatch)
	}
	if strings.TrimSpace(title) == "" {
		return nil, fmt.Errorf("%w: missing title", ErrDispatch)
	}
	if typ == "" {
		typ = store.TypeMessage
	}

	n := &store.Notification{
		UserID:      recipientID,
		Title:       title,
		Message:     body,
		Type:        typ,
		ReferenceID: referenceID,
	}
	if err := s.store.CreateNotification(ctx, n); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDispatch, err)
	}

	if err := s.feed.Publish(ctx, feed.Event{
		Kind:         feed.KindNotificationInserted,
		Notification: n,
		UserID:       recipientID,
	}); err != nil && s.log != nil {
		s.log.Warn().Err(err).Int64("notification_id", n.ID).Msg("publish notification event")
	}

	return n, nil
}

// List returns a user's notifications, newest first.
func (s *Service) List(ctx context.Context, userID int64) ([]*store.Notification, error) {
	notifications, err := s.store.ListNotifications(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return notifications, nil
}

// MarkRead transitions one notification to read and emits the read event.
// Idempotent: re-applying to an already-read notification is a no-op.
func (s *Service) MarkRead(ctx context.Context, userID, id int64) error {
	changed, err := s.store.MarkNotificationRead(ctx, id)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if changed {
		s.publishRead(ctx, userID, []int64{id})
	}
	return nil
}

// MarkAllRead transitions every unread notification for the user.
func (s *Service) MarkAllRead(ctx context.Context, userID int64) error {
	ids, err := s.store.MarkAllNotificationsRead(ctx, userID)
	if err != nil {
		return fmt.Errorf("mark notifications read: %w", err)
	}
	if len(ids) > 0 {
		s.publishRead(ctx, userID, ids)
	}
	return nil
}

// UnreadCount returns the bell badge count for a user.
func (s *Service) UnreadCount(ctx context.Context, userID int64) (int, error) {
	count, err := s.store.CountUnreadNotifications(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

func (s *Service) publishRead(ctx context.Context, userID int64, ids []int64) {
	err := s.feed.Publish(ctx, feed.Event{
		Kind:     feed.KindNotificationsRead,
		UserID:   userID,
		NotifIDs: ids,
	})
	if err != nil && s.log != nil {
		s.log.Warn().Err(err).Int64("user_id", userID).Msg("publish notifications-read event")
	}
}
