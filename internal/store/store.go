package store

import (
	"context"
	"time"
)

// User represents a dashboard user in the system.
type User struct {
	ID           int64
	Username     string
	DisplayName  string
	PasswordHash string
	CreatedAt    time.Time
}

// Message is a persisted direct message between two users.
//
// The row is append-only except for the Read flag, which transitions
// false -> true exactly once and never reverts.
type Message struct {
	ID         int64
	SenderID   int64
	SenderName string // display name snapshot at send time, not kept in sync
	ReceiverID int64
	Body       string
	Read       bool
	CreatedAt  time.Time
}

// NotificationType enumerates notification categories. The messaging core
// produces only TypeMessage; other dashboard subsystems pass their own
// types through unchanged.
type NotificationType string

const (
	TypeMessage NotificationType = "message"
	TypeSale    NotificationType = "sale"
	TypeBilling NotificationType = "billing"
	TypeSystem  NotificationType = "system"
)

// Notification is a side-channel record created per triggering event.
type Notification struct {
	ID          int64
	UserID      int64
	Title       string
	Message     string
	Type        NotificationType
	Read        bool
	ReferenceID *int64 // id of the causing entity, e.g. the message id
	CreatedAt   time.Time
}

// UserStore handles user persistence.
type UserStore interface {
	// CreateUser creates a new user with hashed password.
	CreateUser(ctx context.Context, username, displayName, passwordHash string) (*User, error)

	// GetUserByID retrieves a user by ID.
	GetUserByID(ctx context.Context, id int64) (*User, error)

	// GetUserByUsername retrieves a user by username.
	GetUserByUsername(ctx context.Context, username string) (*User, error)

	// SearchUsers searches for users by username or display name.
	SearchUsers(ctx context.Context, query string) ([]*User, error)
}

// MessageStore handles the durable direct-message log.
type MessageStore interface {
	// AppendMessage durably appends a message and returns the stored row
	// with server-assigned id and created_at.
	AppendMessage(ctx context.Context, senderID int64, senderName string, receiverID int64, body string) (*Message, error)

	// ListBetween returns all messages for the unordered pair {a, b},
	// ascending by created_at with ties broken by id.
	ListBetween(ctx context.Context, a, b int64) ([]*Message, error)

	// ListForUser returns every message the user participates in, as sender
	// or receiver, in the same order as ListBetween.
	ListForUser(ctx context.Context, userID int64) ([]*Message, error)

	// MarkRead transitions one message to read. Idempotent: returns false
	// without error when the message was already read or does not exist.
	MarkRead(ctx context.Context, id int64) (bool, error)

	// MarkAllReadFrom transitions every unread message from sender to
	// receiver. Idempotent; returns the ids that actually transitioned.
	MarkAllReadFrom(ctx context.Context, senderID, receiverID int64) ([]int64, error)
}

// NotificationStore handles side-channel notification persistence.
type NotificationStore interface {
	// CreateNotification creates a notification for a user.
	CreateNotification(ctx context.Context, n *Notification) error

	// ListNotifications returns a user's notifications, newest first.
	ListNotifications(ctx context.Context, userID int64) ([]*Notification, error)

	// MarkNotificationRead transitions one notification to read. Idempotent;
	// returns false when already read or missing.
	MarkNotificationRead(ctx context.Context, id int64) (bool, error)

	// MarkAllNotificationsRead transitions all of a user's unread
	// notifications and returns the ids that transitioned.
	MarkAllNotificationsRead(ctx context.Context, userID int64) ([]int64, error)

	// CountUnreadNotifications returns the bell badge count for a user.
	CountUnreadNotifications(ctx context.Context, userID int64) (int, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	UserStore
	MessageStore
	NotificationStore

	// Close closes the underlying database connection.
	Close() error
}
