package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vendalink/salechat-server/internal/store"
)

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// SQLite works best with a single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to seed data without the full application wiring.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== UserStore implementation ====

// CreateUser creates a new user with hashed password.
func (s *SQLiteStore) CreateUser(ctx context.Context, username, displayName, passwordHash string) (*store.User, error) {
	if displayName == "" {
		displayName = username
	}

	query := `
		INSERT INTO users (username, display_name, password_hash)
		VALUES (?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, username, displayName, passwordHash)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id int64) (*store.User, error) {
	query := `
		SELECT id, username, display_name, password_hash, created_at
		FROM users
		WHERE id = ?
	`
	var user store.User
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Username,
		&user.DisplayName,
		&user.PasswordHash,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user not found: %w", err)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}

	return &user, nil
}

// GetUserByUsername retrieves a user by username.
func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (*store.User, error) {
	query := `
		SELECT id, username, display_name, password_hash, created_at
		FROM users
		WHERE username = ?
	`
	var user store.User
	err := s.db.QueryRowContext(ctx, query, username).Scan(
		&user.ID,
		&user.Username,
		&user.DisplayName,
		&user.PasswordHash,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user not found: %w", err)
		}
		return nil, fmt.Errorf("query user: %w", err)
	}

	return &user, nil
}

// SearchUsers searches for users by username or display name.
func (s *SQLiteStore) SearchUsers(ctx context.Context, query string) ([]*store.User, error) {
	pattern := "%" + strings.TrimSpace(query) + "%"
	sqlQuery := `
		SELECT id, username, display_name, password_hash, created_at
		FROM users
		WHERE username LIKE ? OR display_name LIKE ?
		ORDER BY username ASC
	`
	rows, err := s.db.QueryContext(ctx, sqlQuery, pattern, pattern)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []*store.User
	for rows.Next() {
		var user store.User
		if err := rows.Scan(&user.ID, &user.Username, &user.DisplayName, &user.PasswordHash, &user.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, &user)
	}

	return users, rows.Err()
}

// ==== MessageStore implementation ====

// AppendMessage durably appends a message and returns the stored row.
func (s *SQLiteStore) AppendMessage(ctx context.Context, senderID int64, senderName string, receiverID int64, body string) (*store.Message, error) {
	query := `
		INSERT INTO messages (sender_id, sender_name, receiver_id, body)
		VALUES (?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, senderID, senderName, receiverID, body)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.getMessageByID(ctx, id)
}

// getMessageByID is a helper to retrieve a message row by ID.
func (s *SQLiteStore) getMessageByID(ctx context.Context, id int64) (*store.Message, error) {
	query := `
		SELECT id, sender_id, sender_name, receiver_id, body, read, created_at
		FROM messages
		WHERE id = ?
	`
	var msg store.Message
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&msg.ID,
		&msg.SenderID,
		&msg.SenderName,
		&msg.ReceiverID,
		&msg.Body,
		&msg.Read,
		&msg.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("message not found: %w", err)
		}
		return nil, fmt.Errorf("query message: %w", err)
	}

	return &msg, nil
}

// ListBetween returns all messages for the unordered pair {a, b}.
func (s *SQLiteStore) ListBetween(ctx context.Context, a, b int64) ([]*store.Message, error) {
	query := `
		SELECT id, sender_id, sender_name, receiver_id, body, read, created_at
		FROM messages
		WHERE (sender_id = ? AND receiver_id = ?)
		   OR (sender_id = ? AND receiver_id = ?)
		ORDER BY created_at ASC, id ASC
	`
	return s.listMessages(ctx, query, a, b, b, a)
}

// ListForUser returns every message the user participates in.
func (s *SQLiteStore) ListForUser(ctx context.Context, userID int64) ([]*store.Message, error) {
	query := `
		SELECT id, sender_id, sender_name, receiver_id, body, read, created_at
		FROM messages
		WHERE sender_id = ? OR receiver_id = ?
		ORDER BY created_at ASC, id ASC
	`
	return s.listMessages(ctx, query, userID, userID)
}

func (s *SQLiteStore) listMessages(ctx context.Context, query string, args ...any) ([]*store.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []*store.Message
	for rows.Next() {
		var msg store.Message
		if err := rows.Scan(&msg.ID, &msg.SenderID, &msg.SenderName, &msg.ReceiverID, &msg.Body, &msg.Read, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, &msg)
	}

	return messages, rows.Err()
}

// MarkRead transitions one message to read. Already-read rows are a no-op.
func (s *SQLiteStore) MarkRead(ctx context.Context, id int64) (bool, error) {
	query := `UPDATE messages SET read = 1 WHERE id = ? AND read = 0`
	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("mark message read: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return rows > 0, nil
}

// MarkAllReadFrom transitions every unread message from sender to receiver
// and returns the ids that transitioned.
func (s *SQLiteStore) MarkAllReadFrom(ctx context.Context, senderID, receiverID int64) ([]int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // Rollback is called on defer, error is not critical here
	}()

	selectQuery := `
		SELECT id FROM messages
		WHERE sender_id = ? AND receiver_id = ? AND read = 0
		ORDER BY id ASC
	`
	rows, err := tx.QueryContext(ctx, selectQuery, senderID, receiverID)
	if err != nil {
		return nil, fmt.Errorf("query unread messages: %w", err)
	}

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan message id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate unread messages: %w", err)
	}
	rows.Close()

	if len(ids) == 0 {
		return nil, tx.Commit()
	}

	updateQuery := `
		UPDATE messages SET read = 1
		WHERE sender_id = ? AND receiver_id = ? AND read = 0
	`
	if _, err := tx.ExecContext(ctx, updateQuery, senderID, receiverID); err != nil {
		return nil, fmt.Errorf("mark messages read: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return ids, nil
}

// ==== NotificationStore implementation ====

// CreateNotification creates a notification for a user.
func (s *SQLiteStore) CreateNotification(ctx context.Context, n *store.Notification) error {
	query := `
		INSERT INTO notifications (user_id, title, message, type, reference_id)
		VALUES (?, ?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, n.UserID, n.Title, n.Message, string(n.Type), n.ReferenceID)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}

	stored, err := s.getNotificationByID(ctx, id)
	if err != nil {
		return err
	}
	*n = *stored
	return nil
}

// getNotificationByID is a helper to retrieve a notification row by ID.
func (s *SQLiteStore) getNotificationByID(ctx context.Context, id int64) (*store.Notification, error) {
	query := `
		SELECT id, user_id, title, message, type, read, reference_id, created_at
		FROM notifications
		WHERE id = ?
	`
	var n store.Notification
	var typ string
	var refID sql.NullInt64
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&n.ID,
		&n.UserID,
		&n.Title,
		&n.Message,
		&typ,
		&n.Read,
		&refID,
		&n.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("notification not found: %w", err)
		}
		return nil, fmt.Errorf("query notification: %w", err)
	}

	n.Type = store.NotificationType(typ)
	if refID.Valid {
		n.ReferenceID = &refID.Int64
	}

	return &n, nil
}

// ListNotifications returns a user's notifications, newest first.
func (s *SQLiteStore) ListNotifications(ctx context.Context, userID int64) ([]*store.Notification, error) {
	query := `
		SELECT id, user_id, title, message, type, read, reference_id, created_at
		FROM notifications
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*store.Notification
	for rows.Next() {
		var n store.Notification
		var typ string
		var refID sql.NullInt64
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &typ, &n.Read, &refID, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		n.Type = store.NotificationType(typ)
		if refID.Valid {
			n.ReferenceID = &refID.Int64
		}
		notifications = append(notifications, &n)
	}

	return notifications, rows.Err()
}

// MarkNotificationRead transitions one notification to read.
func (s *SQLiteStore) MarkNotificationRead(ctx context.Context, id int64) (bool, error) {
	query := `UPDATE notifications SET read = 1 WHERE id = ? AND read = 0`
	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("mark notification read: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return rows > 0, nil
}

// MarkAllNotificationsRead transitions all unread notifications for a user.
func (s *SQLiteStore) MarkAllNotificationsRead(ctx context.Context, userID int64) ([]int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck
	}()

	rows, err := tx.QueryContext(ctx, `SELECT id FROM notifications WHERE user_id = ? AND read = 0 ORDER BY id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query unread notifications: %w", err)
	}

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan notification id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate unread notifications: %w", err)
	}
	rows.Close()

	if len(ids) == 0 {
		return nil, tx.Commit()
	}

	if _, err := tx.ExecContext(ctx, `UPDATE notifications SET read = 1 WHERE user_id = ? AND read = 0`, userID); err != nil {
		return nil, fmt.Errorf("mark notifications read: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return ids, nil
}

// CountUnreadNotifications returns the bell badge count for a user.
func (s *SQLiteStore) CountUnreadNotifications(ctx context.Context, userID int64) (int, error) {
	query := `SELECT COUNT(*) FROM notifications WHERE user_id = ? AND read = 0`
	var count int
	if err := s.db.QueryRowContext(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return count, nil
}

// Ensure SQLiteStore implements store.Store
var _ store.Store = (*SQLiteStore)(nil)
