package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	NotifyDebateStart  = "debate_start"
	NotifyVoteReceived = "vote_received"
	NotifyWin          = "win"
	NotifyLoss         = "loss"
	NotifyAlert        = "alert"
)

type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	DebateID  *string   `json:"debate_id,omitempty"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

func (db *DB) CreateNotification(ctx context.Context, userID, kind, message string, debateID *string) (*Notification, error) {
	n := &Notification{
		ID:        NewID(),
		UserID:    userID,
		Type:      kind,
		Message:   message,
		DebateID:  debateID,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	var d any
	if debateID != nil {
		d = *debateID
	}
	err := withRetry(func() error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO notifications (id, user_id, type, message, debate_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`, n.ID, n.UserID, n.Type, n.Message, d, n.CreatedAt.Unix())
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating notification: %w", err)
	}
	return n, nil
}

// ListNotifications returns a user's notifications, newest first.
func (db *DB) ListNotifications(ctx context.Context, userID string, unreadOnly bool, limit int) ([]*Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `SELECT id, user_id, type, message, debate_id, read, created_at FROM notifications WHERE user_id = ?`
	if unreadOnly {
		query += ` AND read = 0`
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`

	rows, err := db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	defer rows.Close()

	var out []*Notification
	for rows.Next() {
		n := &Notification{}
		var debateID sql.NullString
		var created int64
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Message, &debateID, &n.Read, &created); err != nil {
			return nil, err
		}
		n.DebateID = nullString(debateID)
		n.CreatedAt = unixTime(created)
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkNotificationRead flags one of the user's notifications as read.
func (db *DB) MarkNotificationRead(ctx context.Context, userID, id string) error {
	res, err := db.ExecContext(ctx, `UPDATE notifications SET read = 1 WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("marking notification: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
