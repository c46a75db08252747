// CLAUDE:SUMMARY Argument log: append-only per (debate, side, round) slot with storage-level uniqueness
package db

import (
	"context"
	"fmt"
	"time"
)

type Argument struct {
	ID        string    `json:"id"`
	DebateID  string    `json:"debate_id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username,omitempty"`
	Round     int       `json:"round"`
	Side      Side      `json:"side"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type AppendArgumentInput struct {
	DebateID string
	UserID   string
	Round    int
	Side     Side
	Content  string
}

// AppendArgument inserts an argument. A second argument for the same
// (debate, side, round) returns ErrDuplicate.
func (db *DB) AppendArgument(ctx context.Context, input AppendArgumentInput) (*Argument, error) {
	a := &Argument{
		ID:        NewID(),
		DebateID:  input.DebateID,
		UserID:    input.UserID,
		Round:     input.Round,
		Side:      input.Side,
		Content:   input.Content,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	err := withRetry(func() error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO arguments (id, debate_id, user_id, round, side, content, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			a.ID, a.DebateID, a.UserID, a.Round, string(a.Side), a.Content, a.CreatedAt.Unix())
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("appending argument: %w", err)
	}
	return a, nil
}

// ListArguments returns a debate's arguments in submission order with the
// author's username.
func (db *DB) ListArguments(ctx context.Context, debateID string) ([]*Argument, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT a.id, a.debate_id, a.user_id, COALESCE(u.username, ''), a.round, a.side, a.content, a.created_at
		FROM arguments a LEFT JOIN users u ON u.id = a.user_id
		WHERE a.debate_id = ?
		ORDER BY a.round ASC, a.created_at ASC, a.rowid ASC`, debateID)
	if err != nil {
		return nil, fmt.Errorf("listing arguments: %w", err)
	}
	defer rows.Close()

	var args []*Argument
	for rows.Next() {
		a := &Argument{}
		var side string
		var created int64
		if err := rows.Scan(&a.ID, &a.DebateID, &a.UserID, &a.Username, &a.Round, &side, &a.Content, &created); err != nil {
			return nil, err
		}
		a.Side = Side(side)
		a.CreatedAt = unixTime(created)
		args = append(args, a)
	}
	return args, rows.Err()
}
