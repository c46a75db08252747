// CLAUDE:SUMMARY Debate record store: create/list/get, CAS status transitions, side assignment, completion with wins/losses bookkeeping
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	StatusUpcoming  = "upcoming"
	StatusActive    = "active"
	StatusCompleted = "completed"
)

// Side is one of the two debate positions.
type Side string

const (
	SideA Side = "A"
	SideB Side = "B"
)

func (s Side) Valid() bool { return s == SideA || s == SideB }

// Other returns the opposing side.
func (s Side) Other() Side {
	if s == SideA {
		return SideB
	}
	return SideA
}

type Debate struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Category    string     `json:"category"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     *time.Time `json:"end_time,omitempty"`
	SideAUser   *string    `json:"side_a_user,omitempty"`
	SideBUser   *string    `json:"side_b_user,omitempty"`
	Winner      *string    `json:"winner,omitempty"`
	VotesA      int        `json:"votes_a"`
	VotesB      int        `json:"votes_b"`
	CreatedBy   *string    `json:"created_by,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// SideOf reports which side userID is assigned to.
func (d *Debate) SideOf(userID string) (Side, bool) {
	if d.SideAUser != nil && *d.SideAUser == userID {
		return SideA, true
	}
	if d.SideBUser != nil && *d.SideBUser == userID {
		return SideB, true
	}
	return "", false
}

// Participant returns the user assigned to side, if any.
func (d *Debate) Participant(side Side) *string {
	if side == SideA {
		return d.SideAUser
	}
	return d.SideBUser
}

// Expired reports whether the debate has an end time at or before now.
func (d *Debate) Expired(now time.Time) bool {
	return d.EndTime != nil && !now.Before(*d.EndTime)
}

type CreateDebateInput struct {
	Title       string
	Category    string
	Description string
	Status      string
	StartTime   time.Time
	EndTime     *time.Time
	CreatedBy   string
}

const debateColumns = `id, title, category, description, status, start_time, end_time,
	side_a_user, side_b_user, winner, votes_a, votes_b, created_by, completed_at`

func scanDebate(s interface{ Scan(...any) error }) (*Debate, error) {
	d := &Debate{}
	var start int64
	var end, completed sql.NullInt64
	var sideA, sideB, winner, createdBy sql.NullString
	err := s.Scan(&d.ID, &d.Title, &d.Category, &d.Description, &d.Status, &start, &end,
		&sideA, &sideB, &winner, &d.VotesA, &d.VotesB, &createdBy, &completed)
	if err != nil {
		return nil, err
	}
	d.StartTime = unixTime(start)
	d.EndTime = nullUnixTime(end)
	d.CompletedAt = nullUnixTime(completed)
	d.SideAUser = nullString(sideA)
	d.SideBUser = nullString(sideB)
	d.Winner = nullString(winner)
	d.CreatedBy = nullString(createdBy)
	return d, nil
}

func (db *DB) CreateDebate(ctx context.Context, input CreateDebateInput) (*Debate, error) {
	status := input.Status
	if status == "" {
		status = StatusUpcoming
	}
	start := input.StartTime
	if start.IsZero() {
		start = time.Now()
	}
	d := &Debate{
		ID:          NewID(),
		Title:       input.Title,
		Category:    input.Category,
		Description: input.Description,
		Status:      status,
		StartTime:   start.UTC().Truncate(time.Second),
	}
	if input.EndTime != nil {
		end := input.EndTime.UTC().Truncate(time.Second)
		d.EndTime = &end
	}
	var createdBy any
	if input.CreatedBy != "" {
		d.CreatedBy = &input.CreatedBy
		createdBy = input.CreatedBy
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO debates (id, title, category, description, status, start_time, end_time, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Title, d.Category, d.Description, d.Status, d.StartTime.Unix(), unixOrNil(d.EndTime), createdBy)
	if err != nil {
		return nil, fmt.Errorf("creating debate: %w", err)
	}
	return d, nil
}

func (db *DB) GetDebate(ctx context.Context, id string) (*Debate, error) {
	d, err := scanDebate(db.QueryRowContext(ctx, `SELECT `+debateColumns+` FROM debates WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting debate: %w", err)
	}
	return d, nil
}

// ListDebates returns debates newest first, optionally filtered by status.
func (db *DB) ListDebates(ctx context.Context, status string, limit int) ([]*Debate, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query := `SELECT ` + debateColumns + ` FROM debates`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY start_time DESC, rowid DESC LIMIT ?`
	args = append(args, limit)
	return db.queryDebates(ctx, query, args...)
}

// ListExpiredDebates returns active debates whose end time is at or before now.
func (db *DB) ListExpiredDebates(ctx context.Context, now time.Time, limit int) ([]*Debate, error) {
	if limit <= 0 {
		limit = 100
	}
	return db.queryDebates(ctx, `
		SELECT `+debateColumns+` FROM debates
		WHERE status = 'active' AND end_time IS NOT NULL AND end_time <= ?
		ORDER BY end_time ASC LIMIT ?`, now.Unix(), limit)
}

func (db *DB) CountDebates(ctx context.Context) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM debates`).Scan(&n)
	return n, err
}

func (db *DB) queryDebates(ctx context.Context, query string, args ...any) ([]*Debate, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing debates: %w", err)
	}
	defer rows.Close()

	var debates []*Debate
	for rows.Next() {
		d, err := scanDebate(rows)
		if err != nil {
			return nil, err
		}
		debates = append(debates, d)
	}
	return debates, rows.Err()
}

// ActivateDebate moves an upcoming debate to active in one statement. An
// end time that is unset or not after now becomes fallbackEnd. It returns
// ErrConflict when the debate is not upcoming.
func (db *DB) ActivateDebate(ctx context.Context, id string, now, fallbackEnd time.Time) error {
	return withRetry(func() error {
		res, err := db.ExecContext(ctx, `
			UPDATE debates SET status = 'active',
			       end_time = CASE WHEN end_time IS NULL OR end_time <= ? THEN ? ELSE end_time END
			WHERE id = ? AND status = 'upcoming'`, now.Unix(), fallbackEnd.Unix(), id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrConflict
		}
		return nil
	})
}

// AssignSide fills an empty side with userID. It returns ErrConflict when
// the side is taken, the user already holds the other side, the user has
// voted on the debate, or the debate is completed.
func (db *DB) AssignSide(ctx context.Context, id string, side Side, userID string) error {
	column, other := "side_a_user", "side_b_user"
	if side == SideB {
		column, other = other, column
	}
	return withRetry(func() error {
		res, err := db.ExecContext(ctx, `
			UPDATE debates SET `+column+` = ?
			WHERE id = ? AND status != 'completed' AND `+column+` IS NULL
			  AND (`+other+` IS NULL OR `+other+` != ?)
			  AND NOT EXISTS (SELECT 1 FROM votes WHERE debate_id = ? AND voter_id = ?)`,
			userID, id, userID, id, userID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrConflict
		}
		return nil
	})
}

// SetEndTime moves the end time of an active debate.
func (db *DB) SetEndTime(ctx context.Context, id string, end time.Time) error {
	res, err := db.ExecContext(ctx, `UPDATE debates SET end_time = ? WHERE id = ? AND status = 'active'`, end.Unix(), id)
	if err != nil {
		return fmt.Errorf("setting end time: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConflict
	}
	return nil
}

// CompleteDebate transitions an active debate to completed and records the
// outcome. winner and loser may be nil (tie or unassigned side). The
// wins/losses counters move in the same transaction as the status CAS, so a
// second call returns ErrConflict and changes nothing.
func (db *DB) CompleteDebate(ctx context.Context, id string, winner, loser *string, at time.Time) error {
	return db.inTx(ctx, func(tx *sql.Tx) error {
		var w any
		if winner != nil {
			w = *winner
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE debates SET status = 'completed', winner = ?, completed_at = ?
			WHERE id = ? AND status = 'active'`, w, at.Unix(), id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrConflict
		}
		if winner != nil {
			if _, err := tx.ExecContext(ctx, `UPDATE users SET wins = wins + 1 WHERE id = ?`, *winner); err != nil {
				return err
			}
		}
		if loser != nil {
			if _, err := tx.ExecContext(ctx, `UPDATE users SET losses = losses + 1 WHERE id = ?`, *loser); err != nil {
				return err
			}
		}
		return nil
	})
}
