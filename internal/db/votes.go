// CLAUDE:SUMMARY Vote ledger: one vote per (debate, voter), vote insert and tally increment in one transaction
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Tally is the running vote count of a debate.
type Tally struct {
	DebateID string `json:"debate_id"`
	VotesA   int    `json:"votes_a"`
	VotesB   int    `json:"votes_b"`
}

type Vote struct {
	DebateID  string    `json:"debate_id"`
	VoterID   string    `json:"voter_id"`
	Side      Side      `json:"side"`
	CreatedAt time.Time `json:"created_at"`
}

func (db *DB) GetVote(ctx context.Context, debateID, voterID string) (*Vote, error) {
	v := &Vote{}
	var side string
	var created int64
	err := db.QueryRowContext(ctx, `
		SELECT debate_id, voter_id, side, created_at FROM votes
		WHERE debate_id = ? AND voter_id = ?`, debateID, voterID).Scan(&v.DebateID, &v.VoterID, &side, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	v.Side = Side(side)
	v.CreatedAt = unixTime(created)
	return v, nil
}

// HasVoted reports whether voterID already has a vote on debateID.
func (db *DB) HasVoted(ctx context.Context, debateID, voterID string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM votes WHERE debate_id = ? AND voter_id = ?)`,
		debateID, voterID).Scan(&exists)
	return exists, err
}

// RecordVote appends the vote and increments the matching tally column in
// one transaction. A repeat vote returns ErrDuplicate and leaves the tally
// untouched.
func (db *DB) RecordVote(ctx context.Context, debateID, voterID string, side Side) (*Tally, error) {
	if !side.Valid() {
		return nil, fmt.Errorf("recording vote: invalid side %q", side)
	}
	column := "votes_a"
	if side == SideB {
		column = "votes_b"
	}
	t := &Tally{DebateID: debateID}
	err := db.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO votes (debate_id, voter_id, side, created_at) VALUES (?, ?, ?, ?)`,
			debateID, voterID, string(side), time.Now().Unix())
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, `UPDATE debates SET `+column+` = `+column+` + 1 WHERE id = ?`, debateID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return tx.QueryRowContext(ctx, `SELECT votes_a, votes_b FROM debates WHERE id = ?`, debateID).Scan(&t.VotesA, &t.VotesB)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("recording vote: %w", err)
	}
	return t, nil
}
