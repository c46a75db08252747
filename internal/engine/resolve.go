package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/hazyhaar/debatehub/internal/db"
	"github.com/hazyhaar/debatehub/internal/event"
)

const (
	OutcomeWinner     = "winner"
	OutcomeTie        = "tie"
	OutcomeUnassigned = "unassigned"
)

// Resolution is the final result of a debate.
type Resolution struct {
	DebateID         string  `json:"debate_id"`
	Winner           *string `json:"winner,omitempty"`
	Loser            *string `json:"loser,omitempty"`
	VotesA           int     `json:"votes_a"`
	VotesB           int     `json:"votes_b"`
	Outcome          string  `json:"outcome"`
	AlreadyCompleted bool    `json:"already_completed"`
}

// decide picks the winner from the tallies. A side with strictly more votes
// wins; a tie, or a winning side nobody holds, produces no winner.
func decide(d *db.Debate) (winner, loser *string, outcome string) {
	var win db.Side
	switch {
	case d.VotesA > d.VotesB:
		win = db.SideA
	case d.VotesB > d.VotesA:
		win = db.SideB
	default:
		return nil, nil, OutcomeTie
	}
	winner = d.Participant(win)
	if winner == nil {
		return nil, nil, OutcomeUnassigned
	}
	return winner, d.Participant(win.Other()), OutcomeWinner
}

// stored rebuilds the resolution of an already completed debate.
func stored(d *db.Debate) *Resolution {
	r := &Resolution{
		DebateID:         d.ID,
		Winner:           d.Winner,
		VotesA:           d.VotesA,
		VotesB:           d.VotesB,
		AlreadyCompleted: true,
		Outcome:          OutcomeTie,
	}
	if d.Winner != nil {
		r.Outcome = OutcomeWinner
		if side, ok := d.SideOf(*d.Winner); ok {
			r.Loser = d.Participant(side.Other())
		}
	} else if d.VotesA != d.VotesB {
		r.Outcome = OutcomeUnassigned
	}
	return r
}

// ResolveWinner completes a debate whose voting period has ended. Calling
// it again on a completed debate returns the stored result and changes
// nothing.
func (e *Engine) ResolveWinner(ctx context.Context, debateID string) (*Resolution, error) {
	unlock := e.locks.Lock(debateID)
	defer unlock()
	return e.resolveLocked(ctx, debateID)
}

func (e *Engine) resolveLocked(ctx context.Context, debateID string) (*Resolution, error) {
	const op = "resolve_winner"
	d, err := e.loadDebate(ctx, debateID)
	if err != nil {
		return nil, e.rejected(op, err)
	}
	switch {
	case d.Status == db.StatusCompleted:
		return stored(d), nil
	case d.Status == db.StatusUpcoming:
		return nil, e.rejected(op, reject(DebateNotActive, "debate has not started"))
	case !d.Expired(e.now()):
		return nil, e.rejected(op, reject(VotingOpen, "voting is still open"))
	}

	winner, loser, outcome := decide(d)
	err = e.store.CompleteDebate(ctx, d.ID, winner, loser, e.now())
	if errors.Is(err, db.ErrConflict) {
		// Completed by another process between the read and the CAS.
		d, err = e.loadDebate(ctx, debateID)
		if err != nil {
			return nil, err
		}
		return stored(d), nil
	}
	if err != nil {
		return nil, fmt.Errorf("completing debate: %w", err)
	}

	res := &Resolution{
		DebateID: d.ID,
		Winner:   winner,
		Loser:    loser,
		VotesA:   d.VotesA,
		VotesB:   d.VotesB,
		Outcome:  outcome,
	}
	e.metrics.DebateResolved(outcome)
	e.publish(event.DebateResolvedType, event.DebateResolved{
		DebateID: d.ID,
		Title:    d.Title,
		Winner:   winner,
		Loser:    loser,
		VotesA:   d.VotesA,
		VotesB:   d.VotesB,
	})
	e.logger.Info("debate resolved", "debate_id", d.ID, "outcome", outcome, "votes_a", d.VotesA, "votes_b", d.VotesB)
	return res, nil
}

// ResolveExpired resolves every active debate whose end time has passed and
// returns how many it completed.
func (e *Engine) ResolveExpired(ctx context.Context) (int, error) {
	debates, err := e.store.ListExpiredDebates(ctx, e.now(), 100)
	if err != nil {
		return 0, fmt.Errorf("listing expired debates: %w", err)
	}
	n := 0
	for _, d := range debates {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		res, err := e.ResolveWinner(ctx, d.ID)
		if err != nil {
			e.logger.Error("resolving expired debate", "debate_id", d.ID, "error", err)
			continue
		}
		if !res.AlreadyCompleted {
			n++
		}
	}
	return n, nil
}
