package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hazyhaar/debatehub/internal/db"
	"github.com/hazyhaar/debatehub/internal/event"
)

type CreateDebateInput struct {
	ActorID     string     `json:"actor_id"`
	Title       string     `json:"title"`
	Category    string     `json:"category"`
	Description string     `json:"description"`
	Activate    bool       `json:"activate"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     *time.Time `json:"end_time,omitempty"`
}

func (e *Engine) requireAdmin(ctx context.Context, userID string) error {
	u, err := e.store.GetUserByID(ctx, userID)
	if errors.Is(err, db.ErrNotFound) {
		return reject(Forbidden, "unknown user")
	}
	if err != nil {
		return fmt.Errorf("loading user: %w", err)
	}
	if u.Role != db.RoleAdmin {
		return reject(Forbidden, "admin role required")
	}
	return nil
}

// CreateDebate opens a new debate with no participants. The end time
// defaults to the start time plus the configured duration.
func (e *Engine) CreateDebate(ctx context.Context, in CreateDebateInput) (*db.Debate, error) {
	const op = "create_debate"
	in.Title = strings.TrimSpace(in.Title)
	in.Category = strings.TrimSpace(in.Category)
	if in.Title == "" || in.Category == "" {
		return nil, e.rejected(op, reject(InvalidInput, "title and category are required"))
	}
	if err := e.requireAdmin(ctx, in.ActorID); err != nil {
		return nil, e.rejected(op, err)
	}

	start := in.StartTime
	if start.IsZero() {
		start = e.now()
	}
	end := start.Add(e.cfg.DefaultDuration)
	if in.EndTime != nil {
		end = *in.EndTime
	}
	if !end.After(start) {
		return nil, e.rejected(op, reject(InvalidInput, "end_time must be after start_time"))
	}
	status := db.StatusUpcoming
	if in.Activate {
		status = db.StatusActive
	}

	d, err := e.store.CreateDebate(ctx, db.CreateDebateInput{
		Title:       in.Title,
		Category:    in.Category,
		Description: strings.TrimSpace(in.Description),
		Status:      status,
		StartTime:   start,
		EndTime:     &end,
		CreatedBy:   in.ActorID,
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("debate created", "debate_id", d.ID, "status", d.Status, "created_by", in.ActorID)
	if in.Activate {
		e.publish(event.DebateStartedType, event.DebateStarted{DebateID: d.ID, Title: d.Title})
	}
	return d, nil
}

// ActivateDebate moves an upcoming debate to active. An end time already
// in the past is pushed out by the configured duration.
func (e *Engine) ActivateDebate(ctx context.Context, actorID, debateID string) (*db.Debate, error) {
	const op = "activate_debate"
	if err := e.requireAdmin(ctx, actorID); err != nil {
		return nil, e.rejected(op, err)
	}

	unlock := e.locks.Lock(debateID)
	defer unlock()

	d, err := e.loadDebate(ctx, debateID)
	if err != nil {
		return nil, e.rejected(op, err)
	}
	if d.Status != db.StatusUpcoming {
		if d.Status == db.StatusCompleted {
			return nil, e.rejected(op, reject(DebateClosed, "debate is completed"))
		}
		return nil, e.rejected(op, reject(InvalidInput, "debate is already active"))
	}
	now := e.now()
	if err := e.store.ActivateDebate(ctx, d.ID, now, now.Add(e.cfg.DefaultDuration)); err != nil {
		if errors.Is(err, db.ErrConflict) {
			return nil, e.rejected(op, reject(InvalidInput, "debate is no longer upcoming"))
		}
		return nil, fmt.Errorf("activating debate: %w", err)
	}

	d, err = e.loadDebate(ctx, debateID)
	if err != nil {
		return nil, err
	}
	var participants []string
	for _, p := range []*string{d.SideAUser, d.SideBUser} {
		if p != nil {
			participants = append(participants, *p)
		}
	}
	e.publish(event.DebateStartedType, event.DebateStarted{DebateID: d.ID, Title: d.Title, Participants: participants})
	e.logger.Info("debate activated", "debate_id", d.ID)
	return d, nil
}

// JoinDebate assigns the user to an empty side of an upcoming or active
// debate.
func (e *Engine) JoinDebate(ctx context.Context, debateID, userID string, side db.Side) (*db.Debate, error) {
	const op = "join_debate"
	side = db.Side(strings.ToUpper(string(side)))
	if !side.Valid() {
		return nil, e.rejected(op, reject(InvalidInput, "side must be A or B"))
	}

	unlock := e.locks.Lock(debateID)
	defer unlock()

	d, err := e.loadDebate(ctx, debateID)
	if err != nil {
		return nil, e.rejected(op, err)
	}
	if d.Status == db.StatusCompleted || d.Expired(e.now()) {
		return nil, e.rejected(op, reject(DebateClosed, "debate is closed"))
	}
	if held, ok := d.SideOf(userID); ok {
		return nil, e.rejected(op, reject(AlreadyParticipant, "user already holds side %s", held))
	}
	if d.Participant(side) != nil {
		return nil, e.rejected(op, reject(SideTaken, "side %s is taken", side))
	}
	voted, err := e.store.HasVoted(ctx, d.ID, userID)
	if err != nil {
		return nil, fmt.Errorf("checking vote: %w", err)
	}
	if voted {
		return nil, e.rejected(op, reject(SelfVote, "voters cannot join the debate they voted on"))
	}

	if err := e.store.AssignSide(ctx, d.ID, side, userID); err != nil {
		if errors.Is(err, db.ErrConflict) {
			return nil, e.rejected(op, reject(SideTaken, "side %s is taken", side))
		}
		return nil, fmt.Errorf("assigning side: %w", err)
	}
	e.logger.Info("debate joined", "debate_id", d.ID, "user_id", userID, "side", side)
	return e.loadDebate(ctx, debateID)
}

// CloseDebate ends voting now and resolves the debate.
func (e *Engine) CloseDebate(ctx context.Context, actorID, debateID string) (*Resolution, error) {
	const op = "close_debate"
	if err := e.requireAdmin(ctx, actorID); err != nil {
		return nil, e.rejected(op, err)
	}

	unlock := e.locks.Lock(debateID)
	defer unlock()

	d, err := e.loadDebate(ctx, debateID)
	if err != nil {
		return nil, e.rejected(op, err)
	}
	if d.Status == db.StatusActive && !d.Expired(e.now()) {
		if err := e.store.SetEndTime(ctx, d.ID, e.now()); err != nil && !errors.Is(err, db.ErrConflict) {
			return nil, fmt.Errorf("closing debate: %w", err)
		}
	}
	return e.resolveLocked(ctx, debateID)
}
