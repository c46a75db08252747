// CLAUDE:SUMMARY Transport-neutral endpoint set over the debate engine, audited once and shared by the HTTP API and MCP tools
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hazyhaar/debatehub/internal/db"
	"github.com/hazyhaar/debatehub/internal/engine"
	"github.com/hazyhaar/debatehub/pkg/audit"
	"github.com/hazyhaar/debatehub/pkg/kit"
)

// LeaderboardLimit is the default number of users returned by Leaderboard.
const LeaderboardLimit = 50

// Store is the read side the endpoints need beyond the engine.
type Store interface {
	GetDebate(ctx context.Context, id string) (*db.Debate, error)
	ListArguments(ctx context.Context, debateID string) ([]*db.Argument, error)
	Leaderboard(ctx context.Context, limit int) ([]*db.User, error)
}

type DebateRequest struct {
	DebateID string `json:"debate_id"`
}

type ActorRequest struct {
	ActorID  string `json:"actor_id"`
	DebateID string `json:"debate_id"`
}

type JoinRequest struct {
	DebateID string  `json:"debate_id"`
	UserID   string  `json:"user_id"`
	Side     db.Side `json:"side"`
}

type LeaderboardRequest struct {
	Limit int `json:"limit"`
}

type RoundResponse struct {
	DebateID string `json:"debate_id"`
	Round    int    `json:"round"`
}

// DebateDetail is a debate with its full argument log.
type DebateDetail struct {
	Debate       *db.Debate     `json:"debate"`
	Arguments    []*db.Argument `json:"arguments"`
	CurrentRound int            `json:"current_round"`
}

// Endpoints holds one kit.Endpoint per engine operation. Mutating endpoints
// are wrapped with the audit middleware when an audit logger is supplied.
type Endpoints struct {
	CreateDebate   kit.Endpoint
	ActivateDebate kit.Endpoint
	JoinDebate     kit.Endpoint
	SubmitArgument kit.Endpoint
	CastVote       kit.Endpoint
	ResolveWinner  kit.Endpoint
	CloseDebate    kit.Endpoint
	CurrentRound   kit.Endpoint
	GetDebate      kit.Endpoint
	Leaderboard    kit.Endpoint
}

// IsRejection classifies engine rejections for the audit log.
func IsRejection(err error) bool {
	_, ok := engine.KindOf(err)
	return ok
}

func New(eng *engine.Engine, store Store, auditLog audit.Logger) *Endpoints {
	audited := func(action string, ep kit.Endpoint) kit.Endpoint {
		if auditLog == nil {
			return ep
		}
		return audit.Middleware(auditLog, action, IsRejection)(ep)
	}

	return &Endpoints{
		CreateDebate: audited("create_debate", func(ctx context.Context, request any) (any, error) {
			in, err := as[engine.CreateDebateInput](request)
			if err != nil {
				return nil, err
			}
			return eng.CreateDebate(ctx, in)
		}),
		ActivateDebate: audited("activate_debate", func(ctx context.Context, request any) (any, error) {
			r, err := as[ActorRequest](request)
			if err != nil {
				return nil, err
			}
			return eng.ActivateDebate(ctx, r.ActorID, r.DebateID)
		}),
		JoinDebate: audited("join_debate", func(ctx context.Context, request any) (any, error) {
			r, err := as[JoinRequest](request)
			if err != nil {
				return nil, err
			}
			return eng.JoinDebate(ctx, r.DebateID, r.UserID, db.Side(strings.ToUpper(string(r.Side))))
		}),
		SubmitArgument: audited("submit_argument", func(ctx context.Context, request any) (any, error) {
			in, err := as[engine.SubmitArgumentInput](request)
			if err != nil {
				return nil, err
			}
			return eng.SubmitArgument(ctx, in)
		}),
		CastVote: audited("cast_vote", func(ctx context.Context, request any) (any, error) {
			in, err := as[engine.CastVoteInput](request)
			if err != nil {
				return nil, err
			}
			return eng.CastVote(ctx, in)
		}),
		ResolveWinner: audited("resolve_winner", func(ctx context.Context, request any) (any, error) {
			r, err := as[DebateRequest](request)
			if err != nil {
				return nil, err
			}
			return eng.ResolveWinner(ctx, r.DebateID)
		}),
		CloseDebate: audited("close_debate", func(ctx context.Context, request any) (any, error) {
			r, err := as[ActorRequest](request)
			if err != nil {
				return nil, err
			}
			return eng.CloseDebate(ctx, r.ActorID, r.DebateID)
		}),
		CurrentRound: func(ctx context.Context, request any) (any, error) {
			r, err := as[DebateRequest](request)
			if err != nil {
				return nil, err
			}
			round, err := eng.CurrentRound(ctx, r.DebateID)
			if err != nil {
				return nil, err
			}
			return &RoundResponse{DebateID: r.DebateID, Round: round}, nil
		},
		GetDebate: func(ctx context.Context, request any) (any, error) {
			r, err := as[DebateRequest](request)
			if err != nil {
				return nil, err
			}
			return debateDetail(ctx, store, r.DebateID)
		},
		Leaderboard: func(ctx context.Context, request any) (any, error) {
			r, err := as[LeaderboardRequest](request)
			if err != nil {
				return nil, err
			}
			if r.Limit <= 0 {
				r.Limit = LeaderboardLimit
			}
			return store.Leaderboard(ctx, r.Limit)
		},
	}
}

func debateDetail(ctx context.Context, store Store, id string) (*DebateDetail, error) {
	d, err := store.GetDebate(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, &engine.Rejection{Kind: engine.DebateNotFound, Reason: "debate " + id + " not found"}
	}
	if err != nil {
		return nil, fmt.Errorf("loading debate: %w", err)
	}
	args, err := store.ListArguments(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading arguments: %w", err)
	}
	if args == nil {
		args = []*db.Argument{}
	}
	return &DebateDetail{Debate: d, Arguments: args, CurrentRound: engine.ComputeCurrentRound(args)}, nil
}

// as accepts both T and *T so transports can pass either.
func as[T any](request any) (T, error) {
	switch r := request.(type) {
	case T:
		return r, nil
	case *T:
		if r != nil {
			return *r, nil
		}
	}
	var zero T
	return zero, &engine.Rejection{Kind: engine.InvalidInput, Reason: fmt.Sprintf("unexpected request type %T", request)}
}
