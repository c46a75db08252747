package engine

import (
	"errors"
	"fmt"
)

// Kind classifies why the engine refused an operation.
type Kind string

const (
	InvalidInput       Kind = "InvalidInput"
	DebateNotFound     Kind = "DebateNotFound"
	DebateNotActive    Kind = "DebateNotActive"
	DebateClosed       Kind = "DebateClosed"
	NotAParticipant    Kind = "NotAParticipant"
	WrongRound         Kind = "WrongRound"
	AlreadySubmitted   Kind = "AlreadySubmitted"
	ContentRejected    Kind = "ContentRejected"
	VoteAlreadyCast    Kind = "VoteAlreadyCast"
	SelfVote           Kind = "SelfVote"
	VotingOpen         Kind = "VotingOpen"
	SideTaken          Kind = "SideTaken"
	AlreadyParticipant Kind = "AlreadyParticipant"
	Forbidden          Kind = "Forbidden"
)

// Rejection is a domain refusal. Nothing was written when one is returned.
// Storage failures are never Rejections.
type Rejection struct {
	Kind   Kind
	Reason string
}

func (r *Rejection) Error() string {
	if r.Reason == "" {
		return string(r.Kind)
	}
	return string(r.Kind) + ": " + r.Reason
}

// Is matches any Rejection of the same kind, so errors.Is(err,
// ErrWrongRound) works regardless of the reason text.
func (r *Rejection) Is(target error) bool {
	t, ok := target.(*Rejection)
	return ok && t.Kind == r.Kind
}

var (
	ErrInvalidInput       = &Rejection{Kind: InvalidInput}
	ErrDebateNotFound     = &Rejection{Kind: DebateNotFound}
	ErrDebateNotActive    = &Rejection{Kind: DebateNotActive}
	ErrDebateClosed       = &Rejection{Kind: DebateClosed}
	ErrNotAParticipant    = &Rejection{Kind: NotAParticipant}
	ErrWrongRound         = &Rejection{Kind: WrongRound}
	ErrAlreadySubmitted   = &Rejection{Kind: AlreadySubmitted}
	ErrContentRejected    = &Rejection{Kind: ContentRejected}
	ErrVoteAlreadyCast    = &Rejection{Kind: VoteAlreadyCast}
	ErrSelfVote           = &Rejection{Kind: SelfVote}
	ErrVotingOpen         = &Rejection{Kind: VotingOpen}
	ErrSideTaken          = &Rejection{Kind: SideTaken}
	ErrAlreadyParticipant = &Rejection{Kind: AlreadyParticipant}
	ErrForbidden          = &Rejection{Kind: Forbidden}
)

func reject(kind Kind, format string, args ...any) *Rejection {
	return &Rejection{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// KindOf returns the rejection kind carried by err, if any.
func KindOf(err error) (Kind, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r.Kind, true
	}
	return "", false
}
