// CLAUDE:SUMMARY Debate engine: round computation, argument submission, vote acceptance, reputation awards; per-debate serialization
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hazyhaar/debatehub/internal/db"
	"github.com/hazyhaar/debatehub/internal/event"
	"github.com/hazyhaar/debatehub/internal/metrics"
	"github.com/hazyhaar/debatehub/internal/moderation"
)

// Store is the persistence the engine needs. *db.DB satisfies it.
type Store interface {
	GetUserByID(ctx context.Context, id string) (*db.User, error)
	AwardCredibility(ctx context.Context, userID string, delta, levelStep int) (*db.User, error)

	CreateDebate(ctx context.Context, input db.CreateDebateInput) (*db.Debate, error)
	GetDebate(ctx context.Context, id string) (*db.Debate, error)
	ListExpiredDebates(ctx context.Context, now time.Time, limit int) ([]*db.Debate, error)
	ActivateDebate(ctx context.Context, id string, now, fallbackEnd time.Time) error
	AssignSide(ctx context.Context, id string, side db.Side, userID string) error
	SetEndTime(ctx context.Context, id string, end time.Time) error
	CompleteDebate(ctx context.Context, id string, winner, loser *string, at time.Time) error

	ListArguments(ctx context.Context, debateID string) ([]*db.Argument, error)
	AppendArgument(ctx context.Context, input db.AppendArgumentInput) (*db.Argument, error)

	HasVoted(ctx context.Context, debateID, voterID string) (bool, error)
	RecordVote(ctx context.Context, debateID, voterID string, side db.Side) (*db.Tally, error)
}

// Publisher receives engine events. *event.Bus satisfies it.
type Publisher interface {
	PublishAsync(evt event.Event) bool
}

type Config struct {
	ArgumentAward     int
	VoteAward         int
	LevelStep         int
	MaxArgumentLength int
	DefaultDuration   time.Duration
}

func DefaultConfig() Config {
	return Config{
		ArgumentAward:     10,
		VoteAward:         5,
		LevelStep:         100,
		MaxArgumentLength: 5000,
		DefaultDuration:   24 * time.Hour,
	}
}

type Engine struct {
	store   Store
	policy  moderation.Policy
	events  Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger
	cfg     Config
	locks   *keyedMutex
	now     func() time.Time
}

type Option func(*Engine)

func WithPolicy(p moderation.Policy) Option { return func(e *Engine) { e.policy = p } }
func WithPublisher(p Publisher) Option { return func(e *Engine) { e.events = p } }
func WithMetrics(m *metrics.Metrics) Option { return func(e *Engine) { e.metrics = m } }
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }
func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func New(store Store, cfg Config, opts ...Option) *Engine {
	def := DefaultConfig()
	if cfg.LevelStep <= 0 {
		cfg.LevelStep = def.LevelStep
	}
	if cfg.MaxArgumentLength <= 0 {
		cfg.MaxArgumentLength = def.MaxArgumentLength
	}
	if cfg.DefaultDuration <= 0 {
		cfg.DefaultDuration = def.DefaultDuration
	}
	e := &Engine{
		store:  store,
		policy: moderation.AllowAll,
		logger: slog.Default(),
		cfg:    cfg,
		locks:  newKeyedMutex(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) publish(t event.EventType, data any) {
	if e.events == nil {
		return
	}
	if !e.events.PublishAsync(event.NewEvent(t, data)) {
		e.logger.Warn("event not queued", "type", t)
	}
}

func (e *Engine) rejected(op string, err error) error {
	if kind, ok := KindOf(err); ok {
		e.metrics.Rejected(op, string(kind))
	}
	return err
}

// loadDebate maps a missing row to DebateNotFound.
func (e *Engine) loadDebate(ctx context.Context, id string) (*db.Debate, error) {
	d, err := e.store.GetDebate(ctx, id)
	if errors.Is(err, db.ErrNotFound) {
		return nil, reject(DebateNotFound, "debate %s does not exist", id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading debate: %w", err)
	}
	return d, nil
}

// requireOpen rejects debates that cannot take arguments or votes.
func (e *Engine) requireOpen(d *db.Debate) error {
	switch {
	case d.Status == db.StatusCompleted:
		return reject(DebateClosed, "debate is completed")
	case d.Status == db.StatusUpcoming:
		return reject(DebateNotActive, "debate has not started")
	case d.Expired(e.now()):
		return reject(DebateClosed, "debate ended at %s", d.EndTime.Format(time.RFC3339))
	}
	return nil
}

// award applies a credibility delta. A failure leaves the caller's primary
// write in place and is reported as a warning string.
func (e *Engine) award(ctx context.Context, userID string, delta int) string {
	if delta == 0 {
		return ""
	}
	if _, err := e.store.AwardCredibility(ctx, userID, delta, e.cfg.LevelStep); err != nil {
		e.metrics.AwardFailed()
		e.logger.Warn("credibility award failed", "user_id", userID, "delta", delta, "error", err)
		return "credibility award failed: " + err.Error()
	}
	return ""
}

// CurrentRound returns the open round of a debate.
func (e *Engine) CurrentRound(ctx context.Context, debateID string) (int, error) {
	if _, err := e.loadDebate(ctx, debateID); err != nil {
		return 0, err
	}
	args, err := e.store.ListArguments(ctx, debateID)
	if err != nil {
		return 0, fmt.Errorf("listing arguments: %w", err)
	}
	return ComputeCurrentRound(args), nil
}

type SubmitArgumentInput struct {
	DebateID string `json:"debate_id"`
	UserID   string `json:"user_id"`
	Content  string `json:"content"`
	Round    int    `json:"round"`
}

type SubmitArgumentResult struct {
	Argument *db.Argument `json:"argument"`
	Warning  string       `json:"warning,omitempty"`
}

// SubmitArgument appends one argument for the caller's side in the open
// round and awards the argument credibility.
func (e *Engine) SubmitArgument(ctx context.Context, in SubmitArgumentInput) (*SubmitArgumentResult, error) {
	const op = "submit_argument"
	content := strings.TrimSpace(in.Content)
	switch {
	case in.DebateID == "" || in.UserID == "":
		return nil, e.rejected(op, reject(InvalidInput, "debate_id and user_id are required"))
	case content == "":
		return nil, e.rejected(op, reject(InvalidInput, "content is required"))
	case utf8.RuneCountInString(content) > e.cfg.MaxArgumentLength:
		return nil, e.rejected(op, reject(InvalidInput, "content exceeds %d characters", e.cfg.MaxArgumentLength))
	case in.Round < 1:
		return nil, e.rejected(op, reject(InvalidInput, "round must be at least 1"))
	}

	unlock := e.locks.Lock(in.DebateID)
	defer unlock()

	d, err := e.loadDebate(ctx, in.DebateID)
	if err != nil {
		return nil, e.rejected(op, err)
	}
	if err := e.requireOpen(d); err != nil {
		return nil, e.rejected(op, err)
	}
	side, ok := d.SideOf(in.UserID)
	if !ok {
		return nil, e.rejected(op, reject(NotAParticipant, "user is not assigned to either side"))
	}

	existing, err := e.store.ListArguments(ctx, d.ID)
	if err != nil {
		return nil, fmt.Errorf("listing arguments: %w", err)
	}
	if current := ComputeCurrentRound(existing); in.Round != current {
		return nil, e.rejected(op, reject(WrongRound, "round %d is open, got %d", current, in.Round))
	}
	for _, a := range existing {
		if a.Side == side && a.Round == in.Round {
			return nil, e.rejected(op, reject(AlreadySubmitted, "side %s already argued round %d", side, in.Round))
		}
	}
	if v := e.policy.Check(content); !v.Allowed {
		return nil, e.rejected(op, reject(ContentRejected, "%s", v.Reason))
	}

	arg, err := e.store.AppendArgument(ctx, db.AppendArgumentInput{
		DebateID: d.ID,
		UserID:   in.UserID,
		Round:    in.Round,
		Side:     side,
		Content:  content,
	})
	if errors.Is(err, db.ErrDuplicate) {
		return nil, e.rejected(op, reject(AlreadySubmitted, "side %s already argued round %d", side, in.Round))
	}
	if err != nil {
		return nil, fmt.Errorf("appending argument: %w", err)
	}

	res := &SubmitArgumentResult{Argument: arg}
	res.Warning = e.award(ctx, in.UserID, e.cfg.ArgumentAward)

	e.metrics.ArgumentSubmitted()
	e.publish(event.ArgumentSubmittedType, event.ArgumentSubmitted{
		DebateID:   d.ID,
		ArgumentID: arg.ID,
		UserID:     in.UserID,
		Side:       string(side),
		Round:      arg.Round,
	})
	e.logger.Info("argument submitted", "debate_id", d.ID, "user_id", in.UserID, "side", side, "round", arg.Round)
	return res, nil
}

type CastVoteInput struct {
	DebateID string  `json:"debate_id"`
	VoterID  string  `json:"voter_id"`
	Side     db.Side `json:"side"`
}

type CastVoteResult struct {
	Tally   *db.Tally `json:"tally"`
	Warning string    `json:"warning,omitempty"`
}

// CastVote records one vote per user per debate and awards the voter.
// Participants of the debate may not vote on it.
func (e *Engine) CastVote(ctx context.Context, in CastVoteInput) (*CastVoteResult, error) {
	const op = "cast_vote"
	side := db.Side(strings.ToUpper(string(in.Side)))
	if !side.Valid() {
		return nil, e.rejected(op, reject(InvalidInput, "side must be A or B"))
	}
	if in.DebateID == "" || in.VoterID == "" {
		return nil, e.rejected(op, reject(InvalidInput, "debate_id and voter_id are required"))
	}

	unlock := e.locks.Lock(in.DebateID)
	defer unlock()

	d, err := e.loadDebate(ctx, in.DebateID)
	if err != nil {
		return nil, e.rejected(op, err)
	}
	if err := e.requireOpen(d); err != nil {
		return nil, e.rejected(op, err)
	}
	if _, ok := d.SideOf(in.VoterID); ok {
		return nil, e.rejected(op, reject(SelfVote, "participants cannot vote on their own debate"))
	}
	voted, err := e.store.HasVoted(ctx, d.ID, in.VoterID)
	if err != nil {
		return nil, fmt.Errorf("checking vote: %w", err)
	}
	if voted {
		return nil, e.rejected(op, reject(VoteAlreadyCast, "user already voted on this debate"))
	}

	tally, err := e.store.RecordVote(ctx, d.ID, in.VoterID, side)
	if errors.Is(err, db.ErrDuplicate) {
		return nil, e.rejected(op, reject(VoteAlreadyCast, "user already voted on this debate"))
	}
	if err != nil {
		return nil, fmt.Errorf("recording vote: %w", err)
	}

	res := &CastVoteResult{Tally: tally}
	res.Warning = e.award(ctx, in.VoterID, e.cfg.VoteAward)

	e.metrics.VoteCast(string(side))
	e.publish(event.VoteCastType, event.VoteCast{
		DebateID:  d.ID,
		Title:     d.Title,
		VoterID:   in.VoterID,
		Side:      string(side),
		VotesA:    tally.VotesA,
		VotesB:    tally.VotesB,
		Recipient: d.Participant(side),
	})
	e.logger.Info("vote cast", "debate_id", d.ID, "voter_id", in.VoterID, "side", side)
	return res, nil
}
