package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hazyhaar/debatehub/internal/db"
	"github.com/hazyhaar/debatehub/internal/event"
	"github.com/hazyhaar/debatehub/internal/moderation"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	db     *db.DB
	engine *Engine
	clock  *fakeClock
	admin  *db.User
	alice  *db.User
	bob    *db.User
	voter  *db.User
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "engine.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { database.Close() })

	f := &fixture{db: database, clock: &fakeClock{t: time.Now()}}
	f.admin = f.user(t, "admin", db.RoleAdmin)
	f.alice = f.user(t, "alice", db.RoleUser)
	f.bob = f.user(t, "bob", db.RoleUser)
	f.voter = f.user(t, "voter", db.RoleUser)

	deny, _ := moderation.NewDenyList(nil)
	base := []Option{
		WithClock(f.clock.Now),
		WithPolicy(deny),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	f.engine = New(database, DefaultConfig(), append(base, opts...)...)
	return f
}

func (f *fixture) user(t *testing.T, name, role string) *db.User {
	t.Helper()
	u, err := f.db.CreateUser(context.Background(), db.CreateUserInput{
		Email: name + "@example.com", Username: name, PasswordHash: "x", Role: role, Credibility: 100,
	})
	if err != nil {
		t.Fatal(err)
	}
	return u
}

// activeDebate creates an active debate with alice on A and bob on B.
func (f *fixture) activeDebate(t *testing.T) *db.Debate {
	t.Helper()
	ctx := context.Background()
	d, err := f.engine.CreateDebate(ctx, CreateDebateInput{
		ActorID:  f.admin.ID,
		Title:    "AI Ethics: Should AI have rights?",
		Category: "Ethics",
		Activate: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.JoinDebate(ctx, d.ID, f.alice.ID, db.SideA); err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.JoinDebate(ctx, d.ID, f.bob.ID, db.SideB); err != nil {
		t.Fatal(err)
	}
	return d
}

func (f *fixture) credibility(t *testing.T, id string) int {
	t.Helper()
	u, err := f.db.GetUserByID(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	return u.Credibility
}

func wantKind(t *testing.T, err error, kind Kind) {
	t.Helper()
	got, ok := KindOf(err)
	if !ok {
		t.Fatalf("err = %v, want rejection %s", err, kind)
	}
	if got != kind {
		t.Fatalf("kind = %s (%v), want %s", got, err, kind)
	}
}

func TestComputeCurrentRound(t *testing.T) {
	for n, want := range map[int]int{0: 1, 1: 1, 2: 2, 3: 2, 4: 3, 5: 3, 6: 3, 11: 3} {
		args := make([]*db.Argument, n)
		if got := ComputeCurrentRound(args); got != want {
			t.Errorf("ComputeCurrentRound(%d args) = %d, want %d", n, got, want)
		}
	}
}

func TestRejectionIs(t *testing.T) {
	err := reject(VoteAlreadyCast, "user %s already voted", "u1")
	if !errors.Is(err, ErrVoteAlreadyCast) {
		t.Error("errors.Is by kind failed")
	}
	if errors.Is(err, ErrSelfVote) {
		t.Error("matched wrong kind")
	}
	if !strings.Contains(err.Error(), "u1") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestSubmitArgumentRounds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.activeDebate(t)

	submit := func(u *db.User, round int) error {
		_, err := f.engine.SubmitArgument(ctx, SubmitArgumentInput{
			DebateID: d.ID, UserID: u.ID, Content: u.Username + " round argument", Round: round,
		})
		return err
	}

	if err := submit(f.alice, 1); err != nil {
		t.Fatal(err)
	}
	wantKind(t, submit(f.alice, 1), AlreadySubmitted)
	wantKind(t, submit(f.alice, 2), WrongRound)
	if err := submit(f.bob, 1); err != nil {
		t.Fatal(err)
	}
	for round := 2; round <= 3; round++ {
		if r, _ := f.engine.CurrentRound(ctx, d.ID); r != round {
			t.Fatalf("CurrentRound = %d, want %d", r, round)
		}
		if err := submit(f.bob, round); err != nil {
			t.Fatalf("bob round %d: %v", round, err)
		}
		if err := submit(f.alice, round); err != nil {
			t.Fatalf("alice round %d: %v", round, err)
		}
	}
	wantKind(t, submit(f.alice, 3), AlreadySubmitted)
	wantKind(t, submit(f.alice, 4), WrongRound)

	args, _ := f.db.ListArguments(ctx, d.ID)
	if len(args) != 6 {
		t.Fatalf("arguments = %d, want 6", len(args))
	}
	if got := f.credibility(t, f.alice.ID); got != 130 {
		t.Errorf("alice credibility = %d, want 130", got)
	}
}

func TestSubmitArgumentRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.activeDebate(t)
	upcoming, _ := f.engine.CreateDebate(ctx, CreateDebateInput{ActorID: f.admin.ID, Title: "Later", Category: "Privacy"})
	f.engine.JoinDebate(ctx, upcoming.ID, f.alice.ID, db.SideA)

	tests := []struct {
		name string
		in   SubmitArgumentInput
		kind Kind
	}{
		{"empty content", SubmitArgumentInput{DebateID: d.ID, UserID: f.alice.ID, Content: "   ", Round: 1}, InvalidInput},
		{"too long", SubmitArgumentInput{DebateID: d.ID, UserID: f.alice.ID, Content: strings.Repeat("x", 5001), Round: 1}, InvalidInput},
		{"round zero", SubmitArgumentInput{DebateID: d.ID, UserID: f.alice.ID, Content: "ok", Round: 0}, InvalidInput},
		{"missing debate", SubmitArgumentInput{DebateID: "nope", UserID: f.alice.ID, Content: "ok", Round: 1}, DebateNotFound},
		{"upcoming", SubmitArgumentInput{DebateID: upcoming.ID, UserID: f.alice.ID, Content: "ok", Round: 1}, DebateNotActive},
		{"outsider", SubmitArgumentInput{DebateID: d.ID, UserID: f.voter.ID, Content: "ok", Round: 1}, NotAParticipant},
		{"outsider wrong round", SubmitArgumentInput{DebateID: d.ID, UserID: f.voter.ID, Content: "ok", Round: 2}, NotAParticipant},
		{"participant wrong round", SubmitArgumentInput{DebateID: d.ID, UserID: f.alice.ID, Content: "ok", Round: 2}, WrongRound},
		{"denied term", SubmitArgumentInput{DebateID: d.ID, UserID: f.alice.ID, Content: "I hate this", Round: 1}, ContentRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.SubmitArgument(ctx, tt.in)
			wantKind(t, err, tt.kind)
		})
	}

	args, _ := f.db.ListArguments(ctx, d.ID)
	if len(args) != 0 {
		t.Fatalf("rejected submissions wrote %d arguments", len(args))
	}
	if got := f.credibility(t, f.alice.ID); got != 100 {
		t.Errorf("credibility changed by rejections: %d", got)
	}
}

func TestSubmitArgumentAfterEnd(t *testing.T) {
	f := newFixture(t)
	d := f.activeDebate(t)
	f.clock.Advance(25 * time.Hour)

	_, err := f.engine.SubmitArgument(context.Background(), SubmitArgumentInput{
		DebateID: d.ID, UserID: f.alice.ID, Content: "late", Round: 1,
	})
	wantKind(t, err, DebateClosed)
}

type failingAwards struct {
	*db.DB
}

func (failingAwards) AwardCredibility(context.Context, string, int, int) (*db.User, error) {
	return nil, errors.New("disk full")
}

func TestAwardFailureIsWarning(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.activeDebate(t)
	eng := New(failingAwards{f.db}, DefaultConfig(), WithClock(f.clock.Now),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	res, err := eng.SubmitArgument(ctx, SubmitArgumentInput{DebateID: d.ID, UserID: f.alice.ID, Content: "ok", Round: 1})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if res.Argument == nil || res.Warning == "" {
		t.Fatalf("result = %+v, want argument with warning", res)
	}

	vote, err := eng.CastVote(ctx, CastVoteInput{DebateID: d.ID, VoterID: f.voter.ID, Side: db.SideA})
	if err != nil {
		t.Fatalf("vote failed: %v", err)
	}
	if vote.Tally.VotesA != 1 || vote.Warning == "" {
		t.Fatalf("vote = %+v", vote)
	}
	if got := f.credibility(t, f.voter.ID); got != 100 {
		t.Errorf("voter credibility = %d, want unchanged 100", got)
	}
}

func TestCastVote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.activeDebate(t)

	res, err := f.engine.CastVote(ctx, CastVoteInput{DebateID: d.ID, VoterID: f.voter.ID, Side: "b"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Tally.VotesA != 0 || res.Tally.VotesB != 1 || res.Warning != "" {
		t.Fatalf("result = %+v", res)
	}
	if got := f.credibility(t, f.voter.ID); got != 105 {
		t.Errorf("voter credibility = %d, want 105", got)
	}

	_, err = f.engine.CastVote(ctx, CastVoteInput{DebateID: d.ID, VoterID: f.voter.ID, Side: db.SideA})
	if !errors.Is(err, ErrVoteAlreadyCast) {
		t.Fatalf("repeat vote: %v", err)
	}
	_, err = f.engine.CastVote(ctx, CastVoteInput{DebateID: d.ID, VoterID: f.alice.ID, Side: db.SideA})
	wantKind(t, err, SelfVote)
	_, err = f.engine.CastVote(ctx, CastVoteInput{DebateID: d.ID, VoterID: f.admin.ID, Side: "C"})
	wantKind(t, err, InvalidInput)

	got, _ := f.db.GetDebate(ctx, d.ID)
	if got.VotesA != 0 || got.VotesB != 1 {
		t.Fatalf("tally = %d/%d", got.VotesA, got.VotesB)
	}

	f.clock.Advance(25 * time.Hour)
	_, err = f.engine.CastVote(ctx, CastVoteInput{DebateID: d.ID, VoterID: f.admin.ID, Side: db.SideA})
	wantKind(t, err, DebateClosed)
}

func TestCastVoteConcurrentSameVoter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.activeDebate(t)

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok, dup := 0, 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			side := db.SideA
			if i%2 == 1 {
				side = db.SideB
			}
			_, err := f.engine.CastVote(ctx, CastVoteInput{DebateID: d.ID, VoterID: f.voter.ID, Side: side})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrVoteAlreadyCast):
				dup++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if ok != 1 || dup != 7 {
		t.Fatalf("ok=%d dup=%d, want 1/7", ok, dup)
	}
	got, _ := f.db.GetDebate(ctx, d.ID)
	if got.VotesA+got.VotesB != 1 {
		t.Fatalf("tally = %d/%d", got.VotesA, got.VotesB)
	}
	if c := f.credibility(t, f.voter.ID); c != 105 {
		t.Errorf("voter credibility = %d, want 105", c)
	}
}

func TestCastVoteConcurrentSubmissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.activeDebate(t)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.engine.SubmitArgument(ctx, SubmitArgumentInput{
				DebateID: d.ID, UserID: f.alice.ID, Content: "same slot", Round: 1,
			})
		}(i)
	}
	wg.Wait()

	accepted := 0
	for _, err := range errs {
		if err == nil {
			accepted++
		} else if !errors.Is(err, ErrAlreadySubmitted) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if accepted != 1 {
		t.Fatalf("accepted = %d, want 1", accepted)
	}
}

func TestResolveWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.activeDebate(t)
	carol := f.user(t, "carol", db.RoleUser)

	f.engine.CastVote(ctx, CastVoteInput{DebateID: d.ID, VoterID: f.voter.ID, Side: db.SideA})
	f.engine.CastVote(ctx, CastVoteInput{DebateID: d.ID, VoterID: carol.ID, Side: db.SideA})
	f.engine.CastVote(ctx, CastVoteInput{DebateID: d.ID, VoterID: f.admin.ID, Side: db.SideB})

	_, err := f.engine.ResolveWinner(ctx, d.ID)
	wantKind(t, err, VotingOpen)

	f.clock.Advance(24*time.Hour + time.Second)
	res, err := f.engine.ResolveWinner(ctx, d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeWinner || res.Winner == nil || *res.Winner != f.alice.ID || res.AlreadyCompleted {
		t.Fatalf("resolution = %+v", res)
	}

	again, err := f.engine.ResolveWinner(ctx, d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !again.AlreadyCompleted || again.Winner == nil || *again.Winner != f.alice.ID || again.Loser == nil || *again.Loser != f.bob.ID {
		t.Fatalf("second resolution = %+v", again)
	}

	alice, _ := f.db.GetUserByID(ctx, f.alice.ID)
	bob, _ := f.db.GetUserByID(ctx, f.bob.ID)
	if alice.Wins != 1 || bob.Losses != 1 || alice.Losses != 0 || bob.Wins != 0 {
		t.Fatalf("alice %d/%d bob %d/%d", alice.Wins, alice.Losses, bob.Wins, bob.Losses)
	}
}

func TestResolveTieAndUnassigned(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tie := f.activeDebate(t)
	f.engine.CastVote(ctx, CastVoteInput{DebateID: tie.ID, VoterID: f.voter.ID, Side: db.SideA})
	f.engine.CastVote(ctx, CastVoteInput{DebateID: tie.ID, VoterID: f.admin.ID, Side: db.SideB})

	lonely, _ := f.engine.CreateDebate(ctx, CreateDebateInput{ActorID: f.admin.ID, Title: "Solo", Category: "Privacy", Activate: true})
	f.engine.JoinDebate(ctx, lonely.ID, f.alice.ID, db.SideA)
	f.engine.CastVote(ctx, CastVoteInput{DebateID: lonely.ID, VoterID: f.voter.ID, Side: db.SideB})

	f.clock.Advance(48 * time.Hour)

	res, err := f.engine.ResolveWinner(ctx, tie.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeTie || res.Winner != nil {
		t.Fatalf("tie = %+v", res)
	}
	res, err = f.engine.ResolveWinner(ctx, lonely.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeUnassigned || res.Winner != nil || res.Loser != nil {
		t.Fatalf("unassigned = %+v", res)
	}

	alice, _ := f.db.GetUserByID(ctx, f.alice.ID)
	if alice.Wins != 0 || alice.Losses != 0 {
		t.Fatalf("alice %d/%d, want 0/0", alice.Wins, alice.Losses)
	}
}

func TestResolveUpcomingAndMissing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d, _ := f.engine.CreateDebate(ctx, CreateDebateInput{ActorID: f.admin.ID, Title: "Later", Category: "Ethics"})
	f.clock.Advance(48 * time.Hour)

	_, err := f.engine.ResolveWinner(ctx, d.ID)
	wantKind(t, err, DebateNotActive)
	_, err = f.engine.ResolveWinner(ctx, "missing")
	wantKind(t, err, DebateNotFound)
}

func TestResolveExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.activeDebate(t)
	f.activeDebate(t)

	if n, err := f.engine.ResolveExpired(ctx); err != nil || n != 0 {
		t.Fatalf("before expiry: n=%d err=%v", n, err)
	}
	f.clock.Advance(25 * time.Hour)
	if n, err := f.engine.ResolveExpired(ctx); err != nil || n != 2 {
		t.Fatalf("after expiry: n=%d err=%v", n, err)
	}
	if n, _ := f.engine.ResolveExpired(ctx); n != 0 {
		t.Fatalf("second sweep resolved %d", n)
	}
}

func TestJoinDebate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d, _ := f.engine.CreateDebate(ctx, CreateDebateInput{ActorID: f.admin.ID, Title: "Open", Category: "Ethics"})

	if _, err := f.engine.JoinDebate(ctx, d.ID, f.alice.ID, "a"); err != nil {
		t.Fatal(err)
	}
	_, err := f.engine.JoinDebate(ctx, d.ID, f.bob.ID, db.SideA)
	wantKind(t, err, SideTaken)
	_, err = f.engine.JoinDebate(ctx, d.ID, f.alice.ID, db.SideB)
	wantKind(t, err, AlreadyParticipant)
	_, err = f.engine.JoinDebate(ctx, d.ID, f.bob.ID, "X")
	wantKind(t, err, InvalidInput)

	got, err := f.engine.JoinDebate(ctx, d.ID, f.bob.ID, db.SideB)
	if err != nil {
		t.Fatal(err)
	}
	if got.SideBUser == nil || *got.SideBUser != f.bob.ID {
		t.Fatalf("debate = %+v", got)
	}
}

func TestJoinAfterVoteRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d, err := f.engine.CreateDebate(ctx, CreateDebateInput{ActorID: f.admin.ID, Title: "Open", Category: "Ethics", Activate: true})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.JoinDebate(ctx, d.ID, f.alice.ID, db.SideA); err != nil {
		t.Fatal(err)
	}
	if _, err := f.engine.CastVote(ctx, CastVoteInput{DebateID: d.ID, VoterID: f.bob.ID, Side: db.SideB}); err != nil {
		t.Fatal(err)
	}

	_, err = f.engine.JoinDebate(ctx, d.ID, f.bob.ID, db.SideB)
	wantKind(t, err, SelfVote)

	got, err := f.db.GetDebate(ctx, d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.SideBUser != nil {
		t.Fatalf("voter holds side B: %+v", got)
	}
}

func TestActivateAndClose(t *testing.T) {
	bus := event.NewBus(nil, nil)
	defer bus.Stop()
	_, started := bus.Subscribe(event.DebateStartedType)
	_, resolved := bus.Subscribe(event.DebateResolvedType)

	f := newFixture(t, WithPublisher(bus))
	ctx := context.Background()
	d, _ := f.engine.CreateDebate(ctx, CreateDebateInput{ActorID: f.admin.ID, Title: "Later", Category: "Ethics"})

	_, err := f.engine.CreateDebate(ctx, CreateDebateInput{ActorID: f.alice.ID, Title: "x", Category: "y"})
	wantKind(t, err, Forbidden)
	_, err = f.engine.ActivateDebate(ctx, f.alice.ID, d.ID)
	wantKind(t, err, Forbidden)

	f.engine.JoinDebate(ctx, d.ID, f.alice.ID, db.SideA)
	got, err := f.engine.ActivateDebate(ctx, f.admin.ID, d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != db.StatusActive {
		t.Fatalf("status = %s", got.Status)
	}
	_, err = f.engine.ActivateDebate(ctx, f.admin.ID, d.ID)
	wantKind(t, err, InvalidInput)

	select {
	case evt := <-started:
		if s := evt.Data.(event.DebateStarted); s.DebateID != d.ID || len(s.Participants) != 1 {
			t.Errorf("started = %+v", s)
		}
	case <-time.After(time.Second):
		t.Fatal("no debate.started event")
	}

	f.engine.CastVote(ctx, CastVoteInput{DebateID: d.ID, VoterID: f.voter.ID, Side: db.SideA})
	res, err := f.engine.CloseDebate(ctx, f.admin.ID, d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.Winner == nil || *res.Winner != f.alice.ID {
		t.Fatalf("close = %+v", res)
	}
	select {
	case evt := <-resolved:
		if r := evt.Data.(event.DebateResolved); r.DebateID != d.ID || r.VotesA != 1 {
			t.Errorf("resolved = %+v", r)
		}
	case <-time.After(time.Second):
		t.Fatal("no debate.resolved event")
	}
}

func TestKeyedMutexReleases(t *testing.T) {
	k := newKeyedMutex()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("d1")
			unlock()
		}()
	}
	wg.Wait()
	if n := k.size(); n != 0 {
		t.Fatalf("%d locks retained", n)
	}
}
