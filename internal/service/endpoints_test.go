package service

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/hazyhaar/debatehub/internal/db"
	"github.com/hazyhaar/debatehub/internal/engine"
	"github.com/hazyhaar/debatehub/pkg/audit"
	"github.com/hazyhaar/debatehub/pkg/kit"
)

type env struct {
	db    *db.DB
	eps   *Endpoints
	audit *audit.SQLiteLogger
	admin *db.User
	alice *db.User
	bob   *db.User
	voter *db.User
}

func newEnv(t *testing.T) *env {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "service.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { database.Close() })

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	auditLog, err := audit.NewSQLiteLogger(database.DB, quiet)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { auditLog.Close() })

	eng := engine.New(database, engine.DefaultConfig(), engine.WithLogger(quiet))
	e := &env{db: database, eps: New(eng, database, auditLog), audit: auditLog}
	e.admin = e.user(t, "admin", db.RoleAdmin)
	e.alice = e.user(t, "alice", db.RoleUser)
	e.bob = e.user(t, "bob", db.RoleUser)
	e.voter = e.user(t, "voter", db.RoleUser)
	return e
}

func (e *env) user(t *testing.T, name, role string) *db.User {
	t.Helper()
	u, err := e.db.CreateUser(context.Background(), db.CreateUserInput{
		Email: name + "@example.com", Username: name, PasswordHash: "x", Role: role, Credibility: 100,
	})
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func TestEndpointsDebateFlow(t *testing.T) {
	e := newEnv(t)
	ctx := kit.WithTransport(context.Background(), kit.TransportCLI)

	out, err := e.eps.CreateDebate(ctx, engine.CreateDebateInput{
		ActorID: e.admin.ID, Title: "Privacy vs Security in the Digital Age", Category: "Privacy", Activate: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	d := out.(*db.Debate)

	// Pointer requests are accepted too.
	if _, err := e.eps.JoinDebate(ctx, &JoinRequest{DebateID: d.ID, UserID: e.alice.ID, Side: "a"}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.eps.JoinDebate(ctx, JoinRequest{DebateID: d.ID, UserID: e.bob.ID, Side: db.SideB}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.eps.SubmitArgument(ctx, engine.SubmitArgumentInput{
		DebateID: d.ID, UserID: e.alice.ID, Content: "Opening for A", Round: 1,
	}); err != nil {
		t.Fatal(err)
	}

	out, err = e.eps.CurrentRound(ctx, DebateRequest{DebateID: d.ID})
	if err != nil {
		t.Fatal(err)
	}
	if r := out.(*RoundResponse); r.Round != 1 {
		t.Fatalf("round = %d, want 1", r.Round)
	}

	out, err = e.eps.GetDebate(ctx, DebateRequest{DebateID: d.ID})
	if err != nil {
		t.Fatal(err)
	}
	detail := out.(*DebateDetail)
	if len(detail.Arguments) != 1 || detail.Arguments[0].Username != "alice" || detail.CurrentRound != 1 {
		t.Fatalf("detail = %+v", detail)
	}

	if _, err := e.eps.CastVote(ctx, engine.CastVoteInput{DebateID: d.ID, VoterID: e.voter.ID, Side: db.SideA}); err != nil {
		t.Fatal(err)
	}
	_, err = e.eps.CastVote(ctx, engine.CastVoteInput{DebateID: d.ID, VoterID: e.voter.ID, Side: db.SideA})
	if k, _ := engine.KindOf(err); k != engine.VoteAlreadyCast {
		t.Fatalf("second vote err = %v", err)
	}

	out, err = e.eps.CloseDebate(ctx, ActorRequest{ActorID: e.admin.ID, DebateID: d.ID})
	if err != nil {
		t.Fatal(err)
	}
	res := out.(*engine.Resolution)
	if res.Winner == nil || *res.Winner != e.alice.ID {
		t.Fatalf("resolution = %+v", res)
	}

	out, err = e.eps.Leaderboard(ctx, LeaderboardRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if users := out.([]*db.User); len(users) != 4 || users[0].ID != e.alice.ID {
		t.Fatalf("leaderboard = %+v", users)
	}

	e.audit.Close()
	entries, err := e.audit.Recent(context.Background(), "cast_vote", 10)
	if err != nil {
		t.Fatal(err)
	}
	statuses := map[string]int{}
	for _, en := range entries {
		statuses[en.Status]++
		if en.Transport != kit.TransportCLI {
			t.Errorf("transport = %q", en.Transport)
		}
	}
	if statuses[audit.StatusSuccess] != 1 || statuses[audit.StatusRejected] != 1 {
		t.Fatalf("audit statuses = %v", statuses)
	}
}

func TestGetDebateMissing(t *testing.T) {
	e := newEnv(t)
	_, err := e.eps.GetDebate(context.Background(), DebateRequest{DebateID: "nope"})
	if k, _ := engine.KindOf(err); k != engine.DebateNotFound {
		t.Fatalf("err = %v, want DebateNotFound", err)
	}
}

func TestWrongRequestType(t *testing.T) {
	e := newEnv(t)
	_, err := e.eps.ResolveWinner(context.Background(), "not a request")
	if k, _ := engine.KindOf(err); k != engine.InvalidInput {
		t.Fatalf("err = %v, want InvalidInput", err)
	}
}
