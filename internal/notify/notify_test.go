package notify

import (
	"context"
	"net/smtp"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/debatehub/internal/db"
	"github.com/hazyhaar/debatehub/internal/event"
)

func openDB(t *testing.T) *db.DB {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "notify.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func newUser(t *testing.T, database *db.DB, name string) *db.User {
	t.Helper()
	u, err := database.CreateUser(context.Background(), db.CreateUserInput{
		Email: name + "@example.com", Username: name, PasswordHash: "x", Credibility: 100,
	})
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func TestHandleWritesNotifications(t *testing.T) {
	database := openDB(t)
	ctx := context.Background()
	alice := newUser(t, database, "alice")
	bob := newUser(t, database, "bob")
	s := NewSubscriber(database, nil)

	s.Handle(event.NewEvent(event.VoteCastType, event.VoteCast{
		DebateID: "d1", Title: "AI Ethics", Side: "A", VotesA: 1, Recipient: &alice.ID,
	}))
	s.Handle(event.NewEvent(event.VoteCastType, event.VoteCast{DebateID: "d1", Side: "B"}))
	s.Handle(event.NewEvent(event.DebateResolvedType, event.DebateResolved{
		DebateID: "d1", Title: "AI Ethics", Winner: &alice.ID, Loser: &bob.ID,
	}))
	s.Handle(event.NewEvent(event.DebateStartedType, event.DebateStarted{
		DebateID: "d2", Title: "Privacy", Participants: []string{bob.ID},
	}))

	aliceN, _ := database.ListNotifications(ctx, alice.ID, false, 0)
	bobN, _ := database.ListNotifications(ctx, bob.ID, false, 0)

	kinds := func(ns []*db.Notification) map[string]int {
		m := map[string]int{}
		for _, n := range ns {
			m[n.Type]++
		}
		return m
	}
	if k := kinds(aliceN); k[db.NotifyVoteReceived] != 1 || k[db.NotifyWin] != 1 || len(aliceN) != 2 {
		t.Errorf("alice notifications = %v", k)
	}
	if k := kinds(bobN); k[db.NotifyLoss] != 1 || k[db.NotifyDebateStart] != 1 || len(bobN) != 2 {
		t.Errorf("bob notifications = %v", k)
	}
}

func TestAttachDeliversFromBus(t *testing.T) {
	database := openDB(t)
	alice := newUser(t, database, "alice")
	bus := event.NewBus(nil, nil)
	defer bus.Stop()
	NewSubscriber(database, nil).Attach(bus)

	bus.PublishAsync(event.NewEvent(event.DebateResolvedType, event.DebateResolved{DebateID: "d", Title: "t", Winner: &alice.ID}))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		ns, _ := database.ListNotifications(context.Background(), alice.ID, false, 0)
		if len(ns) == 1 && ns[0].Type == db.NotifyWin {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("win notification not written")
}

func TestSMTPMailerBuildsMessage(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	m := NewSMTPMailer(SMTPConfig{Host: "smtp.example.com", Username: "u", Password: "p", From: "noreply@example.com"})
	m.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	subject, body := VerificationMessage("123456")
	if err := m.Send(context.Background(), "alice@example.com", subject, body); err != nil {
		t.Fatal(err)
	}
	if gotAddr != "smtp.example.com:587" || gotFrom != "noreply@example.com" || len(gotTo) != 1 {
		t.Fatalf("addr=%s from=%s to=%v", gotAddr, gotFrom, gotTo)
	}
	if !strings.Contains(string(gotMsg), "Subject: Your verification code\r\n") || !strings.Contains(string(gotMsg), "123456") {
		t.Fatalf("message = %q", gotMsg)
	}

	if err := m.Send(context.Background(), "a@example.com\r\nBcc: x@example.com", subject, body); err == nil {
		t.Fatal("header injection accepted")
	}
}
