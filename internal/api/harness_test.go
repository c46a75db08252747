package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hazyhaar/debatehub/internal/auth"
	"github.com/hazyhaar/debatehub/internal/config"
	"github.com/hazyhaar/debatehub/internal/db"
	"github.com/hazyhaar/debatehub/internal/engine"
	"github.com/hazyhaar/debatehub/internal/metrics"
	"github.com/hazyhaar/debatehub/internal/moderation"
	"github.com/hazyhaar/debatehub/internal/service"
	"github.com/hazyhaar/debatehub/internal/verify"
	"github.com/hazyhaar/debatehub/pkg/audit"
)

type sentMail struct {
	To, Subject, Body string
}

type chanMailer chan sentMail

func (c chanMailer) Send(_ context.Context, to, subject, body string) error {
	c <- sentMail{To: to, Subject: subject, Body: body}
	return nil
}

type harness struct {
	srv   *httptest.Server
	db    *db.DB
	mail  chanMailer
	audit *audit.SQLiteLogger
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "api.db")
	cfg.Auth.JWTSecret = "test-secret"
	cfg.Auth.AdminEmails = []string{"admin@example.com"}
	cfg.Server.RateLimit = 1000

	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		t.Fatal(err)
	}
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	auditLog, err := audit.NewSQLiteLogger(database.DB, quiet)
	if err != nil {
		t.Fatal(err)
	}
	m := metrics.New(prometheus.NewRegistry())
	deny, err := moderation.NewDenyList(nil)
	if err != nil {
		t.Fatal(err)
	}
	eng := engine.New(database, engine.DefaultConfig(),
		engine.WithLogger(quiet), engine.WithMetrics(m), engine.WithPolicy(deny))

	a := New(cfg, database, auth.New(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiryMin), service.New(eng, database, auditLog))
	mail := make(chanMailer, 4)
	a.SetVerification(verify.NewCodeStore(cfg.Verification.CodeTTL,
		verify.WithMaxAttempts(cfg.Verification.MaxAttempts)), mail)
	a.SetMetrics(m)
	a.SetAuditLog(auditLog)
	a.SetLogger(quiet)

	h := &harness{srv: httptest.NewServer(a.Handler()), db: database, mail: mail, audit: auditLog}
	t.Cleanup(func() {
		h.srv.Close()
		auditLog.Close()
		database.Close()
	})
	return h
}

// Do sends body as JSON and returns the raw response.
func (h *harness) Do(t *testing.T, method, path string, body any, token string) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, h.srv.URL+path, rd)
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

// JSON sends a request, checks the status and decodes the response into out.
func (h *harness) JSON(t *testing.T, method, path string, body any, token string, want int, out any) {
	t.Helper()
	resp := h.Do(t, method, path, body, token)
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != want {
		t.Fatalf("%s %s: status = %d, want %d; body: %s", method, path, resp.StatusCode, want, raw)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			t.Fatalf("%s %s: decoding %s: %v", method, path, raw, err)
		}
	}
}

type apiError struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// RequireKind checks a rejection response.
func (h *harness) RequireKind(t *testing.T, method, path string, body any, token string, status int, kind engine.Kind) {
	t.Helper()
	var e apiError
	h.JSON(t, method, path, body, token, status, &e)
	if e.Kind != string(kind) {
		t.Fatalf("%s %s: kind = %q (%s), want %s", method, path, e.Kind, e.Error, kind)
	}
}

type session struct {
	User  db.User `json:"user"`
	Token string  `json:"token"`
}

func (h *harness) Signup(t *testing.T, username string) session {
	t.Helper()
	var s session
	h.JSON(t, "POST", "/api/auth/signup", map[string]string{
		"email": username + "@example.com", "username": username, "password": "password123",
	}, "", http.StatusCreated, &s)
	return s
}

func (h *harness) waitMail(t *testing.T) sentMail {
	t.Helper()
	select {
	case m := <-h.mail:
		return m
	case <-time.After(5 * time.Second):
		t.Fatal("no mail sent")
		return sentMail{}
	}
}
