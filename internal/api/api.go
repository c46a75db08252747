// CLAUDE:SUMMARY Core API struct, route table, JSON helpers, rejection-to-status mapping, auth and user profile handlers
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"regexp"
	"strconv"
	"strings"

	"github.com/hazyhaar/debatehub/internal/auth"
	"github.com/hazyhaar/debatehub/internal/config"
	"github.com/hazyhaar/debatehub/internal/db"
	"github.com/hazyhaar/debatehub/internal/engine"
	"github.com/hazyhaar/debatehub/internal/metrics"
	"github.com/hazyhaar/debatehub/internal/notify"
	"github.com/hazyhaar/debatehub/internal/service"
	"github.com/hazyhaar/debatehub/internal/verify"
	"github.com/hazyhaar/debatehub/pkg/audit"
	"github.com/hazyhaar/debatehub/pkg/kit"
)

// usernameRe validates username format: ASCII alphanumeric, underscore, hyphen only.
var usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,30}$`)

// maxBodySize bounds every JSON request body.
const maxBodySize = 64 * 1024

type API struct {
	cfg      *config.Config
	db       *db.DB
	auth     *auth.Auth
	eps      *service.Endpoints
	codes    *verify.CodeStore
	mailer   notify.Mailer
	metrics  *metrics.Metrics
	auditLog *audit.SQLiteLogger
	limiter  *RateLimiter
	logger   *slog.Logger
}

func New(cfg *config.Config, database *db.DB, a *auth.Auth, eps *service.Endpoints) *API {
	return &API{
		cfg:     cfg,
		db:      database,
		auth:    a,
		eps:     eps,
		codes:   verify.NewCodeStore(cfg.Verification.CodeTTL),
		mailer:  notify.LogMailer{},
		limiter: NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateWindow),
		logger:  slog.Default(),
	}
}

// SetVerification replaces the code store and the mailer used to deliver codes.
func (a *API) SetVerification(codes *verify.CodeStore, mailer notify.Mailer) {
	a.codes = codes
	a.mailer = mailer
}

func (a *API) SetMetrics(m *metrics.Metrics) { a.metrics = m }

// SetAuditLog enables GET /api/audit for admins.
func (a *API) SetAuditLog(l *audit.SQLiteLogger) { a.auditLog = l }

func (a *API) SetLogger(l *slog.Logger) { a.logger = l }

func (a *API) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", a.handleHealth)

	// Auth
	mux.HandleFunc("POST /api/auth/signup", RateLimitMiddleware(a.limiter, a.handleSignup))
	mux.HandleFunc("POST /api/auth/login", RateLimitMiddleware(a.limiter, a.handleLogin))
	mux.HandleFunc("GET /api/auth/me", a.handleMe)

	// Users
	mux.HandleFunc("GET /api/users/{username}", a.handleGetUser)
	mux.HandleFunc("GET /api/leaderboard", a.handleLeaderboard)

	// Debates
	a.RegisterDebateRoutes(mux)

	// Notifications
	mux.HandleFunc("GET /api/notifications", a.handleListNotifications)
	mux.HandleFunc("POST /api/notifications/{id}/read", a.handleMarkRead)

	// Verification codes
	mux.HandleFunc("POST /api/send-verification", RateLimitMiddleware(a.limiter, a.handleSendVerification))
	mux.HandleFunc("POST /api/verify-code", RateLimitMiddleware(a.limiter, a.handleVerifyCode))
	mux.HandleFunc("POST /api/reset-password", RateLimitMiddleware(a.limiter, a.handleResetPassword))

	// Admin
	mux.HandleFunc("GET /api/audit", a.handleAudit)

	if a.metrics != nil && a.cfg.Metrics.Enabled {
		mux.Handle("GET "+a.cfg.Metrics.Path, a.metrics.Handler())
	}
}

// Handler returns the full middleware-wrapped router.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	a.RegisterRoutes(mux)
	return SecurityHeaders(RequestLog(a.logger, a.metrics, mux))
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	jsonResp(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Auth ---

func (a *API) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	email := normalizeEmail(req.Email)
	if email == "" || req.Username == "" || req.Password == "" {
		jsonError(w, "email, username and password are required", http.StatusBadRequest)
		return
	}
	if _, err := mail.ParseAddress(email); err != nil {
		jsonError(w, "invalid email address", http.StatusBadRequest)
		return
	}
	if !usernameRe.MatchString(req.Username) {
		jsonError(w, "username must be 3-30 ASCII letters, digits, underscore or hyphen", http.StatusBadRequest)
		return
	}
	if len(req.Password) < auth.MinPasswordLength {
		jsonError(w, "password must be at least 8 characters", http.StatusBadRequest)
		return
	}

	hash, err := a.auth.HashPassword(req.Password)
	if err != nil {
		a.internalError(w, "hashing password", err)
		return
	}
	role := db.RoleUser
	if a.cfg.IsAdminEmail(email) {
		role = db.RoleAdmin
	}
	user, err := a.db.CreateUser(r.Context(), db.CreateUserInput{
		Email:        email,
		Username:     req.Username,
		PasswordHash: hash,
		Role:         role,
		Credibility:  a.cfg.Debate.StartingCredibility,
	})
	if errors.Is(err, db.ErrDuplicate) {
		jsonError(w, "email or username already exists", http.StatusConflict)
		return
	}
	if err != nil {
		a.internalError(w, "creating user", err)
		return
	}

	token, err := a.auth.GenerateToken(user.ID, user.Username, user.Role)
	if err != nil {
		a.internalError(w, "signing token", err)
		return
	}
	a.logger.Info("user signed up", "user_id", user.ID, "role", user.Role)
	jsonResp(w, http.StatusCreated, map[string]any{"user": user, "token": token})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		jsonError(w, "email and password are required", http.StatusBadRequest)
		return
	}

	user, hash, err := a.db.GetUserByEmail(r.Context(), normalizeEmail(req.Email))
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		a.internalError(w, "loading user", err)
		return
	}
	if err != nil || !a.auth.CheckPassword(hash, req.Password) {
		jsonError(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := a.auth.GenerateToken(user.ID, user.Username, user.Role)
	if err != nil {
		a.internalError(w, "signing token", err)
		return
	}
	jsonResp(w, http.StatusOK, map[string]any{"user": user, "token": token})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := a.requireAuth(w, r)
	if claims == nil {
		return
	}
	user, err := a.db.GetUserByID(r.Context(), claims.UserID)
	if errors.Is(err, db.ErrNotFound) {
		jsonError(w, "user not found", http.StatusNotFound)
		return
	}
	if err != nil {
		a.internalError(w, "loading user", err)
		return
	}
	jsonResp(w, http.StatusOK, map[string]any{"user": user})
}

// --- Users ---

func (a *API) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := a.db.GetUserByUsername(r.Context(), r.PathValue("username"))
	if errors.Is(err, db.ErrNotFound) {
		jsonError(w, "user not found", http.StatusNotFound)
		return
	}
	if err != nil {
		a.internalError(w, "loading user", err)
		return
	}
	jsonResp(w, http.StatusOK, map[string]any{"user": user.Public()})
}

func (a *API) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	out, ok := a.call(w, r, "", a.eps.Leaderboard, service.LeaderboardRequest{Limit: limit})
	if !ok {
		return
	}
	users := out.([]*db.User)
	public := make([]*db.User, 0, len(users))
	for _, u := range users {
		public = append(public, u.Public())
	}
	jsonResp(w, http.StatusOK, map[string]any{"users": public})
}

// --- Admin ---

func (a *API) handleAudit(w http.ResponseWriter, r *http.Request) {
	claims := a.requireAdmin(w, r)
	if claims == nil {
		return
	}
	if a.auditLog == nil {
		jsonError(w, "audit log disabled", http.StatusNotFound)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := a.auditLog.Recent(r.Context(), r.URL.Query().Get("action"), limit)
	if err != nil {
		a.internalError(w, "reading audit log", err)
		return
	}
	if entries == nil {
		entries = []*audit.Entry{}
	}
	jsonResp(w, http.StatusOK, map[string]any{"entries": entries})
}

// --- helpers ---

// requireAuth returns the bearer claims or writes 401.
func (a *API) requireAuth(w http.ResponseWriter, r *http.Request) *auth.Claims {
	claims := a.auth.ExtractClaims(r)
	if claims == nil {
		jsonError(w, "authentication required", http.StatusUnauthorized)
	}
	return claims
}

// requireAdmin checks the stored role, not the one carried by the token.
func (a *API) requireAdmin(w http.ResponseWriter, r *http.Request) *auth.Claims {
	claims := a.requireAuth(w, r)
	if claims == nil {
		return nil
	}
	u, err := a.db.GetUserByID(r.Context(), claims.UserID)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		a.internalError(w, "loading user", err)
		return nil
	}
	if err != nil || u.Role != db.RoleAdmin {
		jsonResp(w, http.StatusForbidden, map[string]string{"error": "admin role required", "kind": string(engine.Forbidden)})
		return nil
	}
	return claims
}

// call runs an endpoint with the caller in the context and writes the
// error response itself when the endpoint fails.
func (a *API) call(w http.ResponseWriter, r *http.Request, userID string, ep kit.Endpoint, req any) (any, bool) {
	ctx := r.Context()
	if kit.GetTransport(ctx) == "" {
		ctx = kit.WithTransport(ctx, kit.TransportHTTP)
	}
	if userID != "" {
		ctx = kit.WithUserID(ctx, userID)
	}
	out, err := ep(ctx, req)
	if err != nil {
		a.writeError(w, err)
		return nil, false
	}
	return out, true
}

func statusForKind(kind engine.Kind) int {
	switch kind {
	case engine.InvalidInput:
		return http.StatusBadRequest
	case engine.DebateNotFound:
		return http.StatusNotFound
	case engine.NotAParticipant, engine.SelfVote, engine.Forbidden:
		return http.StatusForbidden
	case engine.ContentRejected:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusConflict
	}
}

func (a *API) writeError(w http.ResponseWriter, err error) {
	var rej *engine.Rejection
	if errors.As(err, &rej) {
		msg := rej.Reason
		if msg == "" {
			msg = string(rej.Kind)
		}
		jsonResp(w, statusForKind(rej.Kind), map[string]string{"error": msg, "kind": string(rej.Kind)})
		return
	}
	a.internalError(w, "engine call", err)
}

func (a *API) internalError(w http.ResponseWriter, op string, err error) {
	a.logger.Error(op, "error", err)
	jsonError(w, "internal error", http.StatusInternalServerError)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonError(w, "request body too large", http.StatusRequestEntityTooLarge)
			return false
		}
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func jsonResp(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	jsonResp(w, status, map[string]string{"error": msg})
}
