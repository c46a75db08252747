package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/hazyhaar/debatehub/internal/auth"
	"github.com/hazyhaar/debatehub/internal/db"
	"github.com/hazyhaar/debatehub/internal/notify"
	"github.com/hazyhaar/debatehub/internal/verify"
)

const mailTimeout = 30 * time.Second

// --- Notifications ---

func (a *API) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	claims := a.requireAuth(w, r)
	if claims == nil {
		return
	}
	unread := r.URL.Query().Get("unread") == "true"
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	list, err := a.db.ListNotifications(r.Context(), claims.UserID, unread, limit)
	if err != nil {
		a.internalError(w, "listing notifications", err)
		return
	}
	if list == nil {
		list = []*db.Notification{}
	}
	jsonResp(w, http.StatusOK, map[string]any{"notifications": list})
}

func (a *API) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	claims := a.requireAuth(w, r)
	if claims == nil {
		return
	}
	err := a.db.MarkNotificationRead(r.Context(), claims.UserID, r.PathValue("id"))
	if errors.Is(err, db.ErrNotFound) {
		jsonError(w, "notification not found", http.StatusNotFound)
		return
	}
	if err != nil {
		a.internalError(w, "marking notification", err)
		return
	}
	jsonResp(w, http.StatusOK, map[string]bool{"success": true})
}

// --- Verification codes ---

// handleSendVerification always answers 200 once the email is well formed,
// so the endpoint does not reveal which addresses have accounts. Delivery
// happens after the response.
func (a *API) handleSendVerification(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	email := normalizeEmail(req.Email)
	if email == "" {
		jsonError(w, "email is required", http.StatusBadRequest)
		return
	}

	code, err := a.codes.Issue(email)
	if err != nil {
		a.internalError(w, "issuing code", err)
		return
	}
	a.metrics.CodeIssued()

	subject, body := notify.VerificationMessage(code)
	mailer, logger := a.mailer, a.logger
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), mailTimeout)
		defer cancel()
		if err := mailer.Send(ctx, email, subject, body); err != nil {
			logger.Error("sending verification mail", "error", err)
		}
	}()

	jsonResp(w, http.StatusOK, map[string]bool{"success": true})
}

func (a *API) checkCode(w http.ResponseWriter, email, code string) bool {
	err := a.codes.Verify(email, code)
	switch {
	case err == nil:
		a.metrics.CodeChecked("ok")
		return true
	case errors.Is(err, verify.ErrExpired):
		a.metrics.CodeChecked("expired")
		jsonError(w, "verification code expired", http.StatusGone)
	case errors.Is(err, verify.ErrTooManyAttempts):
		a.metrics.CodeChecked("locked")
		jsonError(w, "too many attempts, request a new code", http.StatusTooManyRequests)
	case errors.Is(err, verify.ErrMismatch):
		a.metrics.CodeChecked("mismatch")
		jsonError(w, "invalid verification code", http.StatusBadRequest)
	default:
		a.metrics.CodeChecked("missing")
		jsonError(w, "no verification code for this email", http.StatusNotFound)
	}
	return false
}

func (a *API) handleVerifyCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Email == "" || req.Code == "" {
		jsonError(w, "email and code are required", http.StatusBadRequest)
		return
	}
	if !a.checkCode(w, normalizeEmail(req.Email), req.Code) {
		return
	}
	jsonResp(w, http.StatusOK, map[string]bool{"success": true})
}

func (a *API) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Code     string `json:"code"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Email == "" || req.Code == "" || req.Password == "" {
		jsonError(w, "email, code and password are required", http.StatusBadRequest)
		return
	}
	if len(req.Password) < auth.MinPasswordLength {
		jsonError(w, "password must be at least 8 characters", http.StatusBadRequest)
		return
	}
	email := normalizeEmail(req.Email)
	if !a.checkCode(w, email, req.Code) {
		return
	}

	hash, err := a.auth.HashPassword(req.Password)
	if err != nil {
		a.internalError(w, "hashing password", err)
		return
	}
	err = a.db.UpdatePassword(r.Context(), email, hash)
	if errors.Is(err, db.ErrNotFound) {
		jsonError(w, "user not found", http.StatusNotFound)
		return
	}
	if err != nil {
		a.internalError(w, "updating password", err)
		return
	}
	a.logger.Info("password reset", "email", email)
	jsonResp(w, http.StatusOK, map[string]bool{"success": true})
}
