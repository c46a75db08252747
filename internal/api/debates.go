package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hazyhaar/debatehub/internal/db"
	"github.com/hazyhaar/debatehub/internal/engine"
	"github.com/hazyhaar/debatehub/internal/export"
	"github.com/hazyhaar/debatehub/internal/service"
)

// RegisterDebateRoutes adds the debate lifecycle, argument and vote endpoints.
func (a *API) RegisterDebateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/debates", a.handleListDebates)
	mux.HandleFunc("POST /api/debates", a.handleCreateDebate)
	mux.HandleFunc("GET /api/debates/{id}", a.handleGetDebate)
	mux.HandleFunc("GET /api/debates/{id}/round", a.handleCurrentRound)
	mux.HandleFunc("POST /api/debates/{id}/activate", a.handleActivate)
	mux.HandleFunc("POST /api/debates/{id}/join", a.handleJoin)
	mux.HandleFunc("POST /api/debates/{id}/arguments", a.handleSubmitArgument)
	mux.HandleFunc("POST /api/debates/{id}/vote", a.handleVote)
	mux.HandleFunc("POST /api/debates/{id}/resolve", a.handleResolve)
	mux.HandleFunc("POST /api/debates/{id}/close", a.handleClose)
	mux.HandleFunc("GET /api/debates/{id}/export", a.handleExport)
}

func (a *API) handleListDebates(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	switch status {
	case "", db.StatusUpcoming, db.StatusActive, db.StatusCompleted:
	default:
		jsonError(w, "status must be upcoming, active or completed", http.StatusBadRequest)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	debates, err := a.db.ListDebates(r.Context(), status, limit)
	if err != nil {
		a.internalError(w, "listing debates", err)
		return
	}
	if debates == nil {
		debates = []*db.Debate{}
	}
	jsonResp(w, http.StatusOK, map[string]any{"debates": debates})
}

func (a *API) handleCreateDebate(w http.ResponseWriter, r *http.Request) {
	claims := a.requireAuth(w, r)
	if claims == nil {
		return
	}
	var req struct {
		Title       string     `json:"title"`
		Category    string     `json:"category"`
		Description string     `json:"description"`
		Activate    *bool      `json:"activate"`
		StartTime   *time.Time `json:"start_time"`
		EndTime     *time.Time `json:"end_time"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	in := engine.CreateDebateInput{
		ActorID:     claims.UserID,
		Title:       req.Title,
		Category:    req.Category,
		Description: req.Description,
		Activate:    req.Activate == nil || *req.Activate,
		EndTime:     req.EndTime,
	}
	if req.StartTime != nil {
		in.StartTime = *req.StartTime
	}

	out, ok := a.call(w, r, claims.UserID, a.eps.CreateDebate, in)
	if !ok {
		return
	}
	jsonResp(w, http.StatusCreated, map[string]any{"debate": out})
}

func (a *API) handleGetDebate(w http.ResponseWriter, r *http.Request) {
	out, ok := a.call(w, r, "", a.eps.GetDebate, service.DebateRequest{DebateID: r.PathValue("id")})
	if !ok {
		return
	}
	jsonResp(w, http.StatusOK, out)
}

func (a *API) handleCurrentRound(w http.ResponseWriter, r *http.Request) {
	out, ok := a.call(w, r, "", a.eps.CurrentRound, service.DebateRequest{DebateID: r.PathValue("id")})
	if !ok {
		return
	}
	jsonResp(w, http.StatusOK, out)
}

func (a *API) handleActivate(w http.ResponseWriter, r *http.Request) {
	claims := a.requireAuth(w, r)
	if claims == nil {
		return
	}
	out, ok := a.call(w, r, claims.UserID, a.eps.ActivateDebate,
		service.ActorRequest{ActorID: claims.UserID, DebateID: r.PathValue("id")})
	if !ok {
		return
	}
	jsonResp(w, http.StatusOK, map[string]any{"debate": out})
}

func (a *API) handleJoin(w http.ResponseWriter, r *http.Request) {
	claims := a.requireAuth(w, r)
	if claims == nil {
		return
	}
	var req struct {
		Side string `json:"side"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	out, ok := a.call(w, r, claims.UserID, a.eps.JoinDebate, service.JoinRequest{
		DebateID: r.PathValue("id"),
		UserID:   claims.UserID,
		Side:     db.Side(req.Side),
	})
	if !ok {
		return
	}
	jsonResp(w, http.StatusOK, map[string]any{"debate": out})
}

func (a *API) handleSubmitArgument(w http.ResponseWriter, r *http.Request) {
	claims := a.requireAuth(w, r)
	if claims == nil {
		return
	}
	var req struct {
		Content string `json:"content"`
		Round   int    `json:"round"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	out, ok := a.call(w, r, claims.UserID, a.eps.SubmitArgument, engine.SubmitArgumentInput{
		DebateID: r.PathValue("id"),
		UserID:   claims.UserID,
		Content:  req.Content,
		Round:    req.Round,
	})
	if !ok {
		return
	}
	jsonResp(w, http.StatusCreated, out)
}

func (a *API) handleVote(w http.ResponseWriter, r *http.Request) {
	claims := a.requireAuth(w, r)
	if claims == nil {
		return
	}
	var req struct {
		Side string `json:"side"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	out, ok := a.call(w, r, claims.UserID, a.eps.CastVote, engine.CastVoteInput{
		DebateID: r.PathValue("id"),
		VoterID:  claims.UserID,
		Side:     db.Side(req.Side),
	})
	if !ok {
		return
	}
	jsonResp(w, http.StatusOK, out)
}

func (a *API) handleResolve(w http.ResponseWriter, r *http.Request) {
	claims := a.requireAdmin(w, r)
	if claims == nil {
		return
	}
	out, ok := a.call(w, r, claims.UserID, a.eps.ResolveWinner, service.DebateRequest{DebateID: r.PathValue("id")})
	if !ok {
		return
	}
	jsonResp(w, http.StatusOK, out)
}

func (a *API) handleClose(w http.ResponseWriter, r *http.Request) {
	claims := a.requireAuth(w, r)
	if claims == nil {
		return
	}
	out, ok := a.call(w, r, claims.UserID, a.eps.CloseDebate,
		service.ActorRequest{ActorID: claims.UserID, DebateID: r.PathValue("id")})
	if !ok {
		return
	}
	jsonResp(w, http.StatusOK, out)
}

func (a *API) handleExport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := a.db.GetDebate(r.Context(), id); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			jsonResp(w, http.StatusNotFound, map[string]string{"error": "debate not found", "kind": string(engine.DebateNotFound)})
			return
		}
		a.internalError(w, "loading debate", err)
		return
	}

	w.Header().Set("Content-Type", "application/jsonl")
	w.Header().Set("Content-Disposition", `attachment; filename="debate-`+sanitizeFilename(id)+`.jsonl"`)
	if err := export.NewExporter(a.db).ExportDebate(r.Context(), w, id); err != nil {
		// Headers are gone; the truncated stream is all the client gets.
		a.logger.Error("exporting debate", "debate_id", id, "error", err)
	}
}

func sanitizeFilename(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '-' || r == '_' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			return r
		}
		return -1
	}, s)
}
