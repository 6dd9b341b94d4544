package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"github.com/shaynemeyer/radio-calico/internal/ratings"
)

// Client-facing validation messages for rating submissions.
const (
	msgFieldsRequired = "songId, rating, and userSession are required"
	msgRatingRange    = "Rating must be 1 (thumbs up) or -1 (thumbs down)"
)

// Handlers contains HTTP handlers for the rating API.
type Handlers struct {
	store   ratings.Store
	logger  *log.Logger
	limiter *rate.Limiter
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(store ratings.Store, logger *log.Logger, limiter *rate.Limiter) *Handlers {
	return &Handlers{
		store:   store,
		logger:  logger,
		limiter: limiter,
	}
}

// rateRequest is the POST /api/songs/rate body.
type rateRequest struct {
	SongID      string `json:"songId"`
	Rating      int    `json:"rating"`
	UserSession string `json:"userSession"`
}

// RateSong handles POST /api/songs/rate.
func (h *Handlers) RateSong(w http.ResponseWriter, r *http.Request) {
	if !h.limiter.Allow() {
		respondError(w, http.StatusTooManyRequests, "too many rating submissions")
		return
	}

	var req rateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, msgFieldsRequired)
		return
	}

	if req.SongID == "" || req.Rating == 0 || req.UserSession == "" {
		respondError(w, http.StatusBadRequest, msgFieldsRequired)
		return
	}
	if req.Rating != ratings.ThumbsUp && req.Rating != ratings.ThumbsDown {
		respondError(w, http.StatusBadRequest, msgRatingRange)
		return
	}

	err := h.store.SubmitRating(r.Context(), req.SongID, req.UserSession, req.Rating)
	switch {
	case errors.Is(err, ratings.ErrValidation):
		respondError(w, http.StatusBadRequest, msgFieldsRequired)
		return
	case err != nil:
		h.logger.Error("rating submission failed", "err", err)
		respondError(w, http.StatusInternalServerError, "failed to save rating")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"songId":  req.SongID,
		"rating":  req.Rating,
	})
}

// SongRatings handles GET /api/songs/{songId}/ratings.
func (h *Handlers) SongRatings(w http.ResponseWriter, r *http.Request) {
	songID := chi.URLParam(r, "songId")

	agg, err := h.store.Aggregate(r.Context(), songID)
	if err != nil {
		h.logger.Error("aggregate lookup failed", "err", err)
		respondError(w, http.StatusInternalServerError, "failed to load ratings")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"songId":        songID,
		"thumbs_up":     agg.ThumbsUp,
		"thumbs_down":   agg.ThumbsDown,
		"total_ratings": agg.Total,
	})
}

// UserRating handles GET /api/songs/{songId}/user-rating/{userSession}.
func (h *Handlers) UserRating(w http.ResponseWriter, r *http.Request) {
	songID := chi.URLParam(r, "songId")
	userSession := chi.URLParam(r, "userSession")

	vote, ok, err := h.store.ListenerVote(r.Context(), songID, userSession)
	if err != nil {
		h.logger.Error("user rating lookup failed", "err", err)
		respondError(w, http.StatusInternalServerError, "failed to load user rating")
		return
	}

	var rating *int
	if ok {
		rating = &vote
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"songId":      songID,
		"userSession": userSession,
		"rating":      rating,
	})
}

// userRequest is the POST /api/users body.
type userRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// CreateUser handles POST /api/users.
func (h *Handlers) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "name and email are required")
		return
	}

	user, err := h.store.CreateUser(r.Context(), req.Name, req.Email)
	switch {
	case errors.Is(err, ratings.ErrValidation):
		respondError(w, http.StatusBadRequest, "name and email are required")
		return
	case err != nil:
		// Matches the original behavior: constraint violations (duplicate
		// email) surface as 400.
		respondError(w, http.StatusBadRequest, "failed to create user")
		return
	}

	respondJSON(w, http.StatusOK, user)
}

// ListUsers handles GET /api/users.
func (h *Handlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers(r.Context())
	if err != nil {
		h.logger.Error("user listing failed", "err", err)
		respondError(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	respondJSON(w, http.StatusOK, users)
}

// Health handles GET /health. The response reports overall status and
// database reachability; a failed ping degrades to 503.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"database":  "connected",
	}

	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.Warn("health check failed", "err", err)
		health["status"] = "unhealthy"
		health["database"] = "disconnected"
		respondJSON(w, http.StatusServiceUnavailable, health)
		return
	}

	respondJSON(w, http.StatusOK, health)
}

// respondJSON writes v as a JSON response body.
func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// respondError writes the structured error body used across the API.
func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
