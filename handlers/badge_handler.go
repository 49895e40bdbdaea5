package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"civicBadgesAPI/internal/badge"
	"civicBadgesAPI/middleware"
	"civicBadgesAPI/services"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type BadgeHandler struct {
	badgeService *services.BadgeService
	logger       *zap.Logger
}

func NewBadgeHandler(badgeService *services.BadgeService, logger *zap.Logger) *BadgeHandler {
	return &BadgeHandler{
		badgeService: badgeService,
		logger:       logger,
	}
}

// GetAllBadges returns every badge with the caller's earned status, grouped
// by category.
func (h *BadgeHandler) GetAllBadges(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := h.currentUser(ctx, w)
	if !ok {
		return
	}

	overview, err := h.badgeService.AllWithStatus(ctx, userID)
	if err != nil {
		h.respondWithServiceError(w, "get badges", err)
		return
	}
	respondWithJSON(w, http.StatusOK, overview)
}

func (h *BadgeHandler) GetMyBadges(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := h.currentUser(ctx, w)
	if !ok {
		return
	}

	earned, err := h.badgeService.Earned(ctx, userID)
	if err != nil {
		h.respondWithServiceError(w, "get earned badges", err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{
		"badges": earned,
		"count":  len(earned),
	})
}

func (h *BadgeHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := h.currentUser(ctx, w)
	if !ok {
		return
	}

	stats, err := h.badgeService.Stats(ctx, userID)
	if err != nil {
		h.respondWithServiceError(w, "get badge stats", err)
		return
	}
	respondWithJSON(w, http.StatusOK, stats)
}

func (h *BadgeHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := h.currentUser(ctx, w)
	if !ok {
		return
	}

	progress, err := h.badgeService.Progress(ctx, userID)
	if err != nil {
		h.respondWithServiceError(w, "get badge progress", err)
		return
	}
	respondWithJSON(w, http.StatusOK, progress)
}

// GetRecent lists earned badges the caller has not acknowledged.
func (h *BadgeHandler) GetRecent(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := h.currentUser(ctx, w)
	if !ok {
		return
	}

	recent, err := h.badgeService.Recent(ctx, userID)
	if err != nil {
		h.respondWithServiceError(w, "get recent badges", err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{
		"badges": recent,
		"count":  len(recent),
	})
}

// CheckBadges evaluates the caller now and returns what was newly awarded.
func (h *BadgeHandler) CheckBadges(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	userID, ok := h.currentUser(ctx, w)
	if !ok {
		return
	}

	awarded, err := h.badgeService.CheckAndAward(ctx, userID)
	if err != nil {
		h.respondWithServiceError(w, "check badges", err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{
		"new_badges": awarded,
		"count":      len(awarded),
	})
}

func (h *BadgeHandler) AcknowledgeAll(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := h.currentUser(ctx, w)
	if !ok {
		return
	}

	n, err := h.badgeService.Acknowledge(ctx, userID)
	if err != nil {
		h.respondWithServiceError(w, "acknowledge badges", err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"acknowledged": n})
}

func (h *BadgeHandler) AcknowledgeBadge(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID, ok := h.currentUser(ctx, w)
	if !ok {
		return
	}

	slug := mux.Vars(r)["slug"]
	if slug == "" {
		respondWithError(w, http.StatusBadRequest, "Badge slug is required")
		return
	}

	if err := h.badgeService.MarkNotified(ctx, userID, slug); err != nil {
		h.respondWithServiceError(w, "acknowledge badge", err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Badge acknowledged"})
}

func (h *BadgeHandler) currentUser(ctx context.Context, w http.ResponseWriter) (uuid.UUID, bool) {
	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return uuid.Nil, false
	}

	userID, err := h.badgeService.ResolveUser(ctx, clerkID)
	if err != nil {
		h.respondWithServiceError(w, "resolve user", err)
		return uuid.Nil, false
	}
	return userID, true
}

func (h *BadgeHandler) respondWithServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, badge.ErrUserNotFound):
		respondWithError(w, http.StatusNotFound, "User not found")
	case errors.Is(err, badge.ErrUnknownBadge):
		respondWithError(w, http.StatusNotFound, "Badge not found")
	case errors.Is(err, badge.ErrSnapshotUnavailable):
		h.logger.Warn("Activity snapshot unavailable", zap.String("op", op), zap.Error(err))
		respondWithError(w, http.StatusServiceUnavailable, "Activity data temporarily unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		respondWithError(w, http.StatusGatewayTimeout, "Request timed out")
	default:
		h.logger.Error("Badge request failed", zap.String("op", op), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "Failed to "+op)
	}
}
