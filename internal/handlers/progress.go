package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hintquest/apiserver/internal/services"
	"github.com/hintquest/apiserver/types"
)

const defaultLeaderboardSize = 10

// ProgressHandler serves per-player progress and the leaderboard.
type ProgressHandler struct {
	progress  *services.ProgressService
	rewards   *services.RewardDispatcher
	announcer *services.Announcer
	logger    *slog.Logger
}

func NewProgressHandler(progress *services.ProgressService, rewards *services.RewardDispatcher, announcer *services.Announcer, logger *slog.Logger) *ProgressHandler {
	return &ProgressHandler{progress: progress, rewards: rewards, announcer: announcer, logger: logger}
}

// ProgressRouter registers /progress routes.
func ProgressRouter(r chi.Router, handler *ProgressHandler, authMiddleware func(http.Handler) http.Handler) {
	r.With(authMiddleware).Get("/me", handler.Mine)
}

// ProgressSummary is the profile view of a player.
type ProgressSummary struct {
	Totals        types.UserTotals     `json:"totals"`
	Progress      []types.Progress     `json:"progress"`
	Rewards       []types.RewardRecord `json:"rewards"`
	Announcements []types.Announcement `json:"announcements"`
}

func (h *ProgressHandler) Mine(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	ctx := r.Context()

	var summary ProgressSummary
	if summary.Totals, err = h.progress.UserTotals(ctx, userID); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if summary.Progress, err = h.progress.ListByUser(ctx, userID); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if summary.Rewards, err = h.rewards.ListByUser(ctx, userID); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if summary.Announcements, err = h.announcer.ListByUser(ctx, userID); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Leaderboard is public.
func (h *ProgressHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit := defaultLeaderboardSize
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	entries, err := h.progress.Leaderboard(r.Context(), limit)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
