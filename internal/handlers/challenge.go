package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hintquest/apiserver/internal/services"
	"github.com/hintquest/apiserver/types"
)

// ChallengeHandler serves challenge authoring and gameplay routes.
type ChallengeHandler struct {
	users      *services.UserService
	challenges *services.ChallengeService
	gameplay   *services.GameplayService
	progress   *services.ProgressService
	index      *services.ChallengeIndex
	logger     *slog.Logger
}

func NewChallengeHandler(
	users *services.UserService,
	challenges *services.ChallengeService,
	gameplay *services.GameplayService,
	progress *services.ProgressService,
	index *services.ChallengeIndex,
	logger *slog.Logger,
) *ChallengeHandler {
	return &ChallengeHandler{
		users:      users,
		challenges: challenges,
		gameplay:   gameplay,
		progress:   progress,
		index:      index,
		logger:     logger,
	}
}

// ChallengeRouter registers challenge routes. Every route requires a token.
func ChallengeRouter(r chi.Router, handler *ChallengeHandler, authMiddleware func(http.Handler) http.Handler) {
	r.Use(authMiddleware)

	r.Get("/", handler.ListChallenges)
	r.Post("/", handler.CreateChallenge)
	r.Get("/suggest", handler.Suggest)
	r.Get("/mine", handler.ListOwned)
	r.Route("/{challengeID}", func(r chi.Router) {
		r.Get("/", handler.GetChallenge)
		r.Patch("/", handler.UpdateChallenge)
		r.Delete("/", handler.DeleteChallenge)
		r.Post("/revise", handler.ReviseChallenge)
		r.Get("/hint", handler.PreviewHint)
		r.Post("/hint", handler.RequestHint)
		r.Post("/submit", handler.Submit)
		r.Post("/reward", handler.ClaimReward)
		r.Get("/stats", handler.Stats)
	})
}

func (h *ChallengeHandler) ListChallenges(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	items, total, err := h.challenges.ListApproved(r.Context(), offset, limit)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ListResponse[types.ChallengeSummary]{Items: items, Page: page, Limit: limit, Total: total})
}

func (h *ChallengeHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	items, err := h.index.Suggest(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *ChallengeHandler) ListOwned(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	items, total, err := h.challenges.ListOwned(r.Context(), actor, offset, limit)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ListResponse[types.Challenge]{Items: items, Page: page, Limit: limit, Total: total})
}

// GetChallenge returns the full record to its owner and admins, and the
// player projection to everyone else.
func (h *ChallengeHandler) GetChallenge(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	challenge, err := h.challenges.Get(r.Context(), actor, chi.URLParam(r, "challengeID"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if actor.IsAdmin() || actor.ExternalID == challenge.OwnerExternalID {
		writeJSON(w, http.StatusOK, challenge)
		return
	}
	writeJSON(w, http.StatusOK, challenge.Summary())
}

func (h *ChallengeHandler) CreateChallenge(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req ChallengeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	reward, err := decodeReward(req.Reward)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	created, err := h.challenges.Create(r.Context(), actor, services.ChallengeDraft{
		Name:        req.Name,
		Description: req.Description,
		AuthorName:  req.AuthorName,
		Answer:      req.Answer,
		Difficulty:  req.Difficulty,
		Reward:      reward,
		Hints:       req.Hints,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *ChallengeHandler) UpdateChallenge(w http.ResponseWriter, r *http.Request) {
	h.patch(w, r, h.challenges.Update)
}

func (h *ChallengeHandler) ReviseChallenge(w http.ResponseWriter, r *http.Request) {
	h.patch(w, r, h.challenges.ReviseApprovedChallenge)
}

type patchFunc func(ctx context.Context, actor types.User, id string, patch services.ChallengePatch) (types.Challenge, error)

func (h *ChallengeHandler) patch(w http.ResponseWriter, r *http.Request, apply patchFunc) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req ChallengePatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	patch, err := req.toPatch()
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	updated, err := apply(r.Context(), actor, chi.URLParam(r, "challengeID"), patch)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *ChallengeHandler) DeleteChallenge(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	if err := h.challenges.Remove(r.Context(), actor, chi.URLParam(r, "challengeID")); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ChallengeHandler) PreviewHint(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.subject(w, r)
	if !ok {
		return
	}
	preview, err := h.gameplay.PreviewHint(r.Context(), userID, chi.URLParam(r, "challengeID"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, preview)
}

func (h *ChallengeHandler) RequestHint(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.subject(w, r)
	if !ok {
		return
	}
	hint, err := h.gameplay.RequestHint(r.Context(), userID, chi.URLParam(r, "challengeID"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, hint)
}

// Submit checks an answer. A correct answer whose reward failed still
// responds 200; the failure is reported in reward_error.
func (h *ChallengeHandler) Submit(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.subject(w, r)
	if !ok {
		return
	}
	var req SubmitRequest
	if err := decodeJSON(w, r, &req); err != nil || strings.TrimSpace(req.Answer) == "" {
		writeError(w, http.StatusBadRequest, "an answer is required")
		return
	}
	result, err := h.gameplay.SubmitAnswer(r.Context(), userID, chi.URLParam(r, "challengeID"), req.Answer)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	resp := SubmitResponse{SubmitResult: result}
	if result.RewardErr != nil {
		_, resp.RewardError = statusFor(result.RewardErr)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *ChallengeHandler) ClaimReward(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.subject(w, r)
	if !ok {
		return
	}
	record, err := h.gameplay.ClaimReward(r.Context(), userID, chi.URLParam(r, "challengeID"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *ChallengeHandler) Stats(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	challenge, err := h.challenges.Get(r.Context(), actor, chi.URLParam(r, "challengeID"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	stats, err := h.progress.ChallengeStats(r.Context(), challenge.ID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *ChallengeHandler) subject(w http.ResponseWriter, r *http.Request) (int, bool) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return 0, false
	}
	return userID, true
}

func (h *ChallengeHandler) actor(w http.ResponseWriter, r *http.Request) (types.User, bool) {
	user, err := currentUser(r, h.users)
	if err != nil {
		if errors.Is(err, services.ErrStorage) {
			writeServiceError(w, r, h.logger, err)
			return types.User{}, false
		}
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return types.User{}, false
	}
	return user, true
}

// ChallengeRequest is the payload for creating a challenge.
type ChallengeRequest struct {
	Name        string                `json:"name"`
	Description string                `json:"description"`
	AuthorName  string                `json:"author_name"`
	Answer      string                `json:"answer"`
	Difficulty  int                   `json:"difficulty"`
	Hints       []string              `json:"hints"`
	Reward      *types.RewardDocument `json:"reward"`
}

// ChallengePatchRequest is a partial edit. Omitted fields are unchanged.
type ChallengePatchRequest struct {
	Name        *string               `json:"name"`
	Description *string               `json:"description"`
	AuthorName  *string               `json:"author_name"`
	Answer      *string               `json:"answer"`
	Difficulty  *int                  `json:"difficulty"`
	Hints       *[]string             `json:"hints"`
	Reward      *types.RewardDocument `json:"reward"`
}

func (p ChallengePatchRequest) toPatch() (services.ChallengePatch, error) {
	reward, err := decodeReward(p.Reward)
	if err != nil {
		return services.ChallengePatch{}, err
	}
	return services.ChallengePatch{
		Name:        p.Name,
		Description: p.Description,
		AuthorName:  p.AuthorName,
		Answer:      p.Answer,
		Difficulty:  p.Difficulty,
		Hints:       p.Hints,
		Reward:      reward,
	}, nil
}

type SubmitRequest struct {
	Answer string `json:"answer"`
}

type SubmitResponse struct {
	services.SubmitResult
	RewardError string `json:"reward_error,omitempty"`
}

func decodeReward(doc *types.RewardDocument) (types.Reward, error) {
	if doc == nil {
		return nil, nil
	}
	reward, err := doc.Decode()
	if err != nil {
		return nil, services.ErrUnknownRewardType
	}
	return reward, nil
}
