package handlers

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hintquest/apiserver/internal/services"
	"github.com/hintquest/apiserver/types"
)

// AdminHandler serves moderation and maintenance routes.
type AdminHandler struct {
	users         *services.UserService
	challenges    *services.ChallengeService
	approvals     *services.ApprovalService
	progress      *services.ProgressService
	confirmations *services.Confirmations
	catalog       *services.Catalog
	logger        *slog.Logger
}

// AdminDeps groups the services behind the admin routes.
type AdminDeps struct {
	Users         *services.UserService
	Challenges    *services.ChallengeService
	Approvals     *services.ApprovalService
	Progress      *services.ProgressService
	Confirmations *services.Confirmations
	Catalog       *services.Catalog
}

func NewAdminHandler(deps AdminDeps, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		users:         deps.Users,
		challenges:    deps.Challenges,
		approvals:     deps.Approvals,
		progress:      deps.Progress,
		confirmations: deps.Confirmations,
		catalog:       deps.Catalog,
		logger:        logger,
	}
}

// AdminRouter registers /admin routes behind token auth and the admin check.
func AdminRouter(r chi.Router, handler *AdminHandler, authMiddleware func(http.Handler) http.Handler) {
	r.Use(authMiddleware, handler.requireAdmin)

	r.Get("/challenges", handler.ListChallenges)
	r.Route("/challenges/{challengeID}", func(r chi.Router) {
		r.Post("/approve", handler.Approve)
		r.Post("/reject", handler.Reject)
		r.Post("/disable", handler.Disable)
		r.Post("/reenable", handler.Reenable)
	})
	r.Route("/users/{userID}", func(r chi.Router) {
		r.Put("/role", handler.SetRole)
		r.Post("/reset", handler.ResetProgress)
		r.Delete("/", handler.DeleteUser)
	})
	r.Post("/catalog/import", handler.ImportCatalog)
	r.Get("/catalog/export", handler.ExportCatalog)
	r.Post("/catalog/reload", handler.ReloadCatalog)
	r.Post("/catalog/save", handler.SaveCatalog)
}

type adminKey struct{}

func (h *AdminHandler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := currentUser(r, h.users)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !user.IsAdmin() {
			writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		ctx := context.WithValue(r.Context(), adminKey{}, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func adminFromContext(ctx context.Context) types.User {
	user, _ := ctx.Value(adminKey{}).(types.User)
	return user
}

func (h *AdminHandler) ListChallenges(w http.ResponseWriter, r *http.Request) {
	page, limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var states []types.ChallengeState
	if raw := strings.TrimSpace(r.URL.Query().Get("state")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				states = append(states, types.ChallengeState(part))
			}
		}
	}
	items, total, err := h.challenges.ListAll(r.Context(), adminFromContext(r.Context()), states, offset, limit)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ListResponse[types.Challenge]{Items: items, Page: page, Limit: limit, Total: total})
}

func (h *AdminHandler) Approve(w http.ResponseWriter, r *http.Request) {
	challenge, err := h.approvals.Approve(r.Context(), adminFromContext(r.Context()), chi.URLParam(r, "challengeID"))
	h.respondTransition(w, r, challenge, err)
}

func (h *AdminHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var req ReasonRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	challenge, err := h.approvals.Reject(r.Context(), adminFromContext(r.Context()), chi.URLParam(r, "challengeID"), req.Reason)
	h.respondTransition(w, r, challenge, err)
}

func (h *AdminHandler) Disable(w http.ResponseWriter, r *http.Request) {
	var req ReasonRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	challenge, err := h.approvals.Disable(r.Context(), adminFromContext(r.Context()), chi.URLParam(r, "challengeID"), req.Reason)
	h.respondTransition(w, r, challenge, err)
}

func (h *AdminHandler) Reenable(w http.ResponseWriter, r *http.Request) {
	challenge, err := h.approvals.Reenable(r.Context(), adminFromContext(r.Context()), chi.URLParam(r, "challengeID"))
	h.respondTransition(w, r, challenge, err)
}

func (h *AdminHandler) respondTransition(w http.ResponseWriter, r *http.Request, challenge types.Challenge, err error) {
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, challenge)
}

func (h *AdminHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	targetID, ok := parseUserID(w, r)
	if !ok {
		return
	}
	var req RoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	user, err := h.users.SetRole(r.Context(), adminFromContext(r.Context()), targetID, req.Role)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// ResetProgress starts a confirmation; nothing is deleted until the token
// is confirmed.
func (h *AdminHandler) ResetProgress(w http.ResponseWriter, r *http.Request) {
	targetID, ok := parseUserID(w, r)
	if !ok {
		return
	}
	var req ResetRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request")
			return
		}
	}
	if _, err := h.users.GetByID(r.Context(), targetID); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	actor := adminFromContext(r.Context())
	var challengeID *string
	if id := strings.TrimSpace(req.ChallengeID); id != "" {
		challengeID = &id
	}
	pending := h.confirmations.Begin(actor.ID, "reset_progress", func(ctx context.Context) (any, error) {
		current, err := h.confirmingActor(ctx, actor.ID)
		if err != nil {
			return nil, err
		}
		removed, err := h.progress.Reset(ctx, current, targetID, challengeID)
		if err != nil {
			return nil, err
		}
		return map[string]int{"removed": removed}, nil
	})
	writeJSON(w, http.StatusAccepted, pending)
}

// DeleteUser starts a confirmation for removing an account and its history.
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	targetID, ok := parseUserID(w, r)
	if !ok {
		return
	}
	if _, err := h.users.GetByID(r.Context(), targetID); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	actor := adminFromContext(r.Context())
	pending := h.confirmations.Begin(actor.ID, "delete_user", func(ctx context.Context) (any, error) {
		current, err := h.confirmingActor(ctx, actor.ID)
		if err != nil {
			return nil, err
		}
		if err := h.users.DeleteUser(ctx, current, targetID); err != nil {
			return nil, err
		}
		return map[string]int{"deleted": targetID}, nil
	})
	writeJSON(w, http.StatusAccepted, pending)
}

// confirmingActor reloads the admin who began a confirmation, so a demotion
// or deletion in the meantime applies when the token is committed.
func (h *AdminHandler) confirmingActor(ctx context.Context, id int) (types.User, error) {
	actor, err := h.users.GetByID(ctx, id)
	if errors.Is(err, services.ErrNotFound) {
		return types.User{}, services.ErrPermissionDenied
	}
	return actor, err
}

func (h *AdminHandler) ImportCatalog(w http.ResponseWriter, r *http.Request) {
	count, err := h.catalog.Import(r.Context(), http.MaxBytesReader(w, r.Body, maxImportSize))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, CatalogResponse{Challenges: count})
}

func (h *AdminHandler) ExportCatalog(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if _, err := h.catalog.Export(r.Context(), &buf); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.Warn("catalog export write failed", "error", err)
	}
}

func (h *AdminHandler) ReloadCatalog(w http.ResponseWriter, r *http.Request) {
	count, err := h.catalog.Load(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, CatalogResponse{Challenges: count})
}

func (h *AdminHandler) SaveCatalog(w http.ResponseWriter, r *http.Request) {
	count, err := h.catalog.Save(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, CatalogResponse{Challenges: count})
}

func parseUserID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "userID"))
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return 0, false
	}
	return id, true
}

type ReasonRequest struct {
	Reason string `json:"reason"`
}

type RoleRequest struct {
	Role string `json:"role"`
}

type ResetRequest struct {
	ChallengeID string `json:"challenge_id"`
}

type CatalogResponse struct {
	Challenges int `json:"challenges"`
}
