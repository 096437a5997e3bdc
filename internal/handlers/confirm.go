package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hintquest/apiserver/internal/services"
)

// ConfirmationHandler commits or cancels pending destructive operations.
type ConfirmationHandler struct {
	confirmations *services.Confirmations
	logger        *slog.Logger
}

func NewConfirmationHandler(confirmations *services.Confirmations, logger *slog.Logger) *ConfirmationHandler {
	return &ConfirmationHandler{confirmations: confirmations, logger: logger}
}

// ConfirmationRouter registers /confirmations routes.
func ConfirmationRouter(r chi.Router, handler *ConfirmationHandler, authMiddleware func(http.Handler) http.Handler) {
	r.Use(authMiddleware)
	r.Post("/{token}", handler.Confirm)
	r.Delete("/{token}", handler.Cancel)
}

func (h *ConfirmationHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	result, err := h.confirmations.Confirm(r.Context(), userID, chi.URLParam(r, "token"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *ConfirmationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := h.confirmations.Cancel(userID, chi.URLParam(r, "token")); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
