package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/hintquest/apiserver/internal/services"
	"github.com/hintquest/apiserver/types"
)

const (
	defaultPage   = 1
	defaultLimit  = 10
	maxLimit      = 100
	maxBodyBytes  = 1 << 20
	maxImportSize = 8 << 20
)

type contextKey string

const contextSubjectKey contextKey = "sub"

// ErrorResponse is a simple error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ListResponse is the paginated list response payload.
type ListResponse[T any] struct {
	Items []T `json:"items"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

func userIDFromContext(ctx context.Context) (int, error) {
	value := ctx.Value(contextSubjectKey)
	switch subject := value.(type) {
	case int:
		if subject < 1 {
			return 0, errors.New("invalid subject")
		}
		return subject, nil
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(subject))
		if err != nil || parsed < 1 {
			return 0, errors.New("invalid subject")
		}
		return parsed, nil
	default:
		return 0, errors.New("missing subject")
	}
}

// currentUser loads the account behind the request token. A token whose
// account was deleted is treated as unauthenticated.
func currentUser(r *http.Request, users *services.UserService) (types.User, error) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		return types.User{}, err
	}
	return users.GetByID(r.Context(), userID)
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeServiceError maps the service error taxonomy to a status code and a
// short message. Unexpected failures are logged and reported generically.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, message := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	}
	writeError(w, status, message)
}

func statusFor(err error) (int, string) {
	var validation *services.ValidationError
	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, validation.Error()
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest, "invalid request"
	case errors.Is(err, services.ErrPermissionDenied):
		return http.StatusForbidden, "you are not allowed to do that"
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, services.ErrInvalidTransition):
		return http.StatusConflict, "that action is not possible in the current state"
	case errors.Is(err, services.ErrAlreadyCompleted):
		return http.StatusConflict, "challenge already completed"
	case errors.Is(err, services.ErrHintsExhausted):
		return http.StatusConflict, "no hints left"
	case errors.Is(err, services.ErrConflict):
		return http.StatusConflict, "already exists or was changed concurrently"
	case errors.Is(err, services.ErrConfirmationExpired):
		return http.StatusGone, "confirmation expired"
	case errors.Is(err, services.ErrMissingEmail):
		return http.StatusUnprocessableEntity, "set an email address to receive badges"
	case errors.Is(err, services.ErrUnknownRewardType):
		return http.StatusUnprocessableEntity, "unknown reward type"
	case errors.Is(err, services.ErrExternalService):
		return http.StatusBadGateway, "reward service unavailable, try again later"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "request timed out"
	default:
		return http.StatusInternalServerError, "something went wrong"
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func parsePagination(r *http.Request) (page, limit, offset int, err error) {
	page = defaultPage
	limit = defaultLimit

	if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil || page < 1 {
			return 0, 0, 0, errors.New("invalid page")
		}
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return 0, 0, 0, errors.New("invalid limit")
		}
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return page, limit, (page - 1) * limit, nil
}

// Healthz reports liveness.
func Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
