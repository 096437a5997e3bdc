package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/hintquest/apiserver/internal/store"
)

// Error taxonomy shared by every service. Handlers map these to status codes.
var (
	ErrValidation          = errors.New("invalid input")
	ErrPermissionDenied    = errors.New("permission denied")
	ErrNotFound            = errors.New("not found")
	ErrInvalidTransition   = errors.New("invalid state transition")
	ErrAlreadyCompleted    = errors.New("challenge already completed")
	ErrHintsExhausted      = errors.New("no hints left")
	ErrExternalService     = errors.New("external service failed")
	ErrStorage             = errors.New("storage failure")
	ErrMissingEmail        = errors.New("email required for badge rewards")
	ErrUnknownRewardType   = errors.New("unknown reward type")
	ErrConflict            = errors.New("conflict")
	ErrConfirmationExpired = errors.New("confirmation expired")
)

// ValidationError reports malformed input on a single field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// Is makes every ValidationError match ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

var taxonomy = []error{
	ErrValidation,
	ErrPermissionDenied,
	ErrNotFound,
	ErrInvalidTransition,
	ErrAlreadyCompleted,
	ErrHintsExhausted,
	ErrExternalService,
	ErrStorage,
	ErrMissingEmail,
	ErrUnknownRewardType,
	ErrConflict,
	ErrConfirmationExpired,
}

// translate maps repository errors onto the service taxonomy.
// Unknown failures become ErrStorage with the cause kept for logging.
func translate(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, store.ErrConflict):
		return ErrConflict
	case errors.Is(err, store.ErrAlreadyCompleted):
		return ErrAlreadyCompleted
	case errors.Is(err, store.ErrHintsExhausted):
		return ErrHintsExhausted
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	}
	for _, known := range taxonomy {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", ErrStorage, err)
}
