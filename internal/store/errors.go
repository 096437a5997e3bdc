package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned on unique violations and stale versions.
	ErrConflict = errors.New("conflict")

	// ErrAlreadyCompleted is returned when a completed progress row is mutated.
	ErrAlreadyCompleted = errors.New("already completed")

	// ErrHintsExhausted is returned when no further hint exists.
	ErrHintsExhausted = errors.New("no hints left")
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

func nullTime(value *time.Time) sql.NullTime {
	if value == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *value, Valid: true}
}

func timePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time
	return &t
}

type rowScanner interface {
	Scan(dest ...any) error
}
