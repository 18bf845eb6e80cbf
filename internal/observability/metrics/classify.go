package metrics

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	lifecycledomain "github.com/smallbiznis/numberpool/internal/lifecycle/domain"
	"gorm.io/gorm"
)

const (
	ReasonDeadlineExceeded     = "deadline_exceeded"
	ReasonDBLockTimeout        = "db_lock_timeout"
	ReasonSerializationFailure = "serialization_failure"
	ReasonUniqueViolation      = "unique_violation"
	ReasonNotFound             = "not_found"
	ReasonInvalidTransition    = "invalid_transition"
	ReasonValidation           = "validation"
	ReasonStorage              = "storage"
	ReasonUnknown              = "unknown"
)

// ClassifyReason maps lifecycle and storage errors to low-cardinality reasons.
func ClassifyReason(err error) string {
	switch {
	case err == nil:
		return ReasonUnknown
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ReasonDeadlineExceeded
	case hasPGCode(err, "55P03"):
		return ReasonDBLockTimeout
	case hasPGCode(err, "40001"):
		return ReasonSerializationFailure
	case errors.Is(err, gorm.ErrDuplicatedKey), hasPGCode(err, "23505"):
		return ReasonUniqueViolation
	case errors.Is(err, lifecycledomain.ErrNotFound):
		return ReasonNotFound
	case errors.Is(err, lifecycledomain.ErrInvalidTransition):
		return ReasonInvalidTransition
	case errors.Is(err, lifecycledomain.ErrValidation):
		return ReasonValidation
	case errors.Is(err, lifecycledomain.ErrStorageFailure):
		return ReasonStorage
	}
	return ReasonUnknown
}

// IsExpected reports whether err is a caller mistake rather than a system fault.
func IsExpected(err error) bool {
	switch ClassifyReason(err) {
	case ReasonNotFound, ReasonInvalidTransition, ReasonValidation:
		return true
	}
	return false
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
