package domain

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

type Service interface {
	// Append writes entry inside tx, the transaction of the change it records.
	Append(ctx context.Context, tx *gorm.DB, entry Entry) (int64, error)
	// ListByNumber returns the history of a number, newest first.
	ListByNumber(ctx context.Context, numberID string) ([]Entry, error)
}

var (
	ErrTransactionRequired = errors.New("history_requires_transaction")
	ErrInvalidChangeType   = errors.New("invalid_change_type")
	ErrMissingNumber       = errors.New("history_missing_number")
)
