package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/smallbiznis/numberpool/pkg/db/pagination"
)

type ListRequest struct {
	Filter ListFilter
	Page   pagination.Page
}

type ListResponse struct {
	pagination.PageInfo
	Numbers []PhoneNumber `json:"numbers"`
}

type ProvisionRequest struct {
	FullNumber string `json:"full_number" validate:"required"`
	IsGolden   bool   `json:"is_golden"`
}

type Service interface {
	Get(ctx context.Context, id string) (PhoneNumber, error)
	GetByNumber(ctx context.Context, fullNumber string) (PhoneNumber, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	Provision(ctx context.Context, req ProvisionRequest) (PhoneNumber, error)
}

var (
	ErrNotFound       = errors.New("number_not_found")
	ErrValidation     = errors.New("validation_failed")
	ErrStorageFailure = errors.New("storage_failure")

	ErrInvalidID       = fmt.Errorf("%w: invalid_id", ErrValidation)
	ErrInvalidNumber   = fmt.Errorf("%w: invalid_number", ErrValidation)
	ErrInvalidPage     = fmt.Errorf("%w: invalid_page", ErrValidation)
	ErrInvalidFilter   = fmt.Errorf("%w: invalid_filter", ErrValidation)
	ErrDuplicateNumber = fmt.Errorf("%w: number_already_exists", ErrValidation)
)

// StorageError tags err as a storage failure raised by op.
func StorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorageFailure, err)
}
