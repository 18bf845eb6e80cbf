// Package domain defines the number lifecycle operations and their errors.
package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	phonenumberdomain "github.com/smallbiznis/numberpool/internal/phonenumber/domain"
)

// Event names a lifecycle operation for logs, spans and metrics.
type Event string

const (
	EventAssign    Event = "assign"
	EventUnassign  Event = "unassign"
	EventUpdate    Event = "update"
	EventPublish   Event = "publish"
	EventUnpublish Event = "unpublish"
	EventSweep     Event = "sweep"
)

// SystemActorCooloffSweeper is recorded as the actor of sweeper transitions.
const SystemActorCooloffSweeper = "system:cooloff-sweeper"

type AssignRequest struct {
	NumberID        string `json:"number_id" validate:"required"`
	SubscriberName  string `json:"subscriber_name" validate:"max=255"`
	CompanyName     string `json:"company_name" validate:"max=255"`
	Gateway         string `json:"gateway" validate:"max=255"`
	GatewayUsername string `json:"gateway_username" validate:"max=255"`
	Actor           string `json:"actor,omitempty"`
}

type UnassignRequest struct {
	NumberID string `json:"number_id" validate:"required"`
	Notes    string `json:"notes" validate:"max=2000"`
	Actor    string `json:"actor,omitempty"`
}

// UpdateRequest changes assignment metadata. Nil fields are left alone.
type UpdateRequest struct {
	NumberID        string  `json:"number_id" validate:"required"`
	SubscriberName  *string `json:"subscriber_name,omitempty" validate:"omitempty,max=255"`
	CompanyName     *string `json:"company_name,omitempty" validate:"omitempty,max=255"`
	Gateway         *string `json:"gateway,omitempty" validate:"omitempty,max=255"`
	GatewayUsername *string `json:"gateway_username,omitempty" validate:"omitempty,max=255"`
	Notes           string  `json:"notes,omitempty" validate:"max=2000"`
	Actor           string  `json:"actor,omitempty"`
}

type PublishRequest struct {
	NumberID    string `json:"number_id" validate:"required"`
	PublishedBy string `json:"published_by" validate:"max=255"`
}

type ExpireOptions struct {
	RunID string
	// Cutoff is the eligibility boundary chosen by the caller. Zero means
	// the engine computes it from its own clock and policy.
	Cutoff time.Time
}

type ExpireResult struct {
	Expired []snowflake.ID
	Skipped []snowflake.ID
}

type Service interface {
	Assign(ctx context.Context, req AssignRequest) (phonenumberdomain.PhoneNumber, error)
	Unassign(ctx context.Context, req UnassignRequest) (phonenumberdomain.PhoneNumber, error)
	Update(ctx context.Context, req UpdateRequest) (phonenumberdomain.PhoneNumber, error)
	Publish(ctx context.Context, req PublishRequest) (phonenumberdomain.PhoneNumber, error)
	Unpublish(ctx context.Context, numberID string) (phonenumberdomain.PhoneNumber, error)
	// ExpireCooloff moves the given cooloff numbers back to unassigned in one
	// transaction, re-checking each under lock. Ineligible rows are skipped.
	ExpireCooloff(ctx context.Context, ids []snowflake.ID, opts ExpireOptions) (ExpireResult, error)
}

var (
	ErrNotFound       = phonenumberdomain.ErrNotFound
	ErrValidation     = phonenumberdomain.ErrValidation
	ErrStorageFailure = phonenumberdomain.ErrStorageFailure
	ErrInvalidID      = phonenumberdomain.ErrInvalidID

	ErrInvalidTransition = errors.New("invalid_transition")

	ErrNotAssigned                = fmt.Errorf("%w: number_not_assigned", ErrInvalidTransition)
	ErrAlreadyAssigned            = fmt.Errorf("%w: number_already_assigned", ErrInvalidTransition)
	ErrCooloffActive              = fmt.Errorf("%w: cooloff_active", ErrInvalidTransition)
	ErrMissingRequiredField       = fmt.Errorf("%w: missing_required_field", ErrInvalidTransition)
	ErrMetadataRequiresAssignment = fmt.Errorf("%w: metadata_requires_assignment", ErrInvalidTransition)
	ErrNotPublishable             = fmt.Errorf("%w: number_not_publishable", ErrInvalidTransition)

	ErrMissingNotes = fmt.Errorf("%w: notes_required", ErrValidation)
	ErrEmptyUpdate  = fmt.Errorf("%w: empty_update", ErrValidation)
	ErrInvalidInput = fmt.Errorf("%w: invalid_input", ErrValidation)
)

// IsExpected reports errors that are the caller's to handle and must not be retried.
func IsExpected(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrValidation)
}
