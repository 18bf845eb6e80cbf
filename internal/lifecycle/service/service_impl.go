package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	"github.com/smallbiznis/numberpool/internal/clock"
	"github.com/smallbiznis/numberpool/internal/config"
	lifecycledomain "github.com/smallbiznis/numberpool/internal/lifecycle/domain"
	"github.com/smallbiznis/numberpool/internal/lifecycle/guard"
	numberhistorydomain "github.com/smallbiznis/numberpool/internal/numberhistory/domain"
	"github.com/smallbiznis/numberpool/internal/observability/logger"
	"github.com/smallbiznis/numberpool/internal/observability/metrics"
	"github.com/smallbiznis/numberpool/internal/observability/tracing"
	phonenumberdomain "github.com/smallbiznis/numberpool/internal/phonenumber/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultTransitionTimeout = 5 * time.Second

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	clock    clock.Clock
	policy   guard.Policy
	timeout  time.Duration
	repo     phonenumberdomain.Repository
	history  numberhistorydomain.Service
	metrics  *metrics.LifecycleMetrics
	validate *validator.Validate
}

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	Policy  guard.Policy
	Config  config.Config
	Repo    phonenumberdomain.Repository
	History numberhistorydomain.Service
	Metrics *metrics.LifecycleMetrics `optional:"true"`
}

func NewService(p ServiceParam) lifecycledomain.Service {
	timeout := p.Config.Lifecycle.TransitionTimeout
	if timeout <= 0 {
		timeout = defaultTransitionTimeout
	}
	return &Service{
		db:  p.DB,
		log: p.Log.Named("lifecycle.service"),

		clock:    p.Clock,
		policy:   p.Policy,
		timeout:  timeout,
		repo:     p.Repo,
		history:  p.History,
		metrics:  p.Metrics,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// mutation is one locked read-modify-write on a single number. It returns
// the resulting record and whether anything was written.
type mutation func(ctx context.Context, tx *gorm.DB, current phonenumberdomain.PhoneNumber, now time.Time) (phonenumberdomain.PhoneNumber, bool, error)

// transition locks the number, re-reads the clock, applies fn and commits
// the row change together with its history entry.
func (s *Service) transition(ctx context.Context, event lifecycledomain.Event, rawID string, fn mutation) (phonenumberdomain.PhoneNumber, error) {
	start := time.Now()
	id, err := parseID(rawID)
	if err != nil {
		s.metrics.IncError(string(event), err)
		return phonenumberdomain.PhoneNumber{}, err
	}

	ctx, span := tracing.Start(ctx, "lifecycle."+string(event), attribute.String("number.id", id.String()))
	txCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var (
		from    phonenumberdomain.Status
		result  phonenumberdomain.PhoneNumber
		changed bool
	)
	err = s.db.WithContext(txCtx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindByIDForUpdate(txCtx, tx, id)
		if err != nil {
			return phonenumberdomain.StorageError("lifecycle.lock", err)
		}
		if current == nil {
			return lifecycledomain.ErrNotFound
		}
		from = current.Status

		result, changed, err = fn(txCtx, tx, *current, s.clock.Now().UTC())
		return err
	})
	err = s.normalizeError(txCtx, event, err)
	tracing.End(span, err, lifecycledomain.ErrNotFound, lifecycledomain.ErrInvalidTransition, lifecycledomain.ErrValidation)
	s.metrics.ObserveDuration(string(event), time.Since(start))

	log := logger.WithNumber(logger.WithContext(ctx, s.log), id.String()).With(zap.String("event", string(event)))
	if err != nil {
		s.metrics.IncError(string(event), err)
		if lifecycledomain.IsExpected(err) {
			log.Debug("lifecycle transition rejected", zap.String("status", string(from)), zap.Error(err))
		} else {
			log.Error("lifecycle transition failed", zap.Error(err))
		}
		return phonenumberdomain.PhoneNumber{}, err
	}

	result.Effective = guard.EffectiveStatusAt(result, guard.Cutoff(s.clock.Now(), s.policy.CooloffWindowDays()))
	if changed {
		s.metrics.IncTransition(string(event), string(from), string(result.Status))
		log.Info("lifecycle transition committed",
			zap.String("from", string(from)),
			zap.String("to", string(result.Status)),
		)
	}
	return result, nil
}

// normalizeError leaves expected errors untouched and tags everything else as
// a storage failure, keeping a context deadline visible in the chain.
func (s *Service) normalizeError(ctx context.Context, event lifecycledomain.Event, err error) error {
	if err == nil || lifecycledomain.IsExpected(err) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		err = errors.Join(err, ctxErr)
	}
	if errors.Is(err, lifecycledomain.ErrStorageFailure) {
		return err
	}
	return phonenumberdomain.StorageError("lifecycle."+string(event), err)
}

// Assign implements domain.Service.
func (s *Service) Assign(ctx context.Context, req lifecycledomain.AssignRequest) (phonenumberdomain.PhoneNumber, error) {
	if err := s.validate.Struct(req); err != nil {
		return phonenumberdomain.PhoneNumber{}, lifecycledomain.ErrInvalidInput
	}
	subscriber := strings.TrimSpace(req.SubscriberName)
	company := strings.TrimSpace(req.CompanyName)
	gateway := strings.TrimSpace(req.Gateway)
	gatewayUsername := strings.TrimSpace(req.GatewayUsername)

	return s.transition(ctx, lifecycledomain.EventAssign, req.NumberID, func(ctx context.Context, tx *gorm.DB, current phonenumberdomain.PhoneNumber, now time.Time) (phonenumberdomain.PhoneNumber, bool, error) {
		switch current.Status {
		case phonenumberdomain.StatusAssigned:
			return current, false, lifecycledomain.ErrAlreadyAssigned
		case phonenumberdomain.StatusCooloff:
			if !guard.IsEligibleForAssignment(current, now, s.policy.CooloffWindowDays()) {
				return current, false, lifecycledomain.ErrCooloffActive
			}
		}
		if subscriber == "" || gateway == "" {
			return current, false, lifecycledomain.ErrMissingRequiredField
		}

		next := current
		next.Status = phonenumberdomain.StatusAssigned
		next.SubscriberName = &subscriber
		next.CompanyName = optional(company)
		next.Gateway = &gateway
		next.GatewayUsername = optional(gatewayUsername)
		next.AssignmentDate = &now
		next.UpdatedAt = now

		if err := s.swap(ctx, tx, current.ID, current.Status, map[string]any{
			"status":           next.Status,
			"subscriber_name":  next.SubscriberName,
			"company_name":     next.CompanyName,
			"gateway":          next.Gateway,
			"gateway_username": next.GatewayUsername,
			"assignment_date":  now,
			"updated_at":       now,
		}); err != nil {
			return current, false, err
		}

		entry := deltaEntry(numberhistorydomain.ChangeTypeAssignment, current, next, now)
		entry.Actor = actorFrom(ctx, req.Actor)
		if _, err := s.history.Append(ctx, tx, entry); err != nil {
			return current, false, err
		}
		return next, true, nil
	})
}

// Unassign implements domain.Service. The active metadata moves into the
// previous_* snapshot and the number enters cooloff.
func (s *Service) Unassign(ctx context.Context, req lifecycledomain.UnassignRequest) (phonenumberdomain.PhoneNumber, error) {
	if err := s.validate.Struct(req); err != nil {
		return phonenumberdomain.PhoneNumber{}, lifecycledomain.ErrInvalidInput
	}
	notes := strings.TrimSpace(req.Notes)
	if notes == "" {
		return phonenumberdomain.PhoneNumber{}, lifecycledomain.ErrMissingNotes
	}

	return s.transition(ctx, lifecycledomain.EventUnassign, req.NumberID, func(ctx context.Context, tx *gorm.DB, current phonenumberdomain.PhoneNumber, now time.Time) (phonenumberdomain.PhoneNumber, bool, error) {
		if current.Status != phonenumberdomain.StatusAssigned {
			return current, false, lifecycledomain.ErrNotAssigned
		}

		next := current
		next.Status = phonenumberdomain.StatusCooloff
		next.PreviousCompany = current.CompanyName
		next.PreviousSubscriber = current.SubscriberName
		next.SubscriberName = nil
		next.CompanyName = nil
		next.Gateway = nil
		next.GatewayUsername = nil
		next.AssignmentDate = nil
		next.UnassignmentDate = &now
		next.UpdatedAt = now

		if err := s.swap(ctx, tx, current.ID, current.Status, map[string]any{
			"status":              next.Status,
			"previous_company":    next.PreviousCompany,
			"previous_subscriber": next.PreviousSubscriber,
			"subscriber_name":     nil,
			"company_name":        nil,
			"gateway":             nil,
			"gateway_username":    nil,
			"assignment_date":     nil,
			"unassignment_date":   now,
			"updated_at":          now,
		}); err != nil {
			return current, false, err
		}

		entry := deltaEntry(numberhistorydomain.ChangeTypeUnassignment, current, next, now)
		entry.Notes = &notes
		entry.Actor = actorFrom(ctx, req.Actor)
		if _, err := s.history.Append(ctx, tx, entry); err != nil {
			return current, false, err
		}
		return next, true, nil
	})
}

// Update implements domain.Service. It is narrower than "any state": metadata
// only exists while a number is assigned, so unassigned and cooloff numbers
// are rejected with ErrMetadataRequiresAssignment. An update that changes
// nothing returns the record without a history entry.
func (s *Service) Update(ctx context.Context, req lifecycledomain.UpdateRequest) (phonenumberdomain.PhoneNumber, error) {
	if err := s.validate.Struct(req); err != nil {
		return phonenumberdomain.PhoneNumber{}, lifecycledomain.ErrInvalidInput
	}
	if req.SubscriberName == nil && req.CompanyName == nil && req.Gateway == nil && req.GatewayUsername == nil {
		return phonenumberdomain.PhoneNumber{}, lifecycledomain.ErrEmptyUpdate
	}

	return s.transition(ctx, lifecycledomain.EventUpdate, req.NumberID, func(ctx context.Context, tx *gorm.DB, current phonenumberdomain.PhoneNumber, now time.Time) (phonenumberdomain.PhoneNumber, bool, error) {
		if current.Status != phonenumberdomain.StatusAssigned {
			return current, false, lifecycledomain.ErrMetadataRequiresAssignment
		}

		next := current
		fields := map[string]any{}
		apply := func(column string, requested *string, required bool, target **string) error {
			if requested == nil {
				return nil
			}
			value := strings.TrimSpace(*requested)
			if value == "" && required {
				return lifecycledomain.ErrMissingRequiredField
			}
			if deref(*target) == value {
				return nil
			}
			*target = optional(value)
			fields[column] = *target
			return nil
		}
		if err := apply("subscriber_name", req.SubscriberName, true, &next.SubscriberName); err != nil {
			return current, false, err
		}
		if err := apply("company_name", req.CompanyName, false, &next.CompanyName); err != nil {
			return current, false, err
		}
		if err := apply("gateway", req.Gateway, true, &next.Gateway); err != nil {
			return current, false, err
		}
		if err := apply("gateway_username", req.GatewayUsername, false, &next.GatewayUsername); err != nil {
			return current, false, err
		}
		if len(fields) == 0 {
			return current, false, nil
		}

		next.UpdatedAt = now
		fields["updated_at"] = now
		if err := s.swap(ctx, tx, current.ID, current.Status, fields); err != nil {
			return current, false, err
		}

		entry := deltaEntry(numberhistorydomain.ChangeTypeUpdate, current, next, now)
		entry.Notes = optional(strings.TrimSpace(req.Notes))
		entry.Actor = actorFrom(ctx, req.Actor)
		if _, err := s.history.Append(ctx, tx, entry); err != nil {
			return current, false, err
		}
		return next, true, nil
	})
}

// Publish implements domain.Service. Only numbers that could be assigned
// right now can be published; publishing twice is a no-op.
func (s *Service) Publish(ctx context.Context, req lifecycledomain.PublishRequest) (phonenumberdomain.PhoneNumber, error) {
	if err := s.validate.Struct(req); err != nil {
		return phonenumberdomain.PhoneNumber{}, lifecycledomain.ErrInvalidInput
	}
	publishedBy := optional(strings.TrimSpace(req.PublishedBy))
	if publishedBy == nil {
		publishedBy = optional(actorName(ctx, ""))
	}

	return s.transition(ctx, lifecycledomain.EventPublish, req.NumberID, func(ctx context.Context, tx *gorm.DB, current phonenumberdomain.PhoneNumber, now time.Time) (phonenumberdomain.PhoneNumber, bool, error) {
		if !guard.IsEligibleForAssignment(current, now, s.policy.CooloffWindowDays()) {
			return current, false, lifecycledomain.ErrNotPublishable
		}
		if current.IsPublished {
			return current, false, nil
		}

		next := current
		next.IsPublished = true
		next.PublishedDate = &now
		next.PublishedBy = publishedBy
		next.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, current.ID, map[string]any{
			"is_published":   true,
			"published_date": now,
			"published_by":   publishedBy,
			"updated_at":     now,
		}); err != nil {
			return current, false, phonenumberdomain.StorageError("lifecycle.publish", err)
		}
		return next, true, nil
	})
}

// Unpublish implements domain.Service.
func (s *Service) Unpublish(ctx context.Context, numberID string) (phonenumberdomain.PhoneNumber, error) {
	return s.transition(ctx, lifecycledomain.EventUnpublish, numberID, func(ctx context.Context, tx *gorm.DB, current phonenumberdomain.PhoneNumber, now time.Time) (phonenumberdomain.PhoneNumber, bool, error) {
		if !current.IsPublished {
			return current, false, nil
		}

		next := current
		next.IsPublished = false
		next.PublishedDate = nil
		next.PublishedBy = nil
		next.UpdatedAt = now
		if err := s.repo.Update(ctx, tx, current.ID, map[string]any{
			"is_published":   false,
			"published_date": nil,
			"published_by":   nil,
			"updated_at":     now,
		}); err != nil {
			return current, false, phonenumberdomain.StorageError("lifecycle.unpublish", err)
		}
		return next, true, nil
	})
}

// ExpireCooloff implements domain.Service.
func (s *Service) ExpireCooloff(ctx context.Context, ids []snowflake.ID, opts lifecycledomain.ExpireOptions) (lifecycledomain.ExpireResult, error) {
	var result lifecycledomain.ExpireResult
	if len(ids) == 0 {
		return result, nil
	}

	cutoff := opts.Cutoff
	if cutoff.IsZero() {
		cutoff = guard.Cutoff(s.clock.Now(), s.policy.CooloffWindowDays())
	}
	actor := lifecycledomain.SystemActorCooloffSweeper

	ctx, span := tracing.Start(ctx, "lifecycle.expire_cooloff",
		attribute.Int("batch.size", len(ids)),
		attribute.String("sweep.run_id", opts.RunID),
	)
	start := time.Now()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result = lifecycledomain.ExpireResult{}
		for _, id := range ids {
			current, err := s.repo.FindByIDForUpdate(ctx, tx, id)
			if err != nil {
				return phonenumberdomain.StorageError("lifecycle.lock", err)
			}
			if current == nil || current.Status != phonenumberdomain.StatusCooloff || !guard.CooloffElapsed(current.UnassignmentDate, cutoff) {
				result.Skipped = append(result.Skipped, id)
				continue
			}

			now := s.clock.Now().UTC()
			swapped, err := s.repo.CompareAndSwapStatus(ctx, tx, id, phonenumberdomain.StatusCooloff, map[string]any{
				"status":     phonenumberdomain.StatusUnassigned,
				"updated_at": now,
			})
			if err != nil {
				return phonenumberdomain.StorageError("lifecycle.expire", err)
			}
			if !swapped {
				result.Skipped = append(result.Skipped, id)
				continue
			}

			next := *current
			next.Status = phonenumberdomain.StatusUnassigned
			entry := deltaEntry(numberhistorydomain.ChangeTypeSystemCooloffExpired, *current, next, now)
			entry.Actor = &actor
			entry.Metadata = map[string]any{
				"run_id": opts.RunID,
				"cutoff": cutoff.Format(time.RFC3339),
			}
			if _, err := s.history.Append(ctx, tx, entry); err != nil {
				return err
			}
			result.Expired = append(result.Expired, id)
		}
		return nil
	})
	err = s.normalizeError(ctx, lifecycledomain.EventSweep, err)
	tracing.End(span, err)
	s.metrics.ObserveDuration(string(lifecycledomain.EventSweep), time.Since(start))
	if err != nil {
		s.metrics.IncError(string(lifecycledomain.EventSweep), err)
		return lifecycledomain.ExpireResult{}, err
	}

	s.metrics.AddTransitions(string(lifecycledomain.EventSweep),
		string(phonenumberdomain.StatusCooloff),
		string(phonenumberdomain.StatusUnassigned),
		len(result.Expired),
	)
	return result, nil
}

func (s *Service) swap(ctx context.Context, tx *gorm.DB, id snowflake.ID, from phonenumberdomain.Status, fields map[string]any) error {
	swapped, err := s.repo.CompareAndSwapStatus(ctx, tx, id, from, fields)
	if err != nil {
		return phonenumberdomain.StorageError("lifecycle.swap", err)
	}
	if !swapped {
		return lifecycledomain.ErrInvalidTransition
	}
	return nil
}

// deltaEntry snapshots the before and after values of a change.
func deltaEntry(changeType numberhistorydomain.ChangeType, before, after phonenumberdomain.PhoneNumber, now time.Time) numberhistorydomain.Entry {
	return numberhistorydomain.Entry{
		NumberID:           before.ID,
		ChangeType:         changeType,
		PreviousStatus:     before.Status,
		NewStatus:          after.Status,
		PreviousCompany:    before.CompanyName,
		NewCompany:         after.CompanyName,
		PreviousGateway:    before.Gateway,
		NewGateway:         after.Gateway,
		PreviousSubscriber: before.SubscriberName,
		NewSubscriber:      after.SubscriberName,
		ChangeDate:         now,
	}
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, lifecycledomain.ErrInvalidID
	}
	return id, nil
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
