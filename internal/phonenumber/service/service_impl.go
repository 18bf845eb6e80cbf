package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/go-playground/validator/v10"
	"github.com/smallbiznis/numberpool/internal/clock"
	"github.com/smallbiznis/numberpool/internal/lifecycle/guard"
	phonenumberdomain "github.com/smallbiznis/numberpool/internal/phonenumber/domain"
	"github.com/smallbiznis/numberpool/pkg/db"
	"github.com/smallbiznis/numberpool/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID    *snowflake.Node
	clock    clock.Clock
	policy   guard.Policy
	repo     phonenumberdomain.Repository
	validate *validator.Validate
}

type ServiceParam struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Policy guard.Policy
	Repo   phonenumberdomain.Repository
}

func NewService(p ServiceParam) phonenumberdomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("phonenumber.service"),

		genID:    p.GenID,
		clock:    p.Clock,
		policy:   p.Policy,
		repo:     p.Repo,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Get implements domain.Service.
func (s *Service) Get(ctx context.Context, id string) (phonenumberdomain.PhoneNumber, error) {
	numberID, err := parseID(id)
	if err != nil {
		return phonenumberdomain.PhoneNumber{}, err
	}

	number, err := s.repo.FindByID(ctx, s.db, numberID)
	if err != nil {
		return phonenumberdomain.PhoneNumber{}, phonenumberdomain.StorageError("phonenumber.get", err)
	}
	if number == nil {
		return phonenumberdomain.PhoneNumber{}, phonenumberdomain.ErrNotFound
	}
	return s.withEffectiveStatus(*number), nil
}

// GetByNumber implements domain.Service.
func (s *Service) GetByNumber(ctx context.Context, fullNumber string) (phonenumberdomain.PhoneNumber, error) {
	normalized, err := phonenumberdomain.NormalizeNumber(fullNumber)
	if err != nil {
		return phonenumberdomain.PhoneNumber{}, err
	}

	number, err := s.repo.FindByNumber(ctx, s.db, normalized)
	if err != nil {
		return phonenumberdomain.PhoneNumber{}, phonenumberdomain.StorageError("phonenumber.get_by_number", err)
	}
	if number == nil {
		return phonenumberdomain.PhoneNumber{}, phonenumberdomain.ErrNotFound
	}
	return s.withEffectiveStatus(*number), nil
}

// List implements domain.Service. Rows are read without locks, so a page
// may mix states from before and after a concurrent transition.
func (s *Service) List(ctx context.Context, req phonenumberdomain.ListRequest) (phonenumberdomain.ListResponse, error) {
	page := req.Page.Normalize()
	if err := s.validate.Struct(page); err != nil {
		return phonenumberdomain.ListResponse{}, phonenumberdomain.ErrInvalidPage
	}

	filter := req.Filter
	if err := s.validate.Struct(filter); err != nil {
		return phonenumberdomain.ListResponse{}, phonenumberdomain.ErrInvalidFilter
	}
	if (filter.SuffixFrom != nil || filter.SuffixTo != nil) && filter.SuffixDigits == 0 {
		return phonenumberdomain.ListResponse{}, phonenumberdomain.ErrInvalidFilter
	}
	if filter.SuffixFrom != nil && filter.SuffixTo != nil && *filter.SuffixFrom > *filter.SuffixTo {
		return phonenumberdomain.ListResponse{}, phonenumberdomain.ErrInvalidFilter
	}

	cutoff := guard.Cutoff(s.clock.Now(), s.policy.CooloffWindowDays())
	if filter.Available {
		filter.EligibleBefore = cutoff
	}

	total, err := s.repo.Count(ctx, s.db, filter)
	if err != nil {
		return phonenumberdomain.ListResponse{}, phonenumberdomain.StorageError("phonenumber.count", err)
	}

	numbers, err := s.repo.List(ctx, s.db, filter, page.Offset(), page.PageSize)
	if err != nil {
		return phonenumberdomain.ListResponse{}, phonenumberdomain.StorageError("phonenumber.list", err)
	}
	for i := range numbers {
		numbers[i].Effective = guard.EffectiveStatusAt(numbers[i], cutoff)
	}

	return phonenumberdomain.ListResponse{
		PageInfo: pagination.BuildPageInfo(page, total),
		Numbers:  numbers,
	}, nil
}

// Provision implements domain.Service. New numbers start unassigned.
func (s *Service) Provision(ctx context.Context, req phonenumberdomain.ProvisionRequest) (phonenumberdomain.PhoneNumber, error) {
	if err := s.validate.Struct(req); err != nil {
		return phonenumberdomain.PhoneNumber{}, phonenumberdomain.ErrInvalidNumber
	}
	normalized, err := phonenumberdomain.NormalizeNumber(req.FullNumber)
	if err != nil {
		return phonenumberdomain.PhoneNumber{}, err
	}

	now := s.clock.Now().UTC()
	number := phonenumberdomain.PhoneNumber{
		ID:         s.genID.Generate(),
		FullNumber: normalized,
		IsGolden:   req.IsGolden,
		Status:     phonenumberdomain.StatusUnassigned,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.repo.Insert(ctx, s.db, &number); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return phonenumberdomain.PhoneNumber{}, phonenumberdomain.ErrDuplicateNumber
		}
		return phonenumberdomain.PhoneNumber{}, phonenumberdomain.StorageError("phonenumber.provision", err)
	}

	s.log.Info("number provisioned",
		zap.String("number_id", number.ID.String()),
		zap.Bool("is_golden", number.IsGolden),
	)
	number.Effective = phonenumberdomain.EffectiveStatusAvailable
	return number, nil
}

func (s *Service) withEffectiveStatus(number phonenumberdomain.PhoneNumber) phonenumberdomain.PhoneNumber {
	number.Effective = guard.EffectiveStatusAt(number, guard.Cutoff(s.clock.Now(), s.policy.CooloffWindowDays()))
	return number
}

func parseID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, phonenumberdomain.ErrInvalidID
	}
	return id, nil
}
