package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	numberhistorydomain "github.com/smallbiznis/numberpool/internal/numberhistory/domain"
	phonenumberdomain "github.com/smallbiznis/numberpool/internal/phonenumber/domain"
	"github.com/smallbiznis/numberpool/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	repo       numberhistorydomain.Repository
	numberRepo phonenumberdomain.Repository
}

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Repo       numberhistorydomain.Repository
	NumberRepo phonenumberdomain.Repository
}

func NewService(p ServiceParam) numberhistorydomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("numberhistory.service"),

		repo:       p.Repo,
		numberRepo: p.NumberRepo,
	}
}

// Append implements domain.Service. A change date earlier than the latest
// entry is clamped so a number's history never runs backwards.
func (s *Service) Append(ctx context.Context, tx *gorm.DB, entry numberhistorydomain.Entry) (int64, error) {
	if tx == nil {
		return 0, numberhistorydomain.ErrTransactionRequired
	}
	if entry.NumberID == 0 {
		return 0, numberhistorydomain.ErrMissingNumber
	}
	if !entry.ChangeType.Valid() {
		return 0, numberhistorydomain.ErrInvalidChangeType
	}

	latest, err := s.repo.FindLatestByNumber(ctx, tx, entry.NumberID)
	if err != nil {
		return 0, phonenumberdomain.StorageError("history.latest", err)
	}
	entry.ChangeDate = entry.ChangeDate.UTC()
	if latest != nil && entry.ChangeDate.Before(latest.ChangeDate) {
		entry.ChangeDate = latest.ChangeDate.UTC()
	}

	if cid := correlation.ExtractCorrelationID(ctx); cid != "" {
		if entry.Metadata == nil {
			entry.Metadata = map[string]any{}
		}
		if _, ok := entry.Metadata["correlation_id"]; !ok {
			entry.Metadata["correlation_id"] = cid
		}
	}

	entry.ID = 0
	if err := s.repo.Insert(ctx, tx, &entry); err != nil {
		return 0, phonenumberdomain.StorageError("history.append", err)
	}
	return entry.ID, nil
}

// ListByNumber implements domain.Service.
func (s *Service) ListByNumber(ctx context.Context, numberID string) ([]numberhistorydomain.Entry, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(numberID))
	if err != nil || id == 0 {
		return nil, phonenumberdomain.ErrInvalidID
	}

	number, err := s.numberRepo.FindByID(ctx, s.db, id)
	if err != nil {
		return nil, phonenumberdomain.StorageError("history.owner", err)
	}
	if number == nil {
		return nil, phonenumberdomain.ErrNotFound
	}

	entries, err := s.repo.ListByNumber(ctx, s.db, id)
	if err != nil {
		return nil, phonenumberdomain.StorageError("history.list", err)
	}
	return entries, nil
}
