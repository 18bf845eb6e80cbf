package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, number *PhoneNumber) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PhoneNumber, error)
	FindByNumber(ctx context.Context, db *gorm.DB, fullNumber string) (*PhoneNumber, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PhoneNumber, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter, offset, limit int) ([]PhoneNumber, error)
	Count(ctx context.Context, db *gorm.DB, filter ListFilter) (int64, error)
	Update(ctx context.Context, db *gorm.DB, id snowflake.ID, fields map[string]any) error
	CompareAndSwapStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from Status, fields map[string]any) (bool, error)
	ListCooloffExpired(ctx context.Context, db *gorm.DB, cutoff time.Time, afterID snowflake.ID, limit int) ([]PhoneNumber, error)
}
