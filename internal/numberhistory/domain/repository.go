package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository exposes no update or delete on purpose.
type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *Entry) error
	ListByNumber(ctx context.Context, db *gorm.DB, numberID snowflake.ID) ([]Entry, error)
	FindLatestByNumber(ctx context.Context, db *gorm.DB, numberID snowflake.ID) (*Entry, error)
	CountByNumber(ctx context.Context, db *gorm.DB, numberID snowflake.ID) (int64, error)
}
