package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	numberhistorydomain "github.com/smallbiznis/numberpool/internal/numberhistory/domain"
	"gorm.io/gorm"
)

const entryColumns = `id, number_id, change_type, previous_status, new_status, previous_company,
	new_company, previous_gateway, new_gateway, previous_subscriber, new_subscriber, notes,
	actor, metadata, change_date`

type repo struct{}

func Provide() numberhistorydomain.Repository {
	return &repo{}
}

// Insert fills entry.ID from the autoincrement column.
func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *numberhistorydomain.Entry) error {
	return db.WithContext(ctx).Create(entry).Error
}

func (r *repo) ListByNumber(ctx context.Context, db *gorm.DB, numberID snowflake.ID) ([]numberhistorydomain.Entry, error) {
	var entries []numberhistorydomain.Entry
	err := db.WithContext(ctx).Raw(
		`SELECT `+entryColumns+` FROM number_history
		 WHERE number_id = ?
		 ORDER BY change_date DESC, id DESC`,
		numberID,
	).Scan(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repo) FindLatestByNumber(ctx context.Context, db *gorm.DB, numberID snowflake.ID) (*numberhistorydomain.Entry, error) {
	var entry numberhistorydomain.Entry
	err := db.WithContext(ctx).Raw(
		`SELECT `+entryColumns+` FROM number_history
		 WHERE number_id = ?
		 ORDER BY change_date DESC, id DESC
		 LIMIT 1`,
		numberID,
	).Scan(&entry).Error
	if err != nil {
		return nil, err
	}
	if entry.ID == 0 {
		return nil, nil
	}
	return &entry, nil
}

func (r *repo) CountByNumber(ctx context.Context, db *gorm.DB, numberID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM number_history WHERE number_id = ?`,
		numberID,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
