// Package domain contains the append-only history ledger of number changes.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	phonenumberdomain "github.com/smallbiznis/numberpool/internal/phonenumber/domain"
	"gorm.io/datatypes"
)

type ChangeType string

const (
	ChangeTypeAssignment           ChangeType = "assignment"
	ChangeTypeUnassignment         ChangeType = "unassignment"
	ChangeTypeUpdate               ChangeType = "update"
	ChangeTypeSystemCooloffExpired ChangeType = "system_cooloff_expired"
)

func (c ChangeType) Valid() bool {
	switch c {
	case ChangeTypeAssignment, ChangeTypeUnassignment, ChangeTypeUpdate, ChangeTypeSystemCooloffExpired:
		return true
	}
	return false
}

// Entry records one committed change to a number. Entries are never updated or deleted.
type Entry struct {
	ID         int64        `gorm:"primaryKey;autoIncrement"`
	NumberID   snowflake.ID `gorm:"not null;index:idx_number_history_number_change,priority:1"`
	ChangeType ChangeType   `gorm:"type:varchar(32);not null"`

	PreviousStatus phonenumberdomain.Status `gorm:"type:varchar(16)"`
	NewStatus      phonenumberdomain.Status `gorm:"type:varchar(16)"`

	PreviousCompany    *string `gorm:"type:varchar(255)"`
	NewCompany         *string `gorm:"type:varchar(255)"`
	PreviousGateway    *string `gorm:"type:varchar(255)"`
	NewGateway         *string `gorm:"type:varchar(255)"`
	PreviousSubscriber *string `gorm:"type:varchar(255)"`
	NewSubscriber      *string `gorm:"type:varchar(255)"`

	Notes    *string
	Actor    *string `gorm:"type:varchar(255)"`
	Metadata datatypes.JSONMap

	ChangeDate time.Time `gorm:"not null;index:idx_number_history_number_change,priority:2"`
}

// TableName sets the database table name.
func (Entry) TableName() string { return "number_history" }
