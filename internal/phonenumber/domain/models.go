// Package domain contains the persistence model for pooled telephone numbers.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Status is the stored lifecycle state of a number.
type Status string

const (
	StatusUnassigned Status = "unassigned"
	StatusAssigned   Status = "assigned"
	StatusCooloff    Status = "cooloff"
)

// Valid reports whether s is one of the stored states.
func (s Status) Valid() bool {
	switch s {
	case StatusUnassigned, StatusAssigned, StatusCooloff:
		return true
	}
	return false
}

// EffectiveStatus is the status shown to readers. A number whose cooloff
// has elapsed reads as available even before the sweeper reaches it.
type EffectiveStatus string

const (
	EffectiveStatusAvailable EffectiveStatus = "available"
	EffectiveStatusAssigned  EffectiveStatus = "assigned"
	EffectiveStatusCooloff   EffectiveStatus = "cooloff"
)

// PhoneNumber is a pooled number and its current assignment.
type PhoneNumber struct {
	ID         snowflake.ID `gorm:"primaryKey;autoIncrement:false"`
	FullNumber string       `gorm:"type:varchar(32);not null;uniqueIndex:ux_phone_numbers_full_number"`
	IsGolden   bool         `gorm:"not null;default:false"`
	Status     Status       `gorm:"type:varchar(16);not null;index:idx_phone_numbers_status_unassignment,priority:1"`

	SubscriberName  *string `gorm:"type:varchar(255)"`
	CompanyName     *string `gorm:"type:varchar(255)"`
	Gateway         *string `gorm:"type:varchar(255)"`
	GatewayUsername *string `gorm:"type:varchar(255)"`

	AssignmentDate   *time.Time
	UnassignmentDate *time.Time `gorm:"index:idx_phone_numbers_status_unassignment,priority:2"`

	PreviousCompany    *string `gorm:"type:varchar(255)"`
	PreviousSubscriber *string `gorm:"type:varchar(255)"`

	IsPublished   bool `gorm:"not null;default:false"`
	PublishedDate *time.Time
	PublishedBy   *string `gorm:"type:varchar(255)"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`

	Effective EffectiveStatus `gorm:"-" json:"effective_status"`
}

// TableName sets the database table name.
func (PhoneNumber) TableName() string { return "phone_numbers" }

// HasAssignment reports whether the active assignment fields are all in place.
func (n PhoneNumber) HasAssignment() bool {
	return n.AssignmentDate != nil && nonEmpty(n.SubscriberName) && nonEmpty(n.Gateway)
}

// ListFilter narrows a number listing. All set fields are combined with AND.
type ListFilter struct {
	Status      Status `validate:"omitempty,oneof=unassigned assigned cooloff"`
	IsGolden    *bool
	IsPublished *bool
	Gateway     string
	// Search matches the number, company and subscriber case-insensitively.
	Search string `validate:"max=128"`

	// SuffixDigits selects the trailing digits compared against SuffixFrom..SuffixTo.
	SuffixDigits int `validate:"gte=0,lte=15"`
	SuffixFrom   *int64
	SuffixTo     *int64

	// Available restricts the listing to numbers eligible for assignment
	// at EligibleBefore, the cooloff cutoff.
	Available      bool
	EligibleBefore time.Time
}

func nonEmpty(s *string) bool {
	return s != nil && *s != ""
}
