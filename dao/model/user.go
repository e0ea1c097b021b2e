package model

import (
	"time"

	"gorm.io/gorm"
)

type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// User is the basic entity of the system.
type User struct {
	gorm.Model
	Username       string  `gorm:"uniqueIndex;type:varchar(150);not null"`
	Email          string  `gorm:"type:varchar(255);not null"`
	FirstNames     string  `gorm:"type:varchar(100)"`
	LastName       string  `gorm:"type:varchar(50)"`
	Password       *string `gorm:"type:varchar(128)"`
	Role           Role    `gorm:"type:varchar(32);not null;default:user"`
	IsCredentialed bool    `gorm:"not null;default:false"`

	CloudIdentity *CloudIdentity
}

// Training records a completed training of a user. Its validity window
// starts at ProcessDatetime and lasts ValidDurationDays.
type Training struct {
	gorm.Model
	UserID            uint `gorm:"index;not null"`
	User              User `gorm:"foreignKey:UserID"`
	TrainingType      string
	ProcessDatetime   time.Time `gorm:"not null"`
	ValidDurationDays int       `gorm:"not null"`
}

// ValidUntil is the moment this training stops granting access.
func (t *Training) ValidUntil() time.Time {
	return t.ProcessDatetime.AddDate(0, 0, t.ValidDurationDays)
}

func (t *Training) IsValid(now time.Time) bool {
	return now.Before(t.ValidUntil())
}

type DataAccessRequestStatus string

const (
	DataAccessRequestPending  DataAccessRequestStatus = "pending"
	DataAccessRequestAccepted DataAccessRequestStatus = "accepted"
	DataAccessRequestRevoked  DataAccessRequestStatus = "revoked"
)

// DataAccessRequest grants a user access to a restricted project for a
// bounded duration.
type DataAccessRequest struct {
	gorm.Model
	UserID          uint                    `gorm:"index;not null"`
	User            User                    `gorm:"foreignKey:UserID"`
	ProjectID       uint                    `gorm:"index;not null"`
	Project         PublishedProject        `gorm:"foreignKey:ProjectID"`
	Status          DataAccessRequestStatus `gorm:"type:varchar(32);not null;default:pending"`
	DecisionAt      *time.Time
	DurationDays    int `gorm:"not null;default:0"` // 0 means unbounded
}

func (r *DataAccessRequest) IsExpired(now time.Time) bool {
	if r.Status != DataAccessRequestAccepted {
		return true
	}
	if r.DurationDays == 0 || r.DecisionAt == nil {
		return false
	}
	return now.After(r.DecisionAt.AddDate(0, 0, r.DurationDays))
}
