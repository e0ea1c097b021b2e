package model

import (
	"regexp"

	"gorm.io/gorm"
)

// CloudIdentity identifies a platform user to the remote provisioning
// system. Created once after a successful identity-provisioning call and
// never mutated afterwards.
type CloudIdentity struct {
	gorm.Model
	UserID    uint   `gorm:"uniqueIndex;not null"`
	User      User   `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	GCPUserID string `gorm:"uniqueIndex;type:varchar(50);not null"`
	Email     string `gorm:"uniqueIndex;type:varchar(255);not null"`

	BillingSetup *BillingSetup
}

// BillingSetup ties a verified billing account to a cloud identity.
type BillingSetup struct {
	gorm.Model
	CloudIdentityID  uint          `gorm:"uniqueIndex;not null"`
	CloudIdentity    CloudIdentity `gorm:"foreignKey:CloudIdentityID;constraint:OnDelete:CASCADE"`
	BillingAccountID string        `gorm:"type:varchar(20);not null"`
}

var billingAccountIDPattern = regexp.MustCompile(`^[A-Z0-9]{6}-[A-Z0-9]{6}-[A-Z0-9]{6}$`)

// IsValidBillingAccountID reports whether the id matches the
// XXXXXX-XXXXXX-XXXXXX format required by the remote system.
func IsValidBillingAccountID(id string) bool {
	return billingAccountIDPattern.MatchString(id)
}

var datasetGroupPattern = regexp.MustCompile(`^[a-z](?:[-a-z0-9]{4,28}[a-z0-9])$`)

// IsValidDatasetGroup reports whether the value is acceptable as a
// group-granting-data-access key on the remote system.
func IsValidDatasetGroup(group string) bool {
	return datasetGroupPattern.MatchString(group)
}

type WorkflowStatus string

const (
	WorkflowInProgress WorkflowStatus = "IN_PROGRESS"
	WorkflowSuccess    WorkflowStatus = "SUCCESS"
	WorkflowFailed     WorkflowStatus = "FAILED"
)

type WorkflowType string

const (
	WorkflowCreate             WorkflowType = "create"
	WorkflowDestroy            WorkflowType = "destroy"
	WorkflowStart              WorkflowType = "start"
	WorkflowPause              WorkflowType = "pause"
	WorkflowChangeInstanceType WorkflowType = "change_instance_type"
)

// Workflow tracks one asynchronous remote operation. It transitions
// exactly once, from IN_PROGRESS to a terminal state, when the execution
// status poll observes completion.
type Workflow struct {
	gorm.Model
	UserID    uint             `gorm:"index;not null"`
	User      User             `gorm:"foreignKey:UserID"`
	ProjectID uint             `gorm:"index;not null"`
	Project   PublishedProject `gorm:"foreignKey:ProjectID"`
	// Opaque handle from the remote async-execution system.
	ExecutionResourceName string         `gorm:"uniqueIndex;type:varchar(256);not null"`
	Status                WorkflowStatus `gorm:"type:varchar(16);not null;default:IN_PROGRESS"`
	Type                  WorkflowType   `gorm:"type:varchar(32);not null"`
}

func (w *Workflow) InProgress() bool {
	return w.Status == WorkflowInProgress
}
