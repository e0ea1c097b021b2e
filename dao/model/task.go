package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type TaskStatus string

const (
	TaskPending TaskStatus = "pending"
	TaskRunning TaskStatus = "running"
	TaskDone    TaskStatus = "done"
	TaskFailed  TaskStatus = "failed"
)

// ScheduledTask is one deferred background task. Tasks become runnable
// once NotBefore has passed and are claimed by the queue poller.
type ScheduledTask struct {
	gorm.Model
	TaskID    string         `gorm:"uniqueIndex;type:varchar(36);not null"`
	Name      string         `gorm:"index;type:varchar(64);not null"`
	Payload   datatypes.JSON `gorm:"not null"`
	NotBefore time.Time      `gorm:"index;not null"`
	Status    TaskStatus     `gorm:"index;type:varchar(16);not null;default:pending"`
	LastError string         `gorm:"type:text"`
}
