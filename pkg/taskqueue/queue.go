// Package taskqueue runs fire-and-forget deferred tasks. Tasks are
// persisted so a scheduled phase survives process restarts; a cron
// ticker claims and dispatches whatever is due.
package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"k8s.io/klog/v2"

	"github.com/upsidelab/physionet-build/dao/model"
)

// Scheduler is the only surface the orchestration and reconciliation
// layers depend on. Scheduling must not block the caller beyond the
// insert of the task row.
type Scheduler interface {
	Schedule(ctx context.Context, task string, payload any, notBefore time.Time) error
}

// Handler runs one claimed task. The raw payload is whatever Schedule
// was given, JSON encoded.
type Handler func(ctx context.Context, payload json.RawMessage) error

type Queue struct {
	db *gorm.DB

	mu       sync.RWMutex
	handlers map[string]Handler
}

func New(db *gorm.DB) *Queue {
	return &Queue{
		db:       db,
		handlers: make(map[string]Handler),
	}
}

// Register binds a task name to its handler. Scheduling a task with no
// registered handler is allowed; it stays pending until a handler shows
// up after the next deploy.
func (q *Queue) Register(task string, handler Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[task] = handler
}

func (q *Queue) Schedule(ctx context.Context, task string, payload any, notBefore time.Time) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload for %s: %w", task, err)
	}
	record := &model.ScheduledTask{
		TaskID:    uuid.NewString(),
		Name:      task,
		Payload:   datatypes.JSON(encoded),
		NotBefore: notBefore,
		Status:    model.TaskPending,
	}
	if err := q.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("schedule %s: %w", task, err)
	}
	klog.Infof("scheduled task %s (%s) not before %s", task, record.TaskID, notBefore)
	return nil
}

// RunDue claims and executes every runnable task. Invoked by the cron
// poller; also usable directly from tests.
func (q *Queue) RunDue(ctx context.Context, now time.Time) {
	var due []model.ScheduledTask
	err := q.db.WithContext(ctx).
		Where("status = ? AND not_before <= ?", model.TaskPending, now).
		Order("not_before").
		Find(&due).Error
	if err != nil {
		klog.Errorf("taskqueue: list due tasks: %v", err)
		return
	}

	for i := range due {
		q.runOne(ctx, &due[i])
	}
}

func (q *Queue) runOne(ctx context.Context, task *model.ScheduledTask) {
	q.mu.RLock()
	handler, ok := q.handlers[task.Name]
	q.mu.RUnlock()
	if !ok {
		klog.Warningf("taskqueue: no handler for %s, leaving pending", task.Name)
		return
	}

	// Claim before running so a second poller cannot pick it up. The
	// status guard makes the claim atomic.
	claim := q.db.WithContext(ctx).
		Model(&model.ScheduledTask{}).
		Where("id = ? AND status = ?", task.ID, model.TaskPending).
		Update("status", model.TaskRunning)
	if claim.Error != nil || claim.RowsAffected == 0 {
		return
	}

	err := handler(ctx, json.RawMessage(task.Payload))
	if err != nil {
		klog.Errorf("taskqueue: task %s (%s) failed: %v", task.Name, task.TaskID, err)
		q.db.WithContext(ctx).Model(&model.ScheduledTask{}).
			Where("id = ?", task.ID).
			Updates(map[string]any{"status": model.TaskFailed, "last_error": err.Error()})
		return
	}
	q.db.WithContext(ctx).Model(&model.ScheduledTask{}).
		Where("id = ?", task.ID).
		Update("status", model.TaskDone)
}
