// Package expiry is the scheduled compensation logic for revoked data
// access: stop the affected environments right away, then terminate
// whatever is still expired after a grace period. Stopping first gives
// the user a window to restore access without losing their workbench.
package expiry

import (
	"context"
	"encoding/json"
	"time"

	"github.com/samber/lo"
	"k8s.io/klog/v2"

	"github.com/upsidelab/physionet-build/dao/model"
	"github.com/upsidelab/physionet-build/pkg/alert"
	"github.com/upsidelab/physionet-build/pkg/entity"
	"github.com/upsidelab/physionet-build/pkg/envctl"
	"github.com/upsidelab/physionet-build/pkg/metrics"
	"github.com/upsidelab/physionet-build/pkg/taskqueue"
)

const (
	TaskStopExpired    = "environment:stop_expired_access"
	TaskTerminateStill = "environment:terminate_still_expired"

	defaultGraceDays = 14
)

// EnvironmentService is the slice of the orchestration service the
// reconciler consumes.
type EnvironmentService interface {
	HasBillingSetup(ctx context.Context, user *model.User) (bool, error)
	GetExpiredAccessPairs(ctx context.Context, user *model.User, now time.Time) ([]envctl.EnvironmentProjectPair, error)
	StopEnvironment(ctx context.Context, user *model.User, proj *model.PublishedProject, environmentID string, region entity.Region) (string, error)
	DeleteEnvironment(ctx context.Context, user *model.User, proj *model.PublishedProject, environmentID string, region entity.Region) (string, error)
}

// UserGetter resolves the user a deferred task payload refers to.
type UserGetter interface {
	GetByID(ctx context.Context, id uint) (*model.User, error)
}

type Reconciler struct {
	service   EnvironmentService
	users     UserGetter
	alerter   alert.AlertInterface
	scheduler taskqueue.Scheduler
	graceDays int
	now       func() time.Time
}

func New(service EnvironmentService, users UserGetter, alerter alert.AlertInterface, scheduler taskqueue.Scheduler, graceDays int) *Reconciler {
	if graceDays <= 0 {
		graceDays = defaultGraceDays
	}
	return &Reconciler{
		service:   service,
		users:     users,
		alerter:   alerter,
		scheduler: scheduler,
		graceDays: graceDays,
		now:       time.Now,
	}
}

// RegisterTasks binds both phases to the task queue. Phase two is only
// ever scheduled from within phase one, preserving their ordering.
func (r *Reconciler) RegisterTasks(q *taskqueue.Queue) {
	q.Register(TaskStopExpired, r.runStopExpired)
	q.Register(TaskTerminateStill, r.runTerminateStillExpired)
}

type stopExpiredPayload struct {
	UserID uint `json:"userID"`
}

type terminatePayload struct {
	UserID         uint     `json:"userID"`
	EnvironmentIDs []string `json:"environmentIDs"`
}

// scheduleCheck queues the stop phase for the user at the given time.
// Users without a billing setup have nothing provisioned, so there is
// nothing to reconcile and no task is queued.
func (r *Reconciler) scheduleCheck(ctx context.Context, user *model.User, when time.Time) error {
	hasBilling, err := r.service.HasBillingSetup(ctx, user)
	if err != nil {
		return err
	}
	if !hasBilling {
		return nil
	}
	return r.scheduler.Schedule(ctx, TaskStopExpired, stopExpiredPayload{UserID: user.ID}, when)
}

// CredentialingChanged is invoked by whoever mutates the user's
// credentialing status, with both states. Only the revocation
// transition schedules a check.
func (r *Reconciler) CredentialingChanged(ctx context.Context, user *model.User, wasCredentialed, isCredentialed bool) error {
	if !wasCredentialed || isCredentialed {
		return nil
	}
	return r.scheduleCheck(ctx, user, r.now())
}

// TrainingValidityGranted schedules a check for the moment the training
// expires; a freshly valid training requires no immediate action.
func (r *Reconciler) TrainingValidityGranted(ctx context.Context, user *model.User, training *model.Training) error {
	return r.scheduleCheck(ctx, user, training.ValidUntil())
}

// DataAccessGranted schedules a check at the granted duration's end.
// Unbounded grants never expire on their own.
func (r *Reconciler) DataAccessGranted(ctx context.Context, user *model.User, request *model.DataAccessRequest) error {
	if request.DurationDays == 0 || request.DecisionAt == nil {
		return nil
	}
	expiresAt := request.DecisionAt.AddDate(0, 0, request.DurationDays)
	return r.scheduleCheck(ctx, user, expiresAt)
}

// DataAccessRevoked schedules an immediate check.
func (r *Reconciler) DataAccessRevoked(ctx context.Context, user *model.User) error {
	return r.scheduleCheck(ctx, user, r.now())
}

// runStopExpired is phase one: stop every running environment whose
// project access-check fails, notify the user once, and queue phase two
// after the grace period carrying the stopped environment ids.
func (r *Reconciler) runStopExpired(ctx context.Context, payload json.RawMessage) error {
	var p stopExpiredPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}
	user, err := r.users.GetByID(ctx, p.UserID)
	if err != nil {
		return err
	}

	pairs, err := r.service.GetExpiredAccessPairs(ctx, user, r.now())
	if err != nil {
		return err
	}
	if len(pairs) == 0 {
		return nil
	}

	for i := range pairs {
		env := &pairs[i].Environment
		if !env.IsRunning() {
			continue
		}
		if _, err := r.service.StopEnvironment(ctx, user, &pairs[i].Project, env.ID, env.Region); err != nil {
			klog.Errorf("expiry: stopping environment %s for user %d: %v", env.ID, user.ID, err)
			continue
		}
		metrics.ExpiryAction("stop")
	}

	projects := lo.Map(pairs, func(p envctl.EnvironmentProjectPair, _ int) model.PublishedProject {
		return p.Project
	})
	if err := r.alerter.EnvironmentAccessExpired(ctx, user, projects); err != nil {
		klog.Errorf("expiry: notifying user %d: %v", user.ID, err)
	}

	environmentIDs := lo.Map(pairs, func(p envctl.EnvironmentProjectPair, _ int) string {
		return p.Environment.ID
	})
	return r.scheduler.Schedule(ctx, TaskTerminateStill,
		terminatePayload{UserID: user.ID, EnvironmentIDs: environmentIDs},
		r.now().AddDate(0, 0, r.graceDays))
}

// runTerminateStillExpired is phase two: delete the previously stopped
// environments that are still in the expired set. An environment whose
// access was restored in the meantime is simply absent from the set,
// which is the only cancellation semantics there is.
func (r *Reconciler) runTerminateStillExpired(ctx context.Context, payload json.RawMessage) error {
	var p terminatePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}
	user, err := r.users.GetByID(ctx, p.UserID)
	if err != nil {
		return err
	}

	pairs, err := r.service.GetExpiredAccessPairs(ctx, user, r.now())
	if err != nil {
		return err
	}

	previouslyStopped := lo.SliceToMap(p.EnvironmentIDs, func(id string) (string, struct{}) {
		return id, struct{}{}
	})
	for i := range pairs {
		env := &pairs[i].Environment
		if _, ok := previouslyStopped[env.ID]; !ok {
			continue
		}
		if _, err := r.service.DeleteEnvironment(ctx, user, &pairs[i].Project, env.ID, env.Region); err != nil {
			klog.Errorf("expiry: deleting environment %s for user %d: %v", env.ID, user.ID, err)
			continue
		}
		metrics.ExpiryAction("terminate")
	}
	return nil
}
