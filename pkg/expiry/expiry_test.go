package expiry

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upsidelab/physionet-build/dao/model"
	"github.com/upsidelab/physionet-build/pkg/entity"
	"github.com/upsidelab/physionet-build/pkg/envctl"
)

type fakeEnvService struct {
	hasBilling bool
	expired    []envctl.EnvironmentProjectPair

	stopped []string
	deleted []string
}

func (f *fakeEnvService) HasBillingSetup(_ context.Context, _ *model.User) (bool, error) {
	return f.hasBilling, nil
}

func (f *fakeEnvService) GetExpiredAccessPairs(_ context.Context, _ *model.User, _ time.Time) ([]envctl.EnvironmentProjectPair, error) {
	return f.expired, nil
}

func (f *fakeEnvService) StopEnvironment(_ context.Context, _ *model.User, _ *model.PublishedProject, environmentID string, _ entity.Region) (string, error) {
	f.stopped = append(f.stopped, environmentID)
	return "exec/stop-" + environmentID, nil
}

func (f *fakeEnvService) DeleteEnvironment(_ context.Context, _ *model.User, _ *model.PublishedProject, environmentID string, _ entity.Region) (string, error) {
	f.deleted = append(f.deleted, environmentID)
	return "exec/delete-" + environmentID, nil
}

type fakeUsers struct {
	user *model.User
}

func (f *fakeUsers) GetByID(_ context.Context, _ uint) (*model.User, error) {
	return f.user, nil
}

type alertCall struct {
	user     *model.User
	projects []model.PublishedProject
}

type fakeAlerter struct {
	calls []alertCall
}

func (f *fakeAlerter) EnvironmentAccessExpired(_ context.Context, user *model.User, projects []model.PublishedProject) error {
	f.calls = append(f.calls, alertCall{user: user, projects: projects})
	return nil
}

type scheduledCall struct {
	task      string
	payload   any
	notBefore time.Time
}

type fakeScheduler struct {
	calls []scheduledCall
}

func (f *fakeScheduler) Schedule(_ context.Context, task string, payload any, notBefore time.Time) error {
	f.calls = append(f.calls, scheduledCall{task: task, payload: payload, notBefore: notBefore})
	return nil
}

func expiredPair(projectID uint, slug, envID string, status entity.EnvironmentStatus) envctl.EnvironmentProjectPair {
	proj := model.PublishedProject{Slug: slug, Title: slug}
	proj.ID = projectID
	return envctl.EnvironmentProjectPair{
		Environment: entity.ResearchEnvironment{
			ID:     envID,
			Region: entity.RegionUSCentral,
			Status: status,
		},
		Project: proj,
	}
}

func fixedNow() time.Time {
	return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
}

func testReconciler(service *fakeEnvService, alerter *fakeAlerter, scheduler *fakeScheduler) *Reconciler {
	user := &model.User{Username: "researcher", Email: "ada@example.com"}
	user.ID = 7
	r := New(service, &fakeUsers{user: user}, alerter, scheduler, 0)
	r.now = fixedNow
	return r
}

func mustMarshal(t *testing.T, v any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func TestStopExpiredStopsRunningAndSchedulesTermination(t *testing.T) {
	service := &fakeEnvService{
		hasBilling: true,
		expired: []envctl.EnvironmentProjectPair{
			expiredPair(1, "p1", "env-running", entity.EnvironmentRunning),
			expiredPair(2, "p2", "env-paused", entity.EnvironmentPaused),
		},
	}
	alerter := &fakeAlerter{}
	scheduler := &fakeScheduler{}
	r := testReconciler(service, alerter, scheduler)

	err := r.runStopExpired(context.Background(), mustMarshal(t, stopExpiredPayload{UserID: 7}))
	require.NoError(t, err)

	// only the running environment gets a stop call
	assert.Equal(t, []string{"env-running"}, service.stopped)

	// one notification covering every expired project
	require.Len(t, alerter.calls, 1)
	assert.Len(t, alerter.calls[0].projects, 2)

	// phase two carries both environment ids, after the grace period
	require.Len(t, scheduler.calls, 1)
	call := scheduler.calls[0]
	assert.Equal(t, TaskTerminateStill, call.task)
	assert.Equal(t, fixedNow().AddDate(0, 0, defaultGraceDays), call.notBefore)
	payload, ok := call.payload.(terminatePayload)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"env-running", "env-paused"}, payload.EnvironmentIDs)
}

func TestStopExpiredNothingExpired(t *testing.T) {
	service := &fakeEnvService{hasBilling: true}
	alerter := &fakeAlerter{}
	scheduler := &fakeScheduler{}
	r := testReconciler(service, alerter, scheduler)

	err := r.runStopExpired(context.Background(), mustMarshal(t, stopExpiredPayload{UserID: 7}))
	require.NoError(t, err)
	assert.Empty(t, service.stopped)
	assert.Empty(t, alerter.calls)
	assert.Empty(t, scheduler.calls)
}

func TestTerminateDeletesOnlyStillExpired(t *testing.T) {
	// env-a had its access restored between the phases, so it is absent
	// from the expired set; env-b is still expired.
	service := &fakeEnvService{
		hasBilling: true,
		expired: []envctl.EnvironmentProjectPair{
			expiredPair(2, "p2", "env-b", entity.EnvironmentPaused),
		},
	}
	r := testReconciler(service, &fakeAlerter{}, &fakeScheduler{})

	err := r.runTerminateStillExpired(context.Background(), mustMarshal(t, terminatePayload{
		UserID:         7,
		EnvironmentIDs: []string{"env-a", "env-b"},
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"env-b"}, service.deleted)
}

func TestTerminateSkipsEnvironmentsStoppedElsewhere(t *testing.T) {
	// env-c became expired after phase one ran; it was never stopped by
	// phase one, so phase two leaves it alone.
	service := &fakeEnvService{
		hasBilling: true,
		expired: []envctl.EnvironmentProjectPair{
			expiredPair(3, "p3", "env-c", entity.EnvironmentRunning),
		},
	}
	r := testReconciler(service, &fakeAlerter{}, &fakeScheduler{})

	err := r.runTerminateStillExpired(context.Background(), mustMarshal(t, terminatePayload{
		UserID:         7,
		EnvironmentIDs: []string{"env-a"},
	}))
	require.NoError(t, err)
	assert.Empty(t, service.deleted)
}

func TestCredentialingChanged(t *testing.T) {
	service := &fakeEnvService{hasBilling: true}
	scheduler := &fakeScheduler{}
	r := testReconciler(service, &fakeAlerter{}, scheduler)
	user := &model.User{}
	user.ID = 7

	// revocation schedules an immediate check
	require.NoError(t, r.CredentialingChanged(context.Background(), user, true, false))
	require.Len(t, scheduler.calls, 1)
	assert.Equal(t, TaskStopExpired, scheduler.calls[0].task)
	assert.Equal(t, fixedNow(), scheduler.calls[0].notBefore)

	// granting or re-granting does not
	require.NoError(t, r.CredentialingChanged(context.Background(), user, false, true))
	require.NoError(t, r.CredentialingChanged(context.Background(), user, true, true))
	assert.Len(t, scheduler.calls, 1)
}

func TestScheduleCheckWithoutBillingIsNoOp(t *testing.T) {
	service := &fakeEnvService{hasBilling: false}
	scheduler := &fakeScheduler{}
	r := testReconciler(service, &fakeAlerter{}, scheduler)
	user := &model.User{}
	user.ID = 7

	require.NoError(t, r.DataAccessRevoked(context.Background(), user))
	assert.Empty(t, scheduler.calls)
}

func TestTrainingValidityGranted(t *testing.T) {
	service := &fakeEnvService{hasBilling: true}
	scheduler := &fakeScheduler{}
	r := testReconciler(service, &fakeAlerter{}, scheduler)
	user := &model.User{}
	user.ID = 7

	processed := fixedNow()
	training := &model.Training{ProcessDatetime: processed, ValidDurationDays: 365}
	require.NoError(t, r.TrainingValidityGranted(context.Background(), user, training))
	require.Len(t, scheduler.calls, 1)
	assert.Equal(t, processed.AddDate(0, 0, 365), scheduler.calls[0].notBefore)
}

func TestDataAccessGranted(t *testing.T) {
	service := &fakeEnvService{hasBilling: true}
	scheduler := &fakeScheduler{}
	r := testReconciler(service, &fakeAlerter{}, scheduler)
	user := &model.User{}
	user.ID = 7

	decided := fixedNow()
	bounded := &model.DataAccessRequest{DecisionAt: &decided, DurationDays: 30}
	require.NoError(t, r.DataAccessGranted(context.Background(), user, bounded))
	require.Len(t, scheduler.calls, 1)
	assert.Equal(t, decided.AddDate(0, 0, 30), scheduler.calls[0].notBefore)

	// an unbounded grant never expires on its own
	unbounded := &model.DataAccessRequest{DecisionAt: &decided, DurationDays: 0}
	require.NoError(t, r.DataAccessGranted(context.Background(), user, unbounded))
	assert.Len(t, scheduler.calls, 1)
}
