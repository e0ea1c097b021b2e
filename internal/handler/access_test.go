package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/upsidelab/physionet-build/dao/model"
)

type fakeUserDB struct {
	users     map[string]*model.User
	trainings []*model.Training
	updated   []*model.User
}

func (f *fakeUserDB) GetByID(_ context.Context, id uint) (*model.User, error) {
	for _, u := range f.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeUserDB) GetByUsername(_ context.Context, username string) (*model.User, error) {
	if u, ok := f.users[username]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeUserDB) Create(_ context.Context, user *model.User) error {
	f.users[user.Username] = user
	return nil
}

func (f *fakeUserDB) Update(_ context.Context, user *model.User) error {
	f.updated = append(f.updated, user)
	return nil
}

func (f *fakeUserDB) CreateTraining(_ context.Context, training *model.Training) error {
	f.trainings = append(f.trainings, training)
	return nil
}

type fakeAccessProjDB struct {
	requests map[uint]*model.DataAccessRequest
	saved    []*model.DataAccessRequest
}

func (f *fakeAccessProjDB) GetByID(_ context.Context, _ uint) (*model.PublishedProject, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeAccessProjDB) ListAvailable(_ context.Context, _ *model.User) ([]model.PublishedProject, error) {
	return nil, nil
}

func (f *fakeAccessProjDB) ListByGroups(_ context.Context, _ model.AccessPlatform, _ []string) ([]model.PublishedProject, error) {
	return nil, nil
}

func (f *fakeAccessProjDB) HasAccess(_ context.Context, _ *model.User, _ *model.PublishedProject, _ time.Time) (bool, error) {
	return false, nil
}

func (f *fakeAccessProjDB) GetAccessRequest(_ context.Context, id uint) (*model.DataAccessRequest, error) {
	if r, ok := f.requests[id]; ok {
		return r, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeAccessProjDB) UpdateAccessRequest(_ context.Context, request *model.DataAccessRequest) error {
	f.saved = append(f.saved, request)
	return nil
}

type transitionCall struct {
	name     string
	user     *model.User
	training *model.Training
	request  *model.DataAccessRequest
	was, is  bool
}

type fakeTransitions struct {
	calls []transitionCall
}

func (f *fakeTransitions) CredentialingChanged(_ context.Context, user *model.User, was, is bool) error {
	f.calls = append(f.calls, transitionCall{name: "credentialing", user: user, was: was, is: is})
	return nil
}

func (f *fakeTransitions) TrainingValidityGranted(_ context.Context, user *model.User, training *model.Training) error {
	f.calls = append(f.calls, transitionCall{name: "training", user: user, training: training})
	return nil
}

func (f *fakeTransitions) DataAccessGranted(_ context.Context, user *model.User, request *model.DataAccessRequest) error {
	f.calls = append(f.calls, transitionCall{name: "granted", user: user, request: request})
	return nil
}

func (f *fakeTransitions) DataAccessRevoked(_ context.Context, user *model.User) error {
	f.calls = append(f.calls, transitionCall{name: "revoked", user: user})
	return nil
}

func adminTestContext(t *testing.T, method, body string, params gin.Params) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, "/", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Params = params
	return c, w
}

func accessTestMgr(userDB *fakeUserDB, projDB *fakeAccessProjDB, transitions *fakeTransitions) *AccessMgr {
	return &AccessMgr{name: "access", conf: &RegisterConfig{
		UserDB:      userDB,
		ProjDB:      projDB,
		Transitions: transitions,
	}}
}

func credentialedUser(username string, id uint) *model.User {
	u := &model.User{Username: username, IsCredentialed: true}
	u.ID = id
	return u
}

func TestSetCredentialingRevocation(t *testing.T) {
	userDB := &fakeUserDB{users: map[string]*model.User{
		"researcher": credentialedUser("researcher", 7),
	}}
	transitions := &fakeTransitions{}
	mgr := accessTestMgr(userDB, &fakeAccessProjDB{}, transitions)

	c, w := adminTestContext(t, http.MethodPut, `{"isCredentialed":false}`,
		gin.Params{{Key: "name", Value: "researcher"}})
	mgr.SetCredentialing(c)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, userDB.updated, 1)
	assert.False(t, userDB.updated[0].IsCredentialed)

	require.Len(t, transitions.calls, 1)
	call := transitions.calls[0]
	assert.Equal(t, "credentialing", call.name)
	assert.True(t, call.was)
	assert.False(t, call.is)
}

func TestGrantTraining(t *testing.T) {
	userDB := &fakeUserDB{users: map[string]*model.User{
		"researcher": credentialedUser("researcher", 7),
	}}
	transitions := &fakeTransitions{}
	mgr := accessTestMgr(userDB, &fakeAccessProjDB{}, transitions)

	c, w := adminTestContext(t, http.MethodPost,
		`{"trainingType":"citi","validDurationDays":365}`,
		gin.Params{{Key: "name", Value: "researcher"}})
	mgr.GrantTraining(c)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, userDB.trainings, 1)
	assert.Equal(t, uint(7), userDB.trainings[0].UserID)
	assert.Equal(t, 365, userDB.trainings[0].ValidDurationDays)

	require.Len(t, transitions.calls, 1)
	assert.Equal(t, "training", transitions.calls[0].name)
	assert.Equal(t, userDB.trainings[0], transitions.calls[0].training)
}

func TestDecideAccessRequest(t *testing.T) {
	request := &model.DataAccessRequest{UserID: 7, ProjectID: 3, Status: model.DataAccessRequestPending}
	request.ID = 11
	userDB := &fakeUserDB{users: map[string]*model.User{
		"researcher": credentialedUser("researcher", 7),
	}}
	projDB := &fakeAccessProjDB{requests: map[uint]*model.DataAccessRequest{11: request}}
	transitions := &fakeTransitions{}
	mgr := accessTestMgr(userDB, projDB, transitions)

	c, w := adminTestContext(t, http.MethodPut,
		`{"status":"accepted","durationDays":30}`,
		gin.Params{{Key: "id", Value: "11"}})
	mgr.DecideAccessRequest(c)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, projDB.saved, 1)
	assert.Equal(t, model.DataAccessRequestAccepted, projDB.saved[0].Status)
	assert.Equal(t, 30, projDB.saved[0].DurationDays)
	require.NotNil(t, projDB.saved[0].DecisionAt)

	require.Len(t, transitions.calls, 1)
	assert.Equal(t, "granted", transitions.calls[0].name)
	assert.Equal(t, request, transitions.calls[0].request)
}

func TestDecideAccessRequestRevocation(t *testing.T) {
	request := &model.DataAccessRequest{UserID: 7, ProjectID: 3, Status: model.DataAccessRequestAccepted}
	request.ID = 12
	userDB := &fakeUserDB{users: map[string]*model.User{
		"researcher": credentialedUser("researcher", 7),
	}}
	projDB := &fakeAccessProjDB{requests: map[uint]*model.DataAccessRequest{12: request}}
	transitions := &fakeTransitions{}
	mgr := accessTestMgr(userDB, projDB, transitions)

	c, w := adminTestContext(t, http.MethodPut, `{"status":"revoked"}`,
		gin.Params{{Key: "id", Value: "12"}})
	mgr.DecideAccessRequest(c)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, transitions.calls, 1)
	assert.Equal(t, "revoked", transitions.calls[0].name)
	assert.Equal(t, uint(7), transitions.calls[0].user.ID)
}

func TestDecideAccessRequestRejectsOtherStatuses(t *testing.T) {
	transitions := &fakeTransitions{}
	mgr := accessTestMgr(&fakeUserDB{users: map[string]*model.User{}}, &fakeAccessProjDB{}, transitions)

	c, w := adminTestContext(t, http.MethodPut, `{"status":"pending"}`,
		gin.Params{{Key: "id", Value: "11"}})
	mgr.DecideAccessRequest(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, transitions.calls)
}
