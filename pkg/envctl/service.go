// Package envctl is the orchestration layer for research environments.
// Every operation follows the same shape: gather local and remote
// state, issue one remote call, interpret ok + body, fail with a named
// kind or persist a Workflow record and hand back the payload.
package envctl

import (
	"context"
	"fmt"
	"sync"

	"k8s.io/klog/v2"

	"github.com/upsidelab/physionet-build/dao/model"
	envdb "github.com/upsidelab/physionet-build/pkg/db/environment"
	projectdb "github.com/upsidelab/physionet-build/pkg/db/project"
	"github.com/upsidelab/physionet-build/pkg/entity"
	"github.com/upsidelab/physionet-build/pkg/envclient"
	"github.com/upsidelab/physionet-build/pkg/metrics"
)

// JupyterParams carries the extra creation parameters only Jupyter
// workbenches take.
type JupyterParams struct {
	VMImage            string
	PersistentDiskGB   int
	BucketNameTemplate string
}

type Service struct {
	client  envclient.Client
	envDB   envdb.DBService
	projDB  projectdb.DBService
	jupyter JupyterParams

	// Serializes the check-then-act around IN_PROGRESS workflows per
	// (user, project) so concurrent requests cannot create duplicates.
	workflowMu    sync.Mutex
	workflowLocks map[string]*sync.Mutex
}

func New(client envclient.Client, envDB envdb.DBService, projDB projectdb.DBService, jupyter JupyterParams) *Service {
	return &Service{
		client:        client,
		envDB:         envDB,
		projDB:        projDB,
		jupyter:       jupyter,
		workflowLocks: make(map[string]*sync.Mutex),
	}
}

func (s *Service) lockWorkflows(userID, projectID uint) func() {
	key := fmt.Sprintf("%d/%d", userID, projectID)
	s.workflowMu.Lock()
	lock, ok := s.workflowLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.workflowLocks[key] = lock
	}
	s.workflowMu.Unlock()
	lock.Lock()
	return lock.Unlock
}

// HasCloudIdentity is the typed existence predicate the HTTP layer
// gates identity provisioning on.
func (s *Service) HasCloudIdentity(ctx context.Context, user *model.User) (bool, error) {
	_, err := s.envDB.GetCloudIdentity(ctx, user.ID)
	if envdb.IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

func (s *Service) HasBillingSetup(ctx context.Context, user *model.User) (bool, error) {
	_, err := s.envDB.GetBillingSetup(ctx, user.ID)
	if envdb.IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

// IdentityProvisioningResult carries the one-time password alongside
// the persisted identity. The password is shown to the user once and
// never stored.
type IdentityProvisioningResult struct {
	Identity        *model.CloudIdentity
	OneTimePassword string
}

// ProvisionIdentity creates the remote identity and persists the
// CloudIdentity. Calling it for a user who already has one is gated at
// the adapter; if attempted anyway the remote uniqueness constraint
// surfaces here as ErrIdentityProvisioningFailed.
func (s *Service) ProvisionIdentity(ctx context.Context, user *model.User) (*IdentityProvisioningResult, error) {
	resp, err := s.client.CreateIdentity(ctx, &envclient.CreateIdentityRequest{
		GCPUserID:  user.Username,
		GivenName:  user.FirstNames,
		FamilyName: user.LastName,
	})
	if err != nil {
		return nil, failure(ErrIdentityProvisioningFailed, err.Error())
	}
	if !resp.OK() {
		return nil, failure(ErrIdentityProvisioningFailed, resp.ErrorMessage())
	}

	var body struct {
		Email           string `json:"email-id"`
		OneTimePassword string `json:"one-time-password"`
	}
	if err := resp.JSON(&body); err != nil {
		return nil, failure(ErrIdentityProvisioningFailed, err.Error())
	}

	identity := &model.CloudIdentity{
		UserID:    user.ID,
		GCPUserID: user.Username,
		Email:     body.Email,
	}
	if err := s.envDB.CreateCloudIdentity(ctx, identity); err != nil {
		return nil, err
	}
	return &IdentityProvisioningResult{Identity: identity, OneTimePassword: body.OneTimePassword}, nil
}

// VerifyBillingAndCreateWorkspace asks the remote system to create the
// user's workspace against the given billing account. A rejected call
// means the billing account did not verify.
func (s *Service) VerifyBillingAndCreateWorkspace(ctx context.Context, user *model.User, billingAccountID string, region entity.Region) error {
	identity, err := s.envDB.GetCloudIdentity(ctx, user.ID)
	if err != nil {
		return err
	}
	resp, err := s.client.CreateWorkspace(ctx, &envclient.CreateWorkspaceRequest{
		GCPUserID:        identity.GCPUserID,
		BillingAccountID: billingAccountID,
		Region:           region,
	})
	if err != nil {
		return failure(ErrBillingVerificationFailed, err.Error())
	}
	if !resp.OK() {
		return failure(ErrBillingVerificationFailed, resp.ErrorMessage())
	}
	return nil
}

// CreateBillingSetup persists the verified billing account. Local only.
func (s *Service) CreateBillingSetup(ctx context.Context, user *model.User, billingAccountID string) (*model.BillingSetup, error) {
	identity, err := s.envDB.GetCloudIdentity(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	setup := &model.BillingSetup{
		CloudIdentityID:  identity.ID,
		BillingAccountID: billingAccountID,
	}
	if err := s.envDB.CreateBillingSetup(ctx, setup); err != nil {
		return nil, err
	}
	return setup, nil
}

// CreateEnvironment provisions a workbench for the project and records
// a create Workflow against the returned execution handle. The
// data-access-group key comes from the project's configured data-access
// location, never from the slug.
func (s *Service) CreateEnvironment(
	ctx context.Context,
	user *model.User,
	proj *model.PublishedProject,
	region entity.Region,
	envType entity.EnvironmentType,
	instanceType entity.InstanceType,
) (string, error) {
	identity, err := s.envDB.GetCloudIdentity(ctx, user.ID)
	if err != nil {
		return "", err
	}

	group := proj.DataAccessGroup(model.AccessPlatformGCPBucket)
	if group == "" {
		return "", failure(ErrEnvironmentCreationFailed,
			fmt.Sprintf("project %s has no data access configured", proj.Slug))
	}
	if !model.IsValidDatasetGroup(group) {
		return "", failure(ErrEnvironmentCreationFailed,
			fmt.Sprintf("project %s has a malformed data access group %q", proj.Slug, group))
	}

	request := &envclient.CreateWorkbenchRequest{
		GCPUserID:    identity.GCPUserID,
		Region:       region,
		Type:         envType,
		InstanceType: instanceType,
		Group:        group,
	}
	if envType == entity.EnvironmentTypeJupyter {
		request.VMImage = s.jupyter.VMImage
		request.PersistentDisk = s.jupyter.PersistentDiskGB
		request.BucketName = fmt.Sprintf(s.jupyter.BucketNameTemplate, proj.FileRoot)
	}

	return s.mutateEnvironment(ctx, user, proj, model.WorkflowCreate, ErrEnvironmentCreationFailed,
		func(ctx context.Context) (*envclient.Response, error) {
			return s.client.CreateWorkbench(ctx, request)
		})
}

func (s *Service) StopEnvironment(ctx context.Context, user *model.User, proj *model.PublishedProject, environmentID string, region entity.Region) (string, error) {
	return s.workbenchAction(ctx, user, proj, environmentID, region, model.WorkflowPause, ErrStopEnvironmentFailed, s.client.StopWorkbench)
}

func (s *Service) StartEnvironment(ctx context.Context, user *model.User, proj *model.PublishedProject, environmentID string, region entity.Region) (string, error) {
	return s.workbenchAction(ctx, user, proj, environmentID, region, model.WorkflowStart, ErrStartEnvironmentFailed, s.client.StartWorkbench)
}

func (s *Service) DeleteEnvironment(ctx context.Context, user *model.User, proj *model.PublishedProject, environmentID string, region entity.Region) (string, error) {
	return s.workbenchAction(ctx, user, proj, environmentID, region, model.WorkflowDestroy, ErrDeleteEnvironmentFailed, s.client.DeleteWorkbench)
}

func (s *Service) ChangeEnvironmentInstanceType(
	ctx context.Context,
	user *model.User,
	proj *model.PublishedProject,
	environmentID string,
	region entity.Region,
	instanceType entity.InstanceType,
) (string, error) {
	identity, err := s.envDB.GetCloudIdentity(ctx, user.ID)
	if err != nil {
		return "", err
	}
	request := &envclient.ChangeInstanceTypeRequest{
		WorkbenchRef: envclient.WorkbenchRef{
			GCPUserID:   identity.GCPUserID,
			Region:      region,
			WorkbenchID: environmentID,
		},
		InstanceType: instanceType,
	}
	return s.mutateEnvironment(ctx, user, proj, model.WorkflowChangeInstanceType, ErrChangeEnvironmentInstanceTypeFailed,
		func(ctx context.Context) (*envclient.Response, error) {
			return s.client.ChangeWorkbenchInstanceType(ctx, request)
		})
}

func (s *Service) workbenchAction(
	ctx context.Context,
	user *model.User,
	proj *model.PublishedProject,
	environmentID string,
	region entity.Region,
	workflowType model.WorkflowType,
	kind *FailureKind,
	call func(context.Context, *envclient.WorkbenchRef) (*envclient.Response, error),
) (string, error) {
	identity, err := s.envDB.GetCloudIdentity(ctx, user.ID)
	if err != nil {
		return "", err
	}
	ref := &envclient.WorkbenchRef{
		GCPUserID:   identity.GCPUserID,
		Region:      region,
		WorkbenchID: environmentID,
	}
	return s.mutateEnvironment(ctx, user, proj, workflowType, kind,
		func(ctx context.Context) (*envclient.Response, error) {
			return call(ctx, ref)
		})
}

// mutateEnvironment is the shared tail of every mutating workbench
// call: under the per (user, project) lock, refuse if a workflow is
// already in flight, issue the call, interpret ok, record the Workflow
// and return the execution handle.
func (s *Service) mutateEnvironment(
	ctx context.Context,
	user *model.User,
	proj *model.PublishedProject,
	workflowType model.WorkflowType,
	kind *FailureKind,
	call func(context.Context) (*envclient.Response, error),
) (string, error) {
	unlock := s.lockWorkflows(user.ID, proj.ID)
	defer unlock()

	inFlight, err := s.envDB.CountInProgressWorkflows(ctx, user.ID, proj.ID)
	if err != nil {
		return "", err
	}
	if inFlight > 0 {
		return "", failure(kind,
			fmt.Sprintf("another operation is still in progress for project %s", proj.Slug))
	}

	resp, err := call(ctx)
	if err != nil {
		return "", failure(kind, err.Error())
	}
	if !resp.OK() {
		return "", failure(kind, resp.ErrorMessage())
	}

	var body struct {
		ExecutionResourceName string `json:"execution-resource-name"`
	}
	if err := resp.JSON(&body); err != nil {
		return "", failure(kind, err.Error())
	}

	workflow := &model.Workflow{
		UserID:                user.ID,
		ProjectID:             proj.ID,
		ExecutionResourceName: body.ExecutionResourceName,
		Status:                model.WorkflowInProgress,
		Type:                  workflowType,
	}
	if err := s.envDB.CreateWorkflow(ctx, workflow); err != nil {
		return "", err
	}
	klog.Infof("workflow %s started for user %d project %d (%s)",
		workflowType, user.ID, proj.ID, body.ExecutionResourceName)
	return body.ExecutionResourceName, nil
}

// CheckExecutionStatus polls the remote execution state for one of the
// user's own workflows. Once the state leaves ACTIVE the local Workflow
// is marked terminal, exactly once, and finished=true is reported. The
// UI re-invokes this periodically. A workflow already terminal answers
// from local state without a remote call.
func (s *Service) CheckExecutionStatus(ctx context.Context, user *model.User, resourceName string) (finished bool, status model.WorkflowStatus, err error) {
	workflow, err := s.envDB.GetWorkflowByExecution(ctx, resourceName)
	if err != nil {
		return false, "", err
	}
	if workflow.UserID != user.ID {
		return false, "", ErrNotWorkflowOwner
	}
	if !workflow.InProgress() {
		return true, workflow.Status, nil
	}

	resp, err := s.client.GetExecution(ctx, resourceName)
	if err != nil {
		return false, "", err
	}
	if !resp.OK() {
		return false, "", fmt.Errorf("execution status: %s", resp.ErrorMessage())
	}

	var body struct {
		State entity.ExecutionState `json:"state"`
	}
	if err := resp.JSON(&body); err != nil {
		return false, "", err
	}
	if !body.State.Finished() {
		return false, model.WorkflowInProgress, nil
	}

	terminal := model.WorkflowFailed
	if body.State.Succeeded() {
		terminal = model.WorkflowSuccess
	}
	if err := s.envDB.FinishWorkflow(ctx, workflow.ID, terminal); err != nil {
		return true, terminal, err
	}
	metrics.WorkflowFinished(string(workflow.Type), string(terminal))
	return true, terminal, nil
}

// ListInProgressWorkflows returns the user's workflows that have not
// reached a terminal state yet. The UI polls their executions.
func (s *Service) ListInProgressWorkflows(ctx context.Context, user *model.User) ([]model.Workflow, error) {
	return s.envDB.ListInProgressWorkflows(ctx, user.ID)
}

// GetUserInfo fetches the remote view of the provisioned identity.
func (s *Service) GetUserInfo(ctx context.Context, user *model.User) (map[string]any, error) {
	identity, err := s.envDB.GetCloudIdentity(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.GetUserInfo(ctx, identity.GCPUserID)
	if err != nil {
		return nil, failure(ErrGetUserInfoFailed, err.Error())
	}
	if !resp.OK() {
		return nil, failure(ErrGetUserInfoFailed, resp.ErrorMessage())
	}
	var body map[string]any
	if err := resp.JSON(&body); err != nil {
		return nil, failure(ErrGetUserInfoFailed, err.Error())
	}
	return body, nil
}

// GetWorkspaceDetails fetches the per-region workspace descriptor, used
// to tell whether initial workspace provisioning completed.
func (s *Service) GetWorkspaceDetails(ctx context.Context, user *model.User, region entity.Region) (*entity.ResearchWorkspace, error) {
	identity, err := s.envDB.GetCloudIdentity(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.GetWorkspaceDetails(ctx, identity.GCPUserID, region)
	if err != nil {
		return nil, failure(ErrGetWorkspaceDetailsFailed, err.Error())
	}
	if !resp.OK() {
		return nil, failure(ErrGetWorkspaceDetailsFailed, resp.ErrorMessage())
	}
	workspaces, err := entity.DeserializeWorkspaces(resp.Body)
	if err != nil {
		return nil, failure(ErrGetWorkspaceDetailsFailed, err.Error())
	}
	for i := range workspaces {
		if workspaces[i].Region == region {
			return &workspaces[i], nil
		}
	}
	return nil, failure(ErrGetWorkspaceDetailsFailed, fmt.Sprintf("no workspace in %s", region))
}

// GetAllEnvironments lists every workbench the remote system reports
// for the user, regardless of status.
func (s *Service) GetAllEnvironments(ctx context.Context, user *model.User) ([]entity.ResearchEnvironment, error) {
	identity, err := s.envDB.GetCloudIdentity(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.GetWorkspaceList(ctx, identity.GCPUserID)
	if err != nil {
		return nil, failure(ErrGetAvailableEnvironmentsFailed, err.Error())
	}
	if !resp.OK() {
		return nil, failure(ErrGetAvailableEnvironmentsFailed, resp.ErrorMessage())
	}
	environments, err := entity.DeserializeEnvironments(resp.Body)
	if err != nil {
		return nil, failure(ErrGetAvailableEnvironmentsFailed, err.Error())
	}
	return environments, nil
}
