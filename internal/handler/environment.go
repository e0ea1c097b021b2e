package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/upsidelab/physionet-build/dao/model"
	"github.com/upsidelab/physionet-build/internal/resputil"
	"github.com/upsidelab/physionet-build/internal/util"
	"github.com/upsidelab/physionet-build/pkg/entity"
	"github.com/upsidelab/physionet-build/pkg/envctl"
	"github.com/upsidelab/physionet-build/pkg/logutils"
)

//nolint:gochecknoinits // This is the standard way to register a gin handler.
func init() {
	Registers = append(Registers, NewEnvironmentMgr)
}

type EnvironmentMgr struct {
	name    string
	service *envctl.Service
	conf    *RegisterConfig
}

func NewEnvironmentMgr(conf *RegisterConfig) Manager {
	return &EnvironmentMgr{
		name:    "environments",
		service: conf.Service,
		conf:    conf,
	}
}

func (mgr *EnvironmentMgr) GetName() string { return mgr.name }

func (mgr *EnvironmentMgr) RegisterPublic(_ *gin.RouterGroup) {}

func (mgr *EnvironmentMgr) RegisterProtected(g *gin.RouterGroup) {
	g.POST("/identity", mgr.ProvisionIdentity)
	g.GET("/identity", mgr.GetUserInfo)
	g.POST("/billing", mgr.SetUpBilling)
	g.GET("/workspace/:region", mgr.GetWorkspaceDetails)

	g.GET("/environments", mgr.ListEnvironments)
	g.GET("/projects", mgr.ListProjects)
	g.POST("/environments", mgr.CreateEnvironment)
	g.PUT("/environments/stop", mgr.StopEnvironment)
	g.PUT("/environments/start", mgr.StartEnvironment)
	g.PUT("/environments/instance-type", mgr.ChangeInstanceType)
	g.DELETE("/environments", mgr.DeleteEnvironment)

	g.GET("/workflows", mgr.ListWorkflows)
	g.GET("/workflows/:execution", mgr.CheckWorkflow)
}

func (mgr *EnvironmentMgr) RegisterAdmin(_ *gin.RouterGroup) {}

// currentUser resolves the authenticated user behind the request.
func (mgr *EnvironmentMgr) currentUser(c *gin.Context) (*model.User, bool) {
	token := util.GetToken(c)
	user, err := mgr.conf.UserDB.GetByID(c, token.UserID)
	if err != nil {
		resputil.Error(c, "User not found", resputil.TokenInvalid)
		return nil, false
	}
	return user, true
}

// translateError maps orchestration failures onto the response
// envelope. Typed failure kinds carry a remote-supplied message safe to
// show to the user.
func translateError(c *gin.Context, err error) {
	var opErr *envctl.Error
	if errors.As(err, &opErr) {
		resputil.Error(c, opErr.Error(), resputil.NotSpecified)
		return
	}
	logutils.Log.Errorf("environment handler: %v", err)
	resputil.Error(c, "internal error", resputil.NotSpecified)
}

type IdentityResp struct {
	GCPUserID       string `json:"gcpUserID"`
	Email           string `json:"email"`
	OneTimePassword string `json:"oneTimePassword"`
}

// ProvisionIdentity godoc
// @Summary Provision the remote cloud identity for the current user
// @Tags Environment
// @Accept json
// @Produce json
// @Security Bearer
// @Success 200 {object} resputil.Response[IdentityResp] "Identity with one-time password"
// @Failure 400 {object} resputil.Response[any] "Identity already provisioned"
// @Failure 500 {object} resputil.Response[any] "Provisioning failed"
// @Router /v1/identity [post]
func (mgr *EnvironmentMgr) ProvisionIdentity(c *gin.Context) {
	user, ok := mgr.currentUser(c)
	if !ok {
		return
	}
	hasIdentity, err := mgr.service.HasCloudIdentity(c, user)
	if err != nil {
		translateError(c, err)
		return
	}
	if hasIdentity {
		resputil.Error(c, "identity already provisioned", resputil.AlreadyProvisioned)
		return
	}

	result, err := mgr.service.ProvisionIdentity(c, user)
	if err != nil {
		translateError(c, err)
		return
	}
	resputil.Success(c, IdentityResp{
		GCPUserID:       result.Identity.GCPUserID,
		Email:           result.Identity.Email,
		OneTimePassword: result.OneTimePassword,
	})
}

// GetUserInfo godoc
// @Summary Fetch the remote system's view of the provisioned identity
// @Tags Environment
// @Security Bearer
// @Router /v1/identity [get]
func (mgr *EnvironmentMgr) GetUserInfo(c *gin.Context) {
	user, ok := mgr.currentUser(c)
	if !ok {
		return
	}
	hasIdentity, err := mgr.service.HasCloudIdentity(c, user)
	if err != nil {
		translateError(c, err)
		return
	}
	if !hasIdentity {
		resputil.Error(c, "identity not provisioned", resputil.IdentityNotProvisioned)
		return
	}
	info, err := mgr.service.GetUserInfo(c, user)
	if err != nil {
		translateError(c, err)
		return
	}
	resputil.Success(c, info)
}

type BillingSetupReq struct {
	BillingAccountID string `json:"billingAccountID" binding:"required"`
	Region           string `json:"region" binding:"required"`
}

// SetUpBilling godoc
// @Summary Verify the billing account, create the workspace and persist the setup
// @Tags Environment
// @Accept json
// @Produce json
// @Security Bearer
// @Success 200 {object} resputil.Response[any] "Billing setup persisted"
// @Failure 400 {object} resputil.Response[any] "Invalid billing account id"
// @Failure 500 {object} resputil.Response[any] "Billing verification failed"
// @Router /v1/billing [post]
func (mgr *EnvironmentMgr) SetUpBilling(c *gin.Context) {
	user, ok := mgr.currentUser(c)
	if !ok {
		return
	}

	req := &BillingSetupReq{}
	if err := c.ShouldBindJSON(req); err != nil {
		resputil.BadRequest(c, err.Error())
		return
	}
	if !model.IsValidBillingAccountID(req.BillingAccountID) {
		resputil.BadRequest(c, `Invalid ID format. Enter an ID in the format "XXXXXX-XXXXXX-XXXXXX".`)
		return
	}
	region, err := entity.ParseRegion(req.Region)
	if err != nil {
		resputil.BadRequest(c, err.Error())
		return
	}

	hasIdentity, err := mgr.service.HasCloudIdentity(c, user)
	if err != nil {
		translateError(c, err)
		return
	}
	if !hasIdentity {
		resputil.Error(c, "identity not provisioned", resputil.IdentityNotProvisioned)
		return
	}
	hasBilling, err := mgr.service.HasBillingSetup(c, user)
	if err != nil {
		translateError(c, err)
		return
	}
	if hasBilling {
		resputil.Error(c, "billing already set up", resputil.AlreadyProvisioned)
		return
	}

	if err := mgr.service.VerifyBillingAndCreateWorkspace(c, user, req.BillingAccountID, region); err != nil {
		translateError(c, err)
		return
	}
	if _, err := mgr.service.CreateBillingSetup(c, user, req.BillingAccountID); err != nil {
		translateError(c, err)
		return
	}
	resputil.Success(c, nil)
}

// GetWorkspaceDetails godoc
// @Summary Fetch the per-region workspace setup status
// @Tags Environment
// @Security Bearer
// @Router /v1/workspace/{region} [get]
func (mgr *EnvironmentMgr) GetWorkspaceDetails(c *gin.Context) {
	user, ok := mgr.currentUser(c)
	if !ok {
		return
	}
	region, err := entity.ParseRegion(c.Param("region"))
	if err != nil {
		resputil.BadRequest(c, err.Error())
		return
	}
	if !mgr.requireBillingSetup(c, user) {
		return
	}

	workspace, err := mgr.service.GetWorkspaceDetails(c, user, region)
	if err != nil {
		translateError(c, err)
		return
	}
	resputil.Success(c, gin.H{
		"region":    workspace.Region,
		"status":    workspace.Status,
		"setupDone": workspace.SetupDone(),
	})
}

func (mgr *EnvironmentMgr) requireBillingSetup(c *gin.Context, user *model.User) bool {
	hasBilling, err := mgr.service.HasBillingSetup(c, user)
	if err != nil {
		translateError(c, err)
		return false
	}
	if !hasBilling {
		resputil.Error(c, "billing not set up", resputil.BillingNotSetUp)
		return false
	}
	return true
}

type EnvironmentResp struct {
	ID             string `json:"id"`
	Region         string `json:"region"`
	InstanceType   string `json:"instanceType"`
	Type           string `json:"type"`
	Status         string `json:"status"`
	URL            string `json:"url,omitempty"`
	IsRunning      bool   `json:"isRunning"`
	IsPaused       bool   `json:"isPaused"`
	IsProvisioning bool   `json:"isProvisioning"`
}

func environmentResp(e *entity.ResearchEnvironment) EnvironmentResp {
	return EnvironmentResp{
		ID:             e.ID,
		Region:         string(e.Region),
		InstanceType:   string(e.InstanceType),
		Type:           string(e.Type),
		Status:         string(e.Status),
		URL:            e.URL,
		IsRunning:      e.IsRunning(),
		IsPaused:       e.IsPaused(),
		IsProvisioning: e.IsBeingProvisioned(),
	}
}

type EnvironmentProjectResp struct {
	Environment EnvironmentResp `json:"environment"`
	ProjectSlug string          `json:"projectSlug"`
	ProjectName string          `json:"projectName"`
}

// ListEnvironments godoc
// @Summary List the user's active environments paired with their projects
// @Tags Environment
// @Security Bearer
// @Success 200 {object} resputil.Response[[]EnvironmentProjectResp] "Active environments"
// @Router /v1/environments [get]
func (mgr *EnvironmentMgr) ListEnvironments(c *gin.Context) {
	user, ok := mgr.currentUser(c)
	if !ok {
		return
	}
	if !mgr.requireBillingSetup(c, user) {
		return
	}

	pairs, err := mgr.service.GetEnvironmentsWithProjects(c, user)
	if err != nil {
		translateError(c, err)
		return
	}
	resp := make([]EnvironmentProjectResp, 0, len(pairs))
	for i := range pairs {
		resp = append(resp, EnvironmentProjectResp{
			Environment: environmentResp(&pairs[i].Environment),
			ProjectSlug: pairs[i].Project.Slug,
			ProjectName: pairs[i].Project.Title,
		})
	}
	resputil.Success(c, resp)
}

type ProjectEnvironmentResp struct {
	ProjectID           uint             `json:"projectID"`
	ProjectSlug         string           `json:"projectSlug"`
	ProjectName         string           `json:"projectName"`
	Environment         *EnvironmentResp `json:"environment,omitempty"`
	InProgressWorkflows int              `json:"inProgressWorkflows"`
}

// ListProjects godoc
// @Summary List accessible projects with their environment state
// @Tags Environment
// @Security Bearer
// @Success 200 {object} resputil.Response[[]ProjectEnvironmentResp] "Projects with environments"
// @Router /v1/projects [get]
func (mgr *EnvironmentMgr) ListProjects(c *gin.Context) {
	user, ok := mgr.currentUser(c)
	if !ok {
		return
	}
	if !mgr.requireBillingSetup(c, user) {
		return
	}

	projects, err := mgr.service.GetProjectsWithEnvironments(c, user)
	if err != nil {
		translateError(c, err)
		return
	}
	resp := make([]ProjectEnvironmentResp, 0, len(projects))
	for i := range projects {
		item := ProjectEnvironmentResp{
			ProjectID:           projects[i].Project.ID,
			ProjectSlug:         projects[i].Project.Slug,
			ProjectName:         projects[i].Project.Title,
			InProgressWorkflows: projects[i].InProgressWorkflows,
		}
		if projects[i].Environment != nil {
			e := environmentResp(projects[i].Environment)
			item.Environment = &e
		}
		resp = append(resp, item)
	}
	resputil.Success(c, resp)
}

type CreateEnvironmentReq struct {
	ProjectID    uint   `json:"projectID" binding:"required"`
	Region       string `json:"region" binding:"required"`
	Type         string `json:"type" binding:"required"`
	InstanceType string `json:"instanceType" binding:"required"`
}

// CreateEnvironment godoc
// @Summary Provision a workbench for a project
// @Tags Environment
// @Accept json
// @Produce json
// @Security Bearer
// @Success 200 {object} resputil.Response[any] "Execution resource name"
// @Router /v1/environments [post]
func (mgr *EnvironmentMgr) CreateEnvironment(c *gin.Context) {
	user, ok := mgr.currentUser(c)
	if !ok {
		return
	}
	req := &CreateEnvironmentReq{}
	if err := c.ShouldBindJSON(req); err != nil {
		resputil.BadRequest(c, err.Error())
		return
	}
	region, err := entity.ParseRegion(req.Region)
	if err != nil {
		resputil.BadRequest(c, err.Error())
		return
	}
	instanceType, err := entity.ParseInstanceType(req.InstanceType)
	if err != nil {
		resputil.BadRequest(c, err.Error())
		return
	}
	if !mgr.requireBillingSetup(c, user) {
		return
	}

	proj, err := mgr.conf.ProjDB.GetByID(c, req.ProjectID)
	if err != nil {
		resputil.Error(c, "project not found", resputil.InvalidRequest)
		return
	}

	execution, err := mgr.service.CreateEnvironment(c, user, proj, region,
		entity.ParseEnvironmentType(req.Type), instanceType)
	if err != nil {
		translateError(c, err)
		return
	}
	resputil.Success(c, gin.H{"execution": execution})
}

type WorkbenchActionReq struct {
	ProjectID     uint   `json:"projectID" binding:"required"`
	EnvironmentID string `json:"environmentID" binding:"required"`
	Region        string `json:"region" binding:"required"`
}

func (mgr *EnvironmentMgr) workbenchAction(
	c *gin.Context,
	action func(*gin.Context, *model.User, *model.PublishedProject, string, entity.Region) (string, error),
) {
	user, ok := mgr.currentUser(c)
	if !ok {
		return
	}
	req := &WorkbenchActionReq{}
	if err := c.ShouldBindJSON(req); err != nil {
		resputil.BadRequest(c, err.Error())
		return
	}
	region, err := entity.ParseRegion(req.Region)
	if err != nil {
		resputil.BadRequest(c, err.Error())
		return
	}
	if !mgr.requireBillingSetup(c, user) {
		return
	}
	proj, err := mgr.conf.ProjDB.GetByID(c, req.ProjectID)
	if err != nil {
		resputil.Error(c, "project not found", resputil.InvalidRequest)
		return
	}

	execution, err := action(c, user, proj, req.EnvironmentID, region)
	if err != nil {
		translateError(c, err)
		return
	}
	resputil.Success(c, gin.H{"execution": execution})
}

// StopEnvironment godoc
// @Summary Stop a running workbench
// @Tags Environment
// @Security Bearer
// @Router /v1/environments/stop [put]
func (mgr *EnvironmentMgr) StopEnvironment(c *gin.Context) {
	mgr.workbenchAction(c, func(c *gin.Context, u *model.User, p *model.PublishedProject, id string, r entity.Region) (string, error) {
		return mgr.service.StopEnvironment(c, u, p, id, r)
	})
}

// StartEnvironment godoc
// @Summary Start a paused workbench
// @Tags Environment
// @Security Bearer
// @Router /v1/environments/start [put]
func (mgr *EnvironmentMgr) StartEnvironment(c *gin.Context) {
	mgr.workbenchAction(c, func(c *gin.Context, u *model.User, p *model.PublishedProject, id string, r entity.Region) (string, error) {
		return mgr.service.StartEnvironment(c, u, p, id, r)
	})
}

// DeleteEnvironment godoc
// @Summary Delete a workbench
// @Tags Environment
// @Security Bearer
// @Router /v1/environments [delete]
func (mgr *EnvironmentMgr) DeleteEnvironment(c *gin.Context) {
	mgr.workbenchAction(c, func(c *gin.Context, u *model.User, p *model.PublishedProject, id string, r entity.Region) (string, error) {
		return mgr.service.DeleteEnvironment(c, u, p, id, r)
	})
}

type ChangeInstanceTypeReq struct {
	WorkbenchActionReq
	InstanceType string `json:"instanceType" binding:"required"`
}

// ChangeInstanceType godoc
// @Summary Change a workbench's machine type
// @Tags Environment
// @Security Bearer
// @Router /v1/environments/instance-type [put]
func (mgr *EnvironmentMgr) ChangeInstanceType(c *gin.Context) {
	user, ok := mgr.currentUser(c)
	if !ok {
		return
	}
	req := &ChangeInstanceTypeReq{}
	if err := c.ShouldBindJSON(req); err != nil {
		resputil.BadRequest(c, err.Error())
		return
	}
	region, err := entity.ParseRegion(req.Region)
	if err != nil {
		resputil.BadRequest(c, err.Error())
		return
	}
	instanceType, err := entity.ParseInstanceType(req.InstanceType)
	if err != nil {
		resputil.BadRequest(c, err.Error())
		return
	}
	if !mgr.requireBillingSetup(c, user) {
		return
	}
	proj, err := mgr.conf.ProjDB.GetByID(c, req.ProjectID)
	if err != nil {
		resputil.Error(c, "project not found", resputil.InvalidRequest)
		return
	}

	execution, err := mgr.service.ChangeEnvironmentInstanceType(c, user, proj, req.EnvironmentID, region, instanceType)
	if err != nil {
		translateError(c, err)
		return
	}
	resputil.Success(c, gin.H{"execution": execution})
}

type WorkflowResp struct {
	Execution string `json:"execution"`
	ProjectID uint   `json:"projectID"`
	Type      string `json:"type"`
}

// ListWorkflows godoc
// @Summary List the user's in-progress workflows
// @Tags Environment
// @Security Bearer
// @Success 200 {object} resputil.Response[[]WorkflowResp] "In-progress workflows"
// @Router /v1/workflows [get]
func (mgr *EnvironmentMgr) ListWorkflows(c *gin.Context) {
	user, ok := mgr.currentUser(c)
	if !ok {
		return
	}
	workflows, err := mgr.service.ListInProgressWorkflows(c, user)
	if err != nil {
		translateError(c, err)
		return
	}
	resp := make([]WorkflowResp, 0, len(workflows))
	for i := range workflows {
		resp = append(resp, WorkflowResp{
			Execution: workflows[i].ExecutionResourceName,
			ProjectID: workflows[i].ProjectID,
			Type:      string(workflows[i].Type),
		})
	}
	resputil.Success(c, resp)
}

// CheckWorkflow godoc
// @Summary Poll the status of a long-running operation
// @Description Clients poll this until finished is true; there is no
// @Description server-side push.
// @Tags Environment
// @Security Bearer
// @Success 200 {object} resputil.Response[any] "finished flag and terminal status"
// @Router /v1/workflows/{execution} [get]
func (mgr *EnvironmentMgr) CheckWorkflow(c *gin.Context) {
	user, ok := mgr.currentUser(c)
	if !ok {
		return
	}
	execution := c.Param("execution")
	finished, status, err := mgr.service.CheckExecutionStatus(c, user, execution)
	if err != nil {
		if errors.Is(err, envctl.ErrNotWorkflowOwner) {
			resputil.Error(c, "workflow not found", resputil.UserNotAllowed)
			return
		}
		translateError(c, err)
		return
	}
	resputil.Success(c, gin.H{
		"finished": finished,
		"status":   status,
	})
}
