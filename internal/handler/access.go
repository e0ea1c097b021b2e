package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/upsidelab/physionet-build/dao/model"
	"github.com/upsidelab/physionet-build/internal/resputil"
)

//nolint:gochecknoinits // This is the standard way to register a gin handler.
func init() {
	Registers = append(Registers, NewAccessMgr)
}

// AccessMgr is the admin surface for the state that grants environment
// access: credentialing, trainings and data-access requests. Every
// mutation here also notifies the expiry reconciler, which is what makes
// the two-phase compensation reachable.
type AccessMgr struct {
	name string
	conf *RegisterConfig
}

func NewAccessMgr(conf *RegisterConfig) Manager {
	return &AccessMgr{name: "access", conf: conf}
}

func (mgr *AccessMgr) GetName() string { return mgr.name }

func (mgr *AccessMgr) RegisterPublic(_ *gin.RouterGroup) {}

func (mgr *AccessMgr) RegisterProtected(_ *gin.RouterGroup) {}

func (mgr *AccessMgr) RegisterAdmin(g *gin.RouterGroup) {
	g.PUT("/users/:name/credentialing", mgr.SetCredentialing)
	g.POST("/users/:name/trainings", mgr.GrantTraining)
	g.PUT("/access-requests/:id", mgr.DecideAccessRequest)
}

type CredentialingReq struct {
	IsCredentialed *bool `json:"isCredentialed" binding:"required"`
}

// SetCredentialing godoc
// @Summary Grant or revoke a user's credentialed status
// @Tags Access
// @Accept json
// @Produce json
// @Security Bearer
// @Success 200 {object} resputil.Response[any] "Credentialing updated"
// @Router /v1/admin/users/{name}/credentialing [put]
func (mgr *AccessMgr) SetCredentialing(c *gin.Context) {
	req := &CredentialingReq{}
	if err := c.ShouldBindJSON(req); err != nil {
		resputil.BadRequest(c, err.Error())
		return
	}
	user, err := mgr.conf.UserDB.GetByUsername(c, c.Param("name"))
	if err != nil {
		resputil.Error(c, "user not found", resputil.InvalidRequest)
		return
	}

	was := user.IsCredentialed
	user.IsCredentialed = *req.IsCredentialed
	if err := mgr.conf.UserDB.Update(c, user); err != nil {
		translateError(c, err)
		return
	}
	if err := mgr.conf.Transitions.CredentialingChanged(c, user, was, user.IsCredentialed); err != nil {
		translateError(c, err)
		return
	}
	resputil.Success(c, nil)
}

type GrantTrainingReq struct {
	TrainingType      string `json:"trainingType" binding:"required"`
	ValidDurationDays int    `json:"validDurationDays" binding:"required"`
}

// GrantTraining godoc
// @Summary Record a completed training for a user
// @Tags Access
// @Accept json
// @Produce json
// @Security Bearer
// @Success 200 {object} resputil.Response[any] "Training recorded"
// @Router /v1/admin/users/{name}/trainings [post]
func (mgr *AccessMgr) GrantTraining(c *gin.Context) {
	req := &GrantTrainingReq{}
	if err := c.ShouldBindJSON(req); err != nil {
		resputil.BadRequest(c, err.Error())
		return
	}
	user, err := mgr.conf.UserDB.GetByUsername(c, c.Param("name"))
	if err != nil {
		resputil.Error(c, "user not found", resputil.InvalidRequest)
		return
	}

	training := &model.Training{
		UserID:            user.ID,
		TrainingType:      req.TrainingType,
		ProcessDatetime:   time.Now(),
		ValidDurationDays: req.ValidDurationDays,
	}
	if err := mgr.conf.UserDB.CreateTraining(c, training); err != nil {
		translateError(c, err)
		return
	}
	if err := mgr.conf.Transitions.TrainingValidityGranted(c, user, training); err != nil {
		translateError(c, err)
		return
	}
	resputil.Success(c, nil)
}

type AccessDecisionReq struct {
	Status       string `json:"status" binding:"required"`
	DurationDays int    `json:"durationDays"`
}

// DecideAccessRequest godoc
// @Summary Accept or revoke a data-access request
// @Tags Access
// @Accept json
// @Produce json
// @Security Bearer
// @Success 200 {object} resputil.Response[any] "Decision recorded"
// @Router /v1/admin/access-requests/{id} [put]
func (mgr *AccessMgr) DecideAccessRequest(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		resputil.BadRequest(c, err.Error())
		return
	}
	req := &AccessDecisionReq{}
	if err := c.ShouldBindJSON(req); err != nil {
		resputil.BadRequest(c, err.Error())
		return
	}
	status := model.DataAccessRequestStatus(req.Status)
	if status != model.DataAccessRequestAccepted && status != model.DataAccessRequestRevoked {
		resputil.BadRequest(c, "status must be accepted or revoked")
		return
	}

	request, err := mgr.conf.ProjDB.GetAccessRequest(c, uint(id))
	if err != nil {
		resputil.Error(c, "access request not found", resputil.InvalidRequest)
		return
	}
	user, err := mgr.conf.UserDB.GetByID(c, request.UserID)
	if err != nil {
		resputil.Error(c, "user not found", resputil.InvalidRequest)
		return
	}

	now := time.Now()
	request.Status = status
	request.DecisionAt = &now
	request.DurationDays = req.DurationDays
	if err := mgr.conf.ProjDB.UpdateAccessRequest(c, request); err != nil {
		translateError(c, err)
		return
	}

	if status == model.DataAccessRequestAccepted {
		err = mgr.conf.Transitions.DataAccessGranted(c, user, request)
	} else {
		err = mgr.conf.Transitions.DataAccessRevoked(c, user)
	}
	if err != nil {
		translateError(c, err)
		return
	}
	resputil.Success(c, nil)
}
