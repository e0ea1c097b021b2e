package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/upsidelab/physionet-build/dao/model"
	projectdb "github.com/upsidelab/physionet-build/pkg/db/project"
	userdb "github.com/upsidelab/physionet-build/pkg/db/user"
	"github.com/upsidelab/physionet-build/pkg/envctl"
)

type Manager interface {
	GetName() string
	RegisterPublic(group *gin.RouterGroup)
	RegisterProtected(group *gin.RouterGroup)
	RegisterAdmin(group *gin.RouterGroup)
}

// AccessTransitions is the slice of the access-expiry reconciler the
// admin surface invokes after mutating access-granting state. Every
// mutation of credentialing, trainings or data-access requests must go
// through one of these so expiry checks get scheduled.
type AccessTransitions interface {
	CredentialingChanged(ctx context.Context, user *model.User, wasCredentialed, isCredentialed bool) error
	TrainingValidityGranted(ctx context.Context, user *model.User, training *model.Training) error
	DataAccessGranted(ctx context.Context, user *model.User, request *model.DataAccessRequest) error
	DataAccessRevoked(ctx context.Context, user *model.User) error
}

// RegisterConfig carries the shared collaborators a manager may need.
type RegisterConfig struct {
	Service     *envctl.Service
	UserDB      userdb.DBService
	ProjDB      projectdb.DBService
	Transitions AccessTransitions
}

type Register func(conf *RegisterConfig) Manager

var Registers []Register
