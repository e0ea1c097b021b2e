// Package environment persists the locally owned provisioning state:
// cloud identities, billing setups and workflow records. The HTTP layer
// never touches these tables directly, only through the orchestration
// service sitting on top of this service.
package environment

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/upsidelab/physionet-build/dao/model"
	"github.com/upsidelab/physionet-build/dao/query"
)

type DBService interface {
	GetCloudIdentity(ctx context.Context, userID uint) (*model.CloudIdentity, error)
	CreateCloudIdentity(ctx context.Context, identity *model.CloudIdentity) error
	GetBillingSetup(ctx context.Context, userID uint) (*model.BillingSetup, error)
	CreateBillingSetup(ctx context.Context, setup *model.BillingSetup) error

	CreateWorkflow(ctx context.Context, workflow *model.Workflow) error
	GetWorkflowByExecution(ctx context.Context, resourceName string) (*model.Workflow, error)
	FinishWorkflow(ctx context.Context, id uint, status model.WorkflowStatus) error
	CountInProgressWorkflows(ctx context.Context, userID, projectID uint) (int64, error)
	ListInProgressWorkflows(ctx context.Context, userID uint) ([]model.Workflow, error)
}

type service struct{}

func NewDBService() DBService {
	return &service{}
}

// IsNotFound reports whether the error is a missing-record error, used
// by callers for has-identity / has-billing-setup predicates.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

func (s *service) GetCloudIdentity(ctx context.Context, userID uint) (*model.CloudIdentity, error) {
	var identity model.CloudIdentity
	err := query.GetDB().WithContext(ctx).Where("user_id = ?", userID).First(&identity).Error
	return &identity, err
}

func (s *service) CreateCloudIdentity(ctx context.Context, identity *model.CloudIdentity) error {
	return query.GetDB().WithContext(ctx).Create(identity).Error
}

func (s *service) GetBillingSetup(ctx context.Context, userID uint) (*model.BillingSetup, error) {
	var setup model.BillingSetup
	err := query.GetDB().WithContext(ctx).
		Joins("JOIN cloud_identities ON cloud_identities.id = billing_setups.cloud_identity_id").
		Where("cloud_identities.user_id = ?", userID).
		First(&setup).Error
	return &setup, err
}

func (s *service) CreateBillingSetup(ctx context.Context, setup *model.BillingSetup) error {
	return query.GetDB().WithContext(ctx).Create(setup).Error
}

func (s *service) CreateWorkflow(ctx context.Context, workflow *model.Workflow) error {
	return query.GetDB().WithContext(ctx).Create(workflow).Error
}

func (s *service) GetWorkflowByExecution(ctx context.Context, resourceName string) (*model.Workflow, error) {
	var workflow model.Workflow
	err := query.GetDB().WithContext(ctx).
		Where("execution_resource_name = ?", resourceName).
		First(&workflow).Error
	return &workflow, err
}

// FinishWorkflow moves a workflow into a terminal state. The guard on
// the current status keeps terminal workflows immutable even when two
// pollers race on the same execution.
func (s *service) FinishWorkflow(ctx context.Context, id uint, status model.WorkflowStatus) error {
	return query.GetDB().WithContext(ctx).
		Model(&model.Workflow{}).
		Where("id = ? AND status = ?", id, model.WorkflowInProgress).
		Update("status", status).Error
}

func (s *service) CountInProgressWorkflows(ctx context.Context, userID, projectID uint) (int64, error) {
	var count int64
	err := query.GetDB().WithContext(ctx).
		Model(&model.Workflow{}).
		Where("user_id = ? AND project_id = ? AND status = ?", userID, projectID, model.WorkflowInProgress).
		Count(&count).Error
	return count, err
}

func (s *service) ListInProgressWorkflows(ctx context.Context, userID uint) ([]model.Workflow, error) {
	var workflows []model.Workflow
	err := query.GetDB().WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, model.WorkflowInProgress).
		Find(&workflows).Error
	return workflows, err
}
