package project

import (
	"context"
	"time"

	"github.com/upsidelab/physionet-build/dao/model"
	"github.com/upsidelab/physionet-build/dao/query"
)

type DBService interface {
	GetByID(ctx context.Context, id uint) (*model.PublishedProject, error)
	// ListAvailable returns the projects the user may provision an
	// environment for: open and restricted projects always, credentialed
	// projects only for credentialed users.
	ListAvailable(ctx context.Context, user *model.User) ([]model.PublishedProject, error)
	// ListByGroups resolves projects whose data-access location for the
	// given platform matches one of the group keys.
	ListByGroups(ctx context.Context, platform model.AccessPlatform, groups []string) ([]model.PublishedProject, error)
	// HasAccess checks the user's entitlement to the project right now.
	HasAccess(ctx context.Context, user *model.User, proj *model.PublishedProject, now time.Time) (bool, error)

	GetAccessRequest(ctx context.Context, id uint) (*model.DataAccessRequest, error)
	UpdateAccessRequest(ctx context.Context, request *model.DataAccessRequest) error
}

type service struct{}

func NewDBService() DBService {
	return &service{}
}

func (s *service) GetByID(ctx context.Context, id uint) (*model.PublishedProject, error) {
	var proj model.PublishedProject
	err := query.GetDB().WithContext(ctx).Preload("DataAccesses").First(&proj, id).Error
	return &proj, err
}

func (s *service) ListAvailable(ctx context.Context, user *model.User) ([]model.PublishedProject, error) {
	policies := []model.AccessPolicy{model.AccessPolicyOpen, model.AccessPolicyRestricted}
	if user.IsCredentialed {
		policies = append(policies, model.AccessPolicyCredentialed)
	}

	var projects []model.PublishedProject
	err := query.GetDB().WithContext(ctx).
		Preload("DataAccesses").
		Where("access_policy IN ?", policies).
		Order("id").
		Find(&projects).Error
	return projects, err
}

func (s *service) ListByGroups(ctx context.Context, platform model.AccessPlatform, groups []string) ([]model.PublishedProject, error) {
	if len(groups) == 0 {
		return []model.PublishedProject{}, nil
	}
	var projects []model.PublishedProject
	err := query.GetDB().WithContext(ctx).
		Preload("DataAccesses").
		Joins("JOIN data_accesses ON data_accesses.project_id = published_projects.id").
		Where("data_accesses.platform = ? AND data_accesses.location IN ?", platform, groups).
		Order("published_projects.id").
		Find(&projects).Error
	return projects, err
}

func (s *service) GetAccessRequest(ctx context.Context, id uint) (*model.DataAccessRequest, error) {
	var request model.DataAccessRequest
	err := query.GetDB().WithContext(ctx).First(&request, id).Error
	return &request, err
}

func (s *service) UpdateAccessRequest(ctx context.Context, request *model.DataAccessRequest) error {
	return query.GetDB().WithContext(ctx).Save(request).Error
}

func (s *service) HasAccess(ctx context.Context, user *model.User, proj *model.PublishedProject, now time.Time) (bool, error) {
	switch proj.AccessPolicy {
	case model.AccessPolicyOpen:
		return true, nil
	case model.AccessPolicyRestricted:
		return s.hasAcceptedRequest(ctx, user.ID, proj.ID, now)
	case model.AccessPolicyCredentialed:
		if !user.IsCredentialed {
			return false, nil
		}
		valid, err := s.hasValidTraining(ctx, user.ID, now)
		if err != nil || !valid {
			return false, err
		}
		return s.hasAcceptedRequest(ctx, user.ID, proj.ID, now)
	default:
		return false, nil
	}
}

func (s *service) hasAcceptedRequest(ctx context.Context, userID, projectID uint, now time.Time) (bool, error) {
	var requests []model.DataAccessRequest
	err := query.GetDB().WithContext(ctx).
		Where("user_id = ? AND project_id = ? AND status = ?", userID, projectID, model.DataAccessRequestAccepted).
		Find(&requests).Error
	if err != nil {
		return false, err
	}
	for i := range requests {
		if !requests[i].IsExpired(now) {
			return true, nil
		}
	}
	return false, nil
}

func (s *service) hasValidTraining(ctx context.Context, userID uint, now time.Time) (bool, error) {
	var trainings []model.Training
	err := query.GetDB().WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&trainings).Error
	if err != nil {
		return false, err
	}
	for i := range trainings {
		if trainings[i].IsValid(now) {
			return true, nil
		}
	}
	return false, nil
}
