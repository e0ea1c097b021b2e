package envctl

import (
	"context"
	"time"

	"github.com/samber/lo"

	"github.com/upsidelab/physionet-build/dao/model"
	"github.com/upsidelab/physionet-build/pkg/entity"
	"github.com/upsidelab/physionet-build/pkg/join"
)

// EnvironmentProjectPair couples one active remote environment with the
// local project it grants access to.
type EnvironmentProjectPair struct {
	Environment entity.ResearchEnvironment
	Project     model.PublishedProject
}

// ProjectEnvironment is the per-project view for the environments list:
// every project available to the user, with its active environment (if
// any) and the number of local workflows still in progress, so the UI
// can show "creation in progress" before the remote system reports the
// workbench.
type ProjectEnvironment struct {
	Project             model.PublishedProject
	Environment         *entity.ResearchEnvironment
	InProgressWorkflows int
}

func environmentGroup(e *entity.ResearchEnvironment) string { return e.Group }

func projectGroup(p *model.PublishedProject) string {
	return p.DataAccessGroup(model.AccessPlatformGCPBucket)
}

// GetEnvironmentsWithProjects reconciles the remote environment list
// against locally resolvable projects: only active environments are
// considered, and environments whose project is gone or inaccessible
// are dropped from the pairing.
// TODO(pn-2219): surface orphaned environments instead of dropping them
// so users can still delete workbenches of unpublished projects.
func (s *Service) GetEnvironmentsWithProjects(ctx context.Context, user *model.User) ([]EnvironmentProjectPair, error) {
	environments, err := s.GetAllEnvironments(ctx, user)
	if err != nil {
		return nil, err
	}
	active := lo.Filter(environments, func(e entity.ResearchEnvironment, _ int) bool {
		return e.IsActive()
	})

	groups := lo.Uniq(lo.Map(active, func(e entity.ResearchEnvironment, _ int) string {
		return e.Group
	}))
	projects, err := s.projDB.ListByGroups(ctx, model.AccessPlatformGCPBucket, groups)
	if err != nil {
		return nil, err
	}

	joined := join.Inner(environmentGroup, active, projectGroup, projects)
	pairs := make([]EnvironmentProjectPair, 0, len(joined))
	for _, p := range joined {
		pairs = append(pairs, EnvironmentProjectPair{Environment: *p.Left, Project: *p.Right})
	}
	return pairs, nil
}

// GetProjectsWithEnvironments reports, for every project the user may
// access, whether it currently has an active environment and how many
// workflows are still running for it.
func (s *Service) GetProjectsWithEnvironments(ctx context.Context, user *model.User) ([]ProjectEnvironment, error) {
	environments, err := s.GetAllEnvironments(ctx, user)
	if err != nil {
		return nil, err
	}
	active := lo.Filter(environments, func(e entity.ResearchEnvironment, _ int) bool {
		return e.IsActive()
	})

	projects, err := s.projDB.ListAvailable(ctx, user)
	if err != nil {
		return nil, err
	}

	joined := join.Left(projectGroup, projects, environmentGroup, active)
	result := make([]ProjectEnvironment, 0, len(joined))
	for _, p := range joined {
		count, err := s.envDB.CountInProgressWorkflows(ctx, user.ID, p.Left.ID)
		if err != nil {
			return nil, err
		}
		result = append(result, ProjectEnvironment{
			Project:             *p.Left,
			Environment:         p.Right,
			InProgressWorkflows: int(count),
		})
	}
	return result, nil
}

// GetExpiredAccessPairs computes the (environment, project) pairs whose
// project access-check now fails for the user. Feeds the access-expiry
// reconciler.
func (s *Service) GetExpiredAccessPairs(ctx context.Context, user *model.User, now time.Time) ([]EnvironmentProjectPair, error) {
	pairs, err := s.GetEnvironmentsWithProjects(ctx, user)
	if err != nil {
		return nil, err
	}

	expired := make([]EnvironmentProjectPair, 0)
	for i := range pairs {
		ok, err := s.projDB.HasAccess(ctx, user, &pairs[i].Project, now)
		if err != nil {
			return nil, err
		}
		if !ok {
			expired = append(expired, pairs[i])
		}
	}
	return expired, nil
}
