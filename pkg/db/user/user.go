package user

import (
	"context"

	"github.com/upsidelab/physionet-build/dao/model"
	"github.com/upsidelab/physionet-build/dao/query"
)

type DBService interface {
	GetByID(ctx context.Context, id uint) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	Create(ctx context.Context, user *model.User) error
	Update(ctx context.Context, user *model.User) error
	CreateTraining(ctx context.Context, training *model.Training) error
}

type service struct{}

func NewDBService() DBService {
	return &service{}
}

func (s *service) GetByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	err := query.GetDB().WithContext(ctx).First(&user, id).Error
	return &user, err
}

func (s *service) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	err := query.GetDB().WithContext(ctx).Where("username = ?", username).First(&user).Error
	return &user, err
}

func (s *service) Create(ctx context.Context, user *model.User) error {
	return query.GetDB().WithContext(ctx).Create(user).Error
}

func (s *service) Update(ctx context.Context, user *model.User) error {
	return query.GetDB().WithContext(ctx).Save(user).Error
}

func (s *service) CreateTraining(ctx context.Context, training *model.Training) error {
	return query.GetDB().WithContext(ctx).Create(training).Error
}
