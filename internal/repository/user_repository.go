package repository

import (
	"context"
	"errors"
	"time"

	"relgraph_backend/internal/model"
	"relgraph_backend/internal/service"

	"gorm.io/gorm"
)

type UserRepository struct {
	DB *gorm.DB
}

var _ service.UserLookup = (*UserRepository)(nil)

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{DB: db}
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	return r.DB.WithContext(ctx).Create(user).Error
}

// FindByID 不存在时返回 nil, nil
func (r *UserRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	var user model.User
	err := r.DB.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UserExists 被禁用的账号视为不存在
func (r *UserRepository) UserExists(ctx context.Context, id string) (bool, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.User{}).
		Where("id = ? AND disabled = ?", id, false).
		Count(&count).Error
	return count > 0, err
}

func (r *UserRepository) UpdateLastSeen(userID string) error {
	return r.DB.Model(&model.User{}).
		Where("id = ?", userID).
		UpdateColumn("last_seen", time.Now().UTC()).
		Error
}
