package repository

import (
	"context"

	"PairServer/model"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// userRepositoryImpl 用户信息数据访问层实现
type userRepositoryImpl struct {
	db          *gorm.DB
	redisClient *redis.Client
}

// NewUserRepository 创建用户信息仓储实例
func NewUserRepository(db *gorm.DB, redisClient *redis.Client) IUserRepository {
	return &userRepositoryImpl{db: db, redisClient: redisClient}
}

// GetByUid 根据 uid 查询用户信息
func (r *userRepositoryImpl) GetByUid(ctx context.Context, uid string) (*model.UserInfo, error) {
	var user model.UserInfo
	err := r.db.WithContext(ctx).
		Where("uid = ?", uid).
		First(&user).Error
	if err != nil {
		return nil, WrapDBError(err)
	}
	return &user, nil
}

// ExistsByUid 检查 uid 是否存在
func (r *userRepositoryImpl) ExistsByUid(ctx context.Context, uid string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.UserInfo{}).
		Where("uid = ?", uid).
		Count(&count).Error
	if err != nil {
		return false, WrapDBError(err)
	}
	return count > 0, nil
}

// BatchGetByUids 批量查询用户信息
func (r *userRepositoryImpl) BatchGetByUids(ctx context.Context, uids []string) ([]*model.UserInfo, error) {
	if len(uids) == 0 {
		return []*model.UserInfo{}, nil
	}

	var users []*model.UserInfo
	err := r.db.WithContext(ctx).
		Where("uid IN ?", uids).
		Find(&users).Error
	if err != nil {
		return nil, WrapDBError(err)
	}
	return users, nil
}

// Create 创建用户档案
func (r *userRepositoryImpl) Create(ctx context.Context, user *model.UserInfo) (*model.UserInfo, error) {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, WrapDBError(err)
	}
	return user, nil
}

// UpdateAlias 更新展示别名
func (r *userRepositoryImpl) UpdateAlias(ctx context.Context, uid, alias string) error {
	result := r.db.WithContext(ctx).
		Model(&model.UserInfo{}).
		Where("uid = ?", uid).
		Update("alias", alias)

	if result.Error != nil {
		return WrapDBError(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// GetTier 获取信誉等级
func (r *userRepositoryImpl) GetTier(ctx context.Context, uid string) (int8, error) {
	var user model.UserInfo
	err := r.db.WithContext(ctx).
		Select("tier").
		Where("uid = ?", uid).
		First(&user).Error
	if err != nil {
		return 0, WrapDBError(err)
	}
	return user.Tier, nil
}
