package repository

import (
	"context"
	"errors"

	"PairServer/model"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// permissionRepositoryImpl 权限数据访问层实现
type permissionRepositoryImpl struct {
	db          *gorm.DB
	redisClient *redis.Client
}

// NewPermissionRepository 创建权限仓储实例
func NewPermissionRepository(db *gorm.DB, redisClient *redis.Client) IPermissionRepository {
	return &permissionRepositoryImpl{db: db, redisClient: redisClient}
}

// GetGlobal 获取用户全局默认权限，不存在时创建默认行
func (r *permissionRepositoryImpl) GetGlobal(ctx context.Context, userUid string) (*model.GlobalPermission, error) {
	var global model.GlobalPermission
	err := r.db.WithContext(ctx).
		Where("user_uid = ?", userUid).
		First(&global).Error
	if err == nil {
		return &global, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, WrapDBError(err)
	}

	// 惰性创建默认行，并发创建靠唯一索引幂等
	global = model.GlobalPermission{
		UserUid:         userUid,
		PauseVisual:     false,
		AllowSounds:     true,
		AllowAnimations: true,
		AllowVfx:        true,
	}
	err = r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_uid"}},
		DoNothing: true,
	}).Create(&global).Error
	if err != nil {
		return nil, WrapDBError(err)
	}

	// OnConflict DoNothing 命中时本地对象可能不是库里那行，回读一次
	if global.Id == 0 {
		if err := r.db.WithContext(ctx).
			Where("user_uid = ?", userUid).
			First(&global).Error; err != nil {
			return nil, WrapDBError(err)
		}
	}
	return &global, nil
}

// UpdateGlobal 更新全局默认权限字段
func (r *permissionRepositoryImpl) UpdateGlobal(ctx context.Context, userUid string, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}

	// 确保行存在后再更新（新用户第一次改权限时行可能还没播种）
	if _, err := r.GetGlobal(ctx, userUid); err != nil {
		return err
	}

	err := r.db.WithContext(ctx).
		Model(&model.GlobalPermission{}).
		Where("user_uid = ?", userUid).
		Updates(updates).Error
	if err != nil {
		return WrapDBError(err)
	}
	return nil
}

// GetPairPerm 获取有向配对权限行
func (r *permissionRepositoryImpl) GetPairPerm(ctx context.Context, userUid, otherUid string) (*model.PairPermission, error) {
	var perm model.PairPermission
	err := r.db.WithContext(ctx).
		Where("user_uid = ? AND other_uid = ?", userUid, otherUid).
		First(&perm).Error
	if err != nil {
		return nil, WrapDBError(err)
	}
	return &perm, nil
}

// MutatePairPerm 行锁读改写配对权限行
// 同一用户的并发权限变更在行锁上排队，保证可视暂停翻转检测
// 基于的"改动前快照"不会被并发写穿插污染
func (r *permissionRepositoryImpl) MutatePairPerm(ctx context.Context, userUid, otherUid string, updates map[string]interface{}) (*model.PairPermission, *model.PairPermission, error) {
	var before, after model.PairPermission

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. 行锁读取当前行
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_uid = ? AND other_uid = ?", userUid, otherUid).
			First(&before).Error; err != nil {
			return err
		}

		// 2. 落库
		if len(updates) > 0 {
			if err := tx.Model(&model.PairPermission{}).
				Where("id = ?", before.Id).
				Updates(updates).Error; err != nil {
				return err
			}
		}

		// 3. 回读改动后的行
		return tx.Where("id = ?", before.Id).First(&after).Error
	})

	if err != nil {
		return nil, nil, WrapDBError(err)
	}
	return &before, &after, nil
}
