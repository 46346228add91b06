package repository

import (
	"context"

	"PairServer/model"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// blockRepositoryImpl 拉黑数据访问层实现
type blockRepositoryImpl struct {
	db          *gorm.DB
	redisClient *redis.Client
}

// NewBlockRepository 创建拉黑仓储实例
func NewBlockRepository(db *gorm.DB, redisClient *redis.Client) IBlockRepository {
	return &blockRepositoryImpl{db: db, redisClient: redisClient}
}

// Block 拉黑用户
// 唯一索引 (user_uid, other_uid) 保证重复拉黑返回 ErrDuplicateKey。
// 拉黑不拆除已有配对，只阻止新申请
func (r *blockRepositoryImpl) Block(ctx context.Context, userUid, otherUid string) error {
	row := &model.BlockedUser{
		UserUid:  userUid,
		OtherUid: otherUid,
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return WrapDBError(err)
	}
	return nil
}

// Unblock 取消拉黑
func (r *blockRepositoryImpl) Unblock(ctx context.Context, userUid, otherUid string) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("user_uid = ? AND other_uid = ?", userUid, otherUid).
		Delete(&model.BlockedUser{})
	if result.Error != nil {
		return 0, WrapDBError(result.Error)
	}
	return result.RowsAffected, nil
}

// IsBlockedEither 检查两用户间任一方向是否存在拉黑
func (r *blockRepositoryImpl) IsBlockedEither(ctx context.Context, aUid, bUid string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.BlockedUser{}).
		Where("(user_uid = ? AND other_uid = ?) OR (user_uid = ? AND other_uid = ?)",
			aUid, bUid, bUid, aUid).
		Count(&count).Error
	if err != nil {
		return false, WrapDBError(err)
	}
	return count > 0, nil
}

// CreateReport 记录雷达举报
// 唯一索引 (reporter_uid, reported_uid, zone_key) 保证同分区重复举报返回 ErrDuplicateKey
func (r *blockRepositoryImpl) CreateReport(ctx context.Context, report *model.RadarReport) error {
	if err := r.db.WithContext(ctx).Create(report).Error; err != nil {
		return WrapDBError(err)
	}
	return nil
}
