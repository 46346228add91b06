package repository

import (
	"context"
	"errors"
	"time"

	rediskey "PairServer/consts/redisKey"
	"PairServer/model"
	"PairServer/pkg/async"
	"PairServer/pkg/logger"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// requestRepositoryImpl 配对申请数据访问层实现
type requestRepositoryImpl struct {
	db          *gorm.DB
	redisClient *redis.Client
}

// NewRequestRepository 创建配对申请仓储实例
func NewRequestRepository(db *gorm.DB, redisClient *redis.Client) IRequestRepository {
	return &requestRepositoryImpl{db: db, redisClient: redisClient}
}

// Create 创建配对申请
// 唯一索引 (sender_uid, target_uid) 保证同一有向对至多一条，冲突返回 ErrDuplicateKey
func (r *requestRepositoryImpl) Create(ctx context.Context, req *model.PairRequest) (*model.PairRequest, error) {
	if err := r.db.WithContext(ctx).Create(req).Error; err != nil {
		return nil, WrapDBError(err)
	}
	return req, nil
}

// Get 获取一条申请
// 超龄行（超过保留窗口）按不存在处理，并顺手物理清除，
// 这样同一有向对可以立刻重新发起申请，不必等外部 reaper
func (r *requestRepositoryImpl) Get(ctx context.Context, senderUid, targetUid string) (*model.PairRequest, error) {
	var req model.PairRequest
	err := r.db.WithContext(ctx).
		Where("sender_uid = ? AND target_uid = ?", senderUid, targetUid).
		First(&req).Error
	if err != nil {
		return nil, WrapDBError(err)
	}

	if req.IsExpired(time.Now()) {
		r.deleteExpiredAsync(ctx, req.Id)
		return nil, ErrRecordNotFound
	}
	return &req, nil
}

// Delete 删除一条申请（超龄行也算删除成功，反正都要消失）
func (r *requestRepositoryImpl) Delete(ctx context.Context, senderUid, targetUid string) (int64, error) {
	cutoff := time.Now().Add(-model.PairRequestRetention)

	result := r.db.WithContext(ctx).
		Where("sender_uid = ? AND target_uid = ? AND created_at > ?", senderUid, targetUid, cutoff).
		Delete(&model.PairRequest{})
	if result.Error != nil {
		return 0, WrapDBError(result.Error)
	}

	if result.RowsAffected == 0 {
		// 可能存在超龄行，顺手清掉但不算命中
		_ = r.db.WithContext(ctx).
			Where("sender_uid = ? AND target_uid = ?", senderUid, targetUid).
			Delete(&model.PairRequest{}).Error
	}
	return result.RowsAffected, nil
}

// ExistsPendingBetween 检查两用户间任一方向是否存在未过期申请
func (r *requestRepositoryImpl) ExistsPendingBetween(ctx context.Context, aUid, bUid string) (bool, error) {
	cutoff := time.Now().Add(-model.PairRequestRetention)

	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.PairRequest{}).
		Where("((sender_uid = ? AND target_uid = ?) OR (sender_uid = ? AND target_uid = ?)) AND created_at > ?",
			aUid, bUid, bUid, aUid, cutoff).
		Count(&count).Error
	if err != nil {
		return false, WrapDBError(err)
	}
	return count > 0, nil
}

// ListPendingForTarget 获取发给某用户的全部未过期申请
func (r *requestRepositoryImpl) ListPendingForTarget(ctx context.Context, targetUid string) ([]*model.PairRequest, error) {
	cutoff := time.Now().Add(-model.PairRequestRetention)

	var reqs []*model.PairRequest
	err := r.db.WithContext(ctx).
		Where("target_uid = ? AND created_at > ?", targetUid, cutoff).
		Order("created_at DESC").
		Find(&reqs).Error
	if err != nil {
		return nil, WrapDBError(err)
	}
	return reqs, nil
}

// ListSentBySender 获取某用户发出的全部未过期申请
func (r *requestRepositoryImpl) ListSentBySender(ctx context.Context, senderUid string) ([]*model.PairRequest, error) {
	cutoff := time.Now().Add(-model.PairRequestRetention)

	var reqs []*model.PairRequest
	err := r.db.WithContext(ctx).
		Where("sender_uid = ? AND created_at > ?", senderUid, cutoff).
		Order("created_at DESC").
		Find(&reqs).Error
	if err != nil {
		return nil, WrapDBError(err)
	}
	return reqs, nil
}

// AcceptRequest 接受申请（事务 + CAS幂等）
// 在同一事务中执行：
//  1. 行锁读取申请（SELECT ... FOR UPDATE，并发接受时第二个事务在此排队）
//  2. 检查配对是否已存在（竞态下照样清除申请，上报 alreadyPaired）
//  3. 创建双向配对边（OnConflict DoNothing，部分失败重试不产生重复行）
//  4. 以双方全局默认值播种双向权限行（同样幂等）
//  5. 删除申请行
func (r *requestRepositoryImpl) AcceptRequest(ctx context.Context, accepterUid, requesterUid string) (bool, bool, error) {
	var (
		alreadyPaired bool
		isTemporary   bool
	)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()

		// 1. 行锁读取申请行
		var req model.PairRequest
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("sender_uid = ? AND target_uid = ?", requesterUid, accepterUid).
			First(&req).Error

		requestMissing := errors.Is(err, gorm.ErrRecordNotFound)
		if err != nil && !requestMissing {
			return err
		}

		// 超龄申请按不存在处理，顺手物理清除
		if !requestMissing && req.IsExpired(now) {
			if err := tx.Delete(&model.PairRequest{}, req.Id).Error; err != nil {
				return err
			}
			requestMissing = true
		}

		// 2. 检查配对是否已存在
		var pairCount int64
		if err := tx.Model(&model.ClientPair{}).
			Where("user_uid = ? AND other_uid = ?", accepterUid, requesterUid).
			Count(&pairCount).Error; err != nil {
			return err
		}

		if pairCount > 0 {
			// 竞态：另一个接受已经落库。申请行（若还在）照样清除，
			// 调用方按 AlreadyPaired 上报，客户端据此刷新本地配对列表
			alreadyPaired = true
			if !requestMissing {
				if err := tx.Delete(&model.PairRequest{}, req.Id).Error; err != nil {
					return err
				}
			}
			return nil
		}

		if requestMissing {
			return gorm.ErrRecordNotFound
		}

		isTemporary = req.IsTemporary

		// 3. 创建双向配对边（幂等）
		acceptedBy := ""
		if req.IsTemporary {
			acceptedBy = accepterUid
		}
		pairs := []*model.ClientPair{
			{UserUid: accepterUid, OtherUid: requesterUid, AcceptedBy: acceptedBy, CreatedAt: now, UpdatedAt: now},
			{UserUid: requesterUid, OtherUid: accepterUid, AcceptedBy: acceptedBy, CreatedAt: now, UpdatedAt: now},
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_uid"}, {Name: "other_uid"}},
			DoNothing: true,
		}).Create(&pairs).Error; err != nil {
			return err
		}

		// 4. 播种双向权限行（各自以本方全局默认值为模板）
		for _, edge := range [][2]string{{accepterUid, requesterUid}, {requesterUid, accepterUid}} {
			global, err := ensureGlobalTx(tx, edge[0])
			if err != nil {
				return err
			}
			perm := global.SeedPairPermission(edge[0], edge[1])
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "user_uid"}, {Name: "other_uid"}},
				DoNothing: true,
			}).Create(perm).Error; err != nil {
				return err
			}
		}

		// 5. 删除申请行
		return tx.Delete(&model.PairRequest{}, req.Id).Error
	})

	if err != nil {
		return false, false, WrapDBError(err)
	}

	// 事务成功后异步增量更新双方配对列表缓存
	if !alreadyPaired {
		r.addPairCacheAsync(ctx, accepterUid, requesterUid)
	}

	return alreadyPaired, isTemporary, nil
}

// ensureGlobalTx 事务内获取全局默认权限，不存在时创建默认行
func ensureGlobalTx(tx *gorm.DB, userUid string) (*model.GlobalPermission, error) {
	var global model.GlobalPermission
	err := tx.Where("user_uid = ?", userUid).First(&global).Error
	if err == nil {
		return &global, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	global = model.GlobalPermission{
		UserUid:         userUid,
		PauseVisual:     false,
		AllowSounds:     true,
		AllowAnimations: true,
		AllowVfx:        true,
	}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_uid"}},
		DoNothing: true,
	}).Create(&global).Error; err != nil {
		return nil, err
	}
	return &global, nil
}

// addPairCacheAsync 异步向双方的配对列表缓存添加对端
// 仅在缓存存在时做增量更新，Key 不存在时由读接口负责全量加载
func (r *requestRepositoryImpl) addPairCacheAsync(ctx context.Context, userUid, otherUid string) {
	async.RunSafe(ctx, func(runCtx context.Context) {
		pairs := []struct{ key, member string }{
			{rediskey.PairListKey(userUid), otherUid},
			{rediskey.PairListKey(otherUid), userUid},
		}
		expireSeconds := int(getRandomExpireTime(rediskey.PairListTTL).Seconds())
		luaScript := redis.NewScript(luaAddPairIfExists)

		for _, pair := range pairs {
			_, err := luaScript.Run(runCtx, r.redisClient,
				[]string{pair.key},
				pair.member,
				expireSeconds,
			).Result()
			if err != nil && err != redis.Nil {
				if isRedisWrongType(err) {
					_ = r.redisClient.Del(runCtx, pair.key).Err()
					continue
				}
				LogRedisError(runCtx, err)
			}
		}
	}, 0)
}

// deleteExpiredAsync 异步物理清除一条超龄申请
func (r *requestRepositoryImpl) deleteExpiredAsync(ctx context.Context, id int64) {
	async.RunSafe(ctx, func(runCtx context.Context) {
		if err := r.db.WithContext(runCtx).Delete(&model.PairRequest{}, id).Error; err != nil {
			// 清除失败无妨，外部 reaper 会兜底
			logger.Warn(runCtx, "超龄申请清除失败", logger.ErrorField("error", err))
		}
	}, 0)
}
