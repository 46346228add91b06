package repository

import (
	"context"
	"database/sql"
	"time"

	rediskey "PairServer/consts/redisKey"
	"PairServer/model"
	"PairServer/pkg/async"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// ==================== 配对物化视图 ====================

// PermView 单份权限视图（有向）
type PermView struct {
	PauseVisual     bool `json:"pauseVisual"`
	AllowSounds     bool `json:"allowSounds"`
	AllowAnimations bool `json:"allowAnimations"`
	AllowVfx        bool `json:"allowVfx"`
}

// PairInfoRow 一条配对关系的完整物化视图。
// 四份权限视图为指针：nil 表示该行在库中缺失（惰性播种尚未补齐），
// 调用方据此区分"关系不存在"和"关系存在但权限缺失"两种情况。
type PairInfoRow struct {
	OtherUid   string
	OtherAlias string
	OtherTier  int8
	AcceptedBy string
	PairedAt   time.Time

	OwnPairPerm  *PermView // 本方指向对端的配对权限
	OwnGlobal    *PermView // 本方全局默认权限
	PeerPairPerm *PermView // 对端指向本方的配对权限
	PeerGlobal   *PermView // 对端全局默认权限
}

// IsTemporary 配对是否仍处于临时状态
func (p *PairInfoRow) IsTemporary() bool { return p.AcceptedBy != "" }

// pairInfoScan 物化查询的扁平扫描结构。
// 权限列来自 LEFT JOIN，均可能为 NULL。
type pairInfoScan struct {
	OtherUid   string    `gorm:"column:other_uid"`
	OtherAlias string    `gorm:"column:other_alias"`
	OtherTier  int8      `gorm:"column:other_tier"`
	AcceptedBy string    `gorm:"column:accepted_by"`
	PairedAt   time.Time `gorm:"column:paired_at"`

	OwnPpId     sql.NullInt64 `gorm:"column:own_pp_id"`
	OwnPpPause  sql.NullBool  `gorm:"column:own_pp_pause"`
	OwnPpSounds sql.NullBool  `gorm:"column:own_pp_sounds"`
	OwnPpAnims  sql.NullBool  `gorm:"column:own_pp_anims"`
	OwnPpVfx    sql.NullBool  `gorm:"column:own_pp_vfx"`

	PeerPpId     sql.NullInt64 `gorm:"column:peer_pp_id"`
	PeerPpPause  sql.NullBool  `gorm:"column:peer_pp_pause"`
	PeerPpSounds sql.NullBool  `gorm:"column:peer_pp_sounds"`
	PeerPpAnims  sql.NullBool  `gorm:"column:peer_pp_anims"`
	PeerPpVfx    sql.NullBool  `gorm:"column:peer_pp_vfx"`

	OwnGpId     sql.NullInt64 `gorm:"column:own_gp_id"`
	OwnGpPause  sql.NullBool  `gorm:"column:own_gp_pause"`
	OwnGpSounds sql.NullBool  `gorm:"column:own_gp_sounds"`
	OwnGpAnims  sql.NullBool  `gorm:"column:own_gp_anims"`
	OwnGpVfx    sql.NullBool  `gorm:"column:own_gp_vfx"`

	PeerGpId     sql.NullInt64 `gorm:"column:peer_gp_id"`
	PeerGpPause  sql.NullBool  `gorm:"column:peer_gp_pause"`
	PeerGpSounds sql.NullBool  `gorm:"column:peer_gp_sounds"`
	PeerGpAnims  sql.NullBool  `gorm:"column:peer_gp_anims"`
	PeerGpVfx    sql.NullBool  `gorm:"column:peer_gp_vfx"`
}

// toPermView NULL 安全地组装一份权限视图（id 列为 NULL 表示整行缺失）
func toPermView(id sql.NullInt64, pause, sounds, anims, vfx sql.NullBool) *PermView {
	if !id.Valid {
		return nil
	}
	return &PermView{
		PauseVisual:     pause.Bool,
		AllowSounds:     sounds.Bool,
		AllowAnimations: anims.Bool,
		AllowVfx:        vfx.Bool,
	}
}

func (s *pairInfoScan) toRow() *PairInfoRow {
	return &PairInfoRow{
		OtherUid:     s.OtherUid,
		OtherAlias:   s.OtherAlias,
		OtherTier:    s.OtherTier,
		AcceptedBy:   s.AcceptedBy,
		PairedAt:     s.PairedAt,
		OwnPairPerm:  toPermView(s.OwnPpId, s.OwnPpPause, s.OwnPpSounds, s.OwnPpAnims, s.OwnPpVfx),
		OwnGlobal:    toPermView(s.OwnGpId, s.OwnGpPause, s.OwnGpSounds, s.OwnGpAnims, s.OwnGpVfx),
		PeerPairPerm: toPermView(s.PeerPpId, s.PeerPpPause, s.PeerPpSounds, s.PeerPpAnims, s.PeerPpVfx),
		PeerGlobal:   toPermView(s.PeerGpId, s.PeerGpPause, s.PeerGpSounds, s.PeerGpAnims, s.PeerGpVfx),
	}
}

// pairInfoSQL 物化查询主体。
// 所有消费方（单个对端 / 全量枚举 / 接受 / 解除 / 权限传播）共用这一条查询，
// 避免各处手搓 JOIN 导致口径漂移。权限行缺失时照样返回该配对（视图为 NULL）。
const pairInfoSQL = `
SELECT
	cp.other_uid   AS other_uid,
	cp.accepted_by AS accepted_by,
	cp.created_at  AS paired_at,
	COALESCE(u.alias, '') AS other_alias,
	COALESCE(u.tier, 0)   AS other_tier,
	op.id AS own_pp_id,  op.pause_visual AS own_pp_pause,  op.allow_sounds AS own_pp_sounds,  op.allow_animations AS own_pp_anims,  op.allow_vfx AS own_pp_vfx,
	pp.id AS peer_pp_id, pp.pause_visual AS peer_pp_pause, pp.allow_sounds AS peer_pp_sounds, pp.allow_animations AS peer_pp_anims, pp.allow_vfx AS peer_pp_vfx,
	og.id AS own_gp_id,  og.pause_visual AS own_gp_pause,  og.allow_sounds AS own_gp_sounds,  og.allow_animations AS own_gp_anims,  og.allow_vfx AS own_gp_vfx,
	pg.id AS peer_gp_id, pg.pause_visual AS peer_gp_pause, pg.allow_sounds AS peer_gp_sounds, pg.allow_animations AS peer_gp_anims, pg.allow_vfx AS peer_gp_vfx
FROM client_pair cp
LEFT JOIN user_info u        ON u.uid = cp.other_uid AND u.deleted_at IS NULL
LEFT JOIN pair_permission op ON op.user_uid = cp.user_uid  AND op.other_uid = cp.other_uid
LEFT JOIN pair_permission pp ON pp.user_uid = cp.other_uid AND pp.other_uid = cp.user_uid
LEFT JOIN global_permission og ON og.user_uid = cp.user_uid
LEFT JOIN global_permission pg ON pg.user_uid = cp.other_uid
WHERE cp.user_uid = ?`

// pairRepositoryImpl 配对关系数据访问层实现
type pairRepositoryImpl struct {
	db          *gorm.DB
	redisClient *redis.Client
}

// NewPairRepository 创建配对关系仓储实例
func NewPairRepository(db *gorm.DB, redisClient *redis.Client) IPairRepository {
	return &pairRepositoryImpl{db: db, redisClient: redisClient}
}

// GetPairInfo 获取单个配对的完整物化视图
func (r *pairRepositoryImpl) GetPairInfo(ctx context.Context, userUid, otherUid string) (*PairInfoRow, error) {
	var scans []pairInfoScan
	err := r.db.WithContext(ctx).
		Raw(pairInfoSQL+" AND cp.other_uid = ?", userUid, otherUid).
		Scan(&scans).Error
	if err != nil {
		return nil, WrapDBError(err)
	}
	if len(scans) == 0 {
		// 关系不存在（与权限缺失是两回事）
		return nil, nil
	}
	return scans[0].toRow(), nil
}

// GetAllPairInfo 获取某用户全部配对的完整物化视图
func (r *pairRepositoryImpl) GetAllPairInfo(ctx context.Context, userUid string) ([]*PairInfoRow, error) {
	var scans []pairInfoScan
	err := r.db.WithContext(ctx).
		Raw(pairInfoSQL+" ORDER BY cp.created_at ASC, cp.id ASC", userUid).
		Scan(&scans).Error
	if err != nil {
		return nil, WrapDBError(err)
	}

	rows := make([]*PairInfoRow, 0, len(scans))
	for i := range scans {
		rows = append(rows, scans[i].toRow())
	}
	return rows, nil
}

// ExistsPair 检查有向配对边是否存在
func (r *pairRepositoryImpl) ExistsPair(ctx context.Context, userUid, otherUid string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.ClientPair{}).
		Where("user_uid = ? AND other_uid = ?", userUid, otherUid).
		Count(&count).Error
	if err != nil {
		return false, WrapDBError(err)
	}
	return count > 0, nil
}

// GetPairUids 获取某用户全部配对对端 uid
// 采用 Cache-Aside Pattern：优先查 Redis Set，未命中回源 MySQL 并异步重建
func (r *pairRepositoryImpl) GetPairUids(ctx context.Context, userUid string) ([]string, error) {
	cacheKey := rediskey.PairListKey(userUid)

	// ==================== 1. 查询 Redis (Pipeline) ====================
	pipe := r.redisClient.Pipeline()
	existsCmd := pipe.Exists(ctx, cacheKey)
	membersCmd := pipe.SMembers(ctx, cacheKey)

	// 概率续期优化：1% 的概率在读取时顺便续期
	if getRandomBool(0.01) {
		pipe.Expire(ctx, cacheKey, getRandomExpireTime(rediskey.PairListTTL))
	}

	_, err := pipe.Exec(ctx)
	if err != nil && err != redis.Nil {
		if isRedisWrongType(err) {
			_ = r.redisClient.Del(ctx, cacheKey).Err()
		} else {
			// Redis 挂了，记录日志，降级去查 DB
			LogRedisError(ctx, err)
		}
	} else if err == nil && existsCmd.Val() > 0 {
		// 缓存命中，过滤空值占位符
		members := membersCmd.Val()
		uids := make([]string, 0, len(members))
		for _, m := range members {
			if m != "__EMPTY__" {
				uids = append(uids, m)
			}
		}
		return uids, nil
	}

	// ==================== 2. 缓存未命中，回源查询 MySQL ====================
	var pairs []model.ClientPair
	err = r.db.WithContext(ctx).
		Select("other_uid").
		Where("user_uid = ?", userUid).
		Find(&pairs).Error
	if err != nil {
		return nil, WrapDBError(err)
	}

	uids := make([]string, 0, len(pairs))
	for _, p := range pairs {
		if p.OtherUid != "" {
			uids = append(uids, p.OtherUid)
		}
	}

	// ==================== 3. 异步重建缓存 (Set) ====================
	r.rebuildPairCacheAsync(ctx, userUid, uids)

	return uids, nil
}

// MakePermanent 清除双向临时标记
// CAS 条件：本方向行的 accepted_by 必须等于 callerUid（只有接受方可转正）
func (r *pairRepositoryImpl) MakePermanent(ctx context.Context, callerUid, otherUid string) (int64, error) {
	var affected int64

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. CAS 清除本方向行（WHERE accepted_by=caller 作为守门员）
		result := tx.Model(&model.ClientPair{}).
			Where("user_uid = ? AND other_uid = ? AND accepted_by = ?", callerUid, otherUid, callerUid).
			Update("accepted_by", "")
		if result.Error != nil {
			return result.Error
		}

		affected = result.RowsAffected
		if affected == 0 {
			// 没有可转正的行：已永久 / 调用方不是接受方 / 未配对。不触发回滚，由上层细分
			return nil
		}

		// 2. 同步清除反方向行，保持两条边状态一致
		return tx.Model(&model.ClientPair{}).
			Where("user_uid = ? AND other_uid = ? AND accepted_by = ?", otherUid, callerUid, callerUid).
			Update("accepted_by", "").Error
	})

	if err != nil {
		return 0, WrapDBError(err)
	}
	return affected, nil
}

// RemovePair 事务删除双向配对边和双向权限行
func (r *pairRepositoryImpl) RemovePair(ctx context.Context, userUid, otherUid string) error {
	var notFound bool

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. 删除本方向边（守门员：0 行表示未配对）
		result := tx.Where("user_uid = ? AND other_uid = ?", userUid, otherUid).
			Delete(&model.ClientPair{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			notFound = true
			return nil
		}

		// 2. 删除反方向边 + 双向权限行
		if err := tx.Where("user_uid = ? AND other_uid = ?", otherUid, userUid).
			Delete(&model.ClientPair{}).Error; err != nil {
			return err
		}
		return tx.Where("(user_uid = ? AND other_uid = ?) OR (user_uid = ? AND other_uid = ?)",
			userUid, otherUid, otherUid, userUid).
			Delete(&model.PairPermission{}).Error
	})

	if err != nil {
		return WrapDBError(err)
	}
	if notFound {
		return ErrRecordNotFound
	}

	// 3. 事务成功后异步增量更新双方配对列表缓存
	r.removePairCacheAsync(ctx, userUid, otherUid)

	return nil
}

// rebuildPairCacheAsync 异步重建配对列表缓存（Set）
func (r *pairRepositoryImpl) rebuildPairCacheAsync(ctx context.Context, userUid string, uids []string) {
	cacheKey := rediskey.PairListKey(userUid)
	async.RunSafe(ctx, func(runCtx context.Context) {
		pipe := r.redisClient.Pipeline()
		pipe.Del(runCtx, cacheKey)

		if len(uids) == 0 {
			// 空值占位，防止缓存穿透
			pipe.SAdd(runCtx, cacheKey, "__EMPTY__")
			pipe.Expire(runCtx, cacheKey, rediskey.PairListEmptyTTL)
		} else {
			members := make([]interface{}, 0, len(uids))
			for _, uid := range uids {
				members = append(members, uid)
			}
			pipe.SAdd(runCtx, cacheKey, members...)
			pipe.Expire(runCtx, cacheKey, getRandomExpireTime(rediskey.PairListTTL))
		}

		if _, err := pipe.Exec(runCtx); err != nil && err != redis.Nil {
			if isRedisWrongType(err) {
				_ = r.redisClient.Del(runCtx, cacheKey).Err()
				return
			}
			LogRedisError(runCtx, err)
		}
	}, 0)
}

// removePairCacheAsync 异步从双方的配对列表缓存移除对端
// 仅在缓存存在时做增量更新，避免过期后写入不完整 Set
func (r *pairRepositoryImpl) removePairCacheAsync(ctx context.Context, userUid, otherUid string) {
	async.RunSafe(ctx, func(runCtx context.Context) {
		pairs := []struct{ key, member string }{
			{rediskey.PairListKey(userUid), otherUid},
			{rediskey.PairListKey(otherUid), userUid},
		}
		expireSeconds := int(getRandomExpireTime(rediskey.PairListTTL).Seconds())
		luaScript := redis.NewScript(luaRemovePairIfExists)

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
