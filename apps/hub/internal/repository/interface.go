package repository

import (
	"context"

	"PairServer/model"
)

// ==================== 用户信息 Repository ====================

// IUserRepository 用户信息数据访问接口
type IUserRepository interface {
	// GetByUid 根据 uid 查询用户信息
	GetByUid(ctx context.Context, uid string) (*model.UserInfo, error)

	// ExistsByUid 检查 uid 是否存在
	ExistsByUid(ctx context.Context, uid string) (bool, error)

	// BatchGetByUids 批量查询用户信息
	BatchGetByUids(ctx context.Context, uids []string) ([]*model.UserInfo, error)

	// Create 创建用户档案
	Create(ctx context.Context, user *model.UserInfo) (*model.UserInfo, error)

	// UpdateAlias 更新展示别名
	UpdateAlias(ctx context.Context, uid, alias string) error

	// GetTier 获取信誉等级
	GetTier(ctx context.Context, uid string) (int8, error)
}

// ==================== 配对关系 Repository ====================

// IPairRepository 配对关系数据访问接口
type IPairRepository interface {
	// GetPairInfo 获取单个配对的完整物化视图
	// 返回 nil 表示配对关系不存在（区别于"存在但权限行缺失"）
	GetPairInfo(ctx context.Context, userUid, otherUid string) (*PairInfoRow, error)

	// GetAllPairInfo 获取某用户全部配对的完整物化视图
	GetAllPairInfo(ctx context.Context, userUid string) ([]*PairInfoRow, error)

	// ExistsPair 检查有向配对边是否存在
	ExistsPair(ctx context.Context, userUid, otherUid string) (bool, error)

	// GetPairUids 获取某用户全部配对对端 uid（Redis Set 缓存 + MySQL 回源）
	GetPairUids(ctx context.Context, userUid string) ([]string, error)

	// MakePermanent 清除双向临时标记（CAS：仅 accepted_by=callerUid 时生效）
	// 返回值: affected=0 表示没有可转正的行（已永久或调用方不是接受方）
	MakePermanent(ctx context.Context, callerUid, otherUid string) (affected int64, err error)

	// RemovePair 事务删除双向配对边和双向权限行
	// 返回 ErrRecordNotFound 表示配对不存在
	RemovePair(ctx context.Context, userUid, otherUid string) error
}

// ==================== 配对申请 Repository ====================

// IRequestRepository 配对申请数据访问接口
type IRequestRepository interface {
	// Create 创建配对申请（同一有向对唯一，冲突返回 ErrDuplicateKey）
	Create(ctx context.Context, req *model.PairRequest) (*model.PairRequest, error)

	// Get 获取一条申请（超龄行按不存在处理并顺手物理清除）
	Get(ctx context.Context, senderUid, targetUid string) (*model.PairRequest, error)

	// Delete 删除一条申请
	// 返回值: affected=0 表示申请不存在
	Delete(ctx context.Context, senderUid, targetUid string) (affected int64, err error)

	// ExistsPendingBetween 检查两用户间任一方向是否存在未过期申请
	ExistsPendingBetween(ctx context.Context, aUid, bUid string) (bool, error)

	// ListPendingForTarget 获取发给某用户的全部未过期申请
	ListPendingForTarget(ctx context.Context, targetUid string) ([]*model.PairRequest, error)

	// ListSentBySender 获取某用户发出的全部未过期申请
	ListSentBySender(ctx context.Context, senderUid string) ([]*model.PairRequest, error)

	// AcceptRequest 接受申请（单事务）：
	// 删除申请行 + 创建双向配对边 + 播种双向权限行（全部幂等）。
	// 返回值:
	//   - alreadyPaired=true: 配对已存在（申请照样被清除，调用方按 AlreadyPaired 上报）
	//   - isTemporary: 申请是否为临时配对申请
	//   - err=ErrRecordNotFound: 申请不存在且配对也不存在
	AcceptRequest(ctx context.Context, accepterUid, requesterUid string) (alreadyPaired bool, isTemporary bool, err error)
}

// ==================== 权限 Repository ====================

// IPermissionRepository 权限数据访问接口
type IPermissionRepository interface {
	// GetGlobal 获取用户全局默认权限（不存在时创建默认行）
	GetGlobal(ctx context.Context, userUid string) (*model.GlobalPermission, error)

	// UpdateGlobal 更新全局默认权限字段
	// updates: 列名 -> 新值（由上层完成字段名校验）
	UpdateGlobal(ctx context.Context, userUid string, updates map[string]interface{}) error

	// GetPairPerm 获取有向配对权限行（不存在返回 ErrRecordNotFound）
	GetPairPerm(ctx context.Context, userUid, otherUid string) (*model.PairPermission, error)

	// MutatePairPerm 行锁读改写配对权限行（SELECT ... FOR UPDATE）
	// 返回改动前后的快照，供上层做可视暂停翻转检测
	MutatePairPerm(ctx context.Context, userUid, otherUid string, updates map[string]interface{}) (before *model.PairPermission, after *model.PairPermission, err error)
}

// ==================== 拉黑 Repository ====================

// IBlockRepository 拉黑数据访问接口
type IBlockRepository interface {
	// Block 拉黑用户（重复拉黑返回 ErrDuplicateKey）
	Block(ctx context.Context, userUid, otherUid string) error

	// Unblock 取消拉黑
	// 返回值: affected=0 表示未拉黑
	Unblock(ctx context.Context, userUid, otherUid string) (affected int64, err error)

	// IsBlockedEither 检查两用户间任一方向是否存在拉黑
	IsBlockedEither(ctx context.Context, aUid, bUid string) (bool, error)

	// CreateReport 记录雷达举报（同分区重复举报返回 ErrDuplicateKey）
	CreateReport(ctx context.Context, report *model.RadarReport) error
}

// ==================== 在线状态 Repository ====================

// IPresenceRepository 在线状态数据访问接口（Redis TTL）
type IPresenceRepository interface {
	// SetOnline 写入在线状态（SET EX），失败时投递重试队列
	SetOnline(ctx context.Context, uid, charIdent string) error

	// Heartbeat 续期在线状态
	Heartbeat(ctx context.Context, uid, charIdent string) error

	// RemoveOnline 删除在线状态（仅当当前值仍是本连接的角色标识）
	RemoveOnline(ctx context.Context, uid, charIdent string) error

	// GetOnlineIdent 获取在线角色标识（离线返回空串，不报错）
	GetOnlineIdent(ctx context.Context, uid string) (string, error)

	// IsOnline 检查用户是否在线
	IsOnline(ctx context.Context, uid string) (bool, error)

	// BatchGetOnline 批量获取在线角色标识（Pipeline）
	// 返回: map[uid]charIdent，离线用户不出现在结果里
	BatchGetOnline(ctx context.Context, uids []string) (map[string]string, error)
}
