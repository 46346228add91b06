package service

import (
	"context"

	"PairServer/apps/hub/internal/dto"
	"PairServer/apps/hub/internal/manager"
	"PairServer/apps/hub/internal/svc"
)

// 服务层统一约定：
//   - 返回的 int 为业务结果码（consts），CodeSuccess 表示成功；
//   - 返回的 error 仅表示基础设施故障（DB/Redis/外部服务），由 handler
//     统一记日志并以 CodeInternalError 应答，业务失败不走 error。

// PairingService 配对状态机服务
type PairingService interface {
	// SendRequest 发起配对申请
	SendRequest(ctx context.Context, senderUid string, data *dto.SendRequestData) (*dto.SendRequestResult, int, error)

	// CancelRequest 发起方撤回申请
	CancelRequest(ctx context.Context, senderUid string, data *dto.CancelRequestData) (int, error)

	// RejectRequest 目标方拒绝申请
	RejectRequest(ctx context.Context, targetUid string, data *dto.RejectRequestData) (int, error)

	// AcceptRequest 目标方接受申请，成功时返回本方视角的配对物化视图
	AcceptRequest(ctx context.Context, accepterUid string, data *dto.AcceptRequestData) (*dto.PairView, int, error)

	// MakePermanent 临时配对转正（仅接受方可调用）
	MakePermanent(ctx context.Context, callerUid string, data *dto.MakePermanentData) (int, error)

	// RemovePair 解除配对
	RemovePair(ctx context.Context, callerUid string, data *dto.RemovePairData) (int, error)

	// Block 拉黑用户（不解除已有配对，只阻止新申请）
	Block(ctx context.Context, callerUid string, data *dto.BlockData) (int, error)

	// Unblock 取消拉黑
	Unblock(ctx context.Context, callerUid string, data *dto.UnblockData) (int, error)
}

// PermissionService 权限传播服务
type PermissionService interface {
	// SetSingle 单字段权限变更，返回变更后的完整视图
	SetSingle(ctx context.Context, callerUid string, data *dto.SetSinglePermissionData) (*dto.PermissionView, int, error)

	// SetBulk 批量权限变更，返回变更后的完整视图
	SetBulk(ctx context.Context, callerUid string, data *dto.SetBulkPermissionsData) (*dto.PermissionView, int, error)
}

// RadarService 雷达分区服务
type RadarService interface {
	// JoinZone 加入分区（已在其他分区时原子迁移）
	JoinZone(ctx context.Context, client *manager.Client, data *dto.RadarZoneJoinData) (*dto.RadarZoneJoinResult, int, error)

	// LeaveZone 离开当前分区
	LeaveZone(ctx context.Context, client *manager.Client) (int, error)

	// UpdateState 切换聊天组成员身份
	UpdateState(ctx context.Context, client *manager.Client, data *dto.RadarUpdateStateData) (*dto.RadarUpdateStateResult, int, error)

	// Chat 向当前分区聊天组广播一条消息
	Chat(ctx context.Context, client *manager.Client, data *dto.RadarChatData) (int, error)

	// Report 举报同分区占位者
	Report(ctx context.Context, client *manager.Client, data *dto.RadarReportData) (int, error)
}

// UserService 用户查询与档案服务
type UserService interface {
	// OnlinePairs 获取当前在线的配对对端
	OnlinePairs(ctx context.Context, uid string) (*dto.OnlinePairsResult, int, error)

	// ListPairs 获取全部配对的物化视图列表
	ListPairs(ctx context.Context, uid string) (*dto.PairListResult, int, error)

	// PendingRequests 获取待处理申请（收到的 + 发出的）
	PendingRequests(ctx context.Context, uid string) (*dto.PendingRequestsResult, int, error)

	// Profile 获取本人档案
	Profile(ctx context.Context, uid string) (*dto.ProfileResult, int, error)

	// UpdateProfile 更新本人档案并通知在线配对对端
	UpdateProfile(ctx context.Context, uid string, data *dto.UpdateProfileData) (*dto.ProfileResult, int, error)
}

// LifecycleService 连接生命周期服务（上线/心跳/下线）
type LifecycleService interface {
	// OnConnected 连接建立：写入在线状态、向可见配对对端广播上线、拼装首帧
	OnConnected(ctx context.Context, sess *svc.Session) (*dto.ConnectedData, error)

	// Heartbeat 心跳续期
	Heartbeat(ctx context.Context, sess *svc.Session) *dto.HeartbeatAckData

	// OnDisconnected 连接关闭：先清除在线状态，再向可见配对对端广播下线
	OnDisconnected(ctx context.Context, sess *svc.Session)
}
