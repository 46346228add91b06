// Package dispatch 负责把类型化推送帧投递给在线用户。
// 投递语义：
//   - 单目标推送同步入队（同一因果链内的帧保持发出顺序）；
//   - 多目标广播走协程池，互相独立的对端之间不保证顺序；
//   - 永不阻塞发起方的 RPC：入队失败只记日志和指标，不重试不回滚。
package dispatch

import (
	"context"

	"PairServer/apps/hub/internal/dto"
	"PairServer/apps/hub/internal/manager"
	"PairServer/apps/hub/internal/metrics"
	"PairServer/apps/hub/internal/svc"
	"PairServer/pkg/async"
	"PairServer/pkg/logger"
)

// ==================== 推送帧类型 ====================

const (
	PushPairAdded            = "pair_added"
	PushPairRemoved          = "pair_removed"
	PushRequestAdded         = "request_added"
	PushRequestRemoved       = "request_removed"
	PushPairPermanent        = "pair_permanent"
	PushUserOnline           = "user_online"
	PushUserOffline          = "user_offline"
	PushPermChanged          = "perm_changed"
	PushGlobalPermChanged    = "global_perm_changed"
	PushProfileUpdated       = "profile_updated"
	PushRadarOccupantAdded   = "radar_occupant_added"
	PushRadarOccupantRemoved = "radar_occupant_removed"
	PushRadarChat            = "radar_chat"
	PushRadarUserFlagged     = "radar_user_flagged"
	PushServerMessage        = "server_message"
	PushReconnectRequired    = "reconnect_required"
)

// Dispatcher 推送分发器。
type Dispatcher struct {
	connManager *manager.ConnectionManager
}

// NewDispatcher 创建推送分发器实例。
func NewDispatcher(connManager *manager.ConnectionManager) *Dispatcher {
	return &Dispatcher{connManager: connManager}
}

// Push 向单个用户推送一帧（同步入队）。
// 返回 false 表示目标不在本实例或写队列不可用——调用方不应据此失败，
// 离线对端会在下次连接时通过全量拉取追平。
func (d *Dispatcher) Push(ctx context.Context, toUid, msgType string, data any) bool {
	payload, err := svc.MarshalFrame(msgType, 0, data)
	if err != nil {
		logger.Error(ctx, "推送帧序列化失败",
			logger.String("push_type", msgType),
			logger.ErrorField("error", err),
		)
		return false
	}

	ok := d.connManager.SendToUser(toUid, payload)
	if !ok {
		metrics.PushDropped.WithLabelValues(msgType).Inc()
		logger.Debug(ctx, "推送未入队（目标离线或队列满）",
			logger.String("push_type", msgType),
			logger.String("to_uid", toUid),
		)
	}
	return ok
}

// Broadcast 向一组用户广播同一帧（协程池异步执行）。
// 各目标之间相互独立，不保证顺序；发起方 RPC 不等待投递完成。
func (d *Dispatcher) Broadcast(ctx context.Context, toUids []string, msgType string, data any) {
	if len(toUids) == 0 {
		return
	}

	payload, err := svc.MarshalFrame(msgType, 0, data)
	if err != nil {
		logger.Error(ctx, "广播帧序列化失败",
			logger.String("push_type", msgType),
			logger.ErrorField("error", err),
		)
		return
	}

	uids := append([]string(nil), toUids...)
	async.RunSafe(ctx, func(runCtx context.Context) {
		for _, uid := range uids {
			if !d.connManager.SendToUser(uid, payload) {
				metrics.PushDropped.WithLabelValues(msgType).Inc()
			}
		}
	}, 0)
}

// BroadcastToClients 向一组连接广播同一帧（雷达聊天组扇出）。
// 目标列表由调用方从 RadarManager 快照而来，直接入队。
func (d *Dispatcher) BroadcastToClients(ctx context.Context, clients []*manager.Client, msgType string, data any) {
	if len(clients) == 0 {
		return
	}

	payload, err := svc.MarshalFrame(msgType, 0, data)
	if err != nil {
		logger.Error(ctx, "广播帧序列化失败",
			logger.String("push_type", msgType),
			logger.ErrorField("error", err),
		)
		return
	}

	targets := append([]*manager.Client(nil), clients...)
	async.RunSafe(ctx, func(_ context.Context) {
		for _, client := range targets {
			if !client.Enqueue(payload) {
				metrics.PushDropped.WithLabelValues(msgType).Inc()
			}
		}
	}, 0)
}

// ==================== 类型化单播 ====================

// PushRequestAddedTo 通知目标方收到新申请
func (d *Dispatcher) PushRequestAddedTo(ctx context.Context, toUid string, data *dto.RequestAddedData) {
	d.Push(ctx, toUid, PushRequestAdded, data)
}

// PushRequestRemovedTo 通知某方申请已消失（取消/拒绝/已接受）
func (d *Dispatcher) PushRequestRemovedTo(ctx context.Context, toUid string, data *dto.RequestRemovedData) {
	d.Push(ctx, toUid, PushRequestRemoved, data)
}

// PushPairAddedTo 通知某方新配对建立
func (d *Dispatcher) PushPairAddedTo(ctx context.Context, toUid string, data *dto.PairAddedData) {
	d.Push(ctx, toUid, PushPairAdded, data)
}

// PushPairRemovedTo 通知某方配对被解除
func (d *Dispatcher) PushPairRemovedTo(ctx context.Context, toUid string, data *dto.PairRemovedData) {
	d.Push(ctx, toUid, PushPairRemoved, data)
}

// PushPairPermanentTo 通知对端临时配对已转正
func (d *Dispatcher) PushPairPermanentTo(ctx context.Context, toUid string, data *dto.PairPermanentData) {
	d.Push(ctx, toUid, PushPairPermanent, data)
}

// PushUserOnlineTo 通知某方配对对端上线（真实上线或解除可视暂停）
func (d *Dispatcher) PushUserOnlineTo(ctx context.Context, toUid string, data *dto.UserOnlineData) {
	d.Push(ctx, toUid, PushUserOnline, data)
}

// PushUserOfflineTo 通知某方配对对端下线（真实下线或进入可视暂停）
func (d *Dispatcher) PushUserOfflineTo(ctx context.Context, toUid string, data *dto.UserOfflineData) {
	d.Push(ctx, toUid, PushUserOffline, data)
}

// PushPermChangedTo 通知对端指向其的配对权限有变更
func (d *Dispatcher) PushPermChangedTo(ctx context.Context, toUid string, data *dto.PermChangedData) {
	d.Push(ctx, toUid, PushPermChanged, data)
}
