package service

import (
	"context"

	"PairServer/apps/hub/internal/dispatch"
	"PairServer/apps/hub/internal/dto"
	"PairServer/apps/hub/internal/repository"
	"PairServer/apps/hub/internal/svc"
	"PairServer/pkg/logger"
)

// lifecycleServiceImpl 连接生命周期服务实现
type lifecycleServiceImpl struct {
	serverName string
	shardID    int

	userRepo     repository.IUserRepository
	pairRepo     repository.IPairRepository
	permRepo     repository.IPermissionRepository
	presenceRepo repository.IPresenceRepository
	dispatcher   *dispatch.Dispatcher
}

// NewLifecycleService 创建生命周期服务实例
func NewLifecycleService(
	serverName string,
	shardID int,
	userRepo repository.IUserRepository,
	pairRepo repository.IPairRepository,
	permRepo repository.IPermissionRepository,
	presenceRepo repository.IPresenceRepository,
	dispatcher *dispatch.Dispatcher,
) LifecycleService {
	return &lifecycleServiceImpl{
		serverName:   serverName,
		shardID:      shardID,
		userRepo:     userRepo,
		pairRepo:     pairRepo,
		permRepo:     permRepo,
		presenceRepo: presenceRepo,
		dispatcher:   dispatcher,
	}
}

// OnConnected 连接建立。
// 先写在线状态（TTL 兜底：本实例崩溃后状态最多滞留一个 TTL 周期），
// 再物化配对视图拼装首帧，最后向"能看见我"的在线对端广播上线。
func (s *lifecycleServiceImpl) OnConnected(ctx context.Context, sess *svc.Session) (*dto.ConnectedData, error) {
	if err := s.presenceRepo.SetOnline(ctx, sess.Uid, sess.CharIdent); err != nil {
		return nil, err
	}

	rows, err := s.pairRepo.GetAllPairInfo(ctx, sess.Uid)
	if err != nil {
		return nil, err
	}

	online := map[string]string{}
	if len(rows) > 0 {
		otherUids := make([]string, 0, len(rows))
		for _, row := range rows {
			otherUids = append(otherUids, row.OtherUid)
		}
		online, err = s.presenceRepo.BatchGetOnline(ctx, otherUids)
		if err != nil {
			logger.Warn(ctx, "在线状态批量查询失败，首帧按全员离线返回",
				logger.String("uid", sess.Uid),
				logger.ErrorField("error", err),
			)
			online = map[string]string{}
		}
	}

	// 首帧里的在线列表过滤掉"我暂停了的"对端——对我而言它们就是离线
	onlinePairUids := make([]string, 0, len(online))
	for _, row := range rows {
		if _, ok := online[row.OtherUid]; !ok {
			continue
		}
		if row.OwnPairPerm != nil && row.OwnPairPerm.PauseVisual {
			continue
		}
		onlinePairUids = append(onlinePairUids, row.OtherUid)
	}

	global, err := s.permRepo.GetGlobal(ctx, sess.Uid)
	if err != nil {
		return nil, err
	}
	tier, err := s.userRepo.GetTier(ctx, sess.Uid)
	if err != nil {
		return nil, err
	}

	s.broadcastVisibility(ctx, sess, rows, online, true)

	return &dto.ConnectedData{
		ServerName:     s.serverName,
		ShardID:        s.shardID,
		ConnID:         sess.ConnID,
		OnlinePairUids: onlinePairUids,
		GlobalPerms:    globalPermToView(global),
		Tier:           tier,
	}, nil
}

// Heartbeat 心跳续期。续期失败不断开连接，下一拍自然补偿。
func (s *lifecycleServiceImpl) Heartbeat(ctx context.Context, sess *svc.Session) *dto.HeartbeatAckData {
	err := s.presenceRepo.Heartbeat(ctx, sess.Uid, sess.CharIdent)
	return &dto.HeartbeatAckData{Alive: err == nil}
}

// OnDisconnected 连接关闭。
// 顺序不可调换：先清在线状态再广播下线，否则收到下线帧的对端回查
// presence 还能查到人，视图会短暂错乱。
func (s *lifecycleServiceImpl) OnDisconnected(ctx context.Context, sess *svc.Session) {
	if err := s.presenceRepo.RemoveOnline(ctx, sess.Uid, sess.CharIdent); err != nil {
		logger.Warn(ctx, "在线状态清除失败，等待 TTL 过期兜底",
			logger.String("uid", sess.Uid),
			logger.ErrorField("error", err),
		)
	}

	rows, err := s.pairRepo.GetAllPairInfo(ctx, sess.Uid)
	if err != nil {
		logger.Warn(ctx, "配对视图查询失败，跳过下线广播",
			logger.String("uid", sess.Uid),
			logger.ErrorField("error", err),
		)
		return
	}
	if len(rows) == 0 {
		return
	}

	otherUids := make([]string, 0, len(rows))
	for _, row := range rows {
		otherUids = append(otherUids, row.OtherUid)
	}
	online, err := s.presenceRepo.BatchGetOnline(ctx, otherUids)
	if err != nil {
		logger.Warn(ctx, "在线状态批量查询失败，跳过下线广播",
			logger.String("uid", sess.Uid),
			logger.ErrorField("error", err),
		)
		return
	}

	s.broadcastVisibility(ctx, sess, rows, online, false)
}

// broadcastVisibility 向在线且"能看见我"的配对对端广播上线/下线。
// 对端把我暂停时不发：对它而言我一直是离线的，没有状态变化。
func (s *lifecycleServiceImpl) broadcastVisibility(ctx context.Context, sess *svc.Session, rows []*repository.PairInfoRow, online map[string]string, isOnline bool) {
	toUids := make([]string, 0, len(online))
	for _, row := range rows {
		if _, ok := online[row.OtherUid]; !ok {
			continue
		}
		if row.PeerPairPerm != nil && row.PeerPairPerm.PauseVisual {
			continue
		}
		toUids = append(toUids, row.OtherUid)
	}
	if len(toUids) == 0 {
		return
	}

	if isOnline {
		s.dispatcher.Broadcast(ctx, toUids, dispatch.PushUserOnline, &dto.UserOnlineData{
			Uid:       sess.Uid,
			CharIdent: sess.CharIdent,
		})
		return
	}
	s.dispatcher.Broadcast(ctx, toUids, dispatch.PushUserOffline, &dto.UserOfflineData{
		Uid: sess.Uid,
	})
}
