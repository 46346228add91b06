package service

import (
	"context"
	"errors"
	"time"

	"PairServer/apps/hub/internal/dispatch"
	"PairServer/apps/hub/internal/dto"
	"PairServer/apps/hub/internal/manager"
	"PairServer/apps/hub/internal/reputation"
	"PairServer/apps/hub/internal/repository"
	"PairServer/consts"
	"PairServer/model"
	"PairServer/pkg/logger"

	"github.com/bwmarrin/snowflake"
)

// radarServiceImpl 雷达分区服务实现
type radarServiceImpl struct {
	userRepo     repository.IUserRepository
	blockRepo    repository.IBlockRepository
	radarManager *manager.RadarManager
	dispatcher   *dispatch.Dispatcher
	repClient    *reputation.Client
	node         *snowflake.Node // 聊天消息 id 发号器
}

// NewRadarService 创建雷达服务实例
func NewRadarService(
	userRepo repository.IUserRepository,
	blockRepo repository.IBlockRepository,
	radarManager *manager.RadarManager,
	dispatcher *dispatch.Dispatcher,
	repClient *reputation.Client,
	node *snowflake.Node,
) RadarService {
	return &radarServiceImpl{
		userRepo:     userRepo,
		blockRepo:    blockRepo,
		radarManager: radarManager,
		dispatcher:   dispatcher,
		repClient:    repClient,
		node:         node,
	}
}

// JoinZone 加入分区。
// 已在其他分区时原子迁移：旧分区占位者收 occupant_removed，新分区收 occupant_added。
// 迁移前在聊天组的连接会尝试重新入组，新组满员时保留占位、聊天掉线并回带容量信号。
func (s *radarServiceImpl) JoinZone(ctx context.Context, client *manager.Client, data *dto.RadarZoneJoinData) (*dto.RadarZoneJoinResult, int, error) {
	verdict, err := s.repClient.Check(ctx, client.Uid())
	if err != nil {
		return nil, consts.CodeInternalError, err
	}
	if !verdict.AllowRadar {
		return nil, consts.CodeRestrictedByReputation, nil
	}

	oldZoneKey, _ := s.radarManager.Membership(client)
	zoneKey := manager.ZoneKey(data.WorldID, data.TerritoryID)

	occupants, wasInChat := s.radarManager.JoinZone(client, data.WorldID, data.TerritoryID)

	inChat, chatFull := false, false
	if wasInChat {
		inChat, chatFull, _ = s.radarManager.SetChat(client, true)
	}

	if oldZoneKey != "" && oldZoneKey != zoneKey {
		s.dispatcher.BroadcastToClients(ctx, s.radarManager.ZoneOccupants(oldZoneKey),
			dispatch.PushRadarOccupantRemoved, &dto.RadarOccupantRemovedData{
				ZoneKey: oldZoneKey,
				Uid:     client.Uid(),
			})
	}

	s.dispatcher.BroadcastToClients(ctx, occupants,
		dispatch.PushRadarOccupantAdded, &dto.RadarOccupantAddedData{
			ZoneKey: zoneKey,
			Occupant: &dto.RadarOccupant{
				Uid:       client.Uid(),
				Alias:     s.aliasOf(ctx, client.Uid()),
				CharIdent: client.CharIdent(),
				InChat:    inChat,
			},
		})

	return &dto.RadarZoneJoinResult{
		ZoneKey:   zoneKey,
		InChat:    inChat,
		ChatFull:  chatFull,
		Occupants: s.buildOccupants(ctx, occupants),
	}, consts.CodeSuccess, nil
}

// LeaveZone 离开当前分区
func (s *radarServiceImpl) LeaveZone(ctx context.Context, client *manager.Client) (int, error) {
	zoneKey := s.radarManager.Leave(client)
	if zoneKey == "" {
		return consts.CodeNotInZone, nil
	}

	s.dispatcher.BroadcastToClients(ctx, s.radarManager.ZoneOccupants(zoneKey),
		dispatch.PushRadarOccupantRemoved, &dto.RadarOccupantRemovedData{
			ZoneKey: zoneKey,
			Uid:     client.Uid(),
		})
	return consts.CodeSuccess, nil
}

// UpdateState 切换聊天组成员身份。
// 满员拒绝而不是排队：占位保留，客户端拿到容量信号自行决定重试。
func (s *radarServiceImpl) UpdateState(ctx context.Context, client *manager.Client, data *dto.RadarUpdateStateData) (*dto.RadarUpdateStateResult, int, error) {
	if data.UseChat {
		verdict, err := s.repClient.Check(ctx, client.Uid())
		if err != nil {
			return nil, consts.CodeInternalError, err
		}
		if !verdict.AllowChat {
			return nil, consts.CodeRestrictedByReputation, nil
		}
	}

	joined, full, inZone := s.radarManager.SetChat(client, data.UseChat)
	if !inZone {
		return nil, consts.CodeNotInZone, nil
	}

	result := &dto.RadarUpdateStateResult{InChat: joined, ChatFull: full}
	if full {
		return result, consts.CodeGroupFull, nil
	}
	return result, consts.CodeSuccess, nil
}

// Chat 向当前分区聊天组广播消息。
// 不留历史：扇出即结束，错过的成员就是错过了。
func (s *radarServiceImpl) Chat(ctx context.Context, client *manager.Client, data *dto.RadarChatData) (int, error) {
	if !client.AllowChat() {
		return consts.CodeTooManyRequests, nil
	}

	zoneKey, inChat := s.radarManager.Membership(client)
	if zoneKey == "" || !inChat {
		return consts.CodeNotInZone, nil
	}

	s.dispatcher.BroadcastToClients(ctx, s.radarManager.ChatMembers(zoneKey),
		dispatch.PushRadarChat, &dto.RadarChatPush{
			MessageID:   s.node.Generate().String(),
			ZoneKey:     zoneKey,
			SenderUid:   client.Uid(),
			SenderAlias: s.aliasOf(ctx, client.Uid()),
			Message:     data.Message,
			SentAt:      time.Now().UnixMilli(),
		})
	return consts.CodeSuccess, nil
}

// Report 举报同分区占位者。
// 落库后立即失效被举报人的信誉缓存，下一次裁定走外部服务重新计算。
func (s *radarServiceImpl) Report(ctx context.Context, client *manager.Client, data *dto.RadarReportData) (int, error) {
	if data.ReportedUid == client.Uid() {
		return consts.CodeCannotInteractWithSelf, nil
	}

	zoneKey, _ := s.radarManager.Membership(client)
	if zoneKey == "" {
		return consts.CodeNotInZone, nil
	}

	// 被举报人必须仍在同一分区占位
	found := false
	for _, c := range s.radarManager.ZoneOccupants(zoneKey) {
		if c.Uid() == data.ReportedUid {
			found = true
			break
		}
	}
	if !found {
		return consts.CodeResourceNotFound, nil
	}

	err := s.blockRepo.CreateReport(ctx, &model.RadarReport{
		ReporterUid: client.Uid(),
		ReportedUid: data.ReportedUid,
		ZoneKey:     zoneKey,
		Reason:      data.Reason,
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return consts.CodeAlreadyReported, nil
		}
		return consts.CodeInternalError, err
	}

	s.repClient.Invalidate(data.ReportedUid)

	s.dispatcher.BroadcastToClients(ctx, s.radarManager.ChatMembers(zoneKey),
		dispatch.PushRadarUserFlagged, &dto.RadarUserFlaggedData{
			ZoneKey:     zoneKey,
			ReportedUid: data.ReportedUid,
		})
	return consts.CodeSuccess, nil
}

// buildOccupants 把占位连接拼成协议视图（批量取别名，失败时别名留空）。
func (s *radarServiceImpl) buildOccupants(ctx context.Context, clients []*manager.Client) []*dto.RadarOccupant {
	occupants := make([]*dto.RadarOccupant, 0, len(clients))
	if len(clients) == 0 {
		return occupants
	}

	uids := make([]string, 0, len(clients))
	for _, c := range clients {
		uids = append(uids, c.Uid())
	}
	aliases := make(map[string]string, len(uids))
	users, err := s.userRepo.BatchGetByUids(ctx, uids)
	if err != nil {
		logger.Warn(ctx, "占位者别名批量查询失败", logger.ErrorField("error", err))
	} else {
		for _, u := range users {
			aliases[u.Uid] = u.Alias
		}
	}

	for _, c := range clients {
		_, inChat := s.radarManager.Membership(c)
		occupants = append(occupants, &dto.RadarOccupant{
			Uid:       c.Uid(),
			Alias:     aliases[c.Uid()],
			CharIdent: c.CharIdent(),
			InChat:    inChat,
		})
	}
	return occupants
}

// aliasOf 取单个用户别名，查询失败时留空（展示兜底，不阻断主流程）。
func (s *radarServiceImpl) aliasOf(ctx context.Context, uid string) string {
	user, err := s.userRepo.GetByUid(ctx, uid)
	if err != nil {
		return ""
	}
	return user.Alias
}
