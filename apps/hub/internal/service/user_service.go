package service

import (
	"context"
	"errors"

	"PairServer/apps/hub/internal/dispatch"
	"PairServer/apps/hub/internal/dto"
	"PairServer/apps/hub/internal/repository"
	"PairServer/consts"
	"PairServer/pkg/logger"
)

// userServiceImpl 用户查询与档案服务实现
type userServiceImpl struct {
	userRepo     repository.IUserRepository
	pairRepo     repository.IPairRepository
	requestRepo  repository.IRequestRepository
	presenceRepo repository.IPresenceRepository
	dispatcher   *dispatch.Dispatcher
}

// NewUserService 创建用户服务实例
func NewUserService(
	userRepo repository.IUserRepository,
	pairRepo repository.IPairRepository,
	requestRepo repository.IRequestRepository,
	presenceRepo repository.IPresenceRepository,
	dispatcher *dispatch.Dispatcher,
) UserService {
	return &userServiceImpl{
		userRepo:     userRepo,
		pairRepo:     pairRepo,
		requestRepo:  requestRepo,
		presenceRepo: presenceRepo,
		dispatcher:   dispatcher,
	}
}

// OnlinePairs 获取当前在线的配对对端
func (s *userServiceImpl) OnlinePairs(ctx context.Context, uid string) (*dto.OnlinePairsResult, int, error) {
	pairUids, err := s.pairRepo.GetPairUids(ctx, uid)
	if err != nil {
		return nil, consts.CodeInternalError, err
	}

	result := &dto.OnlinePairsResult{Items: make([]*dto.OnlinePairItem, 0, len(pairUids))}
	if len(pairUids) == 0 {
		return result, consts.CodeSuccess, nil
	}

	online, err := s.presenceRepo.BatchGetOnline(ctx, pairUids)
	if err != nil {
		return nil, consts.CodeInternalError, err
	}
	// 按配对列表顺序输出，避免 map 遍历导致响应抖动
	for _, pairUid := range pairUids {
		if ident, ok := online[pairUid]; ok {
			result.Items = append(result.Items, &dto.OnlinePairItem{
				Uid:       pairUid,
				CharIdent: ident,
			})
		}
	}
	return result, consts.CodeSuccess, nil
}

// ListPairs 获取全部配对的物化视图列表
func (s *userServiceImpl) ListPairs(ctx context.Context, uid string) (*dto.PairListResult, int, error) {
	rows, err := s.pairRepo.GetAllPairInfo(ctx, uid)
	if err != nil {
		return nil, consts.CodeInternalError, err
	}

	result := &dto.PairListResult{Items: make([]*dto.PairView, 0, len(rows))}
	if len(rows) == 0 {
		return result, consts.CodeSuccess, nil
	}

	otherUids := make([]string, 0, len(rows))
	for _, row := range rows {
		otherUids = append(otherUids, row.OtherUid)
	}
	online, err := s.presenceRepo.BatchGetOnline(ctx, otherUids)
	if err != nil {
		logger.Warn(ctx, "在线状态批量查询失败，配对列表按全员离线返回",
			logger.String("uid", uid),
			logger.ErrorField("error", err),
		)
		online = map[string]string{}
	}

	for _, row := range rows {
		result.Items = append(result.Items, buildPairView(row, online[row.OtherUid]))
	}
	return result, consts.CodeSuccess, nil
}

// PendingRequests 获取待处理申请（收到的 + 发出的）
func (s *userServiceImpl) PendingRequests(ctx context.Context, uid string) (*dto.PendingRequestsResult, int, error) {
	incoming, err := s.requestRepo.ListPendingForTarget(ctx, uid)
	if err != nil {
		return nil, consts.CodeInternalError, err
	}
	outgoing, err := s.requestRepo.ListSentBySender(ctx, uid)
	if err != nil {
		return nil, consts.CodeInternalError, err
	}

	result := &dto.PendingRequestsResult{
		Items: make([]*dto.PendingRequestItem, 0, len(incoming)+len(outgoing)),
	}
	for _, req := range incoming {
		result.Items = append(result.Items, &dto.PendingRequestItem{
			SenderUid:   req.SenderUid,
			TargetUid:   req.TargetUid,
			IsTemporary: req.IsTemporary,
			Message:     req.Message,
			CreatedAt:   req.CreatedAt.UnixMilli(),
			Incoming:    true,
		})
	}
	for _, req := range outgoing {
		result.Items = append(result.Items, &dto.PendingRequestItem{
			SenderUid:   req.SenderUid,
			TargetUid:   req.TargetUid,
			IsTemporary: req.IsTemporary,
			Message:     req.Message,
			CreatedAt:   req.CreatedAt.UnixMilli(),
			Incoming:    false,
		})
	}
	return result, consts.CodeSuccess, nil
}

// Profile 获取本人档案
func (s *userServiceImpl) Profile(ctx context.Context, uid string) (*dto.ProfileResult, int, error) {
	user, err := s.userRepo.GetByUid(ctx, uid)
	if err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			return nil, consts.CodeResourceNotFound, nil
		}
		return nil, consts.CodeInternalError, err
	}

	return &dto.ProfileResult{
		Uid:       user.Uid,
		Alias:     user.Alias,
		Tier:      user.Tier,
		CreatedAt: user.CreatedAt.UnixMilli(),
	}, consts.CodeSuccess, nil
}

// UpdateProfile 更新本人档案并把新别名广播给在线配对对端
func (s *userServiceImpl) UpdateProfile(ctx context.Context, uid string, data *dto.UpdateProfileData) (*dto.ProfileResult, int, error) {
	if err := s.userRepo.UpdateAlias(ctx, uid, data.Alias); err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			return nil, consts.CodeResourceNotFound, nil
		}
		return nil, consts.CodeInternalError, err
	}

	profile, code, err := s.Profile(ctx, uid)
	if err != nil || code != consts.CodeSuccess {
		return profile, code, err
	}

	pairUids, err := s.pairRepo.GetPairUids(ctx, uid)
	if err != nil {
		logger.Warn(ctx, "配对列表查询失败，跳过档案更新广播",
			logger.String("uid", uid),
			logger.ErrorField("error", err),
		)
		return profile, consts.CodeSuccess, nil
	}
	if len(pairUids) > 0 {
		online, err := s.presenceRepo.BatchGetOnline(ctx, pairUids)
		if err == nil && len(online) > 0 {
			toUids := make([]string, 0, len(online))
			for pairUid := range online {
				toUids = append(toUids, pairUid)
			}
			s.dispatcher.Broadcast(ctx, toUids, dispatch.PushProfileUpdated, &dto.ProfileUpdatedData{
				Uid:   uid,
				Alias: profile.Alias,
			})
		}
	}

	return profile, consts.CodeSuccess, nil
}
