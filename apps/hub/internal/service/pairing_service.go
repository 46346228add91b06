package service

import (
	"context"
	"errors"

	"PairServer/apps/hub/internal/dispatch"
	"PairServer/apps/hub/internal/dto"
	"PairServer/apps/hub/internal/repository"
	"PairServer/consts"
	"PairServer/model"
	"PairServer/pkg/logger"
)

// pairingServiceImpl 配对状态机服务实现
type pairingServiceImpl struct {
	userRepo     repository.IUserRepository
	pairRepo     repository.IPairRepository
	requestRepo  repository.IRequestRepository
	blockRepo    repository.IBlockRepository
	presenceRepo repository.IPresenceRepository
	dispatcher   *dispatch.Dispatcher
}

// NewPairingService 创建配对服务实例
func NewPairingService(
	userRepo repository.IUserRepository,
	pairRepo repository.IPairRepository,
	requestRepo repository.IRequestRepository,
	blockRepo repository.IBlockRepository,
	presenceRepo repository.IPresenceRepository,
	dispatcher *dispatch.Dispatcher,
) PairingService {
	return &pairingServiceImpl{
		userRepo:     userRepo,
		pairRepo:     pairRepo,
		requestRepo:  requestRepo,
		blockRepo:    blockRepo,
		presenceRepo: presenceRepo,
		dispatcher:   dispatcher,
	}
}

// SendRequest 发起配对申请。
// 校验顺序从廉价到昂贵：自指 → 目标存在 → 拉黑 → 在途申请 → 已配对。
func (s *pairingServiceImpl) SendRequest(ctx context.Context, senderUid string, data *dto.SendRequestData) (*dto.SendRequestResult, int, error) {
	targetUid := data.TargetUid
	if targetUid == senderUid {
		return nil, consts.CodeCannotInteractWithSelf, nil
	}

	exists, err := s.userRepo.ExistsByUid(ctx, targetUid)
	if err != nil {
		return nil, consts.CodeInternalError, err
	}
	if !exists {
		return nil, consts.CodeInvalidRecipient, nil
	}

	blocked, err := s.blockRepo.IsBlockedEither(ctx, senderUid, targetUid)
	if err != nil {
		return nil, consts.CodeInternalError, err
	}
	if blocked {
		return nil, consts.CodeRecipientBlocked, nil
	}

	pending, err := s.requestRepo.ExistsPendingBetween(ctx, senderUid, targetUid)
	if err != nil {
		return nil, consts.CodeInternalError, err
	}
	if pending {
		return nil, consts.CodeRequestExists, nil
	}

	paired, err := s.pairRepo.ExistsPair(ctx, senderUid, targetUid)
	if err != nil {
		return nil, consts.CodeInternalError, err
	}
	if paired {
		return nil, consts.CodeAlreadyPaired, nil
	}

	req, err := s.requestRepo.Create(ctx, &model.PairRequest{
		SenderUid:   senderUid,
		TargetUid:   targetUid,
		IsTemporary: data.IsTemporary,
		Message:     data.Message,
	})
	if err != nil {
		// 并发重复发起：唯一索引兜底
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, consts.CodeRequestExists, nil
		}
		return nil, consts.CodeInternalError, err
	}

	s.dispatcher.PushRequestAddedTo(ctx, targetUid, &dto.RequestAddedData{
		SenderUid:   senderUid,
		IsTemporary: req.IsTemporary,
		Message:     req.Message,
		CreatedAt:   req.CreatedAt.UnixMilli(),
	})

	return &dto.SendRequestResult{
		TargetUid:   targetUid,
		IsTemporary: req.IsTemporary,
		Message:     req.Message,
		CreatedAt:   req.CreatedAt.UnixMilli(),
	}, consts.CodeSuccess, nil
}

// CancelRequest 发起方撤回申请
func (s *pairingServiceImpl) CancelRequest(ctx context.Context, senderUid string, data *dto.CancelRequestData) (int, error) {
	affected, err := s.requestRepo.Delete(ctx, senderUid, data.TargetUid)
	if err != nil {
		return consts.CodeInternalError, err
	}
	if affected == 0 {
		return consts.CodeRequestNotFound, nil
	}

	s.dispatcher.PushRequestRemovedTo(ctx, data.TargetUid, &dto.RequestRemovedData{
		SenderUid: senderUid,
		TargetUid: data.TargetUid,
	})
	return consts.CodeSuccess, nil
}

// RejectRequest 目标方拒绝申请
func (s *pairingServiceImpl) RejectRequest(ctx context.Context, targetUid string, data *dto.RejectRequestData) (int, error) {
	affected, err := s.requestRepo.Delete(ctx, data.SenderUid, targetUid)
	if err != nil {
		return consts.CodeInternalError, err
	}
	if affected == 0 {
		return consts.CodeRequestNotFound, nil
	}

	s.dispatcher.PushRequestRemovedTo(ctx, data.SenderUid, &dto.RequestRemovedData{
		SenderUid: data.SenderUid,
		TargetUid: targetUid,
	})
	return consts.CodeSuccess, nil
}

// AcceptRequest 接受申请。
// 事务语义在仓储层：清申请 + 建双向边 + 播种双向权限一次提交。
// 并发接受时配对已存在的场景，申请同样被清除并按 AlreadyPaired 上报，
// 客户端据此刷新本地配对列表而不是当成错误。
func (s *pairingServiceImpl) AcceptRequest(ctx context.Context, accepterUid string, data *dto.AcceptRequestData) (*dto.PairView, int, error) {
	requesterUid := data.SenderUid

	alreadyPaired, _, err := s.requestRepo.AcceptRequest(ctx, accepterUid, requesterUid)
	if err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			return nil, consts.CodeRequestNotFound, nil
		}
		return nil, consts.CodeInternalError, err
	}
	if alreadyPaired {
		return nil, consts.CodeAlreadyPaired, nil
	}

	// 物化本方视图
	row, err := s.pairRepo.GetPairInfo(ctx, accepterUid, requesterUid)
	if err != nil {
		return nil, consts.CodeInternalError, err
	}
	if row == nil {
		// 事务刚提交就查不到，只可能是并发 RemovePair 抢先
		logger.Warn(ctx, "接受申请后配对行缺失",
			logger.String("accepter_uid", accepterUid),
			logger.String("requester_uid", requesterUid),
		)
		return nil, consts.CodeNullData, nil
	}

	requesterIdent, err := s.presenceRepo.GetOnlineIdent(ctx, requesterUid)
	if err != nil {
		logger.Warn(ctx, "在线状态查询失败", logger.ErrorField("error", err))
		requesterIdent = ""
	}

	// 发起方在线时按固定顺序通知：移除申请 → 新配对 → 对端上线。
	// 客户端把到达顺序当成隐式时序，这三帧必须同步入队。
	if requesterIdent != "" {
		s.notifyRequesterAccepted(ctx, accepterUid, requesterUid)
	}

	return buildPairView(row, requesterIdent), consts.CodeSuccess, nil
}

// notifyRequesterAccepted 向在线的发起方推送接受结果因果链。
func (s *pairingServiceImpl) notifyRequesterAccepted(ctx context.Context, accepterUid, requesterUid string) {
	s.dispatcher.PushRequestRemovedTo(ctx, requesterUid, &dto.RequestRemovedData{
		SenderUid: requesterUid,
		TargetUid: accepterUid,
	})

	peerRow, err := s.pairRepo.GetPairInfo(ctx, requesterUid, accepterUid)
	if err != nil || peerRow == nil {
		logger.Warn(ctx, "发起方配对视图物化失败",
			logger.String("requester_uid", requesterUid),
			logger.ErrorField("error", err),
		)
		return
	}

	accepterIdent, err := s.presenceRepo.GetOnlineIdent(ctx, accepterUid)
	if err != nil {
		accepterIdent = ""
	}
	s.dispatcher.PushPairAddedTo(ctx, requesterUid, &dto.PairAddedData{
		Pair: buildPairView(peerRow, accepterIdent),
	})

	// 发起方若播种出的权限就带可视暂停，上线帧不发
	if accepterIdent != "" && !(peerRow.OwnPairPerm != nil && peerRow.OwnPairPerm.PauseVisual) {
		s.dispatcher.PushUserOnlineTo(ctx, requesterUid, &dto.UserOnlineData{
			Uid:       accepterUid,
			CharIdent: accepterIdent,
		})
	}
}

// MakePermanent 临时配对转正。
// 仓储层 CAS 只在 accepted_by=callerUid 时生效；影响 0 行时回查区分三种失败。
func (s *pairingServiceImpl) MakePermanent(ctx context.Context, callerUid string, data *dto.MakePermanentData) (int, error) {
	affected, err := s.pairRepo.MakePermanent(ctx, callerUid, data.OtherUid)
	if err != nil {
		return consts.CodeInternalError, err
	}
	if affected == 0 {
		row, err := s.pairRepo.GetPairInfo(ctx, callerUid, data.OtherUid)
		if err != nil {
			return consts.CodeInternalError, err
		}
		if row == nil {
			return consts.CodeNotPaired, nil
		}
		if !row.IsTemporary() {
			return consts.CodeAlreadyPermanent, nil
		}
		return consts.CodeNotTemporaryAccepter, nil
	}

	s.dispatcher.PushPairPermanentTo(ctx, data.OtherUid, &dto.PairPermanentData{
		OtherUid: callerUid,
	})
	return consts.CodeSuccess, nil
}

// RemovePair 解除配对
func (s *pairingServiceImpl) RemovePair(ctx context.Context, callerUid string, data *dto.RemovePairData) (int, error) {
	if err := s.pairRepo.RemovePair(ctx, callerUid, data.OtherUid); err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			return consts.CodeNotPaired, nil
		}
		return consts.CodeInternalError, err
	}

	s.dispatcher.PushPairRemovedTo(ctx, data.OtherUid, &dto.PairRemovedData{
		OtherUid: callerUid,
	})
	return consts.CodeSuccess, nil
}

// Block 拉黑用户。与配对状态解耦：已有配对保留，只阻止新申请。
// 顺手清掉双方向在途申请，避免拉黑后残留待处理项。
func (s *pairingServiceImpl) Block(ctx context.Context, callerUid string, data *dto.BlockData) (int, error) {
	if data.OtherUid == callerUid {
		return consts.CodeCannotInteractWithSelf, nil
	}

	exists, err := s.userRepo.ExistsByUid(ctx, data.OtherUid)
	if err != nil {
		return consts.CodeInternalError, err
	}
	if !exists {
		return consts.CodeInvalidRecipient, nil
	}

	if err := s.blockRepo.Block(ctx, callerUid, data.OtherUid); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return consts.CodeAlreadyBlocked, nil
		}
		return consts.CodeInternalError, err
	}

	if affected, err := s.requestRepo.Delete(ctx, callerUid, data.OtherUid); err == nil && affected > 0 {
		s.dispatcher.PushRequestRemovedTo(ctx, data.OtherUid, &dto.RequestRemovedData{
			SenderUid: callerUid,
			TargetUid: data.OtherUid,
		})
	}
	if affected, err := s.requestRepo.Delete(ctx, data.OtherUid, callerUid); err == nil && affected > 0 {
		s.dispatcher.PushRequestRemovedTo(ctx, data.OtherUid, &dto.RequestRemovedData{
			SenderUid: data.OtherUid,
			TargetUid: callerUid,
		})
	}

	return consts.CodeSuccess, nil
}

// Unblock 取消拉黑
func (s *pairingServiceImpl) Unblock(ctx context.Context, callerUid string, data *dto.UnblockData) (int, error) {
	if data.OtherUid == callerUid {
		return consts.CodeCannotInteractWithSelf, nil
	}

	affected, err := s.blockRepo.Unblock(ctx, callerUid, data.OtherUid)
	if err != nil {
		return consts.CodeInternalError, err
	}
	if affected == 0 {
		return consts.CodeNotBlocked, nil
	}
	return consts.CodeSuccess, nil
}
