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

// 合法权限字段集合（协议字段名即数据库列名）。
// 未知字段直接拒绝而不是静默忽略，否则客户端拼错字段名永远得不到反馈。
var permFields = map[string]struct{}{
	model.PermFieldPauseVisual:     {},
	model.PermFieldAllowSounds:     {},
	model.PermFieldAllowAnimations: {},
	model.PermFieldAllowVfx:        {},
}

// permissionServiceImpl 权限传播服务实现
type permissionServiceImpl struct {
	pairRepo     repository.IPairRepository
	permRepo     repository.IPermissionRepository
	presenceRepo repository.IPresenceRepository
	dispatcher   *dispatch.Dispatcher
}

// NewPermissionService 创建权限服务实例
func NewPermissionService(
	pairRepo repository.IPairRepository,
	permRepo repository.IPermissionRepository,
	presenceRepo repository.IPresenceRepository,
	dispatcher *dispatch.Dispatcher,
) PermissionService {
	return &permissionServiceImpl{
		pairRepo:     pairRepo,
		permRepo:     permRepo,
		presenceRepo: presenceRepo,
		dispatcher:   dispatcher,
	}
}

// SetSingle 单字段权限变更
func (s *permissionServiceImpl) SetSingle(ctx context.Context, callerUid string, data *dto.SetSinglePermissionData) (*dto.PermissionView, int, error) {
	if _, ok := permFields[data.Field]; !ok {
		return nil, consts.CodeIncorrectDataType, nil
	}
	updates := map[string]interface{}{data.Field: data.Value}
	return s.apply(ctx, callerUid, data.Scope, data.OtherUid, updates)
}

// SetBulk 批量权限变更
func (s *permissionServiceImpl) SetBulk(ctx context.Context, callerUid string, data *dto.SetBulkPermissionsData) (*dto.PermissionView, int, error) {
	if len(data.Fields) == 0 {
		return nil, consts.CodeParamError, nil
	}
	updates := make(map[string]interface{}, len(data.Fields))
	for field, value := range data.Fields {
		if _, ok := permFields[field]; !ok {
			return nil, consts.CodeIncorrectDataType, nil
		}
		updates[field] = value
	}
	return s.apply(ctx, callerUid, data.Scope, data.OtherUid, updates)
}

// apply 按作用域落库并传播。
func (s *permissionServiceImpl) apply(ctx context.Context, callerUid, scope, otherUid string, updates map[string]interface{}) (*dto.PermissionView, int, error) {
	switch scope {
	case dto.ScopeGlobal:
		return s.applyGlobal(ctx, callerUid, updates)
	case dto.ScopePair:
		return s.applyPair(ctx, callerUid, otherUid, updates)
	default:
		return nil, consts.CodeParamError, nil
	}
}

// applyGlobal 更新全局默认权限。
// 只影响调用方自己未来播种的默认值，对端无需可视事件，
// 但新值广播给在线配对对端（客户端据此更新"对方默认设置"展示）。
func (s *permissionServiceImpl) applyGlobal(ctx context.Context, callerUid string, updates map[string]interface{}) (*dto.PermissionView, int, error) {
	if err := s.permRepo.UpdateGlobal(ctx, callerUid, updates); err != nil {
		return nil, consts.CodeInternalError, err
	}

	global, err := s.permRepo.GetGlobal(ctx, callerUid)
	if err != nil {
		return nil, consts.CodeInternalError, err
	}
	view := globalPermToView(global)

	pairUids, err := s.pairRepo.GetPairUids(ctx, callerUid)
	if err != nil {
		logger.Warn(ctx, "配对列表查询失败，跳过全局权限广播",
			logger.String("uid", callerUid),
			logger.ErrorField("error", err),
		)
		return view, consts.CodeSuccess, nil
	}
	if len(pairUids) > 0 {
		online, err := s.presenceRepo.BatchGetOnline(ctx, pairUids)
		if err == nil && len(online) > 0 {
			toUids := make([]string, 0, len(online))
			for uid := range online {
				toUids = append(toUids, uid)
			}
			s.dispatcher.Broadcast(ctx, toUids, dispatch.PushGlobalPermChanged, &dto.GlobalPermChangedData{
				FromUid: callerUid,
				Perms:   view,
			})
		}
	}

	return view, consts.CodeSuccess, nil
}

// applyPair 更新指向某对端的有向权限行。
// 行锁读改写拿到前后快照，据此检测可视暂停翻转；同一用户的并发变更
// 在数据库行锁上串行化，不会丢翻转。
func (s *permissionServiceImpl) applyPair(ctx context.Context, callerUid, otherUid string, updates map[string]interface{}) (*dto.PermissionView, int, error) {
	if otherUid == "" || otherUid == callerUid {
		return nil, consts.CodeCannotInteractWithSelf, nil
	}

	before, after, err := s.permRepo.MutatePairPerm(ctx, callerUid, otherUid, updates)
	if err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			return nil, consts.CodeNotPaired, nil
		}
		return nil, consts.CodeInternalError, err
	}
	view := pairPermToView(after)

	// 权限通知无条件推给对端——这是权限公示，不受可视规则约束
	s.dispatcher.PushPermChangedTo(ctx, otherUid, &dto.PermChangedData{
		FromUid: callerUid,
		Perms:   view,
	})

	if before.PauseVisual != after.PauseVisual {
		s.propagatePauseFlip(ctx, callerUid, otherUid, after.PauseVisual)
	}

	return view, consts.CodeSuccess, nil
}

// propagatePauseFlip 可视暂停翻转后的可视事件传播。
// 规则：
//  1. 对端本来就把调用方暂停，双方互不可见没有变化，不发；
//  2. 对端离线则什么都不发（不排队补偿），下次连接全量拉取追平；
//  3. 刚暂停：双方各收一条对方的下线事件；
//     刚解除：双方各收一条携带对方当前角色标识的上线事件。
func (s *permissionServiceImpl) propagatePauseFlip(ctx context.Context, callerUid, otherUid string, nowPaused bool) {
	peerPerm, err := s.permRepo.GetPairPerm(ctx, otherUid, callerUid)
	if err != nil && !errors.Is(err, repository.ErrRecordNotFound) {
		logger.Warn(ctx, "对端权限行查询失败，跳过可视事件",
			logger.String("uid", callerUid),
			logger.String("other_uid", otherUid),
			logger.ErrorField("error", err),
		)
		return
	}
	if peerPerm != nil && peerPerm.PauseVisual {
		return
	}

	peerIdent, err := s.presenceRepo.GetOnlineIdent(ctx, otherUid)
	if err != nil || peerIdent == "" {
		return
	}

	if nowPaused {
		s.dispatcher.PushUserOfflineTo(ctx, callerUid, &dto.UserOfflineData{Uid: otherUid})
		s.dispatcher.PushUserOfflineTo(ctx, otherUid, &dto.UserOfflineData{Uid: callerUid})
		return
	}

	s.dispatcher.PushUserOnlineTo(ctx, callerUid, &dto.UserOnlineData{
		Uid:       otherUid,
		CharIdent: peerIdent,
	})
	callerIdent, err := s.presenceRepo.GetOnlineIdent(ctx, callerUid)
	if err == nil && callerIdent != "" {
		s.dispatcher.PushUserOnlineTo(ctx, otherUid, &dto.UserOnlineData{
			Uid:       callerUid,
			CharIdent: callerIdent,
		})
	}
}
