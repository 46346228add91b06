package service

import (
	"PairServer/apps/hub/internal/dto"
	"PairServer/apps/hub/internal/repository"
	"PairServer/model"
)

// toPermissionView 把仓储层权限快照转成协议视图，nil 原样透传。
func toPermissionView(p *repository.PermView) *dto.PermissionView {
	if p == nil {
		return nil
	}
	return &dto.PermissionView{
		PauseVisual:     p.PauseVisual,
		AllowSounds:     p.AllowSounds,
		AllowAnimations: p.AllowAnimations,
		AllowVfx:        p.AllowVfx,
	}
}

// pairPermToView 把一条有向权限行转成协议视图。
func pairPermToView(p *model.PairPermission) *dto.PermissionView {
	if p == nil {
		return nil
	}
	return &dto.PermissionView{
		PauseVisual:     p.PauseVisual,
		AllowSounds:     p.AllowSounds,
		AllowAnimations: p.AllowAnimations,
		AllowVfx:        p.AllowVfx,
	}
}

// globalPermToView 把全局默认权限行转成协议视图。
func globalPermToView(g *model.GlobalPermission) *dto.PermissionView {
	if g == nil {
		return nil
	}
	return &dto.PermissionView{
		PauseVisual:     g.PauseVisual,
		AllowSounds:     g.AllowSounds,
		AllowAnimations: g.AllowAnimations,
		AllowVfx:        g.AllowVfx,
	}
}

// buildPairView 把物化查询行拼成协议视图。
// charIdent 为空表示对端离线（presence 未命中）。
func buildPairView(row *repository.PairInfoRow, charIdent string) *dto.PairView {
	return &dto.PairView{
		OtherUid:     row.OtherUid,
		Alias:        row.OtherAlias,
		Tier:         row.OtherTier,
		IsTemporary:  row.IsTemporary(),
		AcceptedBy:   row.AcceptedBy,
		PairedAt:     row.PairedAt.UnixMilli(),
		OwnPairPerm:  toPermissionView(row.OwnPairPerm),
		OwnGlobal:    toPermissionView(row.OwnGlobal),
		PeerPairPerm: toPermissionView(row.PeerPairPerm),
		PeerGlobal:   toPermissionView(row.PeerGlobal),
		Online:       charIdent != "",
		CharIdent:    charIdent,
	}
}
