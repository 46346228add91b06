package model

import "time"

// ==================== 权限字段名（协议层字段标识） ====================

const (
	// PermFieldPauseVisual 可视暂停：置位后持有方把对端当作离线处理
	PermFieldPauseVisual = "pause_visual"
	// PermFieldAllowSounds 是否允许同步声音
	PermFieldAllowSounds = "allow_sounds"
	// PermFieldAllowAnimations 是否允许同步动画
	PermFieldAllowAnimations = "allow_animations"
	// PermFieldAllowVfx 是否允许同步特效
	PermFieldAllowVfx = "allow_vfx"
)

// PairPermission 针对单个配对的有向权限行。
// 约束：每条配对有向边恰好对应一行；配对建立时由持有方的 GlobalPermission 惰性播种。
type PairPermission struct {
	Id              int64     `gorm:"column:id;primaryKey;autoIncrement;comment:自增id"`
	UserUid         string    `gorm:"column:user_uid;type:char(10);not null;index;uniqueIndex:uidx_perm_edge;comment:权限持有方uid"`
	OtherUid        string    `gorm:"column:other_uid;type:char(10);not null;uniqueIndex:uidx_perm_edge;comment:对端uid"`
	PauseVisual     bool      `gorm:"column:pause_visual;not null;default:false;comment:可视暂停"`
	AllowSounds     bool      `gorm:"column:allow_sounds;not null;default:true;comment:允许声音"`
	AllowAnimations bool      `gorm:"column:allow_animations;not null;default:true;comment:允许动画"`
	AllowVfx        bool      `gorm:"column:allow_vfx;not null;default:true;comment:允许特效"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (PairPermission) TableName() string { return "pair_permission" }

// GlobalPermission 用户级默认权限，每用户一行。
// 新建 PairPermission 时以此为模板播种。
type GlobalPermission struct {
	Id              int64     `gorm:"column:id;primaryKey;autoIncrement;comment:自增id"`
	UserUid         string    `gorm:"column:user_uid;type:char(10);not null;uniqueIndex;comment:用户uid"`
	PauseVisual     bool      `gorm:"column:pause_visual;not null;default:false;comment:可视暂停默认值"`
	AllowSounds     bool      `gorm:"column:allow_sounds;not null;default:true;comment:允许声音默认值"`
	AllowAnimations bool      `gorm:"column:allow_animations;not null;default:true;comment:允许动画默认值"`
	AllowVfx        bool      `gorm:"column:allow_vfx;not null;default:true;comment:允许特效默认值"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (GlobalPermission) TableName() string { return "global_permission" }

// SeedPairPermission 以全局默认值播种一条有向配对权限行。
func (g *GlobalPermission) SeedPairPermission(userUid, otherUid string) *PairPermission {
	return &PairPermission{
		UserUid:         userUid,
		OtherUid:        otherUid,
		PauseVisual:     g.PauseVisual,
		AllowSounds:     g.AllowSounds,
		AllowAnimations: g.AllowAnimations,
		AllowVfx:        g.AllowVfx,
	}
}
