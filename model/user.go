package model

import (
	"time"

	"gorm.io/gorm"
)

// UserInfo 用户档案表。
// 约束：uid 为账号级稳定标识（char(10)，由外部账号服务签发），全生命周期不变；
// 注销账号时软删除，配对/权限/申请行由上层级联清理。
type UserInfo struct {
	Id        int64          `gorm:"column:id;primaryKey;autoIncrement;comment:自增id"`
	Uid       string         `gorm:"column:uid;type:char(10);not null;uniqueIndex;comment:稳定用户标识"`
	Alias     string         `gorm:"column:alias;type:varchar(32);comment:展示别名(可为空)"`
	Tier      int8           `gorm:"column:tier;not null;default:0;comment:信誉等级 0.普通 1.受限 2.封禁"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index"`
}

func (UserInfo) TableName() string { return "user_info" }

const (
	// TierNormal 普通用户
	TierNormal int8 = 0
	// TierRestricted 受限用户（禁用 radar/radar 聊天）
	TierRestricted int8 = 1
	// TierBanned 封禁用户
	TierBanned int8 = 2
)
