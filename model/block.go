package model

import "time"

// BlockedUser 拉黑关系（有向）。
// 拉黑只阻止新申请，不会自动拆除已有配对。
type BlockedUser struct {
	Id        int64     `gorm:"column:id;primaryKey;autoIncrement;comment:自增id"`
	UserUid   string    `gorm:"column:user_uid;type:char(10);not null;index;uniqueIndex:uidx_block_edge;comment:拉黑发起方uid"`
	OtherUid  string    `gorm:"column:other_uid;type:char(10);not null;uniqueIndex:uidx_block_edge;comment:被拉黑方uid"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (BlockedUser) TableName() string { return "blocked_user" }

// RadarReport 雷达举报记录。
// 约束：同一举报人对同一被举报人在同一分区内只记一次（AlreadyReported）。
type RadarReport struct {
	Id          int64     `gorm:"column:id;primaryKey;autoIncrement;comment:自增id"`
	ReporterUid string    `gorm:"column:reporter_uid;type:char(10);not null;uniqueIndex:uidx_report;comment:举报人uid"`
	ReportedUid string    `gorm:"column:reported_uid;type:char(10);not null;index;uniqueIndex:uidx_report;comment:被举报人uid"`
	ZoneKey     string    `gorm:"column:zone_key;type:varchar(32);not null;uniqueIndex:uidx_report;comment:举报发生的分区键"`
	Reason      string    `gorm:"column:reason;type:varchar(255);comment:举报理由"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (RadarReport) TableName() string { return "radar_report" }
