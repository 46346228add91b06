package model

import "time"

// PairRequestRetention 配对申请保留窗口。
// 超龄申请由外部 reaper 定期物理清除；状态机对尚未清除的超龄行也必须按已过期处理。
const PairRequestRetention = 3 * 24 * time.Hour

// PairRequest 配对申请行。
// 约束：uniqueIndex:uidx_request_edge 保证同一有向 (sender, target) 至多一条待处理申请；
// 被拒绝/取消/过期的申请直接删除而非归档，否则无法再次发起。
type PairRequest struct {
	Id          int64     `gorm:"column:id;primaryKey;autoIncrement;comment:自增id"`
	SenderUid   string    `gorm:"column:sender_uid;type:char(10);not null;uniqueIndex:uidx_request_edge;comment:发起方uid"`
	TargetUid   string    `gorm:"column:target_uid;type:char(10);not null;index;uniqueIndex:uidx_request_edge;comment:目标方uid"`
	IsTemporary bool      `gorm:"column:is_temporary;not null;default:false;comment:是否临时配对申请"`
	Message     string    `gorm:"column:message;type:varchar(255);comment:附言"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime;index"`
}

func (PairRequest) TableName() string { return "pair_request" }

// IsExpired 申请是否已超出保留窗口。
func (r *PairRequest) IsExpired(now time.Time) bool {
	return now.Sub(r.CreatedAt) >= PairRequestRetention
}
