package model

import "time"

// ClientPair 配对关系的有向边。
// 一个完整配对由两条有向行组成（A→B 和 B→A），两行要么同时存在要么同时不存在，
// 只存在一条属于数据损坏状态。约束：uniqueIndex:uidx_pair_edge 保证同一方向不重复。
type ClientPair struct {
	Id       int64  `gorm:"column:id;primaryKey;autoIncrement;comment:自增id"`
	UserUid  string `gorm:"column:user_uid;type:char(10);not null;index;uniqueIndex:uidx_pair_edge;comment:边起点uid"`
	OtherUid string `gorm:"column:other_uid;type:char(10);not null;index;uniqueIndex:uidx_pair_edge;comment:边终点uid"`
	// AcceptedBy 临时配对标记：非空表示该配对由临时申请形成，值为接受方 uid。
	// 只有接受方可以调用转正操作，转正后两条边同时清空该字段。
	AcceptedBy string    `gorm:"column:accepted_by;type:char(10);not null;default:'';comment:临时配对接受方uid(空表示永久)"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (ClientPair) TableName() string { return "client_pair" }

// IsTemporary 是否仍处于临时配对状态。
func (p *ClientPair) IsTemporary() bool { return p.AcceptedBy != "" }
