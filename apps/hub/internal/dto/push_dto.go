package dto

// ==================== 下行推送 DTO ====================

// ConnectedData 连接建立帧（握手成功后服务端首帧）
type ConnectedData struct {
	ServerName     string          `json:"serverName"`     // 实例名
	ShardID        int             `json:"shardId"`        // 分片 id
	ConnID         string          `json:"connId"`         // 本次连接 id
	OnlinePairUids []string        `json:"onlinePairUids"` // 当前在线的配对对端
	GlobalPerms    *PermissionView `json:"globalPerms"`    // 本人全局默认权限
	Tier           int8            `json:"tier"`           // 本人信誉等级
}

// UserOnlineData 配对对端上线
type UserOnlineData struct {
	Uid       string `json:"uid"`
	CharIdent string `json:"charIdent"`
}

// UserOfflineData 配对对端下线
type UserOfflineData struct {
	Uid string `json:"uid"`
}

// RequestAddedData 收到新配对申请
type RequestAddedData struct {
	SenderUid   string `json:"senderUid"`
	IsTemporary bool   `json:"isTemporary"`
	Message     string `json:"message"`
	CreatedAt   int64  `json:"createdAt"`
}

// RequestRemovedData 申请被移除（取消/拒绝/已接受）
type RequestRemovedData struct {
	SenderUid string `json:"senderUid"`
	TargetUid string `json:"targetUid"`
}

// PairAddedData 新配对建立
type PairAddedData struct {
	Pair *PairView `json:"pair"`
}

// PairRemovedData 配对被解除
type PairRemovedData struct {
	OtherUid string `json:"otherUid"`
}

// PairPermanentData 临时配对已转正
type PairPermanentData struct {
	OtherUid string `json:"otherUid"`
}

// PermChangedData 对端修改了指向自己的配对权限
type PermChangedData struct {
	FromUid string          `json:"fromUid"` // 修改方 uid
	Perms   *PermissionView `json:"perms"`   // 修改后的完整视图
}

// GlobalPermChangedData 配对对端修改了全局默认权限
type GlobalPermChangedData struct {
	FromUid string          `json:"fromUid"`
	Perms   *PermissionView `json:"perms"`
}

// ProfileUpdatedData 配对对端更新了档案
type ProfileUpdatedData struct {
	Uid   string `json:"uid"`
	Alias string `json:"alias"`
}

// RadarOccupantAddedData 分区新占位者
type RadarOccupantAddedData struct {
	ZoneKey  string         `json:"zoneKey"`
	Occupant *RadarOccupant `json:"occupant"`
}

// RadarOccupantRemovedData 分区占位者离开
type RadarOccupantRemovedData struct {
	ZoneKey string `json:"zoneKey"`
	Uid     string `json:"uid"`
}

// RadarChatPush 分区聊天消息
type RadarChatPush struct {
	MessageID   string `json:"messageId"` // snowflake id
	ZoneKey     string `json:"zoneKey"`
	SenderUid   string `json:"senderUid"`
	SenderAlias string `json:"senderAlias"`
	Message     string `json:"message"`
	SentAt      int64  `json:"sentAt"` // 毫秒时间戳
}

// RadarUserFlaggedData 分区占位者被举报（广播给聊天组）
type RadarUserFlaggedData struct {
	ZoneKey     string `json:"zoneKey"`
	ReportedUid string `json:"reportedUid"`
}

// ServerMessageData 运维通用广播
type ServerMessageData struct {
	Message  string `json:"message"`
	Severity string `json:"severity"` // info / warn / error
}

// ReconnectRequiredData 要求客户端重连（发布/缩容前驱逐）
type ReconnectRequiredData struct {
	Reason string `json:"reason"`
}

// HeartbeatAckData 心跳应答
type HeartbeatAckData struct {
	Alive bool `json:"alive"` // 在线状态续期是否成功
}
