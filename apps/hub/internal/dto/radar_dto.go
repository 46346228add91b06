package dto

// ==================== 雷达分区 DTO ====================

// RadarZoneJoinData 加入分区请求
type RadarZoneJoinData struct {
	WorldID     uint32 `json:"worldId"`     // 世界 id
	TerritoryID uint32 `json:"territoryId"` // 区域 id
}

// RadarZoneJoinResult 加入分区响应
type RadarZoneJoinResult struct {
	ZoneKey   string           `json:"zoneKey"`   // 分区键 {worldId}:{territoryId}
	InChat    bool             `json:"inChat"`    // 迁移后的聊天组成员状态
	ChatFull  bool             `json:"chatFull"`  // 迁移时聊天组已满（占位保留、聊天掉线）
	Occupants []*RadarOccupant `json:"occupants"` // 当前分区其他占位者
}

// RadarOccupant 分区占位者
type RadarOccupant struct {
	Uid       string `json:"uid"`       // 用户 uid
	Alias     string `json:"alias"`     // 展示别名
	CharIdent string `json:"charIdent"` // 角色标识
	InChat    bool   `json:"inChat"`    // 是否在聊天组
}

// RadarUpdateStateData 更新分区内状态请求
type RadarUpdateStateData struct {
	UseChat bool `json:"useChat"` // 是否加入聊天组
}

// RadarUpdateStateResult 更新分区内状态响应
type RadarUpdateStateResult struct {
	InChat   bool `json:"inChat"`   // 操作后的聊天组成员状态
	ChatFull bool `json:"chatFull"` // 聊天组已满（容量信号）
}

// RadarChatData 发送分区聊天消息请求
type RadarChatData struct {
	Message string `json:"message" binding:"required,max=500"` // 消息内容
}

// RadarReportData 举报分区占位者请求
type RadarReportData struct {
	ReportedUid string `json:"reportedUid" binding:"required"` // 被举报人 uid
	Reason      string `json:"reason" binding:"omitempty,max=255"`
}
