package dto

// ==================== 用户查询 DTO ====================

// OnlinePairItem 在线配对项
type OnlinePairItem struct {
	Uid       string `json:"uid"`       // 对端 uid
	CharIdent string `json:"charIdent"` // 对端角色标识
}

// PendingRequestItem 待处理申请项
type PendingRequestItem struct {
	SenderUid   string `json:"senderUid"`   // 发起方 uid
	TargetUid   string `json:"targetUid"`   // 目标方 uid
	IsTemporary bool   `json:"isTemporary"` // 是否临时配对申请
	Message     string `json:"message"`     // 附言
	CreatedAt   int64  `json:"createdAt"`   // 申请时间（毫秒时间戳）
	Incoming    bool   `json:"incoming"`    // true=收到的申请 false=发出的申请
}

// PendingRequestsResult 待处理申请列表响应
type PendingRequestsResult struct {
	Items []*PendingRequestItem `json:"items"`
}

// PairListResult 配对列表响应
type PairListResult struct {
	Items []*PairView `json:"items"`
}

// OnlinePairsResult 在线配对列表响应
type OnlinePairsResult struct {
	Items []*OnlinePairItem `json:"items"`
}

// ProfileResult 用户档案响应
type ProfileResult struct {
	Uid       string `json:"uid"`
	Alias     string `json:"alias"`
	Tier      int8   `json:"tier"`
	CreatedAt int64  `json:"createdAt"` // 建档时间（毫秒时间戳）
}

// UpdateProfileData 更新档案请求（目前仅别名）
type UpdateProfileData struct {
	Alias string `json:"alias" binding:"max=32"`
}
