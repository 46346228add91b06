package dto

// ==================== 配对状态机 DTO ====================

// SendRequestData 发起配对申请请求
type SendRequestData struct {
	TargetUid   string `json:"targetUid" binding:"required"` // 目标用户 uid
	IsTemporary bool   `json:"isTemporary"`                  // 是否临时配对申请
	Message     string `json:"message"`                      // 附言（可选）
}

// SendRequestResult 发起配对申请响应
type SendRequestResult struct {
	TargetUid   string `json:"targetUid"`   // 目标用户 uid
	IsTemporary bool   `json:"isTemporary"` // 是否临时配对申请
	Message     string `json:"message"`     // 附言
	CreatedAt   int64  `json:"createdAt"`   // 申请时间（毫秒时间戳）
}

// CancelRequestData 取消配对申请请求（发起方撤回）
type CancelRequestData struct {
	TargetUid string `json:"targetUid" binding:"required"` // 目标用户 uid
}

// RejectRequestData 拒绝配对申请请求（目标方拒绝）
type RejectRequestData struct {
	SenderUid string `json:"senderUid" binding:"required"` // 发起方 uid
}

// AcceptRequestData 接受配对申请请求
type AcceptRequestData struct {
	SenderUid string `json:"senderUid" binding:"required"` // 发起方 uid
}

// MakePermanentData 临时配对转正请求
type MakePermanentData struct {
	OtherUid string `json:"otherUid" binding:"required"` // 对端 uid
}

// RemovePairData 解除配对请求
type RemovePairData struct {
	OtherUid string `json:"otherUid" binding:"required"` // 对端 uid
}

// BlockData 拉黑请求
type BlockData struct {
	OtherUid string `json:"otherUid" binding:"required"` // 目标 uid
}

// UnblockData 取消拉黑请求
type UnblockData struct {
	OtherUid string `json:"otherUid" binding:"required"` // 目标 uid
}

// PairView 一条配对关系的物化视图（接受响应 / 列表项 / add_pair 推送共用）
type PairView struct {
	OtherUid    string `json:"otherUid"`    // 对端 uid
	Alias       string `json:"alias"`       // 对端展示别名
	Tier        int8   `json:"tier"`        // 对端信誉等级
	IsTemporary bool   `json:"isTemporary"` // 是否临时配对
	AcceptedBy  string `json:"acceptedBy"`  // 临时配对接受方 uid（空表示永久）
	PairedAt    int64  `json:"pairedAt"`    // 配对时间（毫秒时间戳）

	// 四份权限视图，nil 表示该行在库中缺失（惰性播种尚未补齐）
	OwnPairPerm  *PermissionView `json:"ownPairPerm"`
	OwnGlobal    *PermissionView `json:"ownGlobal"`
	PeerPairPerm *PermissionView `json:"peerPairPerm"`
	PeerGlobal   *PermissionView `json:"peerGlobal"`

	Online    bool   `json:"online"`              // 对端是否在线
	CharIdent string `json:"charIdent,omitempty"` // 对端在线角色标识（在线时有值）
}
