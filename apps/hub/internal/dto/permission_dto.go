package dto

// ==================== 权限 DTO ====================

// 权限作用域
const (
	// ScopeGlobal 全局默认权限（只影响自己的默认值）
	ScopeGlobal = "global"
	// ScopePair 配对权限（影响指向某个对端的有向行）
	ScopePair = "pair"
)

// PermissionView 一份权限视图（有向）
type PermissionView struct {
	PauseVisual     bool `json:"pauseVisual"`     // 可视暂停
	AllowSounds     bool `json:"allowSounds"`     // 允许声音
	AllowAnimations bool `json:"allowAnimations"` // 允许动画
	AllowVfx        bool `json:"allowVfx"`        // 允许特效
}

// SetSinglePermissionData 单字段权限变更请求
type SetSinglePermissionData struct {
	Scope    string `json:"scope" binding:"required"` // global / pair
	OtherUid string `json:"otherUid"`                 // scope=pair 时必填
	Field    string `json:"field" binding:"required"` // 权限字段名
	Value    bool   `json:"value"`                    // 新值
}

// SetBulkPermissionsData 批量权限变更请求
type SetBulkPermissionsData struct {
	Scope    string          `json:"scope" binding:"required"` // global / pair
	OtherUid string          `json:"otherUid"`                 // scope=pair 时必填
	Fields   map[string]bool `json:"fields" binding:"required"`
}
