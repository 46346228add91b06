package rediskey

import (
	"fmt"
	"time"
)

// ==================== TTL 常量 ====================

const (
	// PresenceTTL 在线状态 TTL。
	// 心跳负责续期；超过该窗口未续期即对所有可见性查询视同离线。
	PresenceTTL = 60 * time.Second

	// ReputationTTL 信誉裁定缓存 TTL
	ReputationTTL = 5 * time.Minute

	// PairListTTL 配对 uid 列表缓存 TTL
	PairListTTL = 24 * time.Hour
	// PairListEmptyTTL 配对 uid 列表空值缓存 TTL
	PairListEmptyTTL = 5 * time.Minute
)

// ==================== Key 构造函数 ====================

// PresenceKey 生成在线状态 Key: presence:{uid}
// value 为连接时的瞬态角色标识（char ident），空值或不存在均视为离线。
func PresenceKey(uid string) string {
	return fmt.Sprintf("presence:%s", uid)
}

// PairListKey 生成配对 uid 列表 Key: pair:list:{uid}
func PairListKey(uid string) string {
	return fmt.Sprintf("pair:list:%s", uid)
}

// ReputationKey 生成信誉裁定 Key: reputation:%s
func ReputationKey(uid string) string {
	return fmt.Sprintf("reputation:%s", uid)
}
