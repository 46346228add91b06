package manager

import (
	"fmt"
	"sync"

	"PairServer/apps/hub/internal/metrics"
)

// ZoneKey 由两个位置坐标确定性地构造分区键: {worldID}:{territoryID}。
// 纯函数：任何实例都能独立算出同一个键，转发消息不需要查表。
func ZoneKey(worldID, territoryID uint32) string {
	return fmt.Sprintf("%d:%d", worldID, territoryID)
}

// radarMembership 一条连接的雷达状态。
type radarMembership struct {
	zoneKey     string
	worldID     uint32
	territoryID uint32
	inChat      bool
}

// RadarManager 管理雷达分区与聊天组的进程内状态。
// 每条连接至多属于一个分区；分区内可以再加入该分区的聊天组（上限 capacity）。
// 状态纯内存、不落盘：进程重启后从零重建，本来就是瞬态数据。
type RadarManager struct {
	mu         sync.RWMutex
	capacity   int
	zones      map[string]map[*Client]struct{} // 分区占位（不设上限）
	chatGroups map[string]map[*Client]struct{} // 聊天组（上限 capacity）
	membership map[*Client]*radarMembership
}

// NewRadarManager 创建雷达管理器。
// capacity: 单个聊天组的成员上限。
func NewRadarManager(capacity int) *RadarManager {
	return &RadarManager{
		capacity:   capacity,
		zones:      make(map[string]map[*Client]struct{}),
		chatGroups: make(map[string]map[*Client]struct{}),
		membership: make(map[*Client]*radarMembership),
	}
}

// JoinZone 加入分区（原子的先离开后加入）。
// 若连接已在其他分区，先完整离开（含聊天组），再加入新分区——
// 外部观察不到"同时在两个分区"的状态。
// 返回值:
//   - occupants: 加入后新分区的其他占位连接（不含自己）
//   - wasInChat: 迁移前是否在聊天组（调用方据此尝试重新入组，入组失败必须上报）
func (m *RadarManager) JoinZone(client *Client, worldID, territoryID uint32) (occupants []*Client, wasInChat bool) {
	key := ZoneKey(worldID, territoryID)

	m.mu.Lock()
	defer m.mu.Unlock()

	if ms, ok := m.membership[client]; ok {
		if ms.zoneKey == key {
			// 已在目标分区，保持现状
			return m.zoneOccupantsLocked(key, client), ms.inChat
		}
		wasInChat = ms.inChat
		m.leaveLocked(client, ms)
	}

	zone, ok := m.zones[key]
	if !ok {
		zone = make(map[*Client]struct{})
		m.zones[key] = zone
	}
	zone[client] = struct{}{}
	m.membership[client] = &radarMembership{
		zoneKey:     key,
		worldID:     worldID,
		territoryID: territoryID,
	}

	return m.zoneOccupantsLocked(key, client), wasInChat
}

// SetChat 切换本连接在当前分区聊天组的成员身份。
// 返回值:
//   - joined: 操作后的聊天组成员状态
//   - full: 聊天组已满（容量信号，连接仍保留分区占位）
//   - inZone: false 表示连接不在任何分区
func (m *RadarManager) SetChat(client *Client, useChat bool) (joined bool, full bool, inZone bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ms, ok := m.membership[client]
	if !ok {
		return false, false, false
	}

	if !useChat {
		if ms.inChat {
			m.removeFromChatLocked(client, ms)
		}
		return false, false, true
	}

	if ms.inChat {
		return true, false, true
	}

	group, ok := m.chatGroups[ms.zoneKey]
	if !ok {
		group = make(map[*Client]struct{})
		m.chatGroups[ms.zoneKey] = group
	}
	if len(group) >= m.capacity {
		// 满员拒绝而不是排队，调用方向客户端返回容量信号
		return false, true, true
	}

	group[client] = struct{}{}
	ms.inChat = true
	metrics.GroupGauges.WithLabelValues(metrics.GroupGaugeName(ms.worldID, ms.territoryID)).Inc()
	return true, false, true
}

// Leave 离开分区（含聊天组）。不在任何分区时为 no-op。
// 返回离开前所在的分区键（空串表示原本就不在分区里）。
func (m *RadarManager) Leave(client *Client) (zoneKey string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ms, ok := m.membership[client]
	if !ok {
		return ""
	}
	zoneKey = ms.zoneKey
	m.leaveLocked(client, ms)
	return zoneKey
}

// Membership 返回连接当前的分区键与聊天组状态。
func (m *RadarManager) Membership(client *Client) (zoneKey string, inChat bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if ms, ok := m.membership[client]; ok {
		return ms.zoneKey, ms.inChat
	}
	return "", false
}

// ZoneOccupants 返回某分区的全部占位连接。
func (m *RadarManager) ZoneOccupants(zoneKey string) []*Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.zoneOccupantsLocked(zoneKey, nil)
}

// ChatMembers 返回某分区聊天组的全部成员连接。
func (m *RadarManager) ChatMembers(zoneKey string) []*Client {
	m.mu.RLock()
	defer m.mu.RUnlock()

	group := m.chatGroups[zoneKey]
	members := make([]*Client, 0, len(group))
	for c := range group {
		members = append(members, c)
	}
	return members
}

// ChatCount 返回某分区聊天组的当前成员数。
func (m *RadarManager) ChatCount(zoneKey string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chatGroups[zoneKey])
}

// zoneOccupantsLocked 列出分区占位连接，exclude 非 nil 时跳过该连接。
// 调用方必须持有锁。
func (m *RadarManager) zoneOccupantsLocked(zoneKey string, exclude *Client) []*Client {
	zone := m.zones[zoneKey]
	occupants := make([]*Client, 0, len(zone))
	for c := range zone {
		if c != exclude {
			occupants = append(occupants, c)
		}
	}
	return occupants
}

// leaveLocked 把连接从分区和聊天组里完整摘除。调用方必须持有锁。
func (m *RadarManager) leaveLocked(client *Client, ms *radarMembership) {
	if ms.inChat {
		m.removeFromChatLocked(client, ms)
	}

	if zone, ok := m.zones[ms.zoneKey]; ok {
		delete(zone, client)
		if len(zone) == 0 {
			delete(m.zones, ms.zoneKey)
		}
	}
	delete(m.membership, client)
}

// removeFromChatLocked 把连接摘出聊天组并递减 gauge（不会降到零以下）。
// 调用方必须持有锁。
func (m *RadarManager) removeFromChatLocked(client *Client, ms *radarMembership) {
	group, ok := m.chatGroups[ms.zoneKey]
	if ok {
		if _, member := group[client]; member {
			delete(group, client)
			metrics.GroupGauges.WithLabelValues(metrics.GroupGaugeName(ms.worldID, ms.territoryID)).Dec()
		}
		if len(group) == 0 {
			delete(m.chatGroups, ms.zoneKey)
		}
	}
	ms.inChat = false
}
