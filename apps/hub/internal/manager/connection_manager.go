package manager

import (
	"sync"

	"PairServer/apps/hub/internal/metrics"
)

// ConnectionManager 管理所有在线 WebSocket 连接。
// 每个 uid 至多一条活跃连接：重连即替换，被替换的旧连接由调用方负责
// 关闭并迁移其雷达组占位（不能静默泄漏组名额）。
type ConnectionManager struct {
	mu       sync.RWMutex
	byUid    map[string]*Client
	shutdown bool
}

// NewConnectionManager 创建连接管理器实例。
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		byUid: make(map[string]*Client),
	}
}

// Register 注册一个用户连接。
// 返回值 replaced 表示被新连接替换掉的旧连接（如果存在）。
// 调用方必须主动关闭 replaced 并让其离开雷达组，确保同一 uid 最多一个活跃连接。
func (m *ConnectionManager) Register(client *Client) (replaced *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.shutdown {
		return nil
	}

	if old, ok := m.byUid[client.Uid()]; ok && old != client {
		replaced = old
	}

	m.byUid[client.Uid()] = client
	metrics.OnlineConnections.Set(float64(len(m.byUid)))
	return replaced
}

// Unregister 注销一个连接。
// 只有当 map 中当前连接与入参完全一致时才删除，防止陈旧断开
// 与新连接注册竞态时误删新连接。
func (m *ConnectionManager) Unregister(client *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.byUid[client.Uid()]
	if !ok || current != client {
		return
	}

	delete(m.byUid, client.Uid())
	metrics.OnlineConnections.Set(float64(len(m.byUid)))
}

// Lookup 查找某用户的当前连接（不存在返回 nil）。
func (m *ConnectionManager) Lookup(uid string) *Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byUid[uid]
}

// SendToUser 向指定用户的连接发送消息。
// 返回 false 表示用户不在本实例或写队列不可用。
func (m *ConnectionManager) SendToUser(uid string, msg []byte) bool {
	m.mu.RLock()
	client := m.byUid[uid]
	m.mu.RUnlock()
	if client == nil {
		return false
	}
	return client.Enqueue(msg)
}

// Count 返回当前在线连接数。
func (m *ConnectionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byUid)
}

// Shutdown 关闭全部连接并阻止后续注册。
// 用于进程优雅退出阶段，确保不再接收新连接并尽快释放资源。
func (m *ConnectionManager) Shutdown() {
	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return
	}
	m.shutdown = true

	clients := make([]*Client, 0, len(m.byUid))
	for _, client := range m.byUid {
		clients = append(clients, client)
	}
	m.byUid = make(map[string]*Client)
	metrics.OnlineConnections.Set(0)
	m.mu.Unlock()

	for _, client := range clients {
		client.Close()
	}
}
