// Package metrics 汇聚 hub 的 prometheus 指标。
// 通过 gin 的 /metrics 端点暴露（promhttp）。
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OnlineConnections 当前在线连接数
	OnlineConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "pair_server",
		Name:      "online_connections",
		Help:      "当前注册在 ConnectionManager 的连接数",
	})

	// GroupGauges 雷达聊天组成员数，label 值形如 RadarChat_{world}_{territory}
	GroupGauges = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "pair_server",
		Name:      "radar_chat_group_members",
		Help:      "各雷达聊天组的当前成员数",
	}, []string{"group"})

	// RPCRequests RPC 处理计数，按消息类型和结果码
	RPCRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pair_server",
		Name:      "rpc_requests_total",
		Help:      "按类型和结果码统计的 RPC 处理数",
	}, []string{"type", "code"})

	// PushDropped 因写队列满/连接关闭而丢弃的下行推送计数
	PushDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pair_server",
		Name:      "push_dropped_total",
		Help:      "未能入队的下行推送数",
	}, []string{"type"})
)

// GroupGaugeName 构造雷达聊天组的 gauge label 值: RadarChat_{world}_{territory}
func GroupGaugeName(worldID, territoryID uint32) string {
	return fmt.Sprintf("RadarChat_%d_%d", worldID, territoryID)
}
