package config

import (
	"os"
	"time"
)

// HubConfig 同步中心的业务参数。
type HubConfig struct {
	// ServerName 握手成功后下发给客户端的服务名
	ServerName string `json:"serverName" yaml:"serverName"`
	// ShardID snowflake 节点 id（多实例部署时每实例唯一）
	ShardID int64 `json:"shardId" yaml:"shardId"`

	// RadarChatCapacity 单个雷达聊天组人数上限
	RadarChatCapacity int `json:"radarChatCapacity" yaml:"radarChatCapacity"`
	// RadarChatRate 单连接雷达聊天令牌速率（条/秒）
	RadarChatRate float64 `json:"radarChatRate" yaml:"radarChatRate"`
	// RadarChatBurst 单连接雷达聊天突发额度
	RadarChatBurst int `json:"radarChatBurst" yaml:"radarChatBurst"`

	// ReputationEndpoint 外部信誉服务地址；为空时退化为按 user_info.tier 本地裁定
	ReputationEndpoint string `json:"reputationEndpoint" yaml:"reputationEndpoint"`
	// ReputationTimeout 信誉服务单次请求超时
	ReputationTimeout time.Duration `json:"reputationTimeout" yaml:"reputationTimeout"`
}

// DefaultHubConfig 返回本地开发的默认配置。
func DefaultHubConfig() HubConfig {
	return HubConfig{
		ServerName:         "PairServer",
		ShardID:            1,
		RadarChatCapacity:  25,
		RadarChatRate:      2,
		RadarChatBurst:     5,
		ReputationEndpoint: os.Getenv("REPUTATION_ENDPOINT"),
		ReputationTimeout:  2 * time.Second,
	}
}
