package config

import (
	"os"
	"strings"
	"time"
)

// KafkaConsumerConfig 消费者配置。
type KafkaConsumerConfig struct {
	GroupID        string        `json:"groupId" yaml:"groupId"`
	MinBytes       int           `json:"minBytes" yaml:"minBytes"`
	MaxBytes       int           `json:"maxBytes" yaml:"maxBytes"`
	CommitInterval time.Duration `json:"commitInterval" yaml:"commitInterval"`
}

// KafkaConfig Kafka 配置。
// 仅用于 Redis 写失败重试队列：presence 写入失败的任务投递到该 topic，
// 由消费者按原命令回放，保证多实例部署下在线状态最终一致。
type KafkaConfig struct {
	Brokers         []string            `json:"brokers" yaml:"brokers"`
	RedisRetryTopic string              `json:"redisRetryTopic" yaml:"redisRetryTopic"`
	ConsumerConfig  KafkaConsumerConfig `json:"consumer" yaml:"consumer"`
}

// DefaultKafkaConfig 返回本地开发的默认配置。
// broker 地址优先读取 KAFKA_BROKERS 环境变量（逗号分隔）。
func DefaultKafkaConfig() KafkaConfig {
	brokers := []string{"127.0.0.1:9092"}
	if env := os.Getenv("KAFKA_BROKERS"); env != "" {
		brokers = strings.Split(env, ",")
	}
	return KafkaConfig{
		Brokers:         brokers,
		RedisRetryTopic: "pair-server.redis-retry",
		ConsumerConfig: KafkaConsumerConfig{
			GroupID:        "pair-server-redis-retry",
			MinBytes:       1,
			MaxBytes:       1 << 20,
			CommitInterval: time.Second,
		},
	}
}
