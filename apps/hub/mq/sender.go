package mq

import (
	"context"
	"encoding/json"
	"sync"

	"PairServer/config"
	"PairServer/pkg/kafka"
)

// ==================== Redis 重试任务发送 ====================

var (
	producerOnce sync.Once
	producer     *kafka.Producer
)

// InitProducer 初始化重试队列的生产者（仅首次调用生效）
func InitProducer(cfg config.KafkaConfig) {
	producerOnce.Do(func() {
		producer = kafka.NewProducer(cfg.Brokers, cfg.RedisRetryTopic)
	})
}

// CloseProducer 关闭生产者，main 退出时调用
func CloseProducer() error {
	if producer == nil {
		return nil
	}
	return producer.Close()
}

// SendRedisTask 把失败的 Redis 任务投递到 Kafka 重试队列
// key 使用 user_uid，同一用户的任务落在同一分区保序
func SendRedisTask(ctx context.Context, task RedisTask) error {
	if producer == nil {
		// 未接入 Kafka（单机/测试环境），直接放弃，调用方已记过日志
		return nil
	}

	payload, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return producer.Send(ctx, []byte(task.UserUID), payload)
}
