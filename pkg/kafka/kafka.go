package kafka

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Producer kafka-go Writer 的轻量封装。
// 固定 topic，按 key 哈希分区，确保同一用户的重试任务落在同一分区保序。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 创建固定 topic 的生产者。
func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			WriteTimeout: 3 * time.Second,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// Send 发送一条消息。
func (p *Producer) Send(ctx context.Context, key, value []byte) error {
	return p.writer.WriteMessages(ctx, kafka.Message{Key: key, Value: value})
}

// Close 关闭底层 writer。
func (p *Producer) Close() error {
	return p.writer.Close()
}

// NewReader 创建消费组 reader。
func NewReader(brokers []string, topic, groupID string, minBytes, maxBytes int, commitInterval time.Duration) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       minBytes,
		MaxBytes:       maxBytes,
		CommitInterval: commitInterval,
	})
}

// NewZapLoggerAdapter 把 zap 适配成 kafka-go 的 Logger 接口。
func NewZapLoggerAdapter(l *zap.Logger) kafka.LoggerFunc {
	sugar := l.Sugar()
	return func(msg string, args ...interface{}) {
		sugar.Debugf(msg, args...)
	}
}
