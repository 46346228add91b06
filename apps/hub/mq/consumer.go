package mq

import (
	"context"
	"encoding/json"
	"time"

	"PairServer/config"
	pkgkafka "PairServer/pkg/kafka"
	"PairServer/pkg/logger"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/redis/go-redis/v9"
)

// ==================== Redis 重试消费者 ====================

// RedisRetryConsumer 消费重试队列，把失败的 Redis 命令按原样回放
type RedisRetryConsumer struct {
	reader *kafkago.Reader
	rdb    *redis.Client
}

// NewRedisRetryConsumer 创建消费者
func NewRedisRetryConsumer(cfg config.KafkaConfig, rdb *redis.Client) *RedisRetryConsumer {
	reader := pkgkafka.NewReader(
		cfg.Brokers,
		cfg.RedisRetryTopic,
		cfg.ConsumerConfig.GroupID,
		cfg.ConsumerConfig.MinBytes,
		cfg.ConsumerConfig.MaxBytes,
		cfg.ConsumerConfig.CommitInterval,
	)
	return &RedisRetryConsumer{reader: reader, rdb: rdb}
}

// Run 阻塞消费直到 ctx 取消
func (c *RedisRetryConsumer) Run(ctx context.Context) {
	logger.Info(ctx, "Redis 重试消费者启动")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error(ctx, "拉取重试消息失败", logger.ErrorField("error", err))
			time.Sleep(time.Second)
			continue
		}

		var task RedisTask
		if err := json.Unmarshal(msg.Value, &task); err != nil {
			// 消息体损坏，提交掉避免卡住分区
			logger.Error(ctx, "重试消息解析失败，丢弃", logger.ErrorField("error", err))
			_ = c.reader.CommitMessages(ctx, msg)
			continue
		}

		if err := c.replay(ctx, task); err != nil {
			task.RetryCount++
			if task.RetryCount < task.MaxRetries {
				// 重新入队，下次再试
				if sendErr := SendRedisTask(ctx, task); sendErr != nil {
					logger.Error(ctx, "重试任务重新入队失败",
						logger.ErrorField("error", sendErr),
						logger.Int("retry_count", task.RetryCount),
					)
				}
			} else {
				logger.Error(ctx, "重试任务超过最大次数，放弃",
					logger.ErrorField("error", err),
					logger.String("command", task.Command),
					logger.String("user_uid", task.UserUID),
					logger.String("trace_id", task.TraceID),
				)
			}
		}

		_ = c.reader.CommitMessages(ctx, msg)
	}
}

// Close 关闭 reader
func (c *RedisRetryConsumer) Close() error {
	return c.reader.Close()
}

// replay 按任务类型回放 Redis 命令
func (c *RedisRetryConsumer) replay(ctx context.Context, task RedisTask) error {
	switch task.Type {
	case CmdSimple:
		args := make([]interface{}, 0, len(task.Args)+1)
		args = append(args, task.Command)
		args = append(args, task.Args...)
		return c.rdb.Do(ctx, args...).Err()

	case CmdPipeline:
		pipe := c.rdb.Pipeline()
		for _, cmd := range task.PipelineCmds {
			args := make([]interface{}, 0, len(cmd.Args)+1)
			args = append(args, cmd.Command)
			args = append(args, cmd.Args...)
			pipe.Do(ctx, args...)
		}
		_, err := pipe.Exec(ctx)
		return err

	case CmdLua:
		return c.rdb.Eval(ctx, task.LuaScript, task.LuaKeys, task.LuaArgs...).Err()

	default:
		logger.Warn(ctx, "未知的重试任务类型，丢弃", logger.String("type", string(task.Type)))
		return nil
	}
}
