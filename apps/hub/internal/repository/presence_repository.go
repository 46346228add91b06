package repository

import (
	"context"

	"PairServer/apps/hub/mq"
	rediskey "PairServer/consts/redisKey"

	"github.com/redis/go-redis/v9"
)

// presenceRepositoryImpl 在线状态数据访问层实现（Redis TTL）
// 在线状态是最终一致的软状态：写失败不阻断连接流程，
// 投递 Kafka 重试队列回放，TTL 窗口（60s）是陈旧度上界
type presenceRepositoryImpl struct {
	redisClient *redis.Client
}

// NewPresenceRepository 创建在线状态仓储实例
func NewPresenceRepository(redisClient *redis.Client) IPresenceRepository {
	return &presenceRepositoryImpl{redisClient: redisClient}
}

// SetOnline 写入在线状态（SET EX）
// value 为连接期角色标识，其他实例据此识别"同一用户的新连接"
func (r *presenceRepositoryImpl) SetOnline(ctx context.Context, uid, charIdent string) error {
	key := rediskey.PresenceKey(uid)
	err := r.redisClient.Set(ctx, key, charIdent, rediskey.PresenceTTL).Err()
	if err != nil {
		// 写失败投递重试队列，连接流程照常继续
		task := mq.BuildSetTask(key, charIdent, rediskey.PresenceTTL).WithSource("presence.SetOnline")
		LogAndRetryRedisError(ctx, task, err)
	}
	return nil
}

// Heartbeat 续期在线状态
// 直接重写整个 key（SET EX）而不是 EXPIRE：心跳同时承担
// "实例漂移后重建在线状态"的职责
func (r *presenceRepositoryImpl) Heartbeat(ctx context.Context, uid, charIdent string) error {
	key := rediskey.PresenceKey(uid)
	err := r.redisClient.Set(ctx, key, charIdent, rediskey.PresenceTTL).Err()
	if err != nil {
		// 心跳失败不重试：下一跳（间隔远小于 TTL）会自然补上
		LogRedisError(ctx, err)
		return WrapRedisError(err)
	}
	return nil
}

// RemoveOnline 删除在线状态
// Lua compare-and-delete：仅当 value 仍是本连接的角色标识时删除，
// 防止旧连接的断开清理误删新连接刚写入的在线状态
func (r *presenceRepositoryImpl) RemoveOnline(ctx context.Context, uid, charIdent string) error {
	key := rediskey.PresenceKey(uid)
	luaScript := redis.NewScript(luaCompareAndDelete)

	_, err := luaScript.Run(ctx, r.redisClient, []string{key}, charIdent).Result()
	if err != nil && err != redis.Nil {
		// 删失败投递重试队列（回放同一个比较删除脚本，幂等）
		task := mq.BuildLuaTask(luaCompareAndDelete, []string{key}, charIdent).
			WithSource("presence.RemoveOnline")
		LogAndRetryRedisError(ctx, task, err)
	}
	return nil
}

// GetOnlineIdent 获取在线角色标识
// key 不存在或值为空均视为离线，返回空串不报错
func (r *presenceRepositoryImpl) GetOnlineIdent(ctx context.Context, uid string) (string, error) {
	val, err := r.redisClient.Get(ctx, rediskey.PresenceKey(uid)).Result()
	if err != nil {
		if err == redis.Nil {
			return "", nil
		}
		return "", WrapRedisError(err)
	}
	return val, nil
}

// IsOnline 检查用户是否在线
func (r *presenceRepositoryImpl) IsOnline(ctx context.Context, uid string) (bool, error) {
	ident, err := r.GetOnlineIdent(ctx, uid)
	if err != nil {
		return false, err
	}
	return ident != "", nil
}

// BatchGetOnline 批量获取在线角色标识（Pipeline）
func (r *presenceRepositoryImpl) BatchGetOnline(ctx context.Context, uids []string) (map[string]string, error) {
	result := make(map[string]string, len(uids))
	if len(uids) == 0 {
		return result, nil
	}

	pipe := r.redisClient.Pipeline()
	cmds := make([]*redis.StringCmd, 0, len(uids))
	for _, uid := range uids {
		cmds = append(cmds, pipe.Get(ctx, rediskey.PresenceKey(uid)))
	}

	_, err := pipe.Exec(ctx)
	if err != nil && err != redis.Nil {
		return nil, WrapRedisError(err)
	}

	for i, cmd := range cmds {
		if cmd.Err() == nil && cmd.Val() != "" {
			result[uids[i]] = cmd.Val()
		}
	}
	return result, nil
}
