package repository

const (
	// luaCompareAndDelete 在线状态删除（仅当 value 仍是本连接的角色标识时删除）
	// 防止旧连接的清理动作误删新连接刚写入的在线状态
	// KEYS[1]: presence key
	// ARGV[1]: 期望的角色标识
	// 返回: 1 表示删除成功，0 表示值不匹配或 key 不存在
	luaCompareAndDelete = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`

	// luaAddPairIfExists 配对列表写入（仅在 key 存在时增量更新）
	// KEYS[1]: 配对列表 Set
	// ARGV[1]: member(对端 uid)
	// ARGV[2]: 过期时间（秒）
	// 返回: 1 表示写入成功，0 表示 key 不存在
	luaAddPairIfExists = `
if redis.call('EXISTS', KEYS[1]) == 1 then
	redis.call('SREM', KEYS[1], '__EMPTY__')
	redis.call('SADD', KEYS[1], ARGV[1])
	redis.call('EXPIRE', KEYS[1], ARGV[2])
	return 1
end
return 0
`

	// luaRemovePairIfExists 配对列表移除（仅在 key 存在时增量更新）
	// KEYS[1]: 配对列表 Set
	// ARGV[1]: member(对端 uid)
	// ARGV[2]: 过期时间（秒）
	// 返回: 1 表示执行成功，0 表示 key 不存在
	luaRemovePairIfExists = `
if redis.call('EXISTS', KEYS[1]) == 1 then
	redis.call('SREM', KEYS[1], ARGV[1])
	redis.call('SREM', KEYS[1], '__EMPTY__')
	if redis.call('SCARD', KEYS[1]) == 0 then
		redis.call('SADD', KEYS[1], '__EMPTY__')
	end
	redis.call('EXPIRE', KEYS[1], ARGV[2])
	return 1
end
return 0
`
)
