package config

import (
	"os"
	"time"
)

// RedisConfig Redis 连接配置。
// 在线状态（presence）是多实例共享的唯一真相源，全部走这套连接。
type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`

	DialTimeout  time.Duration `json:"dialTimeout" yaml:"dialTimeout"`
	ReadTimeout  time.Duration `json:"readTimeout" yaml:"readTimeout"`
	WriteTimeout time.Duration `json:"writeTimeout" yaml:"writeTimeout"`

	PoolSize     int `json:"poolSize" yaml:"poolSize"`
	MinIdleConns int `json:"minIdleConns" yaml:"minIdleConns"`
}

// DefaultRedisConfig 返回本地开发的默认配置。
// 地址优先读取 REDIS_ADDR 环境变量。
func DefaultRedisConfig() RedisConfig {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "127.0.0.1:6379"
	}
	return RedisConfig{
		Addr:         addr,
		DB:           0,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
		PoolSize:     64,
		MinIdleConns: 8,
	}
}
