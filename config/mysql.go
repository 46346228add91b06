package config

import (
	"fmt"
	"os"
	"time"
)

// MySQLConfig MySQL 连接配置。
// Replicas 非空时 pkg/mysql 会注册 dbresolver 做读写分离（写主读从）。
type MySQLConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
	Database string `json:"database" yaml:"database"`

	// 只读副本 DSN 列表（可为空）
	Replicas []string `json:"replicas" yaml:"replicas"`

	// 连接池配置
	MaxOpenConns    int           `json:"maxOpenConns" yaml:"maxOpenConns"`
	MaxIdleConns    int           `json:"maxIdleConns" yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `json:"connMaxLifetime" yaml:"connMaxLifetime"`

	// SlowThreshold 慢查询日志阈值
	SlowThreshold time.Duration `json:"slowThreshold" yaml:"slowThreshold"`
}

// DSN 拼接 gorm mysql driver 使用的 DSN。
func (c MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// DefaultMySQLConfig 返回本地开发的默认配置。
// 地址优先读取 MYSQL_HOST/MYSQL_PORT 环境变量（容器编排场景）。
func DefaultMySQLConfig() MySQLConfig {
	host := os.Getenv("MYSQL_HOST")
	if host == "" {
		host = "127.0.0.1"
	}
	return MySQLConfig{
		Host:            host,
		Port:            3306,
		User:            "pairserver",
		Password:        "pairserver",
		Database:        "pair_server",
		MaxOpenConns:    100,
		MaxIdleConns:    10,
		ConnMaxLifetime: time.Hour,
		SlowThreshold:   200 * time.Millisecond,
	}
}
