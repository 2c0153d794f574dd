// 包 utils：外部连接工具（PostgreSQL、Redis、自签名证书），统一从配置结构读取参数
package utils

import (
	"ipress-dash/internal/config"

	"github.com/redis/go-redis/v9"
)

// OpenRedis：使用地址与密码打开 Redis 客户端
// 背景：保留直接传入参数的能力，用于测试与手工注入场景
func OpenRedis(addr, pass string) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: addr, Password: pass})
}

// OpenRedisFromConfig：未启用时返回 nil
func OpenRedisFromConfig(c config.Redis) *redis.Client {
	if !c.Enable {
		return nil
	}
	db := c.DB
	if db < 0 {
		db = 0
	}
	return redis.NewClient(&redis.Options{Addr: c.Host + ":" + c.Port, Password: c.Pass, DB: db})
}
