// Package redis 提供缓存访问，保存短信验证码和 ws 在线连接
// 未配置 redis 时使用进程内的 LocalCache
package redis

import (
	"context"
	"time"
)

// CacheService 缓存读写
type CacheService interface {
	// Set 写入字符串值，ttl 为 0 表示不过期
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	// Get 键不存在时返回 ("", nil)
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error

	// 在线连接集合：key 为用户，成员为 "实例id:连接id"
	AddToSet(ctx context.Context, key string, members ...interface{}) error
	GetSetMembers(ctx context.Context, key string) ([]string, error)
	RemoveFromSet(ctx context.Context, key string, members ...interface{}) error
}

// AsyncCacheService 在 CacheService 基础上支持后台执行写入
// Hub 用它记录上下线，避免在连接建立路径上等待 redis
type AsyncCacheService interface {
	CacheService
	// SubmitTask 队列满时在调用方 goroutine 中执行
	SubmitTask(action func())
}
