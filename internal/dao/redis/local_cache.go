package redis

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type localEntry struct {
	value    string
	expireAt time.Time
}

// LocalCache 进程内缓存，fanout 模式为 channel（单实例）且未配置 Redis 时使用
// 语义与 RedisCache 保持一致：Get 不存在返回空串，SubmitTask 同步执行
type LocalCache struct {
	mu      sync.Mutex
	strings map[string]localEntry
	sets    map[string]map[string]struct{}
	now     func() time.Time
}

// NewLocalCache 创建进程内缓存
func NewLocalCache() *LocalCache {
	return &LocalCache{
		strings: make(map[string]localEntry),
		sets:    make(map[string]map[string]struct{}),
		now:     time.Now,
	}
}

func (l *LocalCache) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry := localEntry{value: value}
	if ttl > 0 {
		entry.expireAt = l.now().Add(ttl)
	}
	l.strings[key] = entry
	return nil
}

func (l *LocalCache) Get(_ context.Context, key string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.strings[key]
	if !ok {
		return "", nil
	}
	if !entry.expireAt.IsZero() && !l.now().Before(entry.expireAt) {
		delete(l.strings, key)
		return "", nil
	}
	return entry.value, nil
}

func (l *LocalCache) Delete(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.strings, key)
	delete(l.sets, key)
	return nil
}

func (l *LocalCache) AddToSet(_ context.Context, key string, members ...interface{}) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	set, ok := l.sets[key]
	if !ok {
		set = make(map[string]struct{})
		l.sets[key] = set
	}
	for _, m := range members {
		set[fmt.Sprint(m)] = struct{}{}
	}
	return nil
}

func (l *LocalCache) GetSetMembers(_ context.Context, key string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	members := make([]string, 0, len(l.sets[key]))
	for m := range l.sets[key] {
		members = append(members, m)
	}
	return members, nil
}

func (l *LocalCache) RemoveFromSet(_ context.Context, key string, members ...interface{}) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	set := l.sets[key]
	for _, m := range members {
		delete(set, fmt.Sprint(m))
	}
	if len(set) == 0 {
		delete(l.sets, key)
	}
	return nil
}

// SubmitTask 直接同步执行
func (l *LocalCache) SubmitTask(action func()) {
	action()
}

var _ AsyncCacheService = (*LocalCache)(nil)
