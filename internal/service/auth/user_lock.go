package auth

import "sync"

// userLock 按用户串行化登录流程，保证本实例内设备数检查与写入之间没有其他登录插入
type userLock struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newUserLock() *userLock {
	return &userLock{locks: make(map[string]*lockEntry)}
}

// Lock 返回解锁函数，最后一个持有者解锁时回收条目
func (l *userLock) Lock(userId string) func() {
	l.mu.Lock()
	e, ok := l.locks[userId]
	if !ok {
		e = &lockEntry{}
		l.locks[userId] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.locks, userId)
		}
		l.mu.Unlock()
	}
}
