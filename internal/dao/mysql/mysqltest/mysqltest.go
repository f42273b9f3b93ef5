// Package mysqltest 为测试提供基于内存 sqlite 的 Repository
package mysqltest

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"kama_realtime/internal/config"
	"kama_realtime/internal/dao/mysql"
	"kama_realtime/internal/dao/mysql/repository"
)

var seq atomic.Int64

// NewRepositories 每次调用得到一个独立的内存库，测试结束自动关闭
func NewRepositories(t testing.TB) *repository.Repositories {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_busy_timeout=5000", name, seq.Add(1))

	repos, err := mysql.Init(config.MysqlConfig{Driver: "sqlite", DatabaseName: dsn})
	if err != nil {
		t.Fatalf("init sqlite: %v", err)
	}
	sqlDB, err := repos.DB().DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	// 共享内存库在最后一个连接关闭时销毁，限制为单连接同时避免 sqlite 写锁竞争
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return repos
}
