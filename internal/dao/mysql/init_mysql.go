// Package mysql 负责建立关系型数据库连接、自动迁移表结构、初始化 Repository 层
// 驱动由 mysqlConfig.driver 选择：mysql（默认）、postgres、sqlite
package mysql

import (
	"fmt"

	"kama_realtime/internal/config"
	"kama_realtime/internal/dao/mysql/repository"
	"kama_realtime/internal/model"

	"go.uber.org/zap"
	mysqldriver "gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Init 打开数据库、迁移表结构并返回 Repository 聚合
func Init(cfg config.MysqlConfig) (*repository.Repositories, error) {
	db, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := AutoMigrate(db); err != nil {
		return nil, err
	}
	zap.L().Info("数据库初始化成功", zap.String("driver", cfg.Driver), zap.String("database", cfg.DatabaseName))
	return repository.NewRepositories(db), nil
}

// Open 按驱动建立连接
func Open(cfg config.MysqlConfig) (*gorm.DB, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		// 唯一约束冲突翻译为 gorm.ErrDuplicatedKey，Repository 层据此区分并发冲突
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	return db, nil
}

func dialectorFor(cfg config.MysqlConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "", "mysql":
		// 格式：user:password@tcp(host:port)/database?params
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DatabaseName)
		return mysqldriver.Open(dsn), nil
	case "postgres":
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable TimeZone=Asia/Shanghai",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DatabaseName)
		return postgres.Open(dsn), nil
	case "sqlite":
		// databaseName 为文件路径，或 file::memory: 之类的 DSN
		return sqlite.Open(cfg.DatabaseName), nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
}

// AutoMigrate 如果表不存在则创建，字段变更时补充新列，不会删除已有字段或数据
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.UserInfo{},
		&model.PrivacySettings{},
		&model.Conversation{},
		&model.GroupMember{},
		&model.Message{},
		&model.Contact{},
		&model.DeviceSession{},
	)
}
