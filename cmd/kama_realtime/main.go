package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kama_realtime/internal/config"
	dao "kama_realtime/internal/dao/mysql"
	myredis "kama_realtime/internal/dao/redis"
	"kama_realtime/internal/gateway/websocket"
	"kama_realtime/internal/handler"
	"kama_realtime/internal/https_server"
	"kama_realtime/internal/infrastructure/logger"
	"kama_realtime/internal/infrastructure/mq"
	"kama_realtime/internal/infrastructure/sms"
	"kama_realtime/internal/service"
	"kama_realtime/pkg/util/jwt"
	"kama_realtime/pkg/util/snowflake"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径，留空按默认路径查找")
	flag.Parse()

	// 1. 加载配置
	conf := config.GetConfig()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("load config failed: %v", err)
		}
		conf = loaded
	}

	// 2. 初始化日志
	if err := logger.Init(&conf.LogConfig, conf.MainConfig.Mode); err != nil {
		log.Fatalf("init logger failed: %v", err)
	}
	defer func() { _ = zap.L().Sync() }()

	if err := handler.InitTrans("zh"); err != nil {
		zap.L().Fatal("初始化参数校验翻译器失败", zap.Error(err))
	}

	// 3. 数据库
	repos, err := dao.Init(conf.MysqlConfig)
	if err != nil {
		zap.L().Fatal("数据库初始化失败", zap.Error(err))
	}

	// 4. 缓存：未配置 Redis 时退化为进程内缓存，只支持单实例
	var (
		redisClient *redis.Client
		cache       myredis.AsyncCacheService
	)
	if conf.RedisConfig.Host != "" {
		redisClient, err = myredis.NewClient(conf.RedisConfig)
		if err != nil {
			zap.L().Fatal("Redis 初始化失败", zap.Error(err))
		}
		redisCache := myredis.NewRedisCache(redisClient, conf.RedisConfig.WorkerNum, conf.RedisConfig.BufferSize)
		defer redisCache.Close()
		cache = redisCache
	} else {
		zap.L().Warn("未配置 Redis，使用进程内缓存")
		cache = myredis.NewLocalCache()
	}

	// 5. 短信、令牌、雪花 ID
	smsSvc, err := sms.New(conf.AuthCodeConfig, cache)
	if err != nil {
		zap.L().Fatal("SMS Service 初始化失败", zap.Error(err))
	}
	tokens := jwt.NewManager(conf.JWTConfig.Secret,
		time.Duration(conf.JWTConfig.AccessTokenExpiry)*time.Minute,
		time.Duration(conf.JWTConfig.RefreshTokenExpiry)*time.Hour)
	snowflake.Init(conf.SnowflakeConfig.MachineID)

	// 6. 推送总线与连接中心
	instanceID := conf.MainConfig.InstanceID
	if instanceID == "" {
		instanceID = uuid.NewString()
	}
	bus, err := mq.New(conf, redisClient, instanceID)
	if err != nil {
		zap.L().Fatal("推送总线初始化失败", zap.Error(err))
	}
	hub := websocket.NewHub(conf.FanoutConfig, bus, websocket.WithPresence(cache, instanceID))

	// 7. Service / Handler / HTTP
	services := service.NewServices(conf, repos, tokens, smsSvc, hub)
	handlers := handler.NewHandlers(services, hub)
	engine := https_server.Init(conf, handlers, services.Auth)
	srv := https_server.NewServer(conf, engine)

	go func() {
		zap.L().Info("服务启动", zap.String("addr", srv.Addr), zap.String("instance", instanceID),
			zap.String("fanout", conf.FanoutConfig.Mode))
		if err := https_server.ListenAndServe(conf, srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Fatal("server running fault", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zap.L().Info("关闭服务器...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zap.L().Error("HTTP 服务关闭失败", zap.Error(err))
	}
	// 断开全部连接并关闭推送总线
	hub.Close()
	if redisClient != nil {
		_ = redisClient.Close()
	}
	zap.L().Info("服务器已关闭")
}
