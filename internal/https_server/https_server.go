// Package https_server 创建 Gin 引擎并挂载中间件与路由
package https_server

import (
	"fmt"
	"net/http"
	"time"

	"kama_realtime/internal/config"
	"kama_realtime/internal/handler"
	"kama_realtime/internal/infrastructure/logger"
	"kama_realtime/internal/infrastructure/middleware"
	"kama_realtime/internal/router"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Init 创建 Gin 引擎
// 中间件顺序：日志 -> 恢复 -> CORS -> TLS 重定向（可选）-> 路由
func Init(cfg *config.Config, handlers *handler.Handlers, validator middleware.TokenValidator) *gin.Engine {
	if cfg.MainConfig.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(logger.GinLogger())
	engine.Use(logger.GinRecovery(true))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"*"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	engine.Use(cors.New(corsConfig))

	if cfg.MainConfig.ForceTLS {
		engine.Use(middleware.TlsHandler(cfg.MainConfig.Host, cfg.MainConfig.Port, cfg.MainConfig.Mode == "dev"))
	}

	router.NewRouter(handlers, validator, cfg.RateLimitConfig).RegisterRoutes(engine)
	return engine
}

// NewServer 包装为 http.Server，便于优雅关闭
func NewServer(cfg *config.Config, engine *gin.Engine) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.MainConfig.Host, cfg.MainConfig.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// ListenAndServe 配置了证书时以 HTTPS 监听
func ListenAndServe(cfg *config.Config, srv *http.Server) error {
	if cfg.MainConfig.CertFile != "" && cfg.MainConfig.KeyFile != "" {
		return srv.ListenAndServeTLS(cfg.MainConfig.CertFile, cfg.MainConfig.KeyFile)
	}
	return srv.ListenAndServe()
}
