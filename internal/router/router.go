// Package router 提供 HTTP 路由注册
package router

import (
	"time"

	"kama_realtime/internal/config"
	"kama_realtime/internal/handler"
	"kama_realtime/internal/infrastructure/metrics"
	"kama_realtime/internal/infrastructure/middleware"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Router 路由管理器，持有 Handler 聚合与鉴权依赖
type Router struct {
	handlers    *handler.Handlers
	validator   middleware.TokenValidator
	authLimiter *middleware.KeyedLimiter
}

// NewRouter 创建路由管理器
// 认证接口按 IP 限流，默认每分钟 20 次
func NewRouter(handlers *handler.Handlers, validator middleware.TokenValidator, cfg config.RateLimitConfig) *Router {
	perMinute, burst := cfg.AuthPerMinute, cfg.AuthBurst
	if perMinute <= 0 {
		perMinute = 20
	}
	if burst <= 0 {
		burst = 5
	}
	return &Router{
		handlers:    handlers,
		validator:   validator,
		authLimiter: middleware.NewKeyedLimiter(rate.Limit(perMinute/60), burst, 30*time.Minute),
	}
}

// RegisterRoutes 注册所有路由
func (rt *Router) RegisterRoutes(r *gin.Engine) {
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	rt.RegisterAuthRoutes(r.Group("/auth"))
	rt.RegisterWebSocketRoutes(r.Group(""))

	authed := r.Group("", middleware.JWTAuth(rt.validator))
	rt.RegisterMessageRoutes(authed.Group("/message"))
	rt.RegisterContactRoutes(authed.Group("/contact"))
}
