package router

import (
	"kama_realtime/internal/infrastructure/middleware"

	"github.com/gin-gonic/gin"
)

// RegisterAuthRoutes 登录与令牌
func (rt *Router) RegisterAuthRoutes(rg *gin.RouterGroup) {
	h := rt.handlers.Auth

	// 未登录即可访问，按 IP 限流
	public := rg.Group("", middleware.RateLimitByIP(rt.authLimiter))
	public.POST("/login", h.Login)
	public.POST("/smsLogin", h.SmsLogin)
	public.POST("/sendSmsCode", h.SendSmsCode)
	public.POST("/refresh", h.Refresh)

	authed := rg.Group("", middleware.JWTAuth(rt.validator))
	authed.POST("/logout", h.Logout)
	authed.GET("/devices", h.Devices)
}
