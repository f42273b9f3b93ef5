package router

import (
	"kama_realtime/internal/infrastructure/middleware"

	"github.com/gin-gonic/gin"
)

// RegisterWebSocketRoutes WebSocket 接入
// 令牌通过 query 或 Authorization 头携带，由 Handler 自行校验
// 请求示例: ws://host:port/ws?token=xxx
func (rt *Router) RegisterWebSocketRoutes(rg *gin.RouterGroup) {
	rg.GET("/ws", rt.handlers.Ws.Connect)
	rg.GET("/ws/online", middleware.JWTAuth(rt.validator), rt.handlers.Ws.Online)
}
