package router

import "github.com/gin-gonic/gin"

// RegisterMessageRoutes 消息相关路由（需要认证）
func (rt *Router) RegisterMessageRoutes(rg *gin.RouterGroup) {
	h := rt.handlers.Message
	rg.POST("/send", h.Send)
	rg.POST("/cancel", h.Cancel)
	rg.POST("/edit", h.Edit)
	rg.GET("/history", h.History)
}
