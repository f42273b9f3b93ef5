package router

import "github.com/gin-gonic/gin"

// RegisterContactRoutes 未读数与隐私检查（需要认证）
func (rt *Router) RegisterContactRoutes(rg *gin.RouterGroup) {
	h := rt.handlers.Unread
	rg.GET("/unread", h.Snapshot)
	rg.POST("/read", h.MarkRead)
	rg.GET("/canRequest", h.CanRequest)
}
