// Package handler 提供 HTTP 请求处理器
// 本文件定义 Handler 聚合结构和构造函数
package handler

import (
	"kama_realtime/internal/gateway/websocket"
	"kama_realtime/internal/service"
)

// Handlers 聚合所有 Handler 实例，Router 层通过此结构注册路由
type Handlers struct {
	Auth    *AuthHandler
	Message *MessageHandler
	Unread  *UnreadHandler
	Ws      *WsHandler
}

// NewHandlers 创建并注入所有 Handler 实例
func NewHandlers(svc *service.Services, hub *websocket.Hub) *Handlers {
	return &Handlers{
		Auth:    NewAuthHandler(svc.Auth),
		Message: NewMessageHandler(svc.Message),
		Unread:  NewUnreadHandler(svc.Unread, svc.Privacy),
		Ws:      NewWsHandler(hub, svc.Auth, svc.Chat),
	}
}
