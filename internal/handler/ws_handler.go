// Package handler 提供 HTTP 请求处理器
// 本文件处理 WebSocket 升级
package handler

import (
	"context"
	"net/http"

	"kama_realtime/internal/gateway/websocket"
	"kama_realtime/internal/infrastructure/middleware"
	"kama_realtime/internal/service"
	"kama_realtime/internal/service/chat"
	"kama_realtime/pkg/errorx"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// 跨域由 cors 中间件统一处理，这里放行所有 Origin
var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  2048,
	WriteBufferSize: 2048,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WsHandler WebSocket 接入
type WsHandler struct {
	hub      *websocket.Hub
	authSvc  service.AuthService
	dispatch *chat.Dispatcher
}

func NewWsHandler(hub *websocket.Hub, authSvc service.AuthService, dispatch *chat.Dispatcher) *WsHandler {
	return &WsHandler{hub: hub, authSvc: authSvc, dispatch: dispatch}
}

// Connect 建立连接
// GET /ws?token=xxx 或 Authorization: Bearer xxx
// 不带令牌时以匿名身份接入，只能收发心跳；令牌无效或会话已吊销直接拒绝
func (h *WsHandler) Connect(c *gin.Context) {
	var identity websocket.Identity
	token := c.Query("token")
	if token == "" {
		token, _ = middleware.BearerToken(c.GetHeader("Authorization"))
	}
	ctx := context.WithoutCancel(c.Request.Context())
	if token != "" {
		claims, err := h.authSvc.Validate(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": errorx.CodeTokenInvalid, "msg": errorx.ErrTokenInvalid.Msg})
			return
		}
		// 心跳同时确认设备会话未被吊销
		if err := h.authSvc.Heartbeat(ctx, claims.UserID, claims.DeviceID); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": errorx.GetCode(err), "msg": errorx.ErrTokenInvalid.Msg})
			return
		}
		identity = websocket.Identity{UserId: claims.UserID, DeviceId: claims.DeviceID}
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		zap.L().Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	client := h.hub.OnConnect(conn, identity)
	go client.WritePump()
	go func() {
		client.ReadPump(ctx, h.dispatch)
		h.dispatch.Forget(client.ID())
		if client.Authenticated() {
			h.authSvc.SetOffline(ctx, client.UserId(), client.DeviceId())
		}
	}()
}

// Online 当前账号在各实例上的在线连接，形如 instanceId:connId
// GET /ws/online（需要 Access Token）
func (h *WsHandler) Online(c *gin.Context) {
	userId, _ := identityOf(c)
	conns, err := h.hub.OnlineConnections(c.Request.Context(), userId)
	if err != nil {
		HandleError(c, errorx.Wrap(err, errorx.CodeCacheError, "查询在线连接失败"))
		return
	}
	HandleSuccess(c, gin.H{"connections": conns})
}
