// Package service 提供业务逻辑层
// 本文件实现 Service 层的依赖注入和聚合
package service

import (
	"kama_realtime/internal/config"
	"kama_realtime/internal/dao/mysql/repository"
	"kama_realtime/internal/gateway/websocket"
	"kama_realtime/internal/infrastructure/sms"
	"kama_realtime/internal/service/auth"
	"kama_realtime/internal/service/chat"
	"kama_realtime/internal/service/message"
	"kama_realtime/internal/service/privacy"
	"kama_realtime/internal/service/unread"
	"kama_realtime/internal/service/validation"
	"kama_realtime/pkg/util/jwt"
)

// Services 聚合所有 Service 实例，由 main 构造后注入 Handler
type Services struct {
	Auth    AuthService
	Message MessageService
	Unread  UnreadService
	Privacy PrivacyGate
	// Chat WebSocket 上行帧分发
	Chat *chat.Dispatcher
}

// NewServices 创建并注入所有 Service 实例
// hub 同时承担房间广播、按用户推送和踢下线
func NewServices(cfg *config.Config, repos *repository.Repositories, tokens *jwt.Manager, smsSvc sms.SmsService, hub *websocket.Hub) *Services {
	gate := privacy.NewPrivacyGate(repos)
	unreadSvc := unread.NewUnreadService(repos, hub, cfg.FanoutConfig.Workers)
	messageSvc := message.NewMessageService(repos, validation.NewLoader(repos, gate), unreadSvc, hub)
	authSvc := auth.NewAuthService(repos, tokens, smsSvc, hub, auth.OptionsFrom(cfg.DeviceConfig))

	return &Services{
		Auth:    authSvc,
		Message: messageSvc,
		Unread:  unreadSvc,
		Privacy: gate,
		Chat:    chat.NewDispatcher(hub, messageSvc, unreadSvc, authSvc, cfg.RateLimitConfig),
	}
}
