// Package service 定义业务层接口
// Handler 层只依赖这里的接口，具体实现位于各子包
package service

import (
	"context"

	"kama_realtime/internal/dto/request"
	"kama_realtime/internal/dto/respond"
	"kama_realtime/internal/model"
	"kama_realtime/internal/service/privacy"
	"kama_realtime/pkg/util/jwt"
)

// AuthService 登录、令牌与设备会话
type AuthService interface {
	// Login 密码登录，成功时签发该设备的令牌对
	Login(ctx context.Context, req request.LoginRequest) (*respond.LoginRespond, error)
	// SmsLogin 短信验证码登录
	SmsLogin(ctx context.Context, req request.SmsLoginRequest) (*respond.LoginRespond, error)
	SendSmsCode(ctx context.Context, telephone string) error
	// Refresh 轮换令牌，旧 Refresh Token 立即失效
	Refresh(ctx context.Context, refreshToken, deviceId string) (*respond.LoginRespond, error)
	// Logout 吊销单个设备会话并踢下线
	Logout(ctx context.Context, userId, deviceId string) error
	// Validate 无状态校验 Access Token
	Validate(accessToken string) (*jwt.Claims, error)
	Heartbeat(ctx context.Context, userId, deviceId string) error
	// SetOffline 连接断开时调用，所有设备都离线后用户置为离线
	SetOffline(ctx context.Context, userId, deviceId string)
	ListDevices(ctx context.Context, userId, currentDevice string) ([]respond.DeviceRespond, error)
}

// MessageService 消息业务接口
type MessageService interface {
	// Send 校验未通过时以 Outcome 返回，error 只表示系统故障
	Send(ctx context.Context, senderId string, req request.SendMessageRequest) (*respond.SendMessageRespond, error)
	Cancel(ctx context.Context, userId string, uuid int64) (*respond.MessageRespond, error)
	Edit(ctx context.Context, userId string, uuid int64, content string) (*respond.MessageRespond, error)
	History(ctx context.Context, userId string, req request.HistoryRequest) (*respond.HistoryRespond, error)
	CheckAccess(ctx context.Context, userId, mark string) (*model.Conversation, error)
}

// UnreadService 未读数与最近会话
type UnreadService interface {
	MarkAsRead(ctx context.Context, userId, mark string) (*respond.UnreadCountUpdate, error)
	// Snapshot 断线重连后拉取全量未读
	Snapshot(ctx context.Context, userId string) (*respond.UnreadSnapshot, error)
}

// PrivacyGate 拉黑与隐私设置检查
type PrivacyGate interface {
	IsBlocked(ctx context.Context, a, b string) (bool, error)
	CanRequest(ctx context.Context, target, requester string, isGroupInvite bool) (bool, privacy.Reason, error)
}
