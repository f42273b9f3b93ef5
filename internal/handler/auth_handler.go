// Package handler 提供 HTTP 请求处理器
// 本文件处理登录、令牌轮换与设备管理
package handler

import (
	"kama_realtime/internal/dto/request"
	"kama_realtime/internal/infrastructure/middleware"
	"kama_realtime/internal/service"

	"github.com/gin-gonic/gin"
)

// AuthHandler 认证请求处理器
type AuthHandler struct {
	authSvc service.AuthService
}

// NewAuthHandler 创建认证处理器实例
func NewAuthHandler(authSvc service.AuthService) *AuthHandler {
	return &AuthHandler{authSvc: authSvc}
}

// Login 密码登录
// POST /auth/login
// 请求体: request.LoginRequest
// 响应: respond.LoginRespond（令牌对 + 被挤下线的设备）
func (h *AuthHandler) Login(c *gin.Context) {
	var req request.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	data, err := h.authSvc.Login(c.Request.Context(), req)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, data)
}

// SmsLogin 短信验证码登录
// POST /auth/smsLogin
func (h *AuthHandler) SmsLogin(c *gin.Context) {
	var req request.SmsLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	data, err := h.authSvc.SmsLogin(c.Request.Context(), req)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, data)
}

// SendSmsCode 发送验证码
// POST /auth/sendSmsCode
func (h *AuthHandler) SendSmsCode(c *gin.Context) {
	var req request.SendSmsCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	if err := h.authSvc.SendSmsCode(c.Request.Context(), req.Telephone); err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, nil)
}

// Refresh 轮换令牌对
// POST /auth/refresh
// 每个 Refresh Token 只能使用一次，并发刷新只有一个成功
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req request.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	data, err := h.authSvc.Refresh(c.Request.Context(), req.RefreshToken, req.DeviceId)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, data)
}

// Logout 登出
// POST /auth/logout（需要 Access Token）
// device_id 为空时登出当前设备，也可指定本账号的其他设备
func (h *AuthHandler) Logout(c *gin.Context) {
	var req request.LogoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	userId, deviceId := identityOf(c)
	if req.DeviceId != "" {
		deviceId = req.DeviceId
	}
	if err := h.authSvc.Logout(c.Request.Context(), userId, deviceId); err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, nil)
}

// Devices 当前账号的设备会话列表
// GET /auth/devices
func (h *AuthHandler) Devices(c *gin.Context) {
	userId, deviceId := identityOf(c)
	data, err := h.authSvc.ListDevices(c.Request.Context(), userId, deviceId)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, data)
}

// identityOf 取 JWTAuth 写入上下文的身份
func identityOf(c *gin.Context) (userId, deviceId string) {
	return c.GetString(middleware.CtxUserID), c.GetString(middleware.CtxDeviceID)
}
