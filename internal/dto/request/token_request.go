package request

// RefreshRequest 刷新令牌请求
// 使用位置:
//   - internal/handler/auth_handler.go: Refresh
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
	DeviceId     string `json:"device_id" binding:"required,max=128"`
}

// LogoutRequest 登出请求，DeviceId 为空时登出当前设备
type LogoutRequest struct {
	DeviceId string `json:"device_id" binding:"omitempty,max=128"`
}
