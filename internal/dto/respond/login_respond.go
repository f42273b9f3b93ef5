package respond

import "time"

// LoginRespond 登录 / 刷新响应
// 使用位置:
//   - internal/service/auth/service.go: Login, Refresh
type LoginRespond struct {
	UserId           string    `json:"user_id"`
	DeviceId         string    `json:"device_id"`
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshToken     string    `json:"refresh_token"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	// EvictedDeviceIds 因设备上限被挤下线的设备
	EvictedDeviceIds []string `json:"evicted_device_ids,omitempty"`
}

// DeviceRespond 设备会话列表项
type DeviceRespond struct {
	DeviceId        string    `json:"device_id"`
	Online          bool      `json:"online"`
	Revoked         bool      `json:"revoked"`
	Current         bool      `json:"current"`
	LastAccessAt    time.Time `json:"last_access_at"`
	LastHeartbeatAt time.Time `json:"last_heartbeat_at"`
}

// ForceLogoutPush 强制下线推送
type ForceLogoutPush struct {
	DeviceId string `json:"device_id"`
	Reason   string `json:"reason"`
}
