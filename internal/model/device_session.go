package model

import (
	"time"

	"gorm.io/gorm"
)

// DeviceSession 一个用户在一台设备上的登录会话
// (user_id, device_id) 唯一；所有更新都带 Version 做乐观锁比较
type DeviceSession struct {
	gorm.Model

	UserId   string `gorm:"column:user_id;uniqueIndex:idx_user_device;index;type:char(20);not null;comment:用户uuid"`
	DeviceId string `gorm:"column:device_id;uniqueIndex:idx_user_device;type:varchar(128);not null;comment:设备标识"`

	// RefreshTokenId 当前唯一有效的 Refresh Token，刷新后立即轮换
	RefreshTokenId   string    `gorm:"column:refresh_token_id;type:char(36);not null;comment:当前刷新令牌id"`
	RefreshExpiresAt time.Time `gorm:"column:refresh_expires_at;not null;comment:刷新令牌过期时间"`

	LastAccessAt    time.Time `gorm:"column:last_access_at;index;not null;comment:最近登录或刷新时间"`
	LastHeartbeatAt time.Time `gorm:"column:last_heartbeat_at;comment:最近心跳时间"`

	Online  bool `gorm:"column:online;not null;comment:是否在线"`
	Revoked bool `gorm:"column:revoked;not null;comment:是否已吊销"`

	// Version 乐观锁版本号，每次成功写入加一
	Version int64 `gorm:"column:version;not null;comment:版本号"`
}

func (DeviceSession) TableName() string {
	return "device_session"
}

// ActiveAt 未吊销且刷新令牌未过期即视为有效会话，计入设备上限
func (s *DeviceSession) ActiveAt(now time.Time) bool {
	return !s.Revoked && s.RefreshExpiresAt.After(now)
}
