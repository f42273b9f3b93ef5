package repository

import (
	"context"
	"time"

	"kama_realtime/internal/model"
	"kama_realtime/pkg/errorx"

	"gorm.io/gorm"
)

type deviceSessionRepository struct {
	db *gorm.DB
}

// NewDeviceSessionRepository 创建设备会话 Repository
func NewDeviceSessionRepository(db *gorm.DB) DeviceSessionRepository {
	return &deviceSessionRepository{db: db}
}

func (r *deviceSessionRepository) FindByUserAndDevice(ctx context.Context, userId, deviceId string) (*model.DeviceSession, error) {
	var s model.DeviceSession
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND device_id = ?", userId, deviceId).
		First(&s).Error
	if err != nil {
		return nil, wrapDBErrorf(err, "查询设备会话 user=%s device=%s", userId, deviceId)
	}
	return &s, nil
}

func (r *deviceSessionRepository) FindActiveByUser(ctx context.Context, userId string, now time.Time) ([]model.DeviceSession, error) {
	var sessions []model.DeviceSession
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND revoked = ? AND refresh_expires_at > ?", userId, false, now).
		Order("last_access_at ASC").Order("id ASC").
		Find(&sessions).Error
	if err != nil {
		return nil, wrapDBErrorf(err, "查询有效设备会话 user=%s", userId)
	}
	return sessions, nil
}

// FindByUser 设备列表，最近使用的在前
func (r *deviceSessionRepository) FindByUser(ctx context.Context, userId string) ([]model.DeviceSession, error) {
	var sessions []model.DeviceSession
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userId).
		Order("last_access_at DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, wrapDBErrorf(err, "查询设备会话列表 user=%s", userId)
	}
	return sessions, nil
}

// Upsert 乐观锁写入
func (r *deviceSessionRepository) Upsert(ctx context.Context, s *model.DeviceSession, expectedVersion int64) error {
	db := r.db.WithContext(ctx)
	if s.ID == 0 {
		s.Version = 1
		if err := db.Create(s).Error; err != nil {
			// 并发登录同一设备时后插入者撞唯一索引，统一按版本冲突处理
			s.ID, s.Version = 0, 0
			return wrapDBErrorf(err, "创建设备会话 user=%s device=%s", s.UserId, s.DeviceId)
		}
		return nil
	}

	next := expectedVersion + 1
	res := db.Model(&model.DeviceSession{}).
		Where("id = ? AND version = ?", s.ID, expectedVersion).
		Updates(map[string]any{
			"refresh_token_id":   s.RefreshTokenId,
			"refresh_expires_at": s.RefreshExpiresAt,
			"last_access_at":     s.LastAccessAt,
			"last_heartbeat_at":  s.LastHeartbeatAt,
			"online":             s.Online,
			"revoked":            s.Revoked,
			"version":            next,
		})
	if res.Error != nil {
		return wrapDBErrorf(res.Error, "更新设备会话 user=%s device=%s", s.UserId, s.DeviceId)
	}
	if res.RowsAffected == 0 {
		return errorx.Newf(errorx.CodeVersionConflict, "设备会话 user=%s device=%s 版本冲突", s.UserId, s.DeviceId)
	}
	s.Version = next
	return nil
}
