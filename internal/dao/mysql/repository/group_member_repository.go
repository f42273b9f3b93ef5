// Package repository 提供数据访问层的具体实现
// 本文件实现 GroupMemberRepository 接口，处理群成员相关的数据库操作
package repository

import (
	"context"
	"database/sql"
	"time"

	"kama_realtime/internal/model"

	"gorm.io/gorm"
)

// groupMemberRepository GroupMemberRepository 接口的实现
type groupMemberRepository struct {
	db *gorm.DB
}

// NewGroupMemberRepository 创建 GroupMemberRepository 实例
func NewGroupMemberRepository(db *gorm.DB) GroupMemberRepository {
	return &groupMemberRepository{db: db}
}

// FindByGroupAndUser 查询成员关系，非成员返回 CodeNotFound
func (r *groupMemberRepository) FindByGroupAndUser(ctx context.Context, groupMark, userId string) (*model.GroupMember, error) {
	var member model.GroupMember
	err := r.db.WithContext(ctx).
		Where("group_mark = ? AND user_id = ?", groupMark, userId).
		First(&member).Error
	if err != nil {
		return nil, wrapDBErrorf(err, "查询群成员 group=%s user=%s", groupMark, userId)
	}
	return &member, nil
}

// FindByGroupMark 查询群内所有成员
func (r *groupMemberRepository) FindByGroupMark(ctx context.Context, groupMark string) ([]model.GroupMember, error) {
	var members []model.GroupMember
	if err := r.db.WithContext(ctx).Where("group_mark = ?", groupMark).Order("id").Find(&members).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询群成员列表 group=%s", groupMark)
	}
	return members, nil
}

// FindMemberIds 只查询成员 uuid
func (r *groupMemberRepository) FindMemberIds(ctx context.Context, groupMark string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&model.GroupMember{}).
		Where("group_mark = ?", groupMark).
		Order("id").
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, wrapDBErrorf(err, "查询群成员id group=%s", groupMark)
	}
	return ids, nil
}

// Create 添加成员
func (r *groupMemberRepository) Create(ctx context.Context, member *model.GroupMember) error {
	if err := r.db.WithContext(ctx).Create(member).Error; err != nil {
		return wrapDBErrorf(err, "添加群成员 group=%s user=%s", member.GroupMark, member.UserId)
	}
	return nil
}

// Delete 移除成员（物理删除，便于重新入群时复用唯一索引）
func (r *groupMemberRepository) Delete(ctx context.Context, groupMark, userId string) error {
	err := r.db.WithContext(ctx).Unscoped().
		Where("group_mark = ? AND user_id = ?", groupMark, userId).
		Delete(&model.GroupMember{}).Error
	if err != nil {
		return wrapDBErrorf(err, "移除群成员 group=%s user=%s", groupMark, userId)
	}
	return nil
}

// UpdateMute 设置或解除个人禁言，mutedUntil 为 nil 表示解除
func (r *groupMemberRepository) UpdateMute(ctx context.Context, groupMark, userId string, mutedUntil *time.Time) error {
	value := sql.NullTime{}
	if mutedUntil != nil {
		value = sql.NullTime{Time: *mutedUntil, Valid: true}
	}
	res := r.db.WithContext(ctx).Model(&model.GroupMember{}).
		Where("group_mark = ? AND user_id = ?", groupMark, userId).
		Update("muted_until", value)
	if res.Error != nil {
		return wrapDBErrorf(res.Error, "更新禁言 group=%s user=%s", groupMark, userId)
	}
	return nil
}
