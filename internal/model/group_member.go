package model

import (
	"database/sql"
	"time"

	"gorm.io/gorm"
)

// MemberRole 群成员角色
type MemberRole int8

const (
	RoleMember MemberRole = iota
	RoleAdmin
	RoleOwner
)

// GroupMember 群成员关系
// (group_mark, user_id) 唯一
type GroupMember struct {
	gorm.Model

	GroupMark string `gorm:"column:group_mark;uniqueIndex:idx_group_user;type:char(24);not null;comment:群会话标识"`
	UserId    string `gorm:"column:user_id;uniqueIndex:idx_group_user;index;type:char(20);not null;comment:成员uuid"`

	Role MemberRole `gorm:"column:role;not null;comment:角色，0.成员，1.管理员，2.群主"`

	// MutedUntil 个人禁言截止时间，NULL 表示未禁言
	MutedUntil sql.NullTime `gorm:"column:muted_until;comment:禁言截止时间"`

	GroupNickname string `gorm:"column:group_nickname;type:varchar(32);comment:群昵称"`
	Title         string `gorm:"column:title;type:varchar(16);comment:群头衔"`
}

func (GroupMember) TableName() string {
	return "group_member"
}

// IsManager 群主和管理员不受全员禁言限制
func (m *GroupMember) IsManager() bool {
	return m.Role == RoleOwner || m.Role == RoleAdmin
}

// IsMutedAt 判断在 now 时刻是否处于个人禁言
func (m *GroupMember) IsMutedAt(now time.Time) bool {
	return m.MutedUntil.Valid && m.MutedUntil.Time.After(now)
}
