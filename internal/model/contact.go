package model

import (
	"time"

	"gorm.io/gorm"
)

// Contact 用户视角下的一个会话入口（最近会话列表中的一行）
// (user_id, conversation_mark) 唯一；未读数只通过 Repository 的原子更新修改
type Contact struct {
	gorm.Model

	UserId           string `gorm:"column:user_id;uniqueIndex:idx_user_conv;type:char(20);not null;comment:所属用户uuid"`
	ConversationMark string `gorm:"column:conversation_mark;uniqueIndex:idx_user_conv;index;type:char(24);not null;comment:会话标识"`

	// PeerId 私聊对方 uuid；群聊时为群 mark
	PeerId string `gorm:"column:peer_id;type:char(24);comment:对方标识"`

	LastUnreadCount int64 `gorm:"column:last_unread_count;not null;default:0;comment:未读数"`

	Pinned  bool `gorm:"column:pinned;not null;comment:是否置顶"`
	Blocked bool `gorm:"column:blocked;not null;comment:是否拉黑对方"`

	// LastMessagePreview / LastMessageUuid 最近一条消息摘要，列表排序与展示用
	LastMessagePreview string    `gorm:"column:last_message_preview;type:varchar(64);comment:最近消息摘要"`
	LastMessageUuid    int64     `gorm:"column:last_message_uuid;comment:最近消息id"`
	LastUsedAt         time.Time `gorm:"column:last_used_at;index;comment:最近活跃时间"`
}

func (Contact) TableName() string {
	return "contact"
}
