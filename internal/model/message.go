// Package model 定义数据库实体模型
// 本文件定义消息模型，用于存储聊天消息
package model

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// MessageType 消息类型
type MessageType int8

const (
	MessageNormal       MessageType = iota // 普通文本
	MessageAnnouncement                    // 群公告
	MessageEvent                           // 系统事件（入群、退群等）
	MessageFile                            // 文件，Content 为文件描述 JSON
)

// ErrMessageCancelled 已撤回的消息不可再修改
var ErrMessageCancelled = errors.New("message already cancelled")

// Message 消息模型
// 对应数据库 message 表，一旦撤回不可恢复
type Message struct {
	gorm.Model

	// Uuid 雪花算法生成，会话内按时间递增
	Uuid int64 `gorm:"column:uuid;uniqueIndex;index:idx_conv_uuid,priority:2;index:idx_conv_captured,priority:3;not null;comment:消息雪花ID"`

	ConversationMark string `gorm:"column:conversation_mark;index:idx_conv_uuid,priority:1;index:idx_conv_captured,priority:1;uniqueIndex:idx_sender_client,priority:2;type:char(24);not null;comment:会话标识"`

	SenderId string `gorm:"column:sender_id;uniqueIndex:idx_sender_client,priority:1;type:char(20);not null;comment:发送者uuid"`

	// ClientMsgId 客户端生成的幂等键，同一发送者在同一会话内唯一；为空时不参与去重
	ClientMsgId *string `gorm:"column:client_msg_id;uniqueIndex:idx_sender_client,priority:3;type:varchar(64);comment:客户端消息id"`

	Type MessageType `gorm:"column:type;not null;comment:消息类型，0.普通，1.公告，2.事件，3.文件"`

	Content string `gorm:"column:content;type:TEXT;comment:消息内容"`

	Cancelled bool `gorm:"column:cancelled;not null;comment:是否已撤回"`

	// ViaGroupMark 私聊消息声明的来源群，为空表示普通私聊
	ViaGroupMark string `gorm:"column:via_group_mark;type:char(24);comment:来源群标识"`

	// SendAt 客户端声明的发送时间；CapturedAt 服务端接收时间，排序以后者为准
	SendAt     time.Time `gorm:"column:send_at;comment:客户端发送时间"`
	CapturedAt time.Time `gorm:"column:captured_at;index:idx_conv_captured,priority:2;not null;comment:服务端接收时间"`
}

func (Message) TableName() string {
	return "message"
}

// VisibleContent 对外展示内容，撤回后恒为空，原文仅留存审计
func (m *Message) VisibleContent() string {
	if m.Cancelled {
		return ""
	}
	return m.Content
}

// Cancel 撤回消息，重复撤回无副作用
func (m *Message) Cancel() {
	m.Cancelled = true
}

// EditContent 修改内容，撤回后不可修改
func (m *Message) EditContent(content string) error {
	if m.Cancelled {
		return ErrMessageCancelled
	}
	m.Content = content
	return nil
}

// ClientMsgIdValue 返回幂等键，未设置时为空串
func (m *Message) ClientMsgIdValue() string {
	if m.ClientMsgId == nil {
		return ""
	}
	return *m.ClientMsgId
}
