package model

import (
	"strings"

	"gorm.io/gorm"

	"kama_realtime/pkg/constants"
)

// ConversationKind 会话类型
type ConversationKind int8

const (
	KindPrivate ConversationKind = iota // 私聊，mark 以 P 开头
	KindGroup                           // 群聊，mark 以 G 开头
)

// ConversationStatus 会话状态
type ConversationStatus int8

const (
	ConversationNormal        ConversationStatus = iota
	ConversationGroupDisabled                    // 群被禁用，不可发言
	ConversationUnreachable                      // 已解散/删除，对外视为不存在
)

// Conversation 会话（私聊或群聊）
// 单表存储两种变体：私聊只使用 ReceiverId/Informal，群聊只使用 Name 之后的字段
// 业务代码通过 AsPrivate / AsGroup 取得对应变体，不直接读写另一变体的字段
type Conversation struct {
	gorm.Model

	// Mark 会话唯一标识，同时作为实时推送的房间名
	Mark string `gorm:"column:mark;uniqueIndex;type:char(24);not null;comment:会话标识"`

	Kind   ConversationKind   `gorm:"column:kind;not null;comment:类型，0.私聊，1.群聊"`
	Status ConversationStatus `gorm:"column:status;not null;comment:状态，0.正常，1.群禁用，2.不可达"`

	// InitiatorId 私聊发起方；群聊时为创建者
	InitiatorId string `gorm:"column:initiator_id;index;type:char(20);not null;comment:发起者uuid"`

	// ---------- 私聊 ----------

	ReceiverId string `gorm:"column:receiver_id;index;type:char(20);comment:私聊接收方uuid"`
	// Informal 非好友的临时会话（如从群内发起）
	Informal bool `gorm:"column:informal;comment:临时会话"`

	// ---------- 群聊 ----------

	Name    string `gorm:"column:name;type:varchar(32);comment:群名称"`
	OwnerId string `gorm:"column:owner_id;type:char(20);comment:群主uuid"`
	// AllSilent 全员禁言，仅群主和管理员可发言
	AllSilent bool `gorm:"column:all_silent;comment:全员禁言"`
	// InviteOnly 仅允许邀请入群
	InviteOnly bool `gorm:"column:invite_only;comment:仅邀请入群"`
	// ForbidPrivateChat 禁止群成员通过本群发起私聊
	ForbidPrivateChat bool `gorm:"column:forbid_private_chat;comment:禁止群内私聊"`
}

func (Conversation) TableName() string {
	return "conversation"
}

// PrivateChat 私聊变体视图
type PrivateChat struct {
	Mark        string
	InitiatorId string
	ReceiverId  string
	Informal    bool
}

// GroupChat 群聊变体视图
type GroupChat struct {
	Mark              string
	Name              string
	OwnerId           string
	AllSilent         bool
	InviteOnly        bool
	ForbidPrivateChat bool
}

func (c *Conversation) IsPrivate() bool { return c.Kind == KindPrivate }
func (c *Conversation) IsGroup() bool   { return c.Kind == KindGroup }

// AsPrivate 取私聊视图，非私聊时 ok 为 false
func (c *Conversation) AsPrivate() (PrivateChat, bool) {
	if c.Kind != KindPrivate {
		return PrivateChat{}, false
	}
	return PrivateChat{
		Mark:        c.Mark,
		InitiatorId: c.InitiatorId,
		ReceiverId:  c.ReceiverId,
		Informal:    c.Informal,
	}, true
}

// AsGroup 取群聊视图，非群聊时 ok 为 false
func (c *Conversation) AsGroup() (GroupChat, bool) {
	if c.Kind != KindGroup {
		return GroupChat{}, false
	}
	return GroupChat{
		Mark:              c.Mark,
		Name:              c.Name,
		OwnerId:           c.OwnerId,
		AllSilent:         c.AllSilent,
		InviteOnly:        c.InviteOnly,
		ForbidPrivateChat: c.ForbidPrivateChat,
	}, true
}

// Involves 判断用户是否为私聊双方之一
func (p PrivateChat) Involves(userId string) bool {
	return userId != "" && (p.InitiatorId == userId || p.ReceiverId == userId)
}

// Peer 返回私聊中另一方的 uuid
func (p PrivateChat) Peer(userId string) string {
	if p.InitiatorId == userId {
		return p.ReceiverId
	}
	return p.InitiatorId
}

// NewPrivateConversation 构造私聊会话
func NewPrivateConversation(mark, initiatorId, receiverId string, informal bool) *Conversation {
	return &Conversation{
		Mark:        mark,
		Kind:        KindPrivate,
		InitiatorId: initiatorId,
		ReceiverId:  receiverId,
		Informal:    informal,
	}
}

// NewGroupConversation 构造群聊会话
func NewGroupConversation(mark, ownerId, name string) *Conversation {
	return &Conversation{
		Mark:        mark,
		Kind:        KindGroup,
		InitiatorId: ownerId,
		OwnerId:     ownerId,
		Name:        name,
	}
}

// KindOfMark 根据 mark 前缀推断会话类型
func KindOfMark(mark string) (ConversationKind, bool) {
	switch {
	case strings.HasPrefix(mark, constants.PRIVATE_MARK_PREFIX):
		return KindPrivate, true
	case strings.HasPrefix(mark, constants.GROUP_MARK_PREFIX):
		return KindGroup, true
	}
	return 0, false
}
