// Package repository 定义数据访问层接口和聚合结构
// 采用 Repository 模式将数据访问逻辑与业务逻辑分离
// 所有 Repository 接口在此文件定义，具体实现在各自的文件中
package repository

import (
	"context"
	"time"

	"kama_realtime/internal/model"

	"gorm.io/gorm"
)

// ==================== Repository 接口定义 ====================

// UserRepository 用户数据访问接口
type UserRepository interface {
	FindByUuid(ctx context.Context, uuid string) (*model.UserInfo, error)
	FindByTelephone(ctx context.Context, telephone string) (*model.UserInfo, error)
	Create(ctx context.Context, user *model.UserInfo) error
	// UpdateStatus 更新账号状态，Online 时记录上线时间，Offline 时记录离线时间
	UpdateStatus(ctx context.Context, uuid string, status model.UserStatus, at time.Time) error
}

// PrivacyRepository 隐私设置数据访问接口
type PrivacyRepository interface {
	// FindByUserId 查询隐私设置，未设置返回 CodeNotFound
	FindByUserId(ctx context.Context, userId string) (*model.PrivacySettings, error)
	// Upsert 按 user_id 写入或覆盖
	Upsert(ctx context.Context, settings *model.PrivacySettings) error
}

// ConversationRepository 会话数据访问接口
type ConversationRepository interface {
	FindByMark(ctx context.Context, mark string) (*model.Conversation, error)
	// FindPrivateBetween 查找两人之间的私聊，不区分发起方向
	FindPrivateBetween(ctx context.Context, a, b string) (*model.Conversation, error)
	Create(ctx context.Context, conv *model.Conversation) error
	UpdateStatus(ctx context.Context, mark string, status model.ConversationStatus) error
	UpdateGroupSettings(ctx context.Context, mark string, allSilent, inviteOnly, forbidPrivateChat bool) error
}

// GroupMemberRepository 群成员数据访问接口
type GroupMemberRepository interface {
	FindByGroupAndUser(ctx context.Context, groupMark, userId string) (*model.GroupMember, error)
	FindByGroupMark(ctx context.Context, groupMark string) ([]model.GroupMember, error)
	// FindMemberIds 只取成员 uuid，用于扇出
	FindMemberIds(ctx context.Context, groupMark string) ([]string, error)
	Create(ctx context.Context, member *model.GroupMember) error
	Delete(ctx context.Context, groupMark, userId string) error
	UpdateMute(ctx context.Context, groupMark, userId string, mutedUntil *time.Time) error
}

// MessageRepository 消息数据访问接口
type MessageRepository interface {
	Create(ctx context.Context, msg *model.Message) error
	FindByUuid(ctx context.Context, uuid int64) (*model.Message, error)
	// FindByClientMsgId 幂等键查询，键在 (发送者, 会话) 内唯一
	FindByClientMsgId(ctx context.Context, senderId, mark, clientMsgId string) (*model.Message, error)
	// FindByConversation 按 (captured_at, uuid) 倒序分页，beforeUuid 为 0 时从最新开始
	// beforeUuid 指向的消息不存在时返回空页
	FindByConversation(ctx context.Context, mark string, beforeUuid int64, limit int) ([]model.Message, error)
	// MarkCancelled 撤回，已撤回时为空操作
	MarkCancelled(ctx context.Context, uuid int64) error
	// UpdateContent 仅对未撤回的消息生效，已撤回返回 CodeForbidden
	UpdateContent(ctx context.Context, uuid int64, content string) error
}

// ContactRepository 最近会话 / 未读数数据访问接口
type ContactRepository interface {
	FindByUserAndMark(ctx context.Context, userId, mark string) (*model.Contact, error)
	FindByUserId(ctx context.Context, userId string) ([]model.Contact, error)
	// EnsureExists 不存在时创建，已存在时不修改任何字段
	EnsureExists(ctx context.Context, contact *model.Contact) error
	// IncrementUnreadExcept 会话内除 exceptUserId 外所有行未读数原子加一
	IncrementUnreadExcept(ctx context.Context, mark, exceptUserId string) (int64, error)
	// ResetUnread 原子清零单行未读数
	ResetUnread(ctx context.Context, userId, mark string) error
	// SumUnread 用户所有会话未读数之和
	SumUnread(ctx context.Context, userId string) (int64, error)
	// TouchByMark 刷新会话内所有行的最近消息摘要
	TouchByMark(ctx context.Context, mark, preview string, msgUuid int64, at time.Time) error
	// RefreshPreview 只改写最近消息仍为 msgUuid 的行，返回受影响行数
	RefreshPreview(ctx context.Context, mark string, msgUuid int64, preview string) (int64, error)
	UpdateFlags(ctx context.Context, userId, mark string, pinned, blocked bool) error
}

// DeviceSessionRepository 设备会话数据访问接口
type DeviceSessionRepository interface {
	FindByUserAndDevice(ctx context.Context, userId, deviceId string) (*model.DeviceSession, error)
	// FindActiveByUser 未吊销且未过期的会话，按 last_access_at 升序（最久未使用的在前）
	FindActiveByUser(ctx context.Context, userId string, now time.Time) ([]model.DeviceSession, error)
	FindByUser(ctx context.Context, userId string) ([]model.DeviceSession, error)
	// Upsert 乐观锁写入：
	//   - ID 为 0 时插入，Version 置为 1
	//   - 否则仅当库中 version 等于 expectedVersion 时更新并加一，不满足返回 CodeVersionConflict
	// 成功后 session.Version 为新版本
	Upsert(ctx context.Context, session *model.DeviceSession, expectedVersion int64) error
}

// ==================== Repository 聚合 ====================

// Repositories 聚合所有 Repository 实例
// 作为依赖注入的入口，Service 层通过此结构访问数据层
type Repositories struct {
	db            *gorm.DB
	User          UserRepository
	Privacy       PrivacyRepository
	Conversation  ConversationRepository
	GroupMember   GroupMemberRepository
	Message       MessageRepository
	Contact       ContactRepository
	DeviceSession DeviceSessionRepository
}

// NewRepositories 创建所有 Repository 实例
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		db:            db,
		User:          NewUserRepository(db),
		Privacy:       NewPrivacyRepository(db),
		Conversation:  NewConversationRepository(db),
		GroupMember:   NewGroupMemberRepository(db),
		Message:       NewMessageRepository(db),
		Contact:       NewContactRepository(db),
		DeviceSession: NewDeviceSessionRepository(db),
	}
}

// Transaction 在数据库事务中执行函数
// fn 返回错误时整个事务回滚
func (r *Repositories) Transaction(ctx context.Context, fn func(txRepos *Repositories) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewRepositories(tx))
	})
}

// DB 返回底层连接，供健康检查等场景使用
func (r *Repositories) DB() *gorm.DB {
	return r.db
}
