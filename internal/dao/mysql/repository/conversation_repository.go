package repository

import (
	"context"

	"kama_realtime/internal/model"

	"gorm.io/gorm"
)

type conversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository 创建会话 Repository
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

// FindByMark 按 mark 查找会话
func (r *conversationRepository) FindByMark(ctx context.Context, mark string) (*model.Conversation, error) {
	var conv model.Conversation
	if err := r.db.WithContext(ctx).First(&conv, "mark = ?", mark).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询会话 mark=%s", mark)
	}
	return &conv, nil
}

// FindPrivateBetween 查找两人之间的私聊
func (r *conversationRepository) FindPrivateBetween(ctx context.Context, a, b string) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.db.WithContext(ctx).
		Where("kind = ?", model.KindPrivate).
		Where("(initiator_id = ? AND receiver_id = ?) OR (initiator_id = ? AND receiver_id = ?)", a, b, b, a).
		First(&conv).Error
	if err != nil {
		return nil, wrapDBErrorf(err, "查询私聊 %s<->%s", a, b)
	}
	return &conv, nil
}

// Create 创建会话
func (r *conversationRepository) Create(ctx context.Context, conv *model.Conversation) error {
	if err := r.db.WithContext(ctx).Create(conv).Error; err != nil {
		return wrapDBErrorf(err, "创建会话 mark=%s", conv.Mark)
	}
	return nil
}

// UpdateStatus 更新会话状态（禁用、解散）
func (r *conversationRepository) UpdateStatus(ctx context.Context, mark string, status model.ConversationStatus) error {
	res := r.db.WithContext(ctx).Model(&model.Conversation{}).Where("mark = ?", mark).Update("status", status)
	if res.Error != nil {
		return wrapDBErrorf(res.Error, "更新会话状态 mark=%s", mark)
	}
	if res.RowsAffected == 0 {
		return wrapDBErrorf(gorm.ErrRecordNotFound, "更新会话状态 mark=%s", mark)
	}
	return nil
}

// UpdateGroupSettings 更新群设置，仅对群聊生效
func (r *conversationRepository) UpdateGroupSettings(ctx context.Context, mark string, allSilent, inviteOnly, forbidPrivateChat bool) error {
	res := r.db.WithContext(ctx).Model(&model.Conversation{}).
		Where("mark = ? AND kind = ?", mark, model.KindGroup).
		Updates(map[string]any{
			"all_silent":          allSilent,
			"invite_only":         inviteOnly,
			"forbid_private_chat": forbidPrivateChat,
		})
	if res.Error != nil {
		return wrapDBErrorf(res.Error, "更新群设置 mark=%s", mark)
	}
	if res.RowsAffected == 0 {
		return wrapDBErrorf(gorm.ErrRecordNotFound, "更新群设置 mark=%s", mark)
	}
	return nil
}
