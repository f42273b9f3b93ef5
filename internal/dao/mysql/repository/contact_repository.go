package repository

import (
	"context"
	"time"

	"kama_realtime/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type contactRepository struct {
	db *gorm.DB
}

// NewContactRepository 创建联系人 Repository
func NewContactRepository(db *gorm.DB) ContactRepository {
	return &contactRepository{db: db}
}

// FindByUserAndMark 查询用户在某会话上的联系人行
func (r *contactRepository) FindByUserAndMark(ctx context.Context, userId, mark string) (*model.Contact, error) {
	var contact model.Contact
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND conversation_mark = ?", userId, mark).
		First(&contact).Error
	if err != nil {
		return nil, wrapDBErrorf(err, "查询联系人 user_id=%s mark=%s", userId, mark)
	}
	return &contact, nil
}

// FindByUserId 最近会话列表：置顶优先，其次按活跃时间倒序
func (r *contactRepository) FindByUserId(ctx context.Context, userId string) ([]model.Contact, error) {
	var contacts []model.Contact
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userId).
		Order("pinned DESC").Order("last_used_at DESC").
		Find(&contacts).Error
	if err != nil {
		return nil, wrapDBErrorf(err, "查询联系人列表 user_id=%s", userId)
	}
	return contacts, nil
}

// EnsureExists 依赖 (user_id, conversation_mark) 唯一索引，冲突时什么都不做
func (r *contactRepository) EnsureExists(ctx context.Context, contact *model.Contact) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "conversation_mark"}},
			DoNothing: true,
		}).
		Create(contact).Error
	if err != nil {
		return wrapDBErrorf(err, "创建联系人 user_id=%s mark=%s", contact.UserId, contact.ConversationMark)
	}
	return nil
}

// IncrementUnreadExcept 单条 UPDATE 完成自增，并发发送不会丢失计数
func (r *contactRepository) IncrementUnreadExcept(ctx context.Context, mark, exceptUserId string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.Contact{}).
		Where("conversation_mark = ? AND user_id <> ?", mark, exceptUserId).
		UpdateColumn("last_unread_count", gorm.Expr("last_unread_count + ?", 1))
	if res.Error != nil {
		return 0, wrapDBErrorf(res.Error, "累加未读数 mark=%s", mark)
	}
	return res.RowsAffected, nil
}

// ResetUnread 清零未读数
func (r *contactRepository) ResetUnread(ctx context.Context, userId, mark string) error {
	err := r.db.WithContext(ctx).Model(&model.Contact{}).
		Where("user_id = ? AND conversation_mark = ?", userId, mark).
		UpdateColumn("last_unread_count", 0).Error
	if err != nil {
		return wrapDBErrorf(err, "清零未读数 user_id=%s mark=%s", userId, mark)
	}
	return nil
}

func (r *contactRepository) SumUnread(ctx context.Context, userId string) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&model.Contact{}).
		Where("user_id = ?", userId).
		Select("COALESCE(SUM(last_unread_count), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, wrapDBErrorf(err, "统计未读数 user_id=%s", userId)
	}
	return total, nil
}

// TouchByMark 刷新最近消息摘要和活跃时间
func (r *contactRepository) TouchByMark(ctx context.Context, mark, preview string, msgUuid int64, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&model.Contact{}).
		Where("conversation_mark = ?", mark).
		UpdateColumns(map[string]any{
			"last_message_preview": preview,
			"last_message_uuid":    msgUuid,
			"last_used_at":         at,
		}).Error
	if err != nil {
		return wrapDBErrorf(err, "刷新会话摘要 mark=%s", mark)
	}
	return nil
}

// RefreshPreview 消息撤回或编辑后改写摘要，之后又有新消息的行不受影响
func (r *contactRepository) RefreshPreview(ctx context.Context, mark string, msgUuid int64, preview string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.Contact{}).
		Where("conversation_mark = ? AND last_message_uuid = ?", mark, msgUuid).
		UpdateColumn("last_message_preview", preview)
	if res.Error != nil {
		return 0, wrapDBErrorf(res.Error, "改写会话摘要 mark=%s uuid=%d", mark, msgUuid)
	}
	return res.RowsAffected, nil
}

// UpdateFlags 更新置顶与拉黑
func (r *contactRepository) UpdateFlags(ctx context.Context, userId, mark string, pinned, blocked bool) error {
	res := r.db.WithContext(ctx).Model(&model.Contact{}).
		Where("user_id = ? AND conversation_mark = ?", userId, mark).
		Updates(map[string]any{"pinned": pinned, "blocked": blocked})
	if res.Error != nil {
		return wrapDBErrorf(res.Error, "更新联系人标记 user_id=%s mark=%s", userId, mark)
	}
	return nil
}
