package repository

import (
	"context"

	"kama_realtime/internal/model"
	"kama_realtime/pkg/errorx"

	"gorm.io/gorm"
)

type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository 创建消息 Repository
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

// Create 追加一条消息
func (r *messageRepository) Create(ctx context.Context, msg *model.Message) error {
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return wrapDBErrorf(err, "保存消息 uuid=%d", msg.Uuid)
	}
	return nil
}

// FindByUuid 按消息 uuid 查找
func (r *messageRepository) FindByUuid(ctx context.Context, uuid int64) (*model.Message, error) {
	var msg model.Message
	if err := r.db.WithContext(ctx).First(&msg, "uuid = ?", uuid).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询消息 uuid=%d", uuid)
	}
	return &msg, nil
}

func (r *messageRepository) FindByClientMsgId(ctx context.Context, senderId, mark, clientMsgId string) (*model.Message, error) {
	var msg model.Message
	err := r.db.WithContext(ctx).
		Where("sender_id = ? AND conversation_mark = ? AND client_msg_id = ?", senderId, mark, clientMsgId).
		First(&msg).Error
	if err != nil {
		return nil, wrapDBErrorf(err, "查询消息 sender=%s mark=%s client_msg_id=%s", senderId, mark, clientMsgId)
	}
	return &msg, nil
}

// FindByConversation 会话内按服务端接收时间倒序分页，同一时刻再按 uuid
// 游标仍是 uuid，翻页条件取游标消息的 captured_at 比较
func (r *messageRepository) FindByConversation(ctx context.Context, mark string, beforeUuid int64, limit int) ([]model.Message, error) {
	db := r.db.WithContext(ctx)
	q := db.Where("conversation_mark = ?", mark)
	if beforeUuid > 0 {
		cursor := db.Model(&model.Message{}).Select("captured_at").Where("uuid = ?", beforeUuid)
		q = q.Where("captured_at < (?) OR (captured_at = (?) AND uuid < ?)", cursor, cursor, beforeUuid)
	}
	var messages []model.Message
	if err := q.Order("captured_at DESC").Order("uuid DESC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, wrapDBErrorf(err, "查询会话消息 mark=%s", mark)
	}
	return messages, nil
}

// MarkCancelled 撤回消息，重复撤回不报错
func (r *messageRepository) MarkCancelled(ctx context.Context, uuid int64) error {
	res := r.db.WithContext(ctx).Model(&model.Message{}).
		Where("uuid = ?", uuid).
		Update("cancelled", true)
	if res.Error != nil {
		return wrapDBErrorf(res.Error, "撤回消息 uuid=%d", uuid)
	}
	if res.RowsAffected == 0 {
		// MySQL 在值未变化时也返回 0，需区分"不存在"与"已撤回"
		if _, err := r.FindByUuid(ctx, uuid); err != nil {
			return err
		}
	}
	return nil
}

// UpdateContent 修改内容，条件中带 cancelled = false 保证撤回不可逆
func (r *messageRepository) UpdateContent(ctx context.Context, uuid int64, content string) error {
	res := r.db.WithContext(ctx).Model(&model.Message{}).
		Where("uuid = ? AND cancelled = ?", uuid, false).
		Update("content", content)
	if res.Error != nil {
		return wrapDBErrorf(res.Error, "修改消息 uuid=%d", uuid)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	msg, err := r.FindByUuid(ctx, uuid)
	if err != nil {
		return err
	}
	if msg.Cancelled {
		return errorx.Newf(errorx.CodeForbidden, "消息 %d 已撤回，不能修改", uuid)
	}
	return nil
}
