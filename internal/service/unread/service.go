// Package unread 维护每个用户在每个会话上的未读数与最近会话摘要
// 计数只通过单条 UPDATE 原子修改，累加与清零在存储事务边界上串行化
package unread

import (
	"context"
	"unicode/utf8"

	"kama_realtime/internal/dao/mysql/repository"
	"kama_realtime/internal/dto/respond"
	"kama_realtime/internal/gateway/websocket"
	"kama_realtime/internal/model"
	"kama_realtime/pkg/errorx"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// previewMaxRunes 与 contact.last_message_preview 列宽一致
const previewMaxRunes = 64

// Pusher 个人频道推送
type Pusher interface {
	PushToUser(ctx context.Context, userId, event string, payload any)
}

// unreadService 未读同步实现
type unreadService struct {
	repos  *repository.Repositories
	pusher Pusher
	// fanoutLimit 推送时并发查询的上限
	fanoutLimit int
}

// NewUnreadService 构造函数
func NewUnreadService(repos *repository.Repositories, pusher Pusher, fanoutLimit int) *unreadService {
	if fanoutLimit <= 0 {
		fanoutLimit = 8
	}
	return &unreadService{repos: repos, pusher: pusher, fanoutLimit: fanoutLimit}
}

// OnMessagePersisted 必须在写入消息的同一事务中调用
// 为所有参与者补齐 Contact，除发送者外未读数加一，刷新摘要；返回参与者列表
func (s *unreadService) OnMessagePersisted(ctx context.Context, tx *repository.Repositories, conv *model.Conversation, msg *model.Message) ([]string, error) {
	participants, err := Participants(ctx, tx, conv)
	if err != nil {
		return nil, err
	}
	for _, uid := range participants {
		peer := conv.Mark
		if p, ok := conv.AsPrivate(); ok {
			peer = p.Peer(uid)
		}
		if err := tx.Contact.EnsureExists(ctx, &model.Contact{
			UserId:           uid,
			ConversationMark: conv.Mark,
			PeerId:           peer,
			LastUsedAt:       msg.CapturedAt,
		}); err != nil {
			return nil, err
		}
	}
	if _, err := tx.Contact.IncrementUnreadExcept(ctx, conv.Mark, msg.SenderId); err != nil {
		return nil, err
	}
	if err := tx.Contact.TouchByMark(ctx, conv.Mark, Preview(msg), msg.Uuid, msg.CapturedAt); err != nil {
		return nil, err
	}
	return participants, nil
}

// OnMessageChanged 撤回或编辑后调用，仅改写最近消息仍是该条的摘要
func (s *unreadService) OnMessageChanged(ctx context.Context, tx *repository.Repositories, msg *model.Message) error {
	_, err := tx.Contact.RefreshPreview(ctx, msg.ConversationMark, msg.Uuid, Preview(msg))
	return err
}

// Participants 私聊为双方，群聊为当前全部成员
func Participants(ctx context.Context, repos *repository.Repositories, conv *model.Conversation) ([]string, error) {
	if p, ok := conv.AsPrivate(); ok {
		return []string{p.InitiatorId, p.ReceiverId}, nil
	}
	return repos.GroupMember.FindMemberIds(ctx, conv.Mark)
}

// Preview 最近消息摘要
func Preview(msg *model.Message) string {
	content := msg.VisibleContent()
	if utf8.RuneCountInString(content) <= previewMaxRunes {
		return content
	}
	return string([]rune(content)[:previewMaxRunes])
}

// PublishUpdates 提交后调用，向每个参与者（含发送者的其他设备）推送最新的 Contact 与总未读数
// 单个用户失败只记录日志，不影响其他用户
func (s *unreadService) PublishUpdates(ctx context.Context, participants []string, msg *model.Message) {
	view := respond.NewMessageRespond(msg)
	var g errgroup.Group
	g.SetLimit(s.fanoutLimit)
	for _, uid := range participants {
		g.Go(func() error {
			update, err := s.contactUpdate(ctx, uid, msg.ConversationMark, view)
			if err != nil {
				zap.L().Warn("build contact update failed",
					zap.String("user_id", uid), zap.String("mark", msg.ConversationMark), zap.Error(err))
				return nil
			}
			s.pusher.PushToUser(ctx, uid, websocket.EventContactAndMessageUpdate, update)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *unreadService) contactUpdate(ctx context.Context, userId, mark string, view *respond.MessageRespond) (*respond.ContactAndMessageUpdate, error) {
	contact, err := s.repos.Contact.FindByUserAndMark(ctx, userId, mark)
	if err != nil {
		return nil, err
	}
	total, err := s.repos.Contact.SumUnread(ctx, userId)
	if err != nil {
		return nil, err
	}
	return &respond.ContactAndMessageUpdate{
		Contact: respond.NewContactRespond(contact),
		Message: view,
		Total:   total,
	}, nil
}

// MarkAsRead 清零单个会话的未读数，并把新的总数推送给该用户所有设备
func (s *unreadService) MarkAsRead(ctx context.Context, userId, mark string) (*respond.UnreadCountUpdate, error) {
	if _, err := s.repos.Contact.FindByUserAndMark(ctx, userId, mark); err != nil {
		if errorx.IsNotFound(err) {
			return nil, errorx.New(errorx.CodeNotFound, "会话不存在")
		}
		zap.L().Error("查询最近会话失败", zap.String("user_id", userId), zap.Error(err))
		return nil, errorx.ErrServerBusy
	}
	if err := s.repos.Contact.ResetUnread(ctx, userId, mark); err != nil {
		zap.L().Error("清零未读失败", zap.String("user_id", userId), zap.String("mark", mark), zap.Error(err))
		return nil, errorx.ErrServerBusy
	}
	total, err := s.repos.Contact.SumUnread(ctx, userId)
	if err != nil {
		zap.L().Error("统计未读失败", zap.String("user_id", userId), zap.Error(err))
		return nil, errorx.ErrServerBusy
	}
	update := &respond.UnreadCountUpdate{Mark: mark, Count: 0, Total: total}
	s.pusher.PushToUser(ctx, userId, websocket.EventUnreadCountUpdate, update)
	return update, nil
}

// Snapshot 全量未读快照，客户端重连后以此为准
func (s *unreadService) Snapshot(ctx context.Context, userId string) (*respond.UnreadSnapshot, error) {
	contacts, err := s.repos.Contact.FindByUserId(ctx, userId)
	if err != nil {
		zap.L().Error("查询最近会话失败", zap.String("user_id", userId), zap.Error(err))
		return nil, errorx.ErrServerBusy
	}
	snap := &respond.UnreadSnapshot{Contacts: make([]*respond.ContactRespond, 0, len(contacts))}
	for i := range contacts {
		snap.Total += contacts[i].LastUnreadCount
		snap.Contacts = append(snap.Contacts, respond.NewContactRespond(&contacts[i]))
	}
	return snap, nil
}
