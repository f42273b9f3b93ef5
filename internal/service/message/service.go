// Package message 消息发送、撤回、编辑与历史查询
// 发送流程：加载状态 -> 校验 -> 事务内写消息并更新未读 -> 提交后异步扇出
package message

import (
	"context"
	"strings"
	"time"

	"kama_realtime/internal/dao/mysql/repository"
	"kama_realtime/internal/dto/request"
	"kama_realtime/internal/dto/respond"
	"kama_realtime/internal/gateway/websocket"
	"kama_realtime/internal/infrastructure/metrics"
	"kama_realtime/internal/model"
	"kama_realtime/internal/service/validation"
	"kama_realtime/pkg/constants"
	"kama_realtime/pkg/errorx"
	"kama_realtime/pkg/util/snowflake"

	"go.uber.org/zap"
)

// Broadcaster 房间推送
type Broadcaster interface {
	Broadcast(ctx context.Context, room, event string, payload any)
}

// Synchronizer 未读同步
type Synchronizer interface {
	OnMessagePersisted(ctx context.Context, tx *repository.Repositories, conv *model.Conversation, msg *model.Message) ([]string, error)
	PublishUpdates(ctx context.Context, participants []string, msg *model.Message)
	OnMessageChanged(ctx context.Context, tx *repository.Repositories, msg *model.Message) error
}

// messageService 消息业务逻辑实现
type messageService struct {
	repos  *repository.Repositories
	loader *validation.Loader
	unread Synchronizer
	hub    Broadcaster
	nextID func() int64
	// async 提交后的扇出任务，默认另起协程，不阻塞发送方
	async func(func())
}

// NewMessageService 构造函数
func NewMessageService(repos *repository.Repositories, loader *validation.Loader, unread Synchronizer, hub Broadcaster) *messageService {
	return &messageService{
		repos:  repos,
		loader: loader,
		unread: unread,
		hub:    hub,
		nextID: snowflake.GenerateID,
		async:  func(f func()) { go f() },
	}
}

func outcomeRespond(o validation.Outcome, msg *model.Message) *respond.SendMessageRespond {
	rsp := &respond.SendMessageRespond{Outcome: o.String(), Code: o.Code(), Msg: o.Message()}
	if msg != nil {
		rsp.Message = respond.NewMessageRespond(msg)
	}
	return rsp
}

// Send 发送消息
// 校验失败以结果值返回，error 只表示存储故障（此时结果为 InternalError）
func (s *messageService) Send(ctx context.Context, senderId string, req request.SendMessageRequest) (*respond.SendMessageRespond, error) {
	sendReq := validation.SendRequest{
		SenderId:         senderId,
		ConversationMark: req.ConversationMark,
		Content:          req.Content,
		Type:             model.MessageType(req.Type),
		ClientMsgId:      req.ClientMsgId,
		ViaGroupMark:     req.ViaGroupMark,
	}
	if req.SendAt > 0 {
		sendReq.SendAt = time.UnixMilli(req.SendAt)
	}

	// 客户端重试：同一幂等键直接返回已持久化的消息，不重复计数
	if dup, err := s.findDuplicate(ctx, senderId, req.ConversationMark, req.ClientMsgId); err != nil {
		return s.internal(err)
	} else if dup != nil {
		rsp := outcomeRespond(validation.Success, dup)
		rsp.Duplicate = true
		return rsp, nil
	}

	st, err := s.loader.Load(ctx, sendReq)
	if err != nil {
		return s.internal(err)
	}
	res := validation.Validate(sendReq, st)
	metrics.SendOutcomes.WithLabelValues(res.Outcome.String()).Inc()
	if res.Outcome != validation.Success {
		return outcomeRespond(res.Outcome, nil), nil
	}

	msg := res.Intent
	msg.Uuid = s.nextID()
	var participants []string
	err = s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		if err := tx.Message.Create(ctx, msg); err != nil {
			return err
		}
		var err error
		participants, err = s.unread.OnMessagePersisted(ctx, tx, st.Conversation, msg)
		return err
	})
	if err != nil {
		// 并发重试撞上唯一索引，以先写入的那条为准
		if errorx.HasCode(err, errorx.CodeVersionConflict) {
			if dup, findErr := s.findDuplicate(ctx, senderId, req.ConversationMark, req.ClientMsgId); findErr == nil && dup != nil {
				rsp := outcomeRespond(validation.Success, dup)
				rsp.Duplicate = true
				return rsp, nil
			}
		}
		return s.internal(err)
	}

	s.fanout(ctx, msg, participants)
	return outcomeRespond(validation.Success, msg), nil
}

func (s *messageService) internal(err error) (*respond.SendMessageRespond, error) {
	metrics.SendOutcomes.WithLabelValues(validation.InternalError.String()).Inc()
	zap.L().Error("发送消息失败", zap.Error(err))
	return outcomeRespond(validation.InternalError, nil), err
}

// findDuplicate 幂等键按 (发送者, 会话) 隔离，不同会话复用同一键视为新消息
func (s *messageService) findDuplicate(ctx context.Context, senderId, mark, clientMsgId string) (*model.Message, error) {
	if senderId == "" || clientMsgId == "" {
		return nil, nil
	}
	msg, err := s.repos.Message.FindByClientMsgId(ctx, senderId, mark, clientMsgId)
	if err != nil {
		if errorx.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return msg, nil
}

// fanout 消息已持久化，投递失败只记录日志
func (s *messageService) fanout(ctx context.Context, msg *model.Message, participants []string) {
	bg := context.WithoutCancel(ctx)
	view := respond.NewMessageRespond(msg)
	s.async(func() {
		s.hub.Broadcast(bg, msg.ConversationMark, websocket.EventIncomingMessage, view)
		s.unread.PublishUpdates(bg, participants, msg)
	})
}

func (s *messageService) loadOwned(ctx context.Context, userId string, uuid int64) (*model.Message, error) {
	msg, err := s.repos.Message.FindByUuid(ctx, uuid)
	if err != nil {
		if errorx.IsNotFound(err) {
			return nil, errorx.New(errorx.CodeNotFound, "消息不存在")
		}
		zap.L().Error("查询消息失败", zap.Error(err))
		return nil, errorx.ErrServerBusy
	}
	if msg.SenderId != userId {
		return nil, errorx.New(errorx.CodeForbidden, "只能操作自己发送的消息")
	}
	return msg, nil
}

// Cancel 撤回，只有发送者可以撤回，重复撤回无副作用
func (s *messageService) Cancel(ctx context.Context, userId string, uuid int64) (*respond.MessageRespond, error) {
	msg, err := s.loadOwned(ctx, userId, uuid)
	if err != nil {
		return nil, err
	}
	msg.Cancel()
	err = s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		if err := tx.Message.MarkCancelled(ctx, uuid); err != nil {
			return err
		}
		return s.unread.OnMessageChanged(ctx, tx, msg)
	})
	if err != nil {
		zap.L().Error("撤回消息失败", zap.Error(err))
		return nil, errorx.ErrServerBusy
	}
	view := respond.NewMessageRespond(msg)
	s.hub.Broadcast(context.WithoutCancel(ctx), msg.ConversationMark, websocket.EventMessageCancelled, view)
	return view, nil
}

// Edit 修改内容，已撤回的消息不可修改
func (s *messageService) Edit(ctx context.Context, userId string, uuid int64, content string) (*respond.MessageRespond, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, errorx.New(errorx.CodeInvalidParam, "消息内容不能为空")
	}
	msg, err := s.loadOwned(ctx, userId, uuid)
	if err != nil {
		return nil, err
	}
	if err := msg.EditContent(content); err != nil {
		return nil, errorx.New(errorx.CodeForbidden, "消息已撤回，不能修改")
	}
	err = s.repos.Transaction(ctx, func(tx *repository.Repositories) error {
		if err := tx.Message.UpdateContent(ctx, uuid, content); err != nil {
			return err
		}
		return s.unread.OnMessageChanged(ctx, tx, msg)
	})
	if err != nil {
		if errorx.HasCode(err, errorx.CodeForbidden) {
			return nil, errorx.New(errorx.CodeForbidden, "消息已撤回，不能修改")
		}
		zap.L().Error("修改消息失败", zap.Error(err))
		return nil, errorx.ErrServerBusy
	}
	view := respond.NewMessageRespond(msg)
	s.hub.Broadcast(context.WithoutCancel(ctx), msg.ConversationMark, websocket.EventMessageEdited, view)
	return view, nil
}

// CheckAccess 用户能否查看会话：私聊双方或群成员
func (s *messageService) CheckAccess(ctx context.Context, userId, mark string) (*model.Conversation, error) {
	conv, err := s.repos.Conversation.FindByMark(ctx, mark)
	if err != nil {
		if errorx.IsNotFound(err) {
			return nil, errorx.New(errorx.CodeNotFound, "会话不存在")
		}
		zap.L().Error("查询会话失败", zap.Error(err))
		return nil, errorx.ErrServerBusy
	}
	if conv.Status == model.ConversationUnreachable {
		return nil, errorx.New(errorx.CodeNotFound, "会话不存在")
	}
	switch conv.Kind {
	case model.KindPrivate:
		if p, _ := conv.AsPrivate(); p.Involves(userId) {
			return conv, nil
		}
	case model.KindGroup:
		_, err := s.repos.GroupMember.FindByGroupAndUser(ctx, mark, userId)
		if err == nil {
			return conv, nil
		}
		if !errorx.IsNotFound(err) {
			zap.L().Error("查询群成员失败", zap.Error(err))
			return nil, errorx.ErrServerBusy
		}
	}
	return nil, errorx.ErrForbidden
}

// History 按服务端接收顺序倒序分页，撤回的消息内容为空
func (s *messageService) History(ctx context.Context, userId string, req request.HistoryRequest) (*respond.HistoryRespond, error) {
	if _, err := s.CheckAccess(ctx, userId, req.ConversationMark); err != nil {
		return nil, err
	}
	limit := req.Limit
	if limit <= 0 {
		limit = constants.HISTORY_PAGE_SIZE
	}
	limit = min(limit, constants.HISTORY_MAX_SIZE)

	messages, err := s.repos.Message.FindByConversation(ctx, req.ConversationMark, req.BeforeUuid, limit)
	if err != nil {
		zap.L().Error("查询历史消息失败", zap.Error(err))
		return nil, errorx.ErrServerBusy
	}
	rsp := &respond.HistoryRespond{Messages: make([]*respond.MessageRespond, 0, len(messages))}
	for i := range messages {
		rsp.Messages = append(rsp.Messages, respond.NewMessageRespond(&messages[i]))
	}
	if len(messages) == limit {
		rsp.NextBeforeUuid = messages[len(messages)-1].Uuid
	}
	return rsp, nil
}
