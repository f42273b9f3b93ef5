// Package validation 消息发送校验
// Validate 是纯函数：输入发送请求和已加载的状态，输出唯一结果，不做任何 IO
// Loader 负责从存储中加载状态
package validation

import (
	"strings"
	"time"

	"kama_realtime/internal/model"
)

// SendRequest 一次发送请求
type SendRequest struct {
	// SenderId 来自已认证连接的身份，为空表示未认证
	SenderId         string
	ConversationMark string
	Content          string
	Type             model.MessageType
	ClientMsgId      string
	// SendAt 客户端声明的发送时间，仅作参考
	SendAt time.Time
	// ViaGroupMark 从群内发起私聊时声明的来源群
	ViaGroupMark string
}

// State 校验所需的外部状态，nil 表示不存在
type State struct {
	Now time.Time

	Sender       *model.UserInfo
	Conversation *model.Conversation

	// Membership 群聊时发送者的成员记录
	Membership *model.GroupMember
	// Blocked 私聊时任一方拉黑
	Blocked bool

	// 来源群相关，仅 ViaGroupMark 非空时加载
	ViaGroup    *model.Conversation
	ViaSenderIn bool
	ViaPeerIn   bool
}

// Result 校验结果，Success 时 Intent 为待持久化的消息（Uuid 由调用方分配）
type Result struct {
	Outcome Outcome
	Intent  *model.Message
}

func reject(o Outcome) Result {
	return Result{Outcome: o}
}

// Validate 按固定顺序逐级检查，命中即返回
func Validate(req SendRequest, st State) Result {
	// 1. 认证
	if req.SenderId == "" {
		return reject(Unauthorized)
	}
	// 2. 发送者
	if st.Sender == nil || st.Sender.Uuid != req.SenderId {
		return reject(SenderNotFound)
	}
	if !st.Sender.Status.CanLogin() {
		return reject(Unauthorized)
	}
	// 3. 会话存在且可用
	conv := st.Conversation
	if conv == nil || conv.Mark != req.ConversationMark || conv.Status == model.ConversationUnreachable {
		return reject(ChatNotFound)
	}
	if conv.IsGroup() && conv.Status == model.ConversationGroupDisabled {
		return reject(GroupChatDisabled)
	}
	// 4. 内容
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return reject(ContentEmpty)
	}

	switch conv.Kind {
	case model.KindPrivate:
		p, _ := conv.AsPrivate()
		if !p.Involves(req.SenderId) {
			return reject(ChatNotFound)
		}
		// 5. 拉黑
		if st.Blocked {
			return reject(PrivateChatBlocked)
		}
		// 7. 来源群
		if req.ViaGroupMark != "" {
			if o := checkViaGroup(req, st); o != Success {
				return reject(o)
			}
		}
	case model.KindGroup:
		g, _ := conv.AsGroup()
		// 6. 成员、禁言
		m := st.Membership
		if m == nil || m.GroupMark != conv.Mark || m.UserId != req.SenderId {
			return reject(NotInGroup)
		}
		if m.IsMutedAt(st.Now) || (g.AllSilent && !m.IsManager()) {
			return reject(UserMuted)
		}
		if req.ViaGroupMark != "" {
			// 群消息不存在来源群
			return reject(ViaGroupChatValidationFailed)
		}
	default:
		return reject(ChatNotFound)
	}

	msg := &model.Message{
		ConversationMark: conv.Mark,
		SenderId:         req.SenderId,
		Type:             req.Type,
		Content:          content,
		ViaGroupMark:     req.ViaGroupMark,
		SendAt:           req.SendAt,
		CapturedAt:       st.Now,
	}
	if req.ClientMsgId != "" {
		id := req.ClientMsgId
		msg.ClientMsgId = &id
	}
	return Result{Outcome: Success, Intent: msg}
}

// checkViaGroup 来源群必须存在，双方都是成员，且群允许成员间私聊
func checkViaGroup(req SendRequest, st State) Outcome {
	vg := st.ViaGroup
	if vg == nil || !vg.IsGroup() || vg.Mark != req.ViaGroupMark || vg.Status == model.ConversationUnreachable {
		return ViaGroupChatValidationFailed
	}
	if !st.ViaSenderIn || !st.ViaPeerIn {
		return ViaGroupChatValidationFailed
	}
	if g, _ := vg.AsGroup(); g.ForbidPrivateChat {
		return PrivateChatNotAllowed
	}
	return Success
}
