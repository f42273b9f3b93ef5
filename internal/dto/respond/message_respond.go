package respond

import (
	"time"

	"kama_realtime/internal/model"
)

// MessageRespond 下发给客户端的消息
// 撤回后 Content 恒为空
type MessageRespond struct {
	Uuid             int64     `json:"uuid,string"`
	ConversationMark string    `json:"conversation_mark"`
	SenderId         string    `json:"sender_id"`
	Type             int8      `json:"type"`
	Content          string    `json:"content"`
	Cancelled        bool      `json:"cancelled"`
	ClientMsgId      string    `json:"client_msg_id,omitempty"`
	ViaGroupMark     string    `json:"via_group_mark,omitempty"`
	SendAt           time.Time `json:"send_at"`
	CapturedAt       time.Time `json:"captured_at"`
}

// NewMessageRespond 模型转下发结构
func NewMessageRespond(m *model.Message) *MessageRespond {
	return &MessageRespond{
		Uuid:             m.Uuid,
		ConversationMark: m.ConversationMark,
		SenderId:         m.SenderId,
		Type:             int8(m.Type),
		Content:          m.VisibleContent(),
		Cancelled:        m.Cancelled,
		ClientMsgId:      m.ClientMsgIdValue(),
		ViaGroupMark:     m.ViaGroupMark,
		SendAt:           m.SendAt,
		CapturedAt:       m.CapturedAt,
	}
}

// SendMessageRespond 发送结果
type SendMessageRespond struct {
	Outcome string          `json:"outcome"`
	Code    int             `json:"code"`
	Msg     string          `json:"msg"`
	Message *MessageRespond `json:"message,omitempty"`
	// Duplicate 命中幂等键，返回的是之前已持久化的消息
	Duplicate bool `json:"duplicate,omitempty"`
}

// HistoryRespond 历史消息分页
type HistoryRespond struct {
	Messages []*MessageRespond `json:"messages"`
	// NextBeforeUuid 下一页游标，0 表示没有更多
	NextBeforeUuid int64 `json:"next_before_uuid,string"`
}
