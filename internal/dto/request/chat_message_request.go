package request

import "encoding/json"

// ChatFrame WebSocket 上行帧
// op: joinChat / leaveChat / sendMessage / markMessagesAsRead / heartbeat
type ChatFrame struct {
	Op string `json:"op"`
	// Seq 客户端请求序号，原样带回 ack
	Seq  string          `json:"seq"`
	Data json.RawMessage `json:"data"`
}

// ChatMarkRequest 只携带会话标识的请求（joinChat / leaveChat / markMessagesAsRead）
type ChatMarkRequest struct {
	ConversationMark string `json:"conversation_mark" binding:"required,max=24"`
}

// SendMessageRequest 发送消息请求，WebSocket 与 HTTP 共用
// 使用位置:
//   - internal/service/chat/dispatcher.go: sendMessage
//   - internal/handler/message_handler.go: Send
type SendMessageRequest struct {
	ConversationMark string `json:"conversation_mark" binding:"required,max=24"`
	Type             int8   `json:"type" binding:"min=0,max=3"`
	// Content 允许空白，由发送校验给出 ContentEmpty
	Content     string `json:"content" binding:"max=4096"`
	ClientMsgId string `json:"client_msg_id" binding:"omitempty,max=64"`
	// SendAt 客户端发送时间，毫秒时间戳
	SendAt       int64  `json:"send_at"`
	ViaGroupMark string `json:"via_group_mark" binding:"omitempty,max=24"`
}

// CancelMessageRequest 撤回消息
type CancelMessageRequest struct {
	MessageUuid int64 `json:"message_uuid,string" binding:"required"`
}

// EditMessageRequest 编辑消息
type EditMessageRequest struct {
	MessageUuid int64  `json:"message_uuid,string" binding:"required"`
	Content     string `json:"content" binding:"required,max=4096"`
}

// HistoryRequest 拉取历史消息（query 参数）
type HistoryRequest struct {
	ConversationMark string `form:"conversation_mark" binding:"required,max=24"`
	BeforeUuid       int64  `form:"before_uuid"`
	Limit            int    `form:"limit" binding:"omitempty,min=1,max=200"`
}

// CanRequestRequest 隐私检查（query 参数）
type CanRequestRequest struct {
	Target      string `form:"target" binding:"required,max=20"`
	GroupInvite bool   `form:"group_invite"`
}
