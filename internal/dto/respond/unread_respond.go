package respond

import (
	"time"

	"kama_realtime/internal/model"
)

// ContactRespond 最近会话中的一行
type ContactRespond struct {
	ConversationMark   string    `json:"conversation_mark"`
	PeerId             string    `json:"peer_id"`
	UnreadCount        int64     `json:"unread_count"`
	Pinned             bool      `json:"pinned"`
	Blocked            bool      `json:"blocked"`
	LastMessagePreview string    `json:"last_message_preview"`
	LastMessageUuid    int64     `json:"last_message_uuid,string"`
	LastUsedAt         time.Time `json:"last_used_at"`
}

func NewContactRespond(c *model.Contact) *ContactRespond {
	return &ContactRespond{
		ConversationMark:   c.ConversationMark,
		PeerId:             c.PeerId,
		UnreadCount:        c.LastUnreadCount,
		Pinned:             c.Pinned,
		Blocked:            c.Blocked,
		LastMessagePreview: c.LastMessagePreview,
		LastMessageUuid:    c.LastMessageUuid,
		LastUsedAt:         c.LastUsedAt,
	}
}

// UnreadCountUpdate onUnreadCountUpdate 推送
type UnreadCountUpdate struct {
	Mark  string `json:"mark"`
	Count int64  `json:"count"`
	Total int64  `json:"total"`
}

// ContactAndMessageUpdate onContactAndMessageUpdate 推送
type ContactAndMessageUpdate struct {
	Contact *ContactRespond `json:"contact"`
	Message *MessageRespond `json:"message"`
	Total   int64           `json:"total"`
}

// UnreadSnapshot 重连后拉取的全量未读快照
type UnreadSnapshot struct {
	Total    int64             `json:"total"`
	Contacts []*ContactRespond `json:"contacts"`
}
