package websocket

import (
	"encoding/json"
)

// 服务端推送事件名
const (
	EventIncomingMessage         = "onIncomingMessage"
	EventUnreadCountUpdate       = "onUnreadCountUpdate"
	EventContactAndMessageUpdate = "onContactAndMessageUpdate"
	EventMessageCancelled        = "onMessageCancelled"
	EventMessageEdited           = "onMessageEdited"
	EventForceLogout             = "onForceLogout"
)

// userChannelPrefix 个人频道前缀，与会话 mark 的 P/G 前缀不会冲突
const userChannelPrefix = "user-"

// UserChannel 返回用户的个人频道名
func UserChannel(userId string) string {
	return userChannelPrefix + userId
}

// PushFrame 下行推送帧
type PushFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// EncodePush 序列化推送帧
func EncodePush(event string, data any) ([]byte, error) {
	return json.Marshal(PushFrame{Event: event, Data: data})
}
