package validation

// Outcome 发送校验结果，互斥且唯一
type Outcome int

const (
	Success Outcome = iota
	Unauthorized
	SenderNotFound
	ChatNotFound
	ContentEmpty
	PrivateChatBlocked
	GroupChatDisabled
	PrivateChatNotAllowed
	NotInGroup
	UserMuted
	ViaGroupChatValidationFailed
	InternalError
)

var outcomeNames = [...]string{
	Success:                      "Success",
	Unauthorized:                 "Unauthorized",
	SenderNotFound:               "SenderNotFound",
	ChatNotFound:                 "ChatNotFound",
	ContentEmpty:                 "ContentEmpty",
	PrivateChatBlocked:           "PrivateChatBlocked",
	GroupChatDisabled:            "GroupChatDisabled",
	PrivateChatNotAllowed:        "PrivateChatNotAllowed",
	NotInGroup:                   "NotInGroup",
	UserMuted:                    "UserMuted",
	ViaGroupChatValidationFailed: "ViaGroupChatValidationFailed",
	InternalError:                "InternalError",
}

var outcomeMessages = [...]string{
	Success:                      "发送成功",
	Unauthorized:                 "未登录或登录已失效",
	SenderNotFound:               "发送者不存在",
	ChatNotFound:                 "会话不存在",
	ContentEmpty:                 "消息内容不能为空",
	PrivateChatBlocked:           "对方已拉黑或已被你拉黑",
	GroupChatDisabled:            "该群已被禁用",
	PrivateChatNotAllowed:        "该群禁止成员间发起私聊",
	NotInGroup:                   "你不是该群成员",
	UserMuted:                    "你已被禁言",
	ViaGroupChatValidationFailed: "无法通过该群发起私聊",
	InternalError:                "系统繁忙，请稍后再试",
}

func (o Outcome) valid() bool {
	return o >= Success && o <= InternalError
}

func (o Outcome) String() string {
	if !o.valid() {
		return "Unknown"
	}
	return outcomeNames[o]
}

// Message 面向用户的提示文案
func (o Outcome) Message() string {
	if !o.valid() {
		return outcomeMessages[InternalError]
	}
	return outcomeMessages[o]
}

// Code 下发给客户端的结果码，成功为 0
func (o Outcome) Code() int {
	if o == Success {
		return 0
	}
	return 2000 + int(o)
}

// MarshalText 序列化为名称
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Retryable 只有内部错误值得客户端重试
func (o Outcome) Retryable() bool {
	return o == InternalError
}
