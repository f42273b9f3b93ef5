package handler

import (
	"kama_realtime/internal/dto/request"
	"kama_realtime/internal/service"

	"github.com/gin-gonic/gin"
)

// UnreadHandler 未读数与隐私检查
type UnreadHandler struct {
	unreadSvc service.UnreadService
	privacy   service.PrivacyGate
}

func NewUnreadHandler(unreadSvc service.UnreadService, privacy service.PrivacyGate) *UnreadHandler {
	return &UnreadHandler{unreadSvc: unreadSvc, privacy: privacy}
}

// Snapshot 全量未读，客户端重连后调用
// GET /contact/unread
func (h *UnreadHandler) Snapshot(c *gin.Context) {
	userId, _ := identityOf(c)
	data, err := h.unreadSvc.Snapshot(c.Request.Context(), userId)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, data)
}

// MarkRead 清零单个会话未读
// POST /contact/read
func (h *UnreadHandler) MarkRead(c *gin.Context) {
	var req request.ChatMarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	userId, _ := identityOf(c)
	data, err := h.unreadSvc.MarkAsRead(c.Request.Context(), userId, req.ConversationMark)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, data)
}

// CanRequest 当前用户能否向 target 发起好友申请或入群邀请
// GET /contact/canRequest?target=&group_invite=
func (h *UnreadHandler) CanRequest(c *gin.Context) {
	var req request.CanRequestRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	userId, _ := identityOf(c)
	allowed, reason, err := h.privacy.CanRequest(c.Request.Context(), req.Target, userId, req.GroupInvite)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, gin.H{"allowed": allowed, "reason": reason})
}
