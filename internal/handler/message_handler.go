package handler

import (
	"kama_realtime/internal/dto/request"
	"kama_realtime/internal/service"

	"github.com/gin-gonic/gin"
)

// MessageHandler 消息请求处理器
// 发送也可以走 WebSocket 的 sendMessage，两者共用 MessageService
type MessageHandler struct {
	messageSvc service.MessageService
}

func NewMessageHandler(messageSvc service.MessageService) *MessageHandler {
	return &MessageHandler{messageSvc: messageSvc}
}

// Send 发送消息
// POST /message/send
// 校验未通过时 code 为对应 outcome 的结果码，data 中带 outcome 名称
func (h *MessageHandler) Send(c *gin.Context) {
	var req request.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	userId, _ := identityOf(c)
	data, err := h.messageSvc.Send(c.Request.Context(), userId, req)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleOutcome(c, data.Code, data.Msg, data)
}

// Cancel 撤回消息
// POST /message/cancel
func (h *MessageHandler) Cancel(c *gin.Context) {
	var req request.CancelMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	userId, _ := identityOf(c)
	data, err := h.messageSvc.Cancel(c.Request.Context(), userId, req.MessageUuid)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, data)
}

// Edit 修改消息内容
// POST /message/edit
func (h *MessageHandler) Edit(c *gin.Context) {
	var req request.EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	userId, _ := identityOf(c)
	data, err := h.messageSvc.Edit(c.Request.Context(), userId, req.MessageUuid, req.Content)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, data)
}

// History 历史消息
// GET /message/history?conversation_mark=&before_uuid=&limit=
func (h *MessageHandler) History(c *gin.Context) {
	var req request.HistoryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	userId, _ := identityOf(c)
	data, err := h.messageSvc.History(c.Request.Context(), userId, req)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, data)
}
