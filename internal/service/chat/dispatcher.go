// Package chat WebSocket 上行帧分发
// 每个连接的帧在读协程内顺序处理，回复以 ack 帧写回发起连接
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"kama_realtime/internal/config"
	"kama_realtime/internal/dto/request"
	"kama_realtime/internal/dto/respond"
	"kama_realtime/internal/gateway/websocket"
	"kama_realtime/internal/infrastructure/metrics"
	"kama_realtime/internal/infrastructure/middleware"
	"kama_realtime/internal/model"
	"kama_realtime/internal/service/validation"
	"kama_realtime/pkg/errorx"

	"github.com/gin-gonic/gin/binding"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// 上行操作
const (
	OpJoinChat           = "joinChat"
	OpLeaveChat          = "leaveChat"
	OpSendMessage        = "sendMessage"
	OpMarkMessagesAsRead = "markMessagesAsRead"
	OpHeartbeat          = "heartbeat"
)

// EventAck 回复帧事件名
const EventAck = "ack"

// Session 分发器看到的连接，*websocket.Client 实现该接口
type Session interface {
	ID() string
	UserId() string
	DeviceId() string
	Authenticated() bool
	Send(frame []byte) bool
	Kick()
}

// Rooms 房间成员管理
type Rooms interface {
	JoinRoom(connId, room string)
	LeaveRoom(connId, room string)
}

// MessageSender 消息发送与会话可见性检查
type MessageSender interface {
	Send(ctx context.Context, senderId string, req request.SendMessageRequest) (*respond.SendMessageRespond, error)
	CheckAccess(ctx context.Context, userId, mark string) (*model.Conversation, error)
}

// ReadMarker 未读清零
type ReadMarker interface {
	MarkAsRead(ctx context.Context, userId, mark string) (*respond.UnreadCountUpdate, error)
}

// HeartbeatRecorder 设备心跳
type HeartbeatRecorder interface {
	Heartbeat(ctx context.Context, userId, deviceId string) error
}

// Ack 回复帧
type Ack struct {
	Event string `json:"event"`
	Op    string `json:"op"`
	Seq   string `json:"seq,omitempty"`
	Code  int    `json:"code"`
	Msg   string `json:"msg"`
	Data  any    `json:"data,omitempty"`
}

// Dispatcher 实现 websocket.FrameHandler
type Dispatcher struct {
	rooms     Rooms
	messages  MessageSender
	unread    ReadMarker
	heartbeat HeartbeatRecorder
	limiter   *middleware.KeyedLimiter
}

// NewDispatcher 构造函数
func NewDispatcher(rooms Rooms, messages MessageSender, unread ReadMarker, heartbeat HeartbeatRecorder, cfg config.RateLimitConfig) *Dispatcher {
	perSecond, burst := cfg.SendPerSecond, cfg.SendBurst
	if perSecond <= 0 {
		perSecond = 10
	}
	if burst <= 0 {
		burst = 20
	}
	return &Dispatcher{
		rooms:     rooms,
		messages:  messages,
		unread:    unread,
		heartbeat: heartbeat,
		limiter:   middleware.NewKeyedLimiter(rate.Limit(perSecond), burst, 10*time.Minute),
	}
}

// HandleFrame 读协程回调
func (d *Dispatcher) HandleFrame(ctx context.Context, c *websocket.Client, raw []byte) {
	d.Dispatch(ctx, c, raw)
}

// Forget 连接断开后释放限流状态
func (d *Dispatcher) Forget(connId string) {
	d.limiter.Forget(connId)
}

// Dispatch 解析并处理一帧，任何失败都只影响本帧
func (d *Dispatcher) Dispatch(ctx context.Context, s Session, raw []byte) {
	var frame request.ChatFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		d.reply(s, Ack{Op: "", Code: errorx.CodeInvalidParam, Msg: errorx.ErrInvalidParam.Msg})
		return
	}
	ack := Ack{Op: frame.Op, Seq: frame.Seq, Code: errorx.CodeSuccess, Msg: "success"}
	// 匿名连接只能心跳；发送消息以 Unauthorized 结果回复，其余操作按未授权拒绝
	if frame.Op != OpHeartbeat && frame.Op != OpSendMessage && !s.Authenticated() {
		d.reply(s, fail(ack, errorx.ErrUnauthorized))
		return
	}

	switch frame.Op {
	case OpJoinChat:
		ack = d.joinChat(ctx, s, frame.Data, ack)
	case OpLeaveChat:
		ack = d.leaveChat(s, frame.Data, ack)
	case OpSendMessage:
		ack = d.sendMessage(ctx, s, frame.Data, ack)
	case OpMarkMessagesAsRead:
		ack = d.markAsRead(ctx, s, frame.Data, ack)
	case OpHeartbeat:
		ack = d.beat(ctx, s, ack)
	default:
		ack = fail(ack, errorx.Newf(errorx.CodeInvalidParam, "未知操作: %s", frame.Op))
	}
	d.reply(s, ack)
	// 会话已被吊销，回复送出后断开
	if frame.Op == OpHeartbeat && ack.Code == errorx.CodeTokenInvalid {
		s.Kick()
	}
}

func (d *Dispatcher) reply(s Session, ack Ack) {
	ack.Event = EventAck
	frame, err := json.Marshal(ack)
	if err != nil {
		zap.L().Error("encode ack failed", zap.String("op", ack.Op), zap.Error(err))
		return
	}
	s.Send(frame)
}

func fail(ack Ack, err error) Ack {
	ack.Code = errorx.GetCode(err)
	ack.Msg = errorx.ErrServerBusy.Msg
	var ce *errorx.CodeError
	if errors.As(err, &ce) {
		ack.Msg = ce.Msg
	}
	return ack
}

func decode(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return errorx.ErrInvalidParam
	}
	if err := json.Unmarshal(data, v); err != nil {
		return errorx.ErrInvalidParam
	}
	if err := binding.Validator.ValidateStruct(v); err != nil {
		return errorx.Wrap(err, errorx.CodeInvalidParam, errorx.ErrInvalidParam.Msg)
	}
	return nil
}

func (d *Dispatcher) joinChat(ctx context.Context, s Session, data json.RawMessage, ack Ack) Ack {
	var req request.ChatMarkRequest
	if err := decode(data, &req); err != nil {
		return fail(ack, err)
	}
	if _, err := d.messages.CheckAccess(ctx, s.UserId(), req.ConversationMark); err != nil {
		return fail(ack, err)
	}
	d.rooms.JoinRoom(s.ID(), req.ConversationMark)
	return ack
}

func (d *Dispatcher) leaveChat(s Session, data json.RawMessage, ack Ack) Ack {
	var req request.ChatMarkRequest
	if err := decode(data, &req); err != nil {
		return fail(ack, err)
	}
	d.rooms.LeaveRoom(s.ID(), req.ConversationMark)
	return ack
}

func (d *Dispatcher) sendMessage(ctx context.Context, s Session, data json.RawMessage, ack Ack) Ack {
	if !s.Authenticated() {
		o := validation.Unauthorized
		metrics.SendOutcomes.WithLabelValues(o.String()).Inc()
		ack.Code = o.Code()
		ack.Msg = o.Message()
		ack.Data = &respond.SendMessageRespond{Outcome: o.String(), Code: o.Code(), Msg: o.Message()}
		return ack
	}
	if !d.limiter.Allow(s.ID()) {
		return fail(ack, errorx.ErrTooFrequent)
	}
	var req request.SendMessageRequest
	if err := decode(data, &req); err != nil {
		return fail(ack, err)
	}
	rsp, err := d.messages.Send(ctx, s.UserId(), req)
	if rsp == nil {
		return fail(ack, err)
	}
	// 校验未通过时 code 取 outcome 对应的错误码
	if rsp.Code != 0 {
		ack.Code = rsp.Code
		ack.Msg = rsp.Msg
	}
	ack.Data = rsp
	return ack
}

func (d *Dispatcher) markAsRead(ctx context.Context, s Session, data json.RawMessage, ack Ack) Ack {
	var req request.ChatMarkRequest
	if err := decode(data, &req); err != nil {
		return fail(ack, err)
	}
	update, err := d.unread.MarkAsRead(ctx, s.UserId(), req.ConversationMark)
	if err != nil {
		if errorx.IsNotFound(err) {
			return fail(ack, errorx.New(errorx.CodeNotFound, "会话不存在"))
		}
		zap.L().Error("mark as read failed", zap.String("user_id", s.UserId()), zap.Error(err))
		return fail(ack, errorx.ErrServerBusy)
	}
	ack.Data = update
	return ack
}

func (d *Dispatcher) beat(ctx context.Context, s Session, ack Ack) Ack {
	if !s.Authenticated() {
		return ack
	}
	if err := d.heartbeat.Heartbeat(ctx, s.UserId(), s.DeviceId()); err != nil {
		return fail(ack, err)
	}
	return ack
}
