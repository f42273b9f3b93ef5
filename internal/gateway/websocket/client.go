package websocket

import (
	"context"
	"sync"
	"time"

	"kama_realtime/internal/infrastructure/metrics"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 * 1024
)

// Identity 连接对应的登录身份，未认证连接为零值
type Identity struct {
	UserId   string
	DeviceId string
}

// FrameHandler 处理客户端上行帧，由业务层实现
type FrameHandler interface {
	HandleFrame(ctx context.Context, c *Client, raw []byte)
}

// Client 一条 WebSocket 连接
type Client struct {
	id       string
	identity Identity
	hub      *Hub
	conn     *websocket.Conn

	// send 下行队列，满时丢弃新帧，保证已投递帧的顺序
	send chan []byte
	// kick 收到后写完队列中的帧再断开
	kick chan struct{}
	done chan struct{}

	mu    sync.Mutex
	rooms map[string]struct{}

	kickOnce  sync.Once
	closeOnce sync.Once
}

func newClient(h *Hub, id string, conn *websocket.Conn, identity Identity, buffer int) *Client {
	return &Client{
		id:       id,
		identity: identity,
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, buffer),
		kick:     make(chan struct{}),
		done:     make(chan struct{}),
		rooms:    make(map[string]struct{}),
	}
}

func (c *Client) ID() string            { return c.id }
func (c *Client) Identity() Identity    { return c.identity }
func (c *Client) UserId() string        { return c.identity.UserId }
func (c *Client) DeviceId() string      { return c.identity.DeviceId }
func (c *Client) Authenticated() bool   { return c.identity.UserId != "" }
func (c *Client) Done() <-chan struct{} { return c.done }

// Send 非阻塞写入下行队列，连接已关闭或队列已满返回 false
func (c *Client) Send(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		metrics.Deliveries.Inc()
		return true
	default:
		metrics.Dropped.WithLabelValues("slow_client").Inc()
		zap.L().Warn("client send buffer full, frame skipped",
			zap.String("conn_id", c.id), zap.String("user_id", c.identity.UserId))
		return false
	}
}

// Rooms 当前加入的房间快照
func (c *Client) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	rooms := make([]string, 0, len(c.rooms))
	for r := range c.rooms {
		rooms = append(rooms, r)
	}
	return rooms
}

func (c *Client) addRoom(room string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.rooms[room]; ok {
		return false
	}
	c.rooms[room] = struct{}{}
	return true
}

func (c *Client) removeRoom(room string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.rooms[room]; !ok {
		return false
	}
	delete(c.rooms, room)
	return true
}

func (c *Client) takeRooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	rooms := make([]string, 0, len(c.rooms))
	for r := range c.rooms {
		rooms = append(rooms, r)
	}
	c.rooms = make(map[string]struct{})
	return rooms
}

// Kick 在已入队的帧写出后断开连接
func (c *Client) Kick() {
	c.kickOnce.Do(func() { close(c.kick) })
}

// Close 立即断开
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

// ReadPump 读循环，读错误即视为断开
func (c *Client) ReadPump(ctx context.Context, handler FrameHandler) {
	defer func() {
		c.hub.OnDisconnect(c.id)
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				zap.L().Info("websocket read closed", zap.String("conn_id", c.id), zap.Error(err))
			}
			return
		}
		handler.HandleFrame(ctx, c, raw)
	}
}

// WritePump 写循环，负责 ping 心跳
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case frame := <-c.send:
			if err := c.write(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.kick:
			c.drain()
			_ = c.write(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "session revoked"))
			return
		case <-c.done:
			return
		}
	}
}

func (c *Client) drain() {
	for {
		select {
		case frame := <-c.send:
			if err := c.write(websocket.TextMessage, frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Client) write(messageType int, data []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	err := c.conn.WriteMessage(messageType, data)
	if err != nil {
		zap.L().Debug("websocket write failed", zap.String("conn_id", c.id), zap.Error(err))
	}
	return err
}
