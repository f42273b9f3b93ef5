// Package websocket 连接注册表与房间路由
// 维护连接到用户、连接到房间的映射，并把推送事件经总线扇出到各实例的本地连接
package websocket

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"sync"

	"kama_realtime/internal/config"
	myredis "kama_realtime/internal/dao/redis"
	"kama_realtime/internal/infrastructure/metrics"
	"kama_realtime/internal/infrastructure/mq"
	"kama_realtime/pkg/constants"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type roomShard struct {
	mu    sync.RWMutex
	rooms map[string]map[string]*Client // room -> connId -> client
}

// Hub 连接注册表
// 进程启动时创建一次，Close 时释放；房间成员只存在于内存，断线重连后由客户端重新加入
type Hub struct {
	cfg        config.FanoutConfig
	bus        mq.Bus
	presence   myredis.AsyncCacheService
	instanceID string

	clients sync.Map // connId -> *Client
	shards  []*roomShard

	// jobs 按目标房间哈希分区，同一房间的事件由同一 worker 顺序发布
	jobs []chan mq.Envelope

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Option Hub 可选配置
type Option func(*Hub)

// WithPresence 在 Redis 中记录在线连接
func WithPresence(cache myredis.AsyncCacheService, instanceID string) Option {
	return func(h *Hub) {
		h.presence = cache
		h.instanceID = instanceID
	}
}

// NewHub 创建并启动 Hub
func NewHub(cfg config.FanoutConfig, bus mq.Bus, opts ...Option) *Hub {
	if cfg.Shards <= 0 {
		cfg.Shards = 32
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.ClientBuffer <= 0 {
		cfg.ClientBuffer = constants.CHANNEL_SIZE
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		cfg:    cfg,
		bus:    bus,
		shards: make([]*roomShard, cfg.Shards),
		jobs:   make([]chan mq.Envelope, cfg.Workers),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(h)
	}
	for i := range h.shards {
		h.shards[i] = &roomShard{rooms: make(map[string]map[string]*Client)}
	}
	for i := range h.jobs {
		h.jobs[i] = make(chan mq.Envelope, cfg.QueueSize)
		h.wg.Add(1)
		go h.publishWorker(h.jobs[i])
	}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if err := h.bus.Run(h.ctx, h.deliver); err != nil && h.ctx.Err() == nil {
			zap.L().Error("fanout bus stopped", zap.Error(err))
		}
	}()
	return h
}

func hashOf(key string) uint32 {
	f := fnv.New32a()
	_, _ = f.Write([]byte(key))
	return f.Sum32()
}

func (h *Hub) shardOf(room string) *roomShard {
	return h.shards[hashOf(room)%uint32(len(h.shards))]
}

// OnConnect 注册连接，已认证的连接自动加入个人频道
func (h *Hub) OnConnect(conn *websocket.Conn, identity Identity) *Client {
	c := newClient(h, uuid.NewString(), conn, identity, h.cfg.ClientBuffer)
	h.register(c)
	return c
}

func (h *Hub) register(c *Client) {
	h.clients.Store(c.id, c)
	metrics.Connections.Inc()
	if !c.Authenticated() {
		zap.L().Warn("connection without identity, personal channel skipped", zap.String("conn_id", c.id))
		return
	}
	h.JoinRoom(c.id, UserChannel(c.identity.UserId))
	h.recordPresence(c, true)
	zap.L().Info("websocket connected",
		zap.String("conn_id", c.id), zap.String("user_id", c.identity.UserId), zap.String("device_id", c.identity.DeviceId))
}

// OnDisconnect 移除连接及其全部房间成员关系，重复调用无副作用
func (h *Hub) OnDisconnect(connId string) {
	v, ok := h.clients.LoadAndDelete(connId)
	if !ok {
		return
	}
	c := v.(*Client)
	for _, room := range c.takeRooms() {
		h.removeMember(room, connId)
	}
	c.Close()
	metrics.Connections.Dec()
	if c.Authenticated() {
		h.recordPresence(c, false)
	}
}

// Client 按连接 id 查找
func (h *Hub) Client(connId string) (*Client, bool) {
	v, ok := h.clients.Load(connId)
	if !ok {
		return nil, false
	}
	return v.(*Client), true
}

// JoinRoom 幂等；连接不存在时为空操作
func (h *Hub) JoinRoom(connId, room string) {
	c, ok := h.Client(connId)
	if !ok || room == "" {
		return
	}
	if !c.addRoom(room) {
		return
	}
	s := h.shardOf(room)
	s.mu.Lock()
	members := s.rooms[room]
	if members == nil {
		members = make(map[string]*Client)
		s.rooms[room] = members
	}
	members[connId] = c
	s.mu.Unlock()
}

// LeaveRoom 幂等；未加入的房间为空操作
func (h *Hub) LeaveRoom(connId, room string) {
	c, ok := h.Client(connId)
	if !ok {
		return
	}
	if c.removeRoom(room) {
		h.removeMember(room, connId)
	}
}

func (h *Hub) removeMember(room, connId string) {
	s := h.shardOf(room)
	s.mu.Lock()
	defer s.mu.Unlock()
	if members := s.rooms[room]; members != nil {
		delete(members, connId)
		if len(members) == 0 {
			delete(s.rooms, room)
		}
	}
}

// RoomSize 本实例上该房间的连接数
func (h *Hub) RoomSize(room string) int {
	s := h.shardOf(room)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms[room])
}

// Broadcast 向房间推送事件，只入队不等待，队列满时丢弃并记录
func (h *Hub) Broadcast(ctx context.Context, room, event string, payload any) {
	h.enqueue(ctx, room, event, payload, "")
}

// PushToUser 推送到用户所有在线设备
func (h *Hub) PushToUser(ctx context.Context, userId, event string, payload any) {
	h.enqueue(ctx, UserChannel(userId), event, payload, "")
}

// KickDevice 推送给用户所有设备，并断开指定设备的连接
func (h *Hub) KickDevice(ctx context.Context, userId, deviceId, event string, payload any) {
	h.enqueue(ctx, UserChannel(userId), event, payload, deviceId)
}

func (h *Hub) enqueue(_ context.Context, room, event string, payload any, kickDeviceId string) {
	frame, err := EncodePush(event, payload)
	if err != nil {
		zap.L().Error("encode push frame failed", zap.String("event", event), zap.Error(err))
		return
	}
	env := mq.Envelope{Target: room, Event: event, Frame: json.RawMessage(frame), KickDeviceId: kickDeviceId}
	select {
	case <-h.ctx.Done():
		return
	default:
	}
	select {
	case h.jobs[hashOf(room)%uint32(len(h.jobs))] <- env:
	default:
		metrics.Dropped.WithLabelValues("queue_full").Inc()
		zap.L().Warn("broadcast queue full, event dropped", zap.String("room", room), zap.String("event", event))
	}
}

func (h *Hub) publishWorker(jobs <-chan mq.Envelope) {
	defer h.wg.Done()
	for {
		select {
		case env := <-jobs:
			if err := h.bus.Publish(h.ctx, env); err != nil {
				metrics.Dropped.WithLabelValues("bus_error").Inc()
				zap.L().Error("publish fanout event failed",
					zap.String("room", env.Target), zap.String("event", env.Event), zap.Error(err))
			}
		case <-h.ctx.Done():
			return
		}
	}
}

// deliver 总线消费回调，投递到本实例的连接
func (h *Hub) deliver(env mq.Envelope) {
	s := h.shardOf(env.Target)
	s.mu.RLock()
	members := make([]*Client, 0, len(s.rooms[env.Target]))
	for _, c := range s.rooms[env.Target] {
		members = append(members, c)
	}
	s.mu.RUnlock()

	for _, c := range members {
		c.Send(env.Frame)
		if env.KickDeviceId != "" && c.identity.DeviceId == env.KickDeviceId {
			c.Kick()
		}
	}
}

func (h *Hub) recordPresence(c *Client, online bool) {
	if h.presence == nil {
		return
	}
	key := constants.ONLINE_CONN_KEY_PREFIX + c.identity.UserId
	member := h.instanceID + ":" + c.id
	h.presence.SubmitTask(func() {
		ctx, cancel := context.WithTimeout(context.Background(), writeWait)
		defer cancel()
		var err error
		if online {
			err = h.presence.AddToSet(ctx, key, member)
		} else {
			err = h.presence.RemoveFromSet(ctx, key, member)
		}
		if err != nil {
			zap.L().Warn("update presence failed", zap.String("key", key), zap.Error(err))
		}
	})
}

// OnlineConnections 查询用户在各实例上的在线连接
func (h *Hub) OnlineConnections(ctx context.Context, userId string) ([]string, error) {
	if h.presence == nil {
		return nil, nil
	}
	return h.presence.GetSetMembers(ctx, constants.ONLINE_CONN_KEY_PREFIX+userId)
}

// Close 停止 worker 并断开全部连接
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		h.cancel()
		h.clients.Range(func(key, _ any) bool {
			h.OnDisconnect(key.(string))
			return true
		})
		if err := h.bus.Close(); err != nil {
			zap.L().Warn("close fanout bus failed", zap.Error(err))
		}
		h.wg.Wait()
	})
}
