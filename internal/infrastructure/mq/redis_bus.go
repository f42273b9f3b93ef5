package mq

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBus 基于 Redis Pub/Sub 的跨实例总线
// Pub/Sub 不持久化，实例断线期间的事件会丢失，客户端重连后通过快照接口补齐
type RedisBus struct {
	client  *redis.Client
	channel string
}

// NewRedisBus 创建 Redis 总线
func NewRedisBus(client *redis.Client, channel string) *RedisBus {
	return &RedisBus{client: client, channel: channel}
}

func (b *RedisBus) Publish(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, data).Err()
}

// Run 订阅断开后按指数退避重连，最长 30 秒
func (b *RedisBus) Run(ctx context.Context, h Handler) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		received := b.consume(ctx, h)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if received {
			backoff = time.Second
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff = min(backoff*2, 30*time.Second)
	}
}

// consume 返回本轮是否成功收到过消息
func (b *RedisBus) consume(ctx context.Context, h Handler) bool {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()
	zap.L().Info("Redis fanout subscriber started", zap.String("channel", b.channel))

	received := false
	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				zap.L().Error("Redis subscriber error", zap.Error(err))
			}
			return received
		}
		received = true
		var env Envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			zap.L().Error("failed to unmarshal fanout envelope", zap.Error(err))
			continue
		}
		h(env)
	}
}

// Close client 由 main 统一关闭
func (b *RedisBus) Close() error {
	return nil
}
