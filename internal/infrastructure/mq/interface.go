// Package mq 提供跨实例的实时事件总线
// 每个网关实例把推送事件发布到总线，再从总线消费并投递给本机连接，
// 单实例部署使用进程内 channel，多实例部署使用 Redis Pub/Sub 或 Kafka
package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"kama_realtime/internal/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrBusFull 进程内总线缓冲区已满
var ErrBusFull = errors.New("event bus buffer full")

// Envelope 总线上传输的一条推送事件
type Envelope struct {
	// Target 房间名：会话 mark 或用户个人频道
	Target string `json:"target"`
	Event  string `json:"event"`
	// Frame 已序列化好的下行帧，投递时原样写给连接
	Frame json.RawMessage `json:"frame"`
	// KickDeviceId 非空时，目标房间中该设备的连接在收到帧后被断开
	KickDeviceId string `json:"kickDeviceId,omitempty"`
}

// Handler 消费回调，由网关实现本机投递
type Handler func(env Envelope)

// Bus 事件总线
type Bus interface {
	// Publish 发布事件，可能阻塞于网络 IO，调用方应在 worker 中调用
	Publish(ctx context.Context, env Envelope) error
	// Run 持续消费直到 ctx 结束
	Run(ctx context.Context, h Handler) error
	Close() error
}

// ensureKafkaTopic 启动时建主题，测试中替换
var ensureKafkaTopic = (*KafkaBus).EnsureTopic

// New 按 fanoutConfig.mode 创建总线
// instanceID 用于 Kafka 消费组，保证每个实例都能收到全部事件
func New(cfg *config.Config, redisClient *redis.Client, instanceID string) (Bus, error) {
	switch cfg.FanoutConfig.Mode {
	case "", "channel":
		return NewChannelBus(cfg.FanoutConfig.QueueSize), nil
	case "redis":
		if redisClient == nil {
			return nil, fmt.Errorf("fanout mode redis requires redis client")
		}
		return NewRedisBus(redisClient, cfg.FanoutConfig.RedisChannel), nil
	case "kafka":
		bus := NewKafkaBus(cfg.KafkaConfig, instanceID)
		// 主题已存在或 broker 暂不可达时只告警，写入失败会在发布时暴露
		if err := ensureKafkaTopic(bus); err != nil {
			zap.L().Warn("create kafka topic failed",
				zap.String("topic", cfg.KafkaConfig.FanoutTopic), zap.Error(err))
		}
		return bus, nil
	}
	return nil, fmt.Errorf("unsupported fanout mode %q", cfg.FanoutConfig.Mode)
}
