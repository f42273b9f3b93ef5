package mq

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"kama_realtime/internal/config"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaBus 基于 Kafka 的跨实例总线
// 以 Target 为 key 写入，同一房间的事件落在同一分区，保持顺序
// 每个实例使用独立消费组，从而每个实例都能收到全部事件
type KafkaBus struct {
	cfg    config.KafkaConfig
	writer *kafka.Writer
	reader *kafka.Reader
}

// NewKafkaBus 创建 Kafka 总线
func NewKafkaBus(cfg config.KafkaConfig, instanceID string) *KafkaBus {
	brokers := strings.Split(cfg.HostPort, ",")
	return &KafkaBus{
		cfg: cfg,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  cfg.FanoutTopic,
			Balancer:               &kafka.Hash{},
			WriteTimeout:           cfg.Timeout * time.Second,
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: false,
		},
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        brokers,
			Topic:          cfg.FanoutTopic,
			GroupID:        "fanout-" + instanceID,
			CommitInterval: cfg.Timeout * time.Second,
			StartOffset:    kafka.LastOffset,
		}),
	}
}

// EnsureTopic 主题不存在时创建
func (b *KafkaBus) EnsureTopic() error {
	conn, err := kafka.Dial("tcp", strings.Split(b.cfg.HostPort, ",")[0])
	if err != nil {
		return err
	}
	defer conn.Close()
	partitions := b.cfg.Partition
	if partitions <= 0 {
		partitions = 1
	}
	return conn.CreateTopics(kafka.TopicConfig{
		Topic:             b.cfg.FanoutTopic,
		NumPartitions:     partitions,
		ReplicationFactor: 1,
	})
}

func (b *KafkaBus) Publish(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return b.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(env.Target),
		Value: data,
	})
}

func (b *KafkaBus) Run(ctx context.Context, h Handler) error {
	for {
		m, err := b.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return ctx.Err()
			}
			zap.L().Error("kafka fanout read failed", zap.Error(err))
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		var env Envelope
		if err := json.Unmarshal(m.Value, &env); err != nil {
			zap.L().Error("failed to unmarshal fanout envelope",
				zap.Int("partition", m.Partition), zap.Int64("offset", m.Offset), zap.Error(err))
			continue
		}
		h(env)
	}
}

func (b *KafkaBus) Close() error {
	return errors.Join(b.writer.Close(), b.reader.Close())
}
