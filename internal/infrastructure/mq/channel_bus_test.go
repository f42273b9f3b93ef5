package mq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"kama_realtime/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChannelBusDeliversInOrder(t *testing.T) {
	bus := NewChannelBus(16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan string, 16)
	go func() { _ = bus.Run(ctx, func(env Envelope) { got <- env.Event }) }()

	for _, ev := range []string{"a", "b", "c"} {
		require.NoError(t, bus.Publish(ctx, Envelope{Target: "G1", Event: ev, Frame: json.RawMessage(`{}`)}))
	}
	for _, want := range []string{"a", "b", "c"} {
		select {
		case ev := <-got:
			assert.Equal(t, want, ev)
		case <-time.After(time.Second):
			t.Fatalf("event %s not delivered", want)
		}
	}
}

func TestChannelBusFullDoesNotBlock(t *testing.T) {
	bus := NewChannelBus(1)
	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, Envelope{Target: "x"}))
	assert.ErrorIs(t, bus.Publish(ctx, Envelope{Target: "x"}), ErrBusFull)

	require.NoError(t, bus.Close())
	assert.Error(t, bus.Publish(ctx, Envelope{Target: "x"}))
}

func TestNewSelectsMode(t *testing.T) {
	cfg := config.Default()
	bus, err := New(cfg, nil, "i1")
	require.NoError(t, err)
	assert.IsType(t, &ChannelBus{}, bus)

	cfg.FanoutConfig.Mode = "redis"
	_, err = New(cfg, nil, "i1")
	assert.Error(t, err)

	cfg.FanoutConfig.Mode = "carrier-pigeon"
	_, err = New(cfg, nil, "i1")
	assert.Error(t, err)
}

func TestNewKafkaBusEnsuresTopic(t *testing.T) {
	orig := ensureKafkaTopic
	t.Cleanup(func() { ensureKafkaTopic = orig })

	var calls int
	ensureKafkaTopic = func(b *KafkaBus) error {
		calls++
		assert.Equal(t, "chat:fanout", b.cfg.FanoutTopic)
		return errors.New("broker unreachable")
	}

	conf := config.Default()
	conf.FanoutConfig.Mode = "kafka"
	conf.KafkaConfig.HostPort = "127.0.0.1:9092"
	conf.KafkaConfig.FanoutTopic = "chat:fanout"

	// 建主题失败不影响启动
	bus, err := New(conf, nil, "node-1")
	require.NoError(t, err)
	require.IsType(t, &KafkaBus{}, bus)
	assert.Equal(t, 1, calls)
	_ = bus.Close()
}
