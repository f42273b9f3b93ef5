package mq

import (
	"context"
	"sync"
)

// ChannelBus 单实例进程内总线
type ChannelBus struct {
	ch        chan Envelope
	closeOnce sync.Once
	closed    chan struct{}
}

// NewChannelBus 创建进程内总线
func NewChannelBus(size int) *ChannelBus {
	if size <= 0 {
		size = 1024
	}
	return &ChannelBus{
		ch:     make(chan Envelope, size),
		closed: make(chan struct{}),
	}
}

// Publish 非阻塞写入，缓冲区满时返回 ErrBusFull
func (b *ChannelBus) Publish(ctx context.Context, env Envelope) error {
	select {
	case <-b.closed:
		return context.Canceled
	default:
	}
	select {
	case b.ch <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrBusFull
	}
}

// Run 单协程顺序消费，保证同一发布者的事件有序
func (b *ChannelBus) Run(ctx context.Context, h Handler) error {
	for {
		select {
		case env := <-b.ch:
			h(env)
		case <-ctx.Done():
			return ctx.Err()
		case <-b.closed:
			return nil
		}
	}
}

func (b *ChannelBus) Close() error {
	b.closeOnce.Do(func() { close(b.closed) })
	return nil
}
