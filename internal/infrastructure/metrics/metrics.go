// Package metrics 暴露实时推送与发送链路的 Prometheus 指标
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kama_realtime"

var (
	// Connections 当前实例上的 WebSocket 连接数
	Connections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "hub",
		Name:      "connections",
		Help:      "Number of live websocket connections on this instance.",
	})

	// Deliveries 写入连接发送队列的帧数
	Deliveries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "hub",
		Name:      "deliveries_total",
		Help:      "Frames enqueued to connection send buffers.",
	})

	// Dropped 丢弃的推送，reason: queue_full / slow_client / bus_error
	Dropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "hub",
		Name:      "dropped_total",
		Help:      "Push events dropped before reaching a connection.",
	}, []string{"reason"})

	// SendOutcomes 发送校验结果分布
	SendOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "message",
		Name:      "send_outcomes_total",
		Help:      "Message send attempts by validation outcome.",
	}, []string{"outcome"})

	// TokenEvents 登录、刷新、吊销等令牌事件
	TokenEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "token_events_total",
		Help:      "Token lifecycle events by kind and result.",
	}, []string{"event", "result"})
)

// Handler 返回 /metrics 处理器
func Handler() http.Handler {
	return promhttp.Handler()
}
