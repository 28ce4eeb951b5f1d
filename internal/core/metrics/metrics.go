// Package metrics 提供网络层指标
//
// 指标以实例为单位创建，注册到调用方提供的 Registerer 上；
// 不使用全局注册表，同一进程内可以共存多个 overlay 实例（测试需要）。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 网络层指标集合
type Metrics struct {
	// PeersConnected 当前已连接节点数
	PeersConnected prometheus.Gauge

	// MessagesSent 按主题统计的 gossip 发送条数
	MessagesSent *prometheus.CounterVec

	// MessagesReceived 按主题统计的 gossip 接收条数
	MessagesReceived *prometheus.CounterVec

	// DuplicatesDropped 按主题统计的去重丢弃条数
	DuplicatesDropped *prometheus.CounterVec

	// BacklogDropped 发送积压溢出丢弃条数
	BacklogDropped prometheus.Counter

	// DialFailures 拨号失败次数
	DialFailures prometheus.Counter

	// FilterEntries seen 过滤器当前条目数
	FilterEntries prometheus.Gauge

	// IncomingTraffic 按协议统计的入站字节数
	IncomingTraffic *prometheus.CounterVec

	// OutgoingTraffic 按协议统计的出站字节数
	OutgoingTraffic *prometheus.CounterVec
}

// New 创建指标集合
//
// reg 为 nil 时指标照常工作但不注册（测试中多实例共存）。
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		PeersConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dmesh_peers_connected",
			Help: "Number of currently connected peers",
		}),
		MessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dmesh_gossip_messages_sent_total",
			Help: "Gossip messages sent per topic",
		}, []string{"topic"}),
		MessagesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dmesh_gossip_messages_received_total",
			Help: "Gossip messages received per topic",
		}, []string{"topic"}),
		DuplicatesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dmesh_gossip_duplicates_dropped_total",
			Help: "Duplicate gossip messages suppressed per topic",
		}, []string{"topic"}),
		BacklogDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dmesh_gossip_backlog_dropped_total",
			Help: "Gossip messages dropped due to per-peer backlog overflow",
		}),
		DialFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dmesh_dial_failures_total",
			Help: "Failed dial attempts",
		}),
		FilterEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dmesh_seen_filter_entries",
			Help: "Entries currently resident in the seen-message filter",
		}),
		IncomingTraffic: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dmesh_incoming_traffic_bytes_total",
			Help: "Incoming bytes per protocol",
		}, []string{"protocol"}),
		OutgoingTraffic: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dmesh_outgoing_traffic_bytes_total",
			Help: "Outgoing bytes per protocol",
		}, []string{"protocol"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.PeersConnected,
			m.MessagesSent,
			m.MessagesReceived,
			m.DuplicatesDropped,
			m.BacklogDropped,
			m.DialFailures,
			m.FilterEntries,
			m.IncomingTraffic,
			m.OutgoingTraffic,
		)
	}
	return m
}

// NewNop 创建不注册的指标集合
func NewNop() *Metrics {
	return New(nil)
}
