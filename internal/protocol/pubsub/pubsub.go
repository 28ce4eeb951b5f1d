// Package pubsub 实现主题广播引擎
//
// 协议为带抑制的洪泛：每条消息转发给除来源之外的所有已连接
// 节点，指纹登记进 seen 过滤器，驻留期间不二次转发。不提供
// 送达与顺序保证，上层必须容忍丢失、乱序与去重后的单次可见。
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"

	"github.com/dmeshnet/go-dmesh/internal/core/metrics"
	"github.com/dmeshnet/go-dmesh/internal/protocol/wire"
	pkgif "github.com/dmeshnet/go-dmesh/pkg/interfaces"
	"github.com/dmeshnet/go-dmesh/pkg/lib/log"
	"github.com/dmeshnet/go-dmesh/pkg/types"
)

var logger = log.Logger("protocol/pubsub")

// PubSub gossip 引擎
type PubSub struct {
	network pkgif.Network
	config  *Config
	metrics *metrics.Metrics
	clock   clock.Clock
	filter  *seenFilter

	mu     sync.RWMutex
	topics map[string]map[*subscription]struct{}

	peersMu sync.Mutex
	peers   map[types.PeerID]*peerOutbound

	started atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// 确保实现接口
var (
	_ pkgif.PubSub   = (*PubSub)(nil)
	_ pkgif.Notifier = (*PubSub)(nil)
)

// Option gossip 引擎配置选项
type Option func(*PubSub)

// WithConfig 设置配置
func WithConfig(cfg *Config) Option {
	return func(ps *PubSub) {
		if cfg != nil {
			ps.config = cfg
		}
	}
}

// WithMetrics 注入指标集合
func WithMetrics(m *metrics.Metrics) Option {
	return func(ps *PubSub) {
		ps.metrics = m
	}
}

// WithClock 注入时钟（测试用）
func WithClock(c clock.Clock) Option {
	return func(ps *PubSub) {
		ps.clock = c
	}
}

// New 创建 gossip 引擎
func New(network pkgif.Network, opts ...Option) (*PubSub, error) {
	if network == nil {
		return nil, fmt.Errorf("network is required")
	}

	ps := &PubSub{
		network: network,
		config:  DefaultConfig(),
		metrics: metrics.NewNop(),
		clock:   clock.New(),
		topics:  make(map[string]map[*subscription]struct{}),
		peers:   make(map[types.PeerID]*peerOutbound),
	}
	for _, opt := range opts {
		opt(ps)
	}

	filter, err := newSeenFilter(ps.config.FilterCapacity, ps.metrics)
	if err != nil {
		return nil, err
	}
	ps.filter = filter
	return ps, nil
}

// Start 启动引擎
//
// 注册入站流处理函数并订阅连接事件；已连接节点立即获得
// 出站转发通道。重复启动是幂等的。
func (ps *PubSub) Start() error {
	if !ps.started.CompareAndSwap(false, true) {
		return nil
	}
	ps.ctx, ps.cancel = context.WithCancel(context.Background())

	ps.network.SetStreamHandler(types.ProtoGossip, ps.handleStream)
	ps.network.Notify(ps)

	for _, p := range ps.network.Peers() {
		ps.addPeer(p)
	}
	logger.Info("gossip 引擎已启动")
	return nil
}

// Stop 停止引擎
func (ps *PubSub) Stop() error {
	if !ps.started.CompareAndSwap(true, false) {
		return nil
	}
	ps.network.RemoveStreamHandler(types.ProtoGossip)
	ps.network.StopNotify(ps)
	ps.cancel()

	ps.peersMu.Lock()
	outbounds := make([]*peerOutbound, 0, len(ps.peers))
	for _, po := range ps.peers {
		outbounds = append(outbounds, po)
	}
	ps.peers = make(map[types.PeerID]*peerOutbound)
	ps.peersMu.Unlock()

	for _, po := range outbounds {
		po.stop()
	}
	ps.wg.Wait()
	return nil
}

// ============================================================================
//                              发布与订阅
// ============================================================================

// Publish 向主题发布消息
//
// 本地订阅者直接送达，消息转发给所有已连接节点。指纹已在
// 过滤器中时为空操作。
func (ps *PubSub) Publish(topic string, data []byte) error {
	if !ps.started.Load() {
		return ErrPubSubClosed
	}
	if topic == "" {
		return ErrEmptyTopic
	}
	if len(data) > ps.config.maxPayload(topic) {
		return fmt.Errorf("%w: %d bytes on topic %q", ErrOversizedPayload, len(data), topic)
	}

	msg, err := newMessage(topic, data)
	if err != nil {
		return err
	}
	if ps.filter.testAndSet(msg.fingerprint()) {
		return nil
	}

	ps.metrics.MessagesSent.WithLabelValues(topic).Inc()
	ps.deliverLocal(ps.network.LocalPeer(), msg)
	ps.relay(msg, ps.network.LocalPeer())
	return nil
}

// Subscribe 订阅主题
func (ps *PubSub) Subscribe(topic string) (pkgif.Subscription, error) {
	if !ps.started.Load() {
		return nil, ErrPubSubClosed
	}
	if topic == "" {
		return nil, ErrEmptyTopic
	}

	sub := &subscription{
		topic:     topic,
		ch:        make(chan *pkgif.Message, ps.config.SubscriberBuffer),
		engine:    ps,
		cancelled: make(chan struct{}),
	}

	ps.mu.Lock()
	set, ok := ps.topics[topic]
	if !ok {
		set = make(map[*subscription]struct{})
		ps.topics[topic] = set
	}
	set[sub] = struct{}{}
	ps.mu.Unlock()
	return sub, nil
}

// Topics 返回当前有本地订阅者的主题
func (ps *PubSub) Topics() []string {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	out := make([]string, 0, len(ps.topics))
	for topic := range ps.topics {
		out = append(out, topic)
	}
	return out
}

// removeSubscription 注销订阅
func (ps *PubSub) removeSubscription(sub *subscription) {
	ps.mu.Lock()
	if set, ok := ps.topics[sub.topic]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(ps.topics, sub.topic)
		}
	}
	ps.mu.Unlock()
}

// deliverLocal 送达本地订阅者
func (ps *PubSub) deliverLocal(from types.PeerID, msg *message) {
	ps.mu.RLock()
	subs := make([]*subscription, 0, len(ps.topics[msg.Topic]))
	for sub := range ps.topics[msg.Topic] {
		subs = append(subs, sub)
	}
	ps.mu.RUnlock()

	for _, sub := range subs {
		sub.deliver(&pkgif.Message{From: from, Topic: msg.Topic, Data: msg.Payload})
	}
}

// relay 转发给除来源外的所有对端
func (ps *PubSub) relay(msg *message, except types.PeerID) {
	frame := msg.marshal()

	ps.peersMu.Lock()
	targets := make([]*peerOutbound, 0, len(ps.peers))
	for p, po := range ps.peers {
		if p.Equal(except) {
			continue
		}
		targets = append(targets, po)
	}
	ps.peersMu.Unlock()

	for _, po := range targets {
		if !po.enqueue(frame) {
			ps.metrics.BacklogDropped.Inc()
			logger.Debug("出站积压溢出，消息丢弃",
				"peer", po.peer.ShortString(), "topic", msg.Topic)
		}
	}
}

// ============================================================================
//                              入站处理
// ============================================================================

// handleStream 对端 gossip 流的读取循环
//
// 超限负载视为协议违规，整条连接被断开。
func (ps *PubSub) handleStream(st pkgif.Stream) {
	defer st.Close()
	from := st.RemotePeer()

	codec := wire.NewCodec(st, uint64(maxFrameSize(ps.config)))
	for {
		frame, err := codec.ReadFrame()
		if err != nil {
			if errors.Is(err, wire.ErrFrameTooLarge) {
				logger.Warn("gossip 帧超限，断开连接", "peer", from.ShortString())
				_ = ps.network.Disconnect(from)
			}
			return
		}

		var msg message
		if err := msg.unmarshal(frame); err != nil {
			logger.Debug("gossip 消息解析失败", "peer", from.ShortString(), "error", err)
			_ = ps.network.Disconnect(from)
			return
		}
		if msg.Topic == "" || len(msg.Payload) > ps.config.maxPayload(msg.Topic) {
			logger.Warn("gossip 负载违规，断开连接",
				"peer", from.ShortString(), "topic", msg.Topic, "size", len(msg.Payload))
			_ = ps.network.Disconnect(from)
			return
		}

		ps.processInbound(from, &msg)
	}
}

// processInbound 处理一条入站消息
//
// 重复指纹直接丢弃；未订阅的主题仍然转发（纯中继节点）。
func (ps *PubSub) processInbound(from types.PeerID, msg *message) {
	ps.metrics.MessagesReceived.WithLabelValues(msg.Topic).Inc()

	if ps.filter.testAndSet(msg.fingerprint()) {
		ps.metrics.DuplicatesDropped.WithLabelValues(msg.Topic).Inc()
		return
	}

	ps.deliverLocal(from, msg)
	ps.relay(msg, from)
}

// ============================================================================
//                              连接事件
// ============================================================================

// Connected 新会话建立，创建出站转发通道
func (ps *PubSub) Connected(p types.PeerID, _ types.Direction) {
	if ps.started.Load() {
		ps.addPeer(p)
	}
}

// Disconnected 会话关闭，回收出站通道
func (ps *PubSub) Disconnected(p types.PeerID, _ string) {
	ps.peersMu.Lock()
	po, ok := ps.peers[p]
	if ok {
		delete(ps.peers, p)
	}
	ps.peersMu.Unlock()

	if ok {
		po.stop()
	}
}

// addPeer 为对端建立出站通道（幂等）
func (ps *PubSub) addPeer(p types.PeerID) {
	ps.peersMu.Lock()
	defer ps.peersMu.Unlock()

	if _, ok := ps.peers[p]; ok {
		return
	}
	po := newPeerOutbound(ps.ctx, p, ps.config)
	ps.peers[p] = po

	ps.wg.Add(1)
	go ps.runOutbound(po)
}
