// Package dmesh 是分布式账本节点的 P2P 网络基底
//
// 对上层（共识、链同步、钱包）提供两类原语：对指定节点的
// 点对点消息，和按主题的广播（gossip）消息，语义为去重后的
// 至多一次可见。Node 组合身份、安全信道、多路复用、连接池、
// 节点发现与 gossip 引擎；所有状态都归属于单个 Node 实例，
// 同一进程可以并存多个节点。
//
// 典型用法：
//
//	node, err := dmesh.New(dmesh.WithListenAddrs("/ip4/0.0.0.0/tcp/7100"))
//	if err != nil { ... }
//	if err := node.Start(ctx); err != nil { ... }
//	defer node.Close()
//
//	sub, _ := node.Subscribe("blocks")
//	_ = node.Publish("blocks", payload)
package dmesh

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/dmeshnet/go-dmesh/config"
	"github.com/dmeshnet/go-dmesh/internal/core/identity"
	"github.com/dmeshnet/go-dmesh/internal/core/metrics"
	"github.com/dmeshnet/go-dmesh/internal/core/muxer/yamux"
	"github.com/dmeshnet/go-dmesh/internal/core/peerstore"
	"github.com/dmeshnet/go-dmesh/internal/core/security/noise"
	"github.com/dmeshnet/go-dmesh/internal/core/swarm"
	"github.com/dmeshnet/go-dmesh/internal/core/transport/tcp"
	"github.com/dmeshnet/go-dmesh/internal/core/upgrader"
	"github.com/dmeshnet/go-dmesh/internal/protocol/discovery"
	"github.com/dmeshnet/go-dmesh/internal/protocol/pubsub"
	"github.com/dmeshnet/go-dmesh/internal/protocol/wire"
	pkgif "github.com/dmeshnet/go-dmesh/pkg/interfaces"
	"github.com/dmeshnet/go-dmesh/pkg/lib/log"
	"github.com/dmeshnet/go-dmesh/pkg/types"

	"github.com/prometheus/client_golang/prometheus"
)

var logger = log.Logger("dmesh")

// eventBufferSize 对上层的事件通道缓冲
const eventBufferSize = 64

// MessageHandler 处理一条定向消息
type MessageHandler func(from types.PeerID, data []byte)

// Node 网络基底节点
type Node struct {
	cfg        *config.Config
	registerer prometheus.Registerer

	identity  *identity.Identity
	metrics   *metrics.Metrics
	peerstore *peerstore.Peerstore
	swarm     *swarm.Swarm
	discovery *discovery.Discovery
	pubsub    *pubsub.PubSub

	events chan types.PeerEvent

	started atomic.Bool
	closed  atomic.Bool
}

// New 创建节点
//
// 此时只组装组件，不打开任何网络资源；监听与协议循环由
// Start 启动。
func New(opts ...Option) (*Node, error) {
	n := &Node{
		cfg:    config.Default(),
		events: make(chan types.PeerEvent, eventBufferSize),
	}
	for _, opt := range opts {
		opt(n)
	}
	if err := n.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if n.identity == nil {
		var err error
		if n.cfg.Identity.KeyFile != "" {
			n.identity, err = identity.LoadOrGenerate(n.cfg.Identity.KeyFile)
		} else {
			n.identity, err = identity.New()
		}
		if err != nil {
			return nil, fmt.Errorf("setup identity: %w", err)
		}
	}

	n.metrics = metrics.New(n.registerer)
	n.peerstore = peerstore.New(peerstore.WithMaxPeers(n.cfg.Swarm.MaxPeers * 8))

	sec, err := noise.New(n.identity)
	if err != nil {
		return nil, fmt.Errorf("setup secure transport: %w", err)
	}
	up, err := upgrader.New(sec, yamux.NewFactory(nil))
	if err != nil {
		return nil, fmt.Errorf("setup upgrader: %w", err)
	}

	transport := tcp.New(tcp.WithDialTimeout(n.cfg.Transport.DialTimeout.Std()))
	n.swarm, err = swarm.New(n.identity.PeerID(), transport, up, n.peerstore,
		swarm.WithConfig(n.swarmConfig()),
		swarm.WithMetrics(n.metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("setup swarm: %w", err)
	}

	n.discovery, err = discovery.New(n.swarm, n.peerstore,
		discovery.WithConfig(n.discoveryConfig()))
	if err != nil {
		return nil, fmt.Errorf("setup discovery: %w", err)
	}

	n.pubsub, err = pubsub.New(n.swarm,
		pubsub.WithConfig(n.pubsubConfig()),
		pubsub.WithMetrics(n.metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("setup pubsub: %w", err)
	}

	n.swarm.Notify((*nodeNotifier)(n))
	return n, nil
}

// Start 启动节点
//
// 打开监听地址，启动发现与 gossip 循环，并尽力连接配置的
// 种子节点（失败只记日志）。
func (n *Node) Start(ctx context.Context) error {
	if n.closed.Load() {
		return ErrNodeClosed
	}
	if !n.started.CompareAndSwap(false, true) {
		return nil
	}

	for _, s := range n.cfg.Transport.ListenAddrs {
		addr, err := ma.NewMultiaddr(s)
		if err != nil {
			return fmt.Errorf("invalid listen addr %q: %w", s, err)
		}
		if err := n.swarm.Listen(addr); err != nil {
			return err
		}
	}

	if err := n.discovery.Start(); err != nil {
		return err
	}
	if err := n.pubsub.Start(); err != nil {
		return err
	}

	n.connectBootstrap(ctx)

	logger.Info("节点已启动",
		"peer", n.ID().ShortString(),
		"addrs", len(n.Addrs()),
	)
	return nil
}

// connectBootstrap 尽力连接种子节点
func (n *Node) connectBootstrap(ctx context.Context) {
	var wg sync.WaitGroup
	for _, s := range n.cfg.Discovery.Bootstrap {
		info, err := types.ParseAddrInfo(s)
		if err != nil {
			logger.Warn("种子节点地址无效", "addr", s, "error", err)
			continue
		}
		wg.Add(1)
		go func(info types.AddrInfo) {
			defer wg.Done()
			if err := n.swarm.Connect(ctx, info); err != nil {
				logger.Warn("种子节点连接失败", "peer", info.ID.ShortString(), "error", err)
			}
		}(info)
	}
	wg.Wait()
}

// Close 关闭节点
//
// 按 发现 → gossip → 连接池 的顺序拆除；超过宽限期返回
// ErrShutdownTimeout，此时后台清理仍会继续。
func (n *Node) Close() error {
	if !n.closed.CompareAndSwap(false, true) {
		return nil
	}

	done := make(chan error, 1)
	go func() {
		_ = n.discovery.Stop()
		_ = n.pubsub.Stop()
		done <- n.swarm.Close()
	}()

	select {
	case err := <-done:
		logger.Info("节点已关闭", "peer", n.ID().ShortString())
		return err
	case <-time.After(n.cfg.ShutdownGrace.Std()):
		return ErrShutdownTimeout
	}
}

// ============================================================================
//                              连接管理
// ============================================================================

// Connect 连接 "/ip4/…/tcp/…/p2p/<id>" 形式的完整地址
func (n *Node) Connect(ctx context.Context, addr string) error {
	info, err := types.ParseAddrInfo(addr)
	if err != nil {
		return err
	}
	return n.ConnectPeer(ctx, info)
}

// ConnectPeer 连接已知地址的节点
func (n *Node) ConnectPeer(ctx context.Context, info types.AddrInfo) error {
	if n.closed.Load() {
		return ErrNodeClosed
	}
	return n.swarm.Connect(ctx, info)
}

// Disconnect 断开节点并停止对它的重试
func (n *Node) Disconnect(p types.PeerID) error {
	return n.swarm.Disconnect(p)
}

// ID 返回本地节点 ID
func (n *Node) ID() types.PeerID {
	return n.identity.PeerID()
}

// Addrs 返回监听地址
func (n *Node) Addrs() []ma.Multiaddr {
	return n.swarm.ListenAddrs()
}

// AddrInfo 返回可分享给其他节点的完整地址信息
func (n *Node) AddrInfo() types.AddrInfo {
	return types.AddrInfo{ID: n.ID(), Addrs: n.Addrs()}
}

// ConnectedPeers 返回已连接节点
func (n *Node) ConnectedPeers() []types.PeerID {
	return n.swarm.Peers()
}

// KnownPeers 返回已知节点记录
func (n *Node) KnownPeers() []types.PeerRecord {
	return n.discovery.KnownPeers()
}

// Connectedness 返回节点连接状态
func (n *Node) Connectedness(p types.PeerID) types.Connectedness {
	return n.swarm.Connectedness(p)
}

// PeerEvents 返回连接事件通道
//
// 缓冲有限，消费不及时会丢最旧的事件。
func (n *Node) PeerEvents() <-chan types.PeerEvent {
	return n.events
}

// ============================================================================
//                              消息
// ============================================================================

// SendDirect 向已连接节点发送一条定向消息
//
// 在新开的协议流上做一次帧写入后关闭流，不等待应答。目标
// 未连接时立即返回 ErrNotConnected，不做隐式拨号。
func (n *Node) SendDirect(ctx context.Context, p types.PeerID, proto types.ProtocolID, data []byte) error {
	if n.closed.Load() {
		return ErrNodeClosed
	}
	if n.swarm.Connectedness(p) != types.Connected {
		if _, known := n.peerstore.Record(p); !known {
			return fmt.Errorf("%w: %s", ErrNoSuchPeer, p.ShortString())
		}
		return fmt.Errorf("%w: %s", ErrNotConnected, p.ShortString())
	}

	st, err := n.swarm.NewStream(ctx, p, proto)
	if err != nil {
		return err
	}
	defer st.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = st.SetWriteDeadline(deadline)
	}
	return wire.WriteFrame(st, data, wire.DefaultMaxFrameSize)
}

// SetStreamHandler 注册协议的原始流处理函数
func (n *Node) SetStreamHandler(proto types.ProtocolID, h pkgif.StreamHandler) {
	n.swarm.SetStreamHandler(proto, h)
}

// SetMessageHandler 注册协议的单帧消息处理函数
//
// 对应 SendDirect 的接收侧：读取一帧后关闭流并调用 h。
func (n *Node) SetMessageHandler(proto types.ProtocolID, h MessageHandler) {
	n.swarm.SetStreamHandler(proto, func(st pkgif.Stream) {
		defer st.Close()
		data, err := wire.ReadFrame(st, wire.DefaultMaxFrameSize)
		if err != nil {
			logger.Debug("读取定向消息失败",
				"peer", st.RemotePeer().ShortString(), "protocol", string(proto), "error", err)
			return
		}
		h(st.RemotePeer(), data)
	})
}

// RemoveStreamHandler 移除协议处理函数
func (n *Node) RemoveStreamHandler(proto types.ProtocolID) {
	n.swarm.RemoveStreamHandler(proto)
}

// Publish 向主题发布消息
func (n *Node) Publish(topic string, data []byte) error {
	if !n.started.Load() {
		return ErrNodeNotStarted
	}
	return n.pubsub.Publish(topic, data)
}

// Subscribe 订阅主题
func (n *Node) Subscribe(topic string) (pkgif.Subscription, error) {
	if !n.started.Load() {
		return nil, ErrNodeNotStarted
	}
	return n.pubsub.Subscribe(topic)
}

// ============================================================================
//                              内部
// ============================================================================

// nodeNotifier 把连接池事件转成对上层的 PeerEvent
//
// 单独的类型避免 Node 对外暴露 Notifier 方法。
type nodeNotifier Node

func (nn *nodeNotifier) Connected(p types.PeerID, dir types.Direction) {
	nn.pushEvent(types.PeerEvent{
		Kind:      types.PeerEventConnected,
		Peer:      p,
		Direction: dir,
	})
}

func (nn *nodeNotifier) Disconnected(p types.PeerID, reason string) {
	nn.pushEvent(types.PeerEvent{
		Kind:   types.PeerEventDisconnected,
		Peer:   p,
		Reason: reason,
	})
}

// pushEvent 入队事件，队满丢最旧
func (nn *nodeNotifier) pushEvent(ev types.PeerEvent) {
	for {
		select {
		case nn.events <- ev:
			return
		default:
		}
		select {
		case <-nn.events:
		default:
		}
	}
}

func (n *Node) swarmConfig() *swarm.Config {
	return &swarm.Config{
		MaxPeers:          n.cfg.Swarm.MaxPeers,
		DialTimeout:       n.cfg.Transport.DialTimeout.Std(),
		BackoffBase:       n.cfg.Swarm.BackoffBase.Std(),
		BackoffMax:        n.cfg.Swarm.BackoffMax.Std(),
		MaxRetryAttempts:  n.cfg.Swarm.MaxRetryAttempts,
		IdleTimeout:       n.cfg.Swarm.IdleTimeout.Std(),
		IdleCheckInterval: n.cfg.Swarm.IdleCheckInterval.Std(),
	}
}

func (n *Node) discoveryConfig() *discovery.Config {
	return &discovery.Config{
		Interval:            n.cfg.Discovery.Interval.Std(),
		Jitter:              n.cfg.Discovery.Jitter,
		RequestTimeout:      n.cfg.Discovery.RequestTimeout.Std(),
		MaxPeersPerResponse: n.cfg.Discovery.MaxPeersPerResponse,
		TargetPeers:         n.cfg.Discovery.TargetPeers,
		AllowPrivateAddrs:   n.cfg.Discovery.AllowPrivateAddrs,
	}
}

func (n *Node) pubsubConfig() *pubsub.Config {
	return &pubsub.Config{
		FilterCapacity:    n.cfg.PubSub.FilterCapacity,
		DefaultMaxPayload: n.cfg.PubSub.DefaultMaxPayload,
		TopicMaxPayload:   n.cfg.PubSub.TopicMaxPayload,
		RateLimit:         n.cfg.PubSub.RateLimit,
		RateBurst:         n.cfg.PubSub.RateBurst,
		BacklogSize:       n.cfg.PubSub.BacklogSize,
		SubscriberBuffer:  n.cfg.PubSub.SubscriberBuffer,
		WriteTimeout:      n.cfg.PubSub.WriteTimeout.Std(),
	}
}
