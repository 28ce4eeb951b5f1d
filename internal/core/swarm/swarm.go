// Package swarm 实现连接池
//
// 连接池持有全部活跃会话，驱动拨号、接受、退避重试与按节点
// 的流分配。每个节点的状态机：
//
//	Unknown → Dialing → Handshaking → Connected → Disconnected
//
// 拨号或握手失败进入指数退避重试，预算耗尽后放弃；
// 已连接会话在协议违规、空闲超时、主动断开或容量压力下关闭。
// 不变式：每个 PeerID 至多一个活跃会话。
package swarm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/multiformats/go-multistream"

	"github.com/dmeshnet/go-dmesh/internal/core/metrics"
	pkgif "github.com/dmeshnet/go-dmesh/pkg/interfaces"
	"github.com/dmeshnet/go-dmesh/pkg/lib/log"
	"github.com/dmeshnet/go-dmesh/pkg/types"
)

var logger = log.Logger("core/swarm")

// negotiateTimeout 流协议协商超时
const negotiateTimeout = 10 * time.Second

// Swarm 连接池
type Swarm struct {
	local     types.PeerID
	transport pkgif.Transport
	upgrader  pkgif.Upgrader
	peerstore pkgif.Peerstore
	metrics   *metrics.Metrics
	clock     clock.Clock
	config    *Config

	mu        sync.RWMutex
	sessions  map[types.PeerID]*session
	states    map[types.PeerID]types.Connectedness
	listeners []pkgif.Listener

	// 拨号单飞与退避重试
	dialMu  sync.Mutex
	dialing map[types.PeerID]*dialFlight
	retries map[types.PeerID]*clock.Timer
	backoff *backoff

	handlerMu sync.RWMutex
	handlers  map[types.ProtocolID]pkgif.StreamHandler

	notifyMu  sync.RWMutex
	notifiers map[pkgif.Notifier]struct{}

	closed atomic.Bool
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// dialFlight 单飞中的拨号
type dialFlight struct {
	done chan struct{}
	err  error
}

// 确保实现接口
var _ pkgif.Network = (*Swarm)(nil)

// Option Swarm 配置选项
type Option func(*Swarm)

// WithConfig 设置配置
func WithConfig(cfg *Config) Option {
	return func(s *Swarm) {
		if cfg != nil {
			s.config = cfg
		}
	}
}

// WithMetrics 注入指标集合
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Swarm) {
		s.metrics = m
	}
}

// WithClock 注入时钟（测试用）
func WithClock(c clock.Clock) Option {
	return func(s *Swarm) {
		s.clock = c
	}
}

// New 创建连接池
func New(local types.PeerID, transport pkgif.Transport, up pkgif.Upgrader, ps pkgif.Peerstore, opts ...Option) (*Swarm, error) {
	if local.IsEmpty() {
		return nil, fmt.Errorf("local peer cannot be empty")
	}
	if transport == nil || up == nil || ps == nil {
		return nil, fmt.Errorf("transport, upgrader and peerstore are required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Swarm{
		local:     local,
		transport: transport,
		upgrader:  up,
		peerstore: ps,
		metrics:   metrics.NewNop(),
		clock:     clock.New(),
		config:    DefaultConfig(),
		sessions:  make(map[types.PeerID]*session),
		states:    make(map[types.PeerID]types.Connectedness),
		dialing:   make(map[types.PeerID]*dialFlight),
		retries:   make(map[types.PeerID]*clock.Timer),
		handlers:  make(map[types.ProtocolID]pkgif.StreamHandler),
		notifiers: make(map[pkgif.Notifier]struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.backoff = newBackoff(s.config.BackoffBase, s.config.BackoffMax)

	if s.config.IdleTimeout > 0 {
		s.wg.Add(1)
		go s.idleLoop()
	}
	return s, nil
}

// LocalPeer 返回本地节点 ID
func (s *Swarm) LocalPeer() types.PeerID {
	return s.local
}

// ============================================================================
//                              监听与接受
// ============================================================================

// Listen 在给定地址上开始接受入站连接
func (s *Swarm) Listen(addrs ...ma.Multiaddr) error {
	if s.closed.Load() {
		return ErrSwarmClosed
	}

	for _, addr := range addrs {
		ln, err := s.transport.Listen(addr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", addr, err)
		}

		s.mu.Lock()
		s.listeners = append(s.listeners, ln)
		s.mu.Unlock()

		s.wg.Add(1)
		go s.acceptLoop(ln)
		logger.Info("开始监听", "addr", ln.Multiaddr().String())
	}
	return nil
}

// ListenAddrs 返回实际监听地址
func (s *Swarm) ListenAddrs() []ma.Multiaddr {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ma.Multiaddr, 0, len(s.listeners))
	for _, ln := range s.listeners {
		out = append(out, ln.Multiaddr())
	}
	return out
}

// acceptLoop 监听器接受循环
func (s *Swarm) acceptLoop(ln pkgif.Listener) {
	defer s.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			// 监听器关闭，循环结束
			return
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()

			ctx, cancel := context.WithTimeout(s.ctx, s.config.DialTimeout)
			defer cancel()

			uconn, err := s.upgrader.Upgrade(ctx, conn, types.DirInbound, types.EmptyPeerID)
			if err != nil {
				logger.Debug("入站连接升级失败", "error", err)
				return
			}
			s.addSession(uconn)
		}()
	}
}

// ============================================================================
//                              拨号
// ============================================================================

// Connect 拨号并升级到目标节点
//
// 已连接时合并地址后立即返回。本轮所有地址失败时返回
// *DialError，并在后台按退避调度重试；重试预算耗尽后放弃。
func (s *Swarm) Connect(ctx context.Context, info types.AddrInfo) error {
	if s.closed.Load() {
		return ErrSwarmClosed
	}
	if info.ID.Equal(s.local) {
		return ErrDialToSelf
	}

	if len(info.Addrs) > 0 {
		s.peerstore.AddAddrs(info.ID, info.Addrs)
	}
	if s.Connectedness(info.ID) == types.Connected {
		return nil
	}

	// 单飞：同一节点的并发 Connect 等待同一次拨号
	s.dialMu.Lock()
	if flight, ok := s.dialing[info.ID]; ok {
		s.dialMu.Unlock()
		select {
		case <-flight.done:
			return flight.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	flight := &dialFlight{done: make(chan struct{})}
	s.dialing[info.ID] = flight
	s.dialMu.Unlock()

	err := s.dialOnce(ctx, info.ID)

	s.dialMu.Lock()
	delete(s.dialing, info.ID)
	s.dialMu.Unlock()

	flight.err = err
	close(flight.done)

	// 没有可用地址时重试无意义，等发现协议学到新地址再说
	if err != nil && !errors.Is(err, ErrNoAddresses) && !errors.Is(err, ErrNoTransport) {
		s.scheduleRetry(info.ID)
	}
	return err
}

// dialOnce 对节点的全部已知地址做一轮拨号
func (s *Swarm) dialOnce(ctx context.Context, p types.PeerID) error {
	addrs := s.peerstore.Addrs(p)
	if len(addrs) == 0 {
		return ErrNoAddresses
	}

	dialErr := &DialError{Peer: p}
	dialable := 0
	for _, addr := range addrs {
		if !s.transport.CanDial(addr) {
			continue
		}
		dialable++

		s.setState(p, types.Dialing)
		dctx, cancel := context.WithTimeout(ctx, s.config.DialTimeout)
		conn, err := s.transport.Dial(dctx, addr)
		cancel()
		if err != nil {
			dialErr.Errors = append(dialErr.Errors, err)
			continue
		}

		s.setState(p, types.Handshaking)
		uconn, err := s.upgrader.Upgrade(ctx, conn, types.DirOutbound, p)
		if err != nil {
			s.peerstore.BumpReputation(p, -2)
			dialErr.Errors = append(dialErr.Errors, err)
			continue
		}

		s.addSession(uconn)
		return nil
	}

	if dialable == 0 {
		s.setState(p, types.NotConnected)
		return ErrNoTransport
	}

	s.setState(p, types.NotConnected)
	s.metrics.DialFailures.Inc()
	s.peerstore.BumpReputation(p, -1)
	return dialErr
}

// scheduleRetry 调度一次退避重试
//
// 重试预算耗尽后节点回到 Disconnected 并退出重试集合。
func (s *Swarm) scheduleRetry(p types.PeerID) {
	if s.closed.Load() {
		return
	}

	delay := s.backoff.next(p)
	if s.backoff.count(p) > s.config.MaxRetryAttempts {
		logger.Info("重试预算耗尽，放弃节点", "peer", p.ShortString())
		s.backoff.reset(p)
		return
	}

	s.dialMu.Lock()
	if _, ok := s.retries[p]; ok {
		s.dialMu.Unlock()
		return
	}
	timer := s.clock.AfterFunc(delay, func() {
		s.dialMu.Lock()
		delete(s.retries, p)
		s.dialMu.Unlock()

		if s.closed.Load() || s.Connectedness(p) == types.Connected {
			return
		}
		logger.Debug("退避重试", "peer", p.ShortString())
		_ = s.Connect(s.ctx, types.AddrInfo{ID: p})
	})
	s.retries[p] = timer
	s.dialMu.Unlock()
}

// cancelRetry 取消节点的退避重试
func (s *Swarm) cancelRetry(p types.PeerID) {
	s.dialMu.Lock()
	if timer, ok := s.retries[p]; ok {
		timer.Stop()
		delete(s.retries, p)
	}
	s.dialMu.Unlock()
	s.backoff.reset(p)
}

// ============================================================================
//                              会话管理
// ============================================================================

// addSession 注册新会话，执行去重与容量淘汰
func (s *Swarm) addSession(uconn pkgif.UpgradedConn) {
	p := uconn.RemotePeer()
	sess := newSession(uconn, s.clock.Now())

	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		sess.close()
		return
	}

	if existing, ok := s.sessions[p]; ok {
		// 双向同时拨号：保留由 PeerID 较小一方发起的连接。
		// 同方向重复连接保留先建立的。
		keepNew := false
		if existing.dir != sess.dir {
			lowerInitiatesOutbound := s.local.Less(p)
			newIsLocalInitiated := sess.dir == types.DirOutbound
			keepNew = lowerInitiatesOutbound == newIsLocalInitiated
		}
		if !keepNew {
			s.mu.Unlock()
			logger.Debug("丢弃重复连接", "peer", p.ShortString(), "direction", sess.dir.String())
			sess.close()
			return
		}
		delete(s.sessions, p)
		existing.close()
	}

	// 容量压力：淘汰信誉最低、最久未活动的既有会话。
	// 淘汰与新会话注册在同一临界区内完成，避免
	// 并发 addSession 在间隙中插入同一对等点的会话。
	var victim *session
	if len(s.sessions) >= s.config.MaxPeers {
		if victim = s.pickVictimLocked(); victim != nil {
			delete(s.sessions, victim.peer)
			s.states[victim.peer] = types.NotConnected
		}
	}

	s.sessions[p] = sess
	s.states[p] = types.Connected
	s.metrics.PeersConnected.Set(float64(len(s.sessions)))
	s.mu.Unlock()

	if victim != nil {
		victim.close()
		s.notifyDisconnected(victim.peer, "evicted under pool pressure")
	}

	s.cancelRetry(p)
	s.peerstore.UpdateLastSeen(p)
	s.peerstore.BumpReputation(p, 1)

	s.wg.Add(1)
	go s.acceptStreams(sess)

	logger.Info("会话建立", "peer", p.ShortString(), "direction", sess.dir.String())
	s.notifyConnected(p, sess.dir)
}

// pickVictimLocked 选择容量淘汰对象
//
// 信誉最低者优先；信誉相同时最久未活动者出局。调用方持锁。
func (s *Swarm) pickVictimLocked() *session {
	var victim *session
	victimRep := 0
	for _, sess := range s.sessions {
		rep := s.peerstore.Reputation(sess.peer)
		switch {
		case victim == nil,
			rep < victimRep,
			rep == victimRep && sess.idleSince().Before(victim.idleSince()):
			victim = sess
			victimRep = rep
		}
	}
	return victim
}

// removeSession 注销会话
func (s *Swarm) removeSession(sess *session, reason string) {
	s.mu.Lock()
	current, ok := s.sessions[sess.peer]
	if !ok || current != sess {
		s.mu.Unlock()
		sess.close()
		return
	}
	delete(s.sessions, sess.peer)
	s.states[sess.peer] = types.NotConnected
	s.metrics.PeersConnected.Set(float64(len(s.sessions)))
	s.mu.Unlock()

	sess.close()
	s.peerstore.UpdateLastSeen(sess.peer)

	logger.Info("会话关闭", "peer", sess.peer.ShortString(), "reason", reason)
	s.notifyDisconnected(sess.peer, reason)
}

// Disconnect 主动断开并停止重试
func (s *Swarm) Disconnect(p types.PeerID) error {
	s.cancelRetry(p)

	s.mu.RLock()
	sess, ok := s.sessions[p]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	s.removeSession(sess, "disconnect requested")
	return nil
}

// Peers 返回所有已连接节点
func (s *Swarm) Peers() []types.PeerID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]types.PeerID, 0, len(s.sessions))
	for p := range s.sessions {
		out = append(out, p)
	}
	return out
}

// Connectedness 返回节点当前连接状态
func (s *Swarm) Connectedness(p types.PeerID) types.Connectedness {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.sessions[p]; ok {
		return types.Connected
	}
	if state, ok := s.states[p]; ok {
		return state
	}
	return types.NotConnected
}

// setState 更新节点状态（Connected 由 sessions 表决定）
func (s *Swarm) setState(p types.PeerID, state types.Connectedness) {
	s.mu.Lock()
	s.states[p] = state
	s.mu.Unlock()
}

// idleLoop 周期扫描并关闭空闲会话
func (s *Swarm) idleLoop() {
	defer s.wg.Done()

	ticker := s.clock.Ticker(s.config.IdleCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			cutoff := s.clock.Now().Add(-s.config.IdleTimeout)

			s.mu.RLock()
			var idle []*session
			for _, sess := range s.sessions {
				if sess.idleSince().Before(cutoff) {
					idle = append(idle, sess)
				}
			}
			s.mu.RUnlock()

			for _, sess := range idle {
				s.removeSession(sess, "idle timeout")
			}
		}
	}
}

// ============================================================================
//                              流
// ============================================================================

// NewStream 在已连接节点上打开协议流
func (s *Swarm) NewStream(ctx context.Context, p types.PeerID, proto types.ProtocolID) (pkgif.Stream, error) {
	if s.closed.Load() {
		return nil, ErrSwarmClosed
	}

	s.mu.RLock()
	sess, ok := s.sessions[p]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoConnection, p.ShortString())
	}

	ms, err := sess.conn.OpenStream(ctx)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}

	// 客户端侧协议协商
	deadline := s.clock.Now().Add(negotiateTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = ms.SetDeadline(deadline)
	if _, err := multistream.SelectOneOf([]string{string(proto)}, ms); err != nil {
		ms.Close()
		return nil, fmt.Errorf("negotiate %s: %w", proto, err)
	}
	_ = ms.SetDeadline(time.Time{})

	sess.touch(s.clock.Now())
	return &stream{MuxedStream: ms, proto: proto, sess: sess, sw: s}, nil
}

// SetStreamHandler 注册协议的入站流处理函数
func (s *Swarm) SetStreamHandler(proto types.ProtocolID, h pkgif.StreamHandler) {
	s.handlerMu.Lock()
	s.handlers[proto] = h
	s.handlerMu.Unlock()
}

// RemoveStreamHandler 移除协议处理函数
func (s *Swarm) RemoveStreamHandler(proto types.ProtocolID) {
	s.handlerMu.Lock()
	delete(s.handlers, proto)
	s.handlerMu.Unlock()
}

// acceptStreams 会话的入站流接受循环
func (s *Swarm) acceptStreams(sess *session) {
	defer s.wg.Done()

	for {
		ms, err := sess.conn.AcceptStream()
		if err != nil {
			s.removeSession(sess, "connection closed")
			return
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleIncomingStream(sess, ms)
		}()
	}
}

// handleIncomingStream 协商入站流协议并分发给处理函数
func (s *Swarm) handleIncomingStream(sess *session, ms pkgif.MuxedStream) {
	s.handlerMu.RLock()
	msm := multistream.NewMultistreamMuxer[string]()
	for proto := range s.handlers {
		msm.AddHandler(string(proto), nil)
	}
	s.handlerMu.RUnlock()

	_ = ms.SetDeadline(s.clock.Now().Add(negotiateTimeout))
	selected, _, err := msm.Negotiate(ms)
	if err != nil {
		logger.Debug("入站流协商失败", "peer", sess.peer.ShortString(), "error", err)
		ms.Close()
		return
	}
	_ = ms.SetDeadline(time.Time{})

	s.handlerMu.RLock()
	handler := s.handlers[types.ProtocolID(selected)]
	s.handlerMu.RUnlock()
	if handler == nil {
		ms.Close()
		return
	}

	sess.touch(s.clock.Now())
	handler(&stream{MuxedStream: ms, proto: types.ProtocolID(selected), sess: sess, sw: s})
}

// ============================================================================
//                              事件通知
// ============================================================================

// Notify 注册连接事件通知
func (s *Swarm) Notify(n pkgif.Notifier) {
	s.notifyMu.Lock()
	s.notifiers[n] = struct{}{}
	s.notifyMu.Unlock()
}

// StopNotify 注销连接事件通知
func (s *Swarm) StopNotify(n pkgif.Notifier) {
	s.notifyMu.Lock()
	delete(s.notifiers, n)
	s.notifyMu.Unlock()
}

// notifyConnected 分发连接事件
func (s *Swarm) notifyConnected(p types.PeerID, dir types.Direction) {
	s.notifyMu.RLock()
	targets := make([]pkgif.Notifier, 0, len(s.notifiers))
	for n := range s.notifiers {
		targets = append(targets, n)
	}
	s.notifyMu.RUnlock()

	for _, n := range targets {
		n.Connected(p, dir)
	}
}

// notifyDisconnected 分发断开事件
func (s *Swarm) notifyDisconnected(p types.PeerID, reason string) {
	s.notifyMu.RLock()
	targets := make([]pkgif.Notifier, 0, len(s.notifiers))
	for n := range s.notifiers {
		targets = append(targets, n)
	}
	s.notifyMu.RUnlock()

	for _, n := range targets {
		n.Disconnected(p, reason)
	}
}

// ============================================================================
//                              关闭
// ============================================================================

// Close 关闭连接池
//
// 关闭监听器和所有会话，取消全部重试定时器；会话上阻塞中的
// 读写以连接已关闭错误返回。
func (s *Swarm) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.cancel()

	s.dialMu.Lock()
	for p, timer := range s.retries {
		timer.Stop()
		delete(s.retries, p)
	}
	s.dialMu.Unlock()

	s.mu.Lock()
	listeners := s.listeners
	s.listeners = nil
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.sessions = make(map[types.PeerID]*session)
	s.mu.Unlock()

	for _, ln := range listeners {
		_ = ln.Close()
	}
	for _, sess := range sessions {
		sess.close()
		s.notifyDisconnected(sess.peer, "swarm closed")
	}

	s.wg.Wait()
	logger.Info("连接池已关闭")
	return nil
}
