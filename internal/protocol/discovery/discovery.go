// Package discovery 实现节点发现协议
//
// 周期性向每个已连接节点请求其已知节点列表，合并进本地
// 节点表，并在连接数低于目标时从表中补拨新节点。单个节点
// 的一轮失败只记日志，不影响其余节点。
package discovery

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"

	"github.com/dmeshnet/go-dmesh/internal/protocol/wire"
	pkgif "github.com/dmeshnet/go-dmesh/pkg/interfaces"
	"github.com/dmeshnet/go-dmesh/pkg/lib/log"
	"github.com/dmeshnet/go-dmesh/pkg/types"
)

var logger = log.Logger("protocol/discovery")

// Discovery 节点发现服务
type Discovery struct {
	network   pkgif.Network
	peerstore pkgif.Peerstore
	config    *Config
	clock     clock.Clock

	started atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// 确保实现接口
var _ pkgif.Discovery = (*Discovery)(nil)

// Option 发现服务配置选项
type Option func(*Discovery)

// WithConfig 设置配置
func WithConfig(cfg *Config) Option {
	return func(d *Discovery) {
		if cfg != nil {
			d.config = cfg
		}
	}
}

// WithClock 注入时钟（测试用）
func WithClock(c clock.Clock) Option {
	return func(d *Discovery) {
		d.clock = c
	}
}

// New 创建发现服务
func New(network pkgif.Network, ps pkgif.Peerstore, opts ...Option) (*Discovery, error) {
	if network == nil || ps == nil {
		return nil, fmt.Errorf("network and peerstore are required")
	}

	d := &Discovery{
		network:   network,
		peerstore: ps,
		config:    DefaultConfig(),
		clock:     clock.New(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Start 启动发现服务
//
// 注册响应处理函数并开始轮询循环。重复启动是幂等的。
func (d *Discovery) Start() error {
	if !d.started.CompareAndSwap(false, true) {
		return nil
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())

	d.network.SetStreamHandler(types.ProtoDiscovery, d.handleRequest)

	d.wg.Add(1)
	go d.roundLoop()

	logger.Info("发现服务已启动", "interval", d.config.Interval.String())
	return nil
}

// Stop 停止发现服务
func (d *Discovery) Stop() error {
	if !d.started.CompareAndSwap(true, false) {
		return nil
	}
	d.network.RemoveStreamHandler(types.ProtoDiscovery)
	d.cancel()
	d.wg.Wait()
	return nil
}

// KnownPeers 返回已知节点表的快照
func (d *Discovery) KnownPeers() []types.PeerRecord {
	return d.peerstore.Records()
}

// roundLoop 轮询循环，间隔带抖动
func (d *Discovery) roundLoop() {
	defer d.wg.Done()

	for {
		timer := d.clock.Timer(d.jitteredInterval())
		select {
		case <-d.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		d.runRound()
	}
}

// jitteredInterval 返回带随机抖动的轮询间隔
func (d *Discovery) jitteredInterval() time.Duration {
	interval := d.config.Interval
	if d.config.Jitter <= 0 {
		return interval
	}
	// [1-jitter, 1+jitter] 均匀分布
	factor := 1 + d.config.Jitter*(2*rand.Float64()-1)
	return time.Duration(float64(interval) * factor)
}

// runRound 执行一轮发现：并发查询所有已连接节点，然后补拨
func (d *Discovery) runRound() {
	peers := d.network.Peers()
	if len(peers) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, p := range peers {
		wg.Add(1)
		go func(p types.PeerID) {
			defer wg.Done()
			if err := d.queryPeer(p); err != nil {
				logger.Debug("发现查询失败", "peer", p.ShortString(), "error", err)
			}
		}(p)
	}
	wg.Wait()

	d.connectNewPeers(peers)
}

// queryPeer 向单个节点请求其已知节点列表并合并结果
func (d *Discovery) queryPeer(p types.PeerID) error {
	ctx, cancel := context.WithTimeout(d.ctx, d.config.RequestTimeout)
	defer cancel()

	st, err := d.network.NewStream(ctx, p, types.ProtoDiscovery)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	defer st.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = st.SetDeadline(deadline)
	}

	codec := wire.NewCodec(st, maxMessageSize)
	req := &getPeersRequest{Limit: uint64(d.config.MaxPeersPerResponse)}
	if err := codec.WriteFrame(req.marshal()); err != nil {
		return fmt.Errorf("write request: %w", err)
	}

	frame, err := codec.ReadFrame()
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	var resp getPeersResponse
	if err := resp.unmarshal(frame); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	d.merge(resp.Peers)
	return nil
}

// merge 把一批通告合并进本地节点表
//
// 丢弃本地节点自身、空地址记录和未启用的内网地址；容量
// 上限与最久未见淘汰由节点表自身执行。
func (d *Discovery) merge(entries []peerEntry) {
	local := d.network.LocalPeer()
	for _, entry := range entries {
		if entry.ID.Equal(local) {
			continue
		}
		addrs := d.filterAddrs(entry.Addrs)
		if len(addrs) == 0 {
			continue
		}
		d.peerstore.AddAddrs(entry.ID, addrs)
	}
}

// filterAddrs 过滤不可用地址
func (d *Discovery) filterAddrs(addrs []ma.Multiaddr) []ma.Multiaddr {
	if d.config.AllowPrivateAddrs {
		return addrs
	}
	out := make([]ma.Multiaddr, 0, len(addrs))
	for _, addr := range addrs {
		if manet.IsIPLoopback(addr) || manet.IsPrivateAddr(addr) {
			continue
		}
		out = append(out, addr)
	}
	return out
}

// connectNewPeers 连接数不足目标时从已知表补拨
func (d *Discovery) connectNewPeers(connected []types.PeerID) {
	deficit := d.config.TargetPeers - len(connected)
	if deficit <= 0 {
		return
	}

	connectedSet := make(map[types.PeerID]struct{}, len(connected))
	for _, p := range connected {
		connectedSet[p] = struct{}{}
	}

	local := d.network.LocalPeer()
	for _, rec := range d.peerstore.Records() {
		if deficit <= 0 {
			return
		}
		if rec.ID.Equal(local) {
			continue
		}
		if _, ok := connectedSet[rec.ID]; ok {
			continue
		}
		if len(rec.Addrs) == 0 {
			continue
		}
		deficit--

		d.wg.Add(1)
		go func(info types.AddrInfo) {
			defer d.wg.Done()
			ctx, cancel := context.WithTimeout(d.ctx, d.config.RequestTimeout)
			defer cancel()
			if err := d.network.Connect(ctx, info); err != nil {
				logger.Debug("发现补拨失败", "peer", info.ID.ShortString(), "error", err)
			}
		}(types.AddrInfo{ID: rec.ID, Addrs: rec.Addrs})
	}
}

// handleRequest 响应其他节点的列表请求
func (d *Discovery) handleRequest(st pkgif.Stream) {
	defer st.Close()
	_ = st.SetDeadline(d.clock.Now().Add(d.config.RequestTimeout))

	codec := wire.NewCodec(st, maxMessageSize)
	frame, err := codec.ReadFrame()
	if err != nil {
		logger.Debug("读取发现请求失败", "peer", st.RemotePeer().ShortString(), "error", err)
		return
	}
	var req getPeersRequest
	if err := req.unmarshal(frame); err != nil {
		logger.Debug("解析发现请求失败", "peer", st.RemotePeer().ShortString(), "error", err)
		return
	}

	limit := d.config.MaxPeersPerResponse
	if req.Limit > 0 && int(req.Limit) < limit {
		limit = int(req.Limit)
	}

	resp := d.buildResponse(st.RemotePeer(), limit)
	if err := codec.WriteFrame(resp.marshal()); err != nil {
		logger.Debug("写入发现响应失败", "peer", st.RemotePeer().ShortString(), "error", err)
	}
}

// buildResponse 组装响应，排除请求方和本地节点
func (d *Discovery) buildResponse(requester types.PeerID, limit int) *getPeersResponse {
	local := d.network.LocalPeer()
	resp := &getPeersResponse{}
	for _, rec := range d.peerstore.Records() {
		if len(resp.Peers) >= limit {
			break
		}
		if rec.ID.Equal(requester) || rec.ID.Equal(local) {
			continue
		}
		if len(rec.Addrs) == 0 {
			continue
		}
		resp.Peers = append(resp.Peers, peerEntry{ID: rec.ID, Addrs: rec.Addrs})
	}
	return resp
}
