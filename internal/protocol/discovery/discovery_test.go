package discovery

import (
	"context"
	"testing"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmeshnet/go-dmesh/internal/core/identity"
	"github.com/dmeshnet/go-dmesh/internal/core/muxer/yamux"
	"github.com/dmeshnet/go-dmesh/internal/core/peerstore"
	"github.com/dmeshnet/go-dmesh/internal/core/security/noise"
	"github.com/dmeshnet/go-dmesh/internal/core/swarm"
	"github.com/dmeshnet/go-dmesh/internal/core/transport/tcp"
	"github.com/dmeshnet/go-dmesh/internal/core/upgrader"
	"github.com/dmeshnet/go-dmesh/internal/protocol/wire"
	"github.com/dmeshnet/go-dmesh/pkg/types"
)

type testNode struct {
	swarm     *swarm.Swarm
	peerstore *peerstore.Peerstore
	discovery *Discovery
}

func newTestNode(t *testing.T) *testNode {
	t.Helper()

	ident, err := identity.New()
	require.NoError(t, err)
	sec, err := noise.New(ident)
	require.NoError(t, err)
	up, err := upgrader.New(sec, yamux.NewFactory(nil))
	require.NoError(t, err)

	ps := peerstore.New()
	sw, err := swarm.New(ident.PeerID(), tcp.New(), up, ps)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.AllowPrivateAddrs = true
	cfg.RequestTimeout = 5 * time.Second
	disc, err := New(sw, ps, WithConfig(cfg))
	require.NoError(t, err)

	addr, err := ma.NewMultiaddr("/ip4/127.0.0.1/tcp/0")
	require.NoError(t, err)
	require.NoError(t, sw.Listen(addr))
	require.NoError(t, disc.Start())

	t.Cleanup(func() {
		_ = disc.Stop()
		_ = sw.Close()
	})
	return &testNode{swarm: sw, peerstore: ps, discovery: disc}
}

func (n *testNode) addrInfo() types.AddrInfo {
	return types.AddrInfo{ID: n.swarm.LocalPeer(), Addrs: n.swarm.ListenAddrs()}
}

func TestRequestRoundTrip(t *testing.T) {
	req := getPeersRequest{Limit: 17}
	var decoded getPeersRequest
	require.NoError(t, decoded.unmarshal(req.marshal()))
	assert.Equal(t, req, decoded)
}

func TestResponseRoundTrip(t *testing.T) {
	addr1, _ := ma.NewMultiaddr("/ip4/10.0.0.1/tcp/7100")
	addr2, _ := ma.NewMultiaddr("/ip4/10.0.0.2/tcp/7100")

	resp := getPeersResponse{Peers: []peerEntry{
		{ID: types.PeerID{1, 2, 3}, Addrs: []ma.Multiaddr{addr1, addr2}},
		{ID: types.PeerID{4, 5, 6}, Addrs: []ma.Multiaddr{addr1}},
	}}

	var decoded getPeersResponse
	require.NoError(t, decoded.unmarshal(resp.marshal()))
	require.Len(t, decoded.Peers, 2)
	assert.Equal(t, resp.Peers[0].ID, decoded.Peers[0].ID)
	assert.True(t, decoded.Peers[0].Addrs[1].Equal(addr2))
}

func TestResponseRejectsHugeCounts(t *testing.T) {
	// 只声称记录数、不携带记录体的恶意响应
	buf := wire.AppendUvarint(nil, maxEntriesPerMessage+1)
	var decoded getPeersResponse
	assert.Error(t, decoded.unmarshal(buf))
}

func TestFilterAddrsDropsPrivate(t *testing.T) {
	d := &Discovery{config: DefaultConfig()}

	loopback, _ := ma.NewMultiaddr("/ip4/127.0.0.1/tcp/7100")
	private, _ := ma.NewMultiaddr("/ip4/192.168.1.5/tcp/7100")
	public, _ := ma.NewMultiaddr("/ip4/93.184.216.34/tcp/7100")

	out := d.filterAddrs([]ma.Multiaddr{loopback, private, public})
	require.Len(t, out, 1)
	assert.True(t, out[0].Equal(public))

	d.config.AllowPrivateAddrs = true
	out = d.filterAddrs([]ma.Multiaddr{loopback, private, public})
	assert.Len(t, out, 3)
}

func TestDiscoveryRoundSpreadsPeers(t *testing.T) {
	// 拓扑：a—b，b 知道 c；一轮发现后 a 也应知道 c
	a := newTestNode(t)
	b := newTestNode(t)
	c := newTestNode(t)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	require.NoError(t, a.swarm.Connect(ctx, b.addrInfo()))

	info := c.addrInfo()
	b.peerstore.AddAddrs(info.ID, info.Addrs)

	a.discovery.runRound()

	require.Eventually(t, func() bool {
		for _, rec := range a.discovery.KnownPeers() {
			if rec.ID.Equal(info.ID) {
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)
}

func TestDiscoveryConnectorFillsDeficit(t *testing.T) {
	a := newTestNode(t)
	b := newTestNode(t)
	c := newTestNode(t)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	require.NoError(t, a.swarm.Connect(ctx, b.addrInfo()))

	info := c.addrInfo()
	b.peerstore.AddAddrs(info.ID, info.Addrs)

	// 第一轮学到 c，第二轮补拨
	a.discovery.runRound()
	require.Eventually(t, func() bool {
		a.discovery.runRound()
		return a.swarm.Connectedness(info.ID) == types.Connected
	}, 10*time.Second, 100*time.Millisecond)
}

func TestRoundResilientToFailingPeer(t *testing.T) {
	// b 注销了发现处理函数，a 的一轮发现对 b 失败但不影响 c
	a := newTestNode(t)
	b := newTestNode(t)
	c := newTestNode(t)
	d := newTestNode(t)

	b.swarm.RemoveStreamHandler(types.ProtoDiscovery)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	require.NoError(t, a.swarm.Connect(ctx, b.addrInfo()))
	require.NoError(t, a.swarm.Connect(ctx, c.addrInfo()))

	info := d.addrInfo()
	c.peerstore.AddAddrs(info.ID, info.Addrs)

	a.discovery.runRound()

	require.Eventually(t, func() bool {
		for _, rec := range a.discovery.KnownPeers() {
			if rec.ID.Equal(info.ID) {
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)
}

func TestResponseExcludesRequesterAndSelf(t *testing.T) {
	a := newTestNode(t)
	b := newTestNode(t)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	require.NoError(t, a.swarm.Connect(ctx, b.addrInfo()))

	// b 的表里只有 a（来自入站连接簿记）和 a 的记录；
	// 对 a 的响应必须既不含 a 也不含 b 自己
	resp := b.discovery.buildResponse(a.swarm.LocalPeer(), 32)
	for _, entry := range resp.Peers {
		assert.False(t, entry.ID.Equal(a.swarm.LocalPeer()))
		assert.False(t, entry.ID.Equal(b.swarm.LocalPeer()))
	}
}
