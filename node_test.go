package dmesh

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmeshnet/go-dmesh/config"
	"github.com/dmeshnet/go-dmesh/pkg/types"
)

const testProto = types.ProtocolID("/dmesh/chat/1.0.0")

func newTestNode(t *testing.T, opts ...Option) *Node {
	t.Helper()

	cfg := config.Default()
	cfg.Transport.ListenAddrs = []string{"/ip4/127.0.0.1/tcp/0"}
	cfg.Discovery.AllowPrivateAddrs = true

	node, err := New(append([]Option{WithConfig(cfg)}, opts...)...)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, node.Start(ctx))

	t.Cleanup(func() { _ = node.Close() })
	return node
}

func connectNodes(t *testing.T, from, to *Node) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, from.ConnectPeer(ctx, to.AddrInfo()))
}

func TestSendDirectRoundTrip(t *testing.T) {
	a := newTestNode(t)
	b := newTestNode(t)
	connectNodes(t, a, b)

	received := make(chan []byte, 1)
	b.SetMessageHandler(testProto, func(from types.PeerID, data []byte) {
		assert.Equal(t, a.ID(), from)
		received <- data
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, a.SendDirect(ctx, b.ID(), testProto, []byte("hello")))

	select {
	case data := <-received:
		assert.Equal(t, []byte("hello"), data)
	case <-time.After(5 * time.Second):
		t.Fatal("direct message not delivered")
	}
}

func TestSendDirectRequiresConnection(t *testing.T) {
	a := newTestNode(t)
	b := newTestNode(t)

	// 完全陌生的节点
	err := a.SendDirect(context.Background(), b.ID(), testProto, []byte("x"))
	assert.ErrorIs(t, err, ErrNoSuchPeer)

	// 已知但未连接的节点
	connectNodes(t, a, b)
	require.NoError(t, a.Disconnect(b.ID()))
	err = a.SendDirect(context.Background(), b.ID(), testProto, []byte("x"))
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestConnectByFullAddress(t *testing.T) {
	a := newTestNode(t)
	b := newTestNode(t)

	full := b.AddrInfo().FullAddrs()
	require.NotEmpty(t, full)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, a.Connect(ctx, full[0]))
	assert.Contains(t, a.ConnectedPeers(), b.ID())
}

func TestPeerEvents(t *testing.T) {
	a := newTestNode(t)
	b := newTestNode(t)

	events := a.PeerEvents()
	connectNodes(t, a, b)

	select {
	case ev := <-events:
		assert.Equal(t, types.PeerEventConnected, ev.Kind)
		assert.Equal(t, b.ID(), ev.Peer)
		assert.Equal(t, types.DirOutbound, ev.Direction)
	case <-time.After(5 * time.Second):
		t.Fatal("connected event not delivered")
	}

	require.NoError(t, a.Disconnect(b.ID()))
	select {
	case ev := <-events:
		assert.Equal(t, types.PeerEventDisconnected, ev.Kind)
		assert.Equal(t, b.ID(), ev.Peer)
	case <-time.After(5 * time.Second):
		t.Fatal("disconnected event not delivered")
	}
}

func TestPublishSubscribeAcrossNodes(t *testing.T) {
	a := newTestNode(t)
	b := newTestNode(t)
	connectNodes(t, a, b)

	sub, err := b.Subscribe("blocks")
	require.NoError(t, err)
	defer sub.Cancel()

	require.NoError(t, a.Publish("blocks", []byte("block#1")))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	msg, err := sub.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("block#1"), msg.Data)
	assert.Equal(t, "blocks", msg.Topic)
}

func TestKnownPeersGrow(t *testing.T) {
	a := newTestNode(t)
	b := newTestNode(t)
	connectNodes(t, a, b)

	// 连接双方会互相进入对方的已知表
	require.Eventually(t, func() bool {
		for _, rec := range a.KnownPeers() {
			if rec.ID.Equal(b.ID()) {
				return true
			}
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)
}

func TestNodeLifecycle(t *testing.T) {
	node, err := New(WithListenAddrs("/ip4/127.0.0.1/tcp/0"))
	require.NoError(t, err)

	assert.ErrorIs(t, node.Publish("blocks", nil), ErrNodeNotStarted)

	ctx := context.Background()
	require.NoError(t, node.Start(ctx))
	require.NoError(t, node.Start(ctx)) // 幂等

	assert.False(t, node.ID().IsEmpty())
	assert.NotEmpty(t, node.Addrs())

	require.NoError(t, node.Close())
	require.NoError(t, node.Close()) // 幂等

	assert.ErrorIs(t, node.ConnectPeer(ctx, types.AddrInfo{ID: types.PeerID{1}}), ErrNodeClosed)
	assert.ErrorIs(t, node.Start(ctx), ErrNodeClosed)
}

func TestInvalidConfigRejected(t *testing.T) {
	cfg := config.Default()
	cfg.Swarm.MaxPeers = 0

	_, err := New(WithConfig(cfg))
	assert.Error(t, err)
}

func TestBootstrapConnect(t *testing.T) {
	seed := newTestNode(t)

	cfg := config.Default()
	cfg.Transport.ListenAddrs = []string{"/ip4/127.0.0.1/tcp/0"}
	cfg.Discovery.AllowPrivateAddrs = true
	cfg.Discovery.Bootstrap = seed.AddrInfo().FullAddrs()

	node, err := New(WithConfig(cfg))
	require.NoError(t, err)
	t.Cleanup(func() { _ = node.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, node.Start(ctx))

	assert.Contains(t, node.ConnectedPeers(), seed.ID())
}
