package pubsub

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"testing"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmeshnet/go-dmesh/internal/core/identity"
	"github.com/dmeshnet/go-dmesh/internal/core/metrics"
	"github.com/dmeshnet/go-dmesh/internal/core/muxer/yamux"
	"github.com/dmeshnet/go-dmesh/internal/core/peerstore"
	"github.com/dmeshnet/go-dmesh/internal/core/security/noise"
	"github.com/dmeshnet/go-dmesh/internal/core/swarm"
	"github.com/dmeshnet/go-dmesh/internal/core/transport/tcp"
	"github.com/dmeshnet/go-dmesh/internal/core/upgrader"
	"github.com/dmeshnet/go-dmesh/pkg/types"
)

type testNode struct {
	swarm  *swarm.Swarm
	pubsub *PubSub
}

func newTestNode(t *testing.T, opts ...Option) *testNode {
	t.Helper()

	ident, err := identity.New()
	require.NoError(t, err)
	sec, err := noise.New(ident)
	require.NoError(t, err)
	up, err := upgrader.New(sec, yamux.NewFactory(nil))
	require.NoError(t, err)

	sw, err := swarm.New(ident.PeerID(), tcp.New(), up, peerstore.New())
	require.NoError(t, err)

	engine, err := New(sw, opts...)
	require.NoError(t, err)

	addr, err := ma.NewMultiaddr("/ip4/127.0.0.1/tcp/0")
	require.NoError(t, err)
	require.NoError(t, sw.Listen(addr))
	require.NoError(t, engine.Start())

	t.Cleanup(func() {
		_ = engine.Stop()
		_ = sw.Close()
	})
	return &testNode{swarm: sw, pubsub: engine}
}

func connect(t *testing.T, from, to *testNode) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, from.swarm.Connect(ctx, types.AddrInfo{
		ID:    to.swarm.LocalPeer(),
		Addrs: to.swarm.ListenAddrs(),
	}))

	// 等双方的会话都就位
	require.Eventually(t, func() bool {
		return to.swarm.Connectedness(from.swarm.LocalPeer()) == types.Connected
	}, 5*time.Second, 20*time.Millisecond)
}

func nextWithin(t *testing.T, sub *subscription, d time.Duration) *message {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	msg, err := sub.Next(ctx)
	require.NoError(t, err)
	return &message{Topic: msg.Topic, Payload: msg.Data}
}

func subscribe(t *testing.T, n *testNode, topic string) *subscription {
	t.Helper()

	sub, err := n.pubsub.Subscribe(topic)
	require.NoError(t, err)
	return sub.(*subscription)
}

func assertNoMessage(t *testing.T, sub *subscription, d time.Duration) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	_, err := sub.Next(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPublishDeliversToMeshExactlyOnce(t *testing.T) {
	// 全连接三角：a—b、a—c、b—c，三方都订阅 blocks
	a := newTestNode(t)
	b := newTestNode(t)
	c := newTestNode(t)
	connect(t, a, b)
	connect(t, a, c)
	connect(t, b, c)

	subA := subscribe(t, a, "blocks")
	subB := subscribe(t, b, "blocks")
	subC := subscribe(t, c, "blocks")

	payload := []byte("block#42")
	require.NoError(t, a.pubsub.Publish("blocks", payload))

	// b 和 c 各收到一次
	assert.Equal(t, payload, nextWithin(t, subB, 5*time.Second).Payload)
	assert.Equal(t, payload, nextWithin(t, subC, 5*time.Second).Payload)

	// a 只有本地一次送达，b/c 的转发不会回流
	assert.Equal(t, payload, nextWithin(t, subA, 5*time.Second).Payload)
	assertNoMessage(t, subA, 500*time.Millisecond)
	assertNoMessage(t, subB, 500*time.Millisecond)
	assertNoMessage(t, subC, 500*time.Millisecond)
}

func TestUnsubscribedNodeStillRelays(t *testing.T) {
	// 链式拓扑：a—b—c，b 不订阅，c 仍应通过 b 收到
	a := newTestNode(t)
	b := newTestNode(t)
	c := newTestNode(t)
	connect(t, a, b)
	connect(t, b, c)

	subC := subscribe(t, c, "blocks")

	payload := []byte("relayed")
	require.NoError(t, a.pubsub.Publish("blocks", payload))
	assert.Equal(t, payload, nextWithin(t, subC, 5*time.Second).Payload)
}

func TestPublishOversizedRejected(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DefaultMaxPayload = 16
	a := newTestNode(t, WithConfig(cfg))

	err := a.pubsub.Publish("blocks", make([]byte, 17))
	assert.ErrorIs(t, err, ErrOversizedPayload)
}

func TestPublishValidation(t *testing.T) {
	a := newTestNode(t)

	assert.ErrorIs(t, a.pubsub.Publish("", []byte("x")), ErrEmptyTopic)

	_, err := a.pubsub.Subscribe("")
	assert.ErrorIs(t, err, ErrEmptyTopic)
}

func TestSubscriptionCancel(t *testing.T) {
	a := newTestNode(t)
	sub := subscribe(t, a, "blocks")

	assert.Contains(t, a.pubsub.Topics(), "blocks")
	sub.Cancel()
	assert.NotContains(t, a.pubsub.Topics(), "blocks")

	_, err := sub.Next(context.Background())
	assert.ErrorIs(t, err, ErrSubscriptionCancelled)
}

func TestStoppedEngineRejects(t *testing.T) {
	a := newTestNode(t)
	require.NoError(t, a.pubsub.Stop())

	assert.ErrorIs(t, a.pubsub.Publish("blocks", []byte("x")), ErrPubSubClosed)
	_, err := a.pubsub.Subscribe("blocks")
	assert.ErrorIs(t, err, ErrPubSubClosed)
}

func TestSeenFilterBounds(t *testing.T) {
	f, err := newSeenFilter(64, metrics.NewNop())
	require.NoError(t, err)

	fp := func(i int) [sha256.Size]byte {
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], uint64(i))
		return sha256.Sum256(b[:])
	}

	// 驻留期间无假阴性
	assert.False(t, f.testAndSet(fp(0)))
	assert.True(t, f.testAndSet(fp(0)))

	// 容量上界固定
	for i := 1; i < 1000; i++ {
		f.testAndSet(fp(i))
	}
	assert.LessOrEqual(t, f.len(), 64)

	// 最近插入的仍然驻留
	assert.True(t, f.testAndSet(fp(999)))
}

func TestOutboundBacklogOverflowDrops(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BacklogSize = 2

	po := newPeerOutbound(context.Background(), types.PeerID{1}, cfg)
	defer po.cancel()

	// 没有写协程消费，队列容量即积压上限
	assert.True(t, po.enqueue([]byte("m1")))
	assert.True(t, po.enqueue([]byte("m2")))
	assert.False(t, po.enqueue([]byte("m3")))
}

func TestDuplicatePublishIsNoop(t *testing.T) {
	a := newTestNode(t)
	sub := subscribe(t, a, "blocks")

	msg := &message{Topic: "blocks", Seed: []byte{1, 2, 3, 4, 5, 6, 7, 8}, Payload: []byte("x")}
	a.pubsub.processInbound(types.PeerID{9}, msg)
	a.pubsub.processInbound(types.PeerID{9}, msg)

	got := nextWithin(t, sub, 5*time.Second)
	assert.Equal(t, []byte("x"), got.Payload)
	assertNoMessage(t, sub, 300*time.Millisecond)
}

func TestMessageRoundTrip(t *testing.T) {
	msg, err := newMessage("blocks", []byte("payload"))
	require.NoError(t, err)
	require.Len(t, msg.Seed, seedSize)

	var decoded message
	require.NoError(t, decoded.unmarshal(msg.marshal()))
	assert.Equal(t, *msg, decoded)
	assert.Equal(t, msg.fingerprint(), decoded.fingerprint())

	// 相同负载、不同种子 → 不同指纹
	msg2, err := newMessage("blocks", []byte("payload"))
	require.NoError(t, err)
	assert.NotEqual(t, msg.fingerprint(), msg2.fingerprint())
}
