package peerstore

import (
	"crypto/rand"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmeshnet/go-dmesh/pkg/types"
)

// randomPeer 生成随机 PeerID
func randomPeer(t *testing.T) types.PeerID {
	t.Helper()
	var b [32]byte
	_, err := rand.Read(b[:])
	require.NoError(t, err)
	id, err := types.PeerIDFromBytes(b[:])
	require.NoError(t, err)
	return id
}

// mustAddr 解析 multiaddr
func mustAddr(t *testing.T, s string) ma.Multiaddr {
	t.Helper()
	addr, err := ma.NewMultiaddr(s)
	require.NoError(t, err)
	return addr
}

// TestAddAddrs_Dedup 测试地址合并去重
func TestAddAddrs_Dedup(t *testing.T) {
	ps := New()
	p := randomPeer(t)
	a1 := mustAddr(t, "/ip4/10.0.0.1/tcp/7650")
	a2 := mustAddr(t, "/ip4/10.0.0.2/tcp/7650")

	ps.AddAddrs(p, []ma.Multiaddr{a1})
	ps.AddAddrs(p, []ma.Multiaddr{a1, a2})

	assert.Len(t, ps.Addrs(p), 2)
	assert.Equal(t, 1, ps.Len())
}

// TestEviction_LeastRecentlySeen 测试容量淘汰顺序
func TestEviction_LeastRecentlySeen(t *testing.T) {
	mock := clock.NewMock()
	ps := New(WithMaxPeers(2), WithClock(mock))
	addr := mustAddr(t, "/ip4/10.0.0.1/tcp/7650")

	oldest := randomPeer(t)
	ps.AddAddrs(oldest, []ma.Multiaddr{addr})

	mock.Add(time.Minute)
	newer := randomPeer(t)
	ps.AddAddrs(newer, []ma.Multiaddr{addr})

	// oldest 被刷新后不再是最旧的
	mock.Add(time.Minute)
	ps.UpdateLastSeen(oldest)

	mock.Add(time.Minute)
	third := randomPeer(t)
	ps.AddAddrs(third, []ma.Multiaddr{addr})

	assert.Equal(t, 2, ps.Len())
	_, ok := ps.Record(newer)
	assert.False(t, ok, "least recently seen record should be evicted")
	_, ok = ps.Record(oldest)
	assert.True(t, ok)
	_, ok = ps.Record(third)
	assert.True(t, ok)
}

// TestReputation_Clamped 测试信誉钳制
func TestReputation_Clamped(t *testing.T) {
	ps := New()
	p := randomPeer(t)
	ps.AddAddrs(p, nil)

	ps.BumpReputation(p, 1000)
	assert.Equal(t, maxReputation, ps.Reputation(p))

	ps.BumpReputation(p, -1000)
	assert.Equal(t, minReputation, ps.Reputation(p))

	// 未知节点为 0 且不可调
	unknown := randomPeer(t)
	ps.BumpReputation(unknown, 5)
	assert.Equal(t, 0, ps.Reputation(unknown))
}

// TestRecord_Copies 测试返回拷贝不泄漏内部状态
func TestRecord_Copies(t *testing.T) {
	ps := New()
	p := randomPeer(t)
	ps.AddAddrs(p, []ma.Multiaddr{mustAddr(t, "/ip4/10.0.0.1/tcp/7650")})

	rec, ok := ps.Record(p)
	require.True(t, ok)
	rec.Addrs[0] = mustAddr(t, "/ip4/99.99.99.99/tcp/1")

	fresh, _ := ps.Record(p)
	assert.Equal(t, "/ip4/10.0.0.1/tcp/7650", fresh.Addrs[0].String())
}

// TestRemovePeer 测试删除
func TestRemovePeer(t *testing.T) {
	ps := New()
	p := randomPeer(t)
	ps.AddAddrs(p, nil)
	require.Equal(t, 1, ps.Len())

	ps.RemovePeer(p)
	assert.Equal(t, 0, ps.Len())
}
