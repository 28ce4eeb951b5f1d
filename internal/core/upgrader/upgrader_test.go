package upgrader

import (
	"context"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmeshnet/go-dmesh/internal/core/identity"
	"github.com/dmeshnet/go-dmesh/internal/core/muxer/yamux"
	"github.com/dmeshnet/go-dmesh/internal/core/security/noise"
	pkgif "github.com/dmeshnet/go-dmesh/pkg/interfaces"
	"github.com/dmeshnet/go-dmesh/pkg/types"
)

// newUpgrader 创建测试用升级器
func newUpgrader(t *testing.T) (*Upgrader, *identity.Identity) {
	t.Helper()
	ident, err := identity.New()
	require.NoError(t, err)
	sec, err := noise.New(ident)
	require.NoError(t, err)
	u, err := New(sec, yamux.NewFactory(nil))
	require.NoError(t, err)
	return u, ident
}

// TestUpgrade_RoundTrip 测试完整升级流程
func TestUpgrade_RoundTrip(t *testing.T) {
	dialerUp, dialerIdent := newUpgrader(t)
	listenerUp, listenerIdent := newUpgrader(t)

	client, server := net.Pipe()

	type result struct {
		conn pkgif.UpgradedConn
		err  error
	}
	outCh := make(chan result, 1)
	inCh := make(chan result, 1)

	go func() {
		conn, err := dialerUp.Upgrade(context.Background(), client, types.DirOutbound, listenerIdent.PeerID())
		outCh <- result{conn, err}
	}()
	go func() {
		conn, err := listenerUp.Upgrade(context.Background(), server, types.DirInbound, types.EmptyPeerID)
		inCh <- result{conn, err}
	}()

	out := <-outCh
	in := <-inCh
	require.NoError(t, out.err)
	require.NoError(t, in.err)
	defer out.conn.Close()
	defer in.conn.Close()

	assert.True(t, out.conn.RemotePeer().Equal(listenerIdent.PeerID()))
	assert.True(t, in.conn.RemotePeer().Equal(dialerIdent.PeerID()))
	assert.Equal(t, types.DirOutbound, out.conn.Direction())
	assert.Equal(t, types.DirInbound, in.conn.Direction())

	// 升级后的连接可以直接开流通信
	acceptCh := make(chan pkgif.MuxedStream, 1)
	go func() {
		s, err := in.conn.AcceptStream()
		if err == nil {
			acceptCh <- s
		}
	}()

	s, err := out.conn.OpenStream(context.Background())
	require.NoError(t, err)
	go s.Write([]byte("upgraded"))

	inStream := <-acceptCh
	buf := make([]byte, 8)
	_, err = io.ReadFull(inStream, buf)
	require.NoError(t, err)
	assert.Equal(t, "upgraded", string(buf))
}

// TestUpgrade_MissingPeerID 测试出站缺少目标身份
func TestUpgrade_MissingPeerID(t *testing.T) {
	up, _ := newUpgrader(t)
	client, server := net.Pipe()
	defer server.Close()

	_, err := up.Upgrade(context.Background(), client, types.DirOutbound, types.EmptyPeerID)
	require.ErrorIs(t, err, ErrNoPeerID)
}

// TestNew_MissingDeps 测试缺少依赖的构造错误
func TestNew_MissingDeps(t *testing.T) {
	ident, err := identity.New()
	require.NoError(t, err)
	sec, err := noise.New(ident)
	require.NoError(t, err)

	_, err = New(nil, yamux.NewFactory(nil))
	require.ErrorIs(t, err, ErrNoSecurityTransport)

	_, err = New(sec, nil)
	require.ErrorIs(t, err, ErrNoStreamMuxer)
}
