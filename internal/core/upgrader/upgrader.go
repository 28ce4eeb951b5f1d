// Package upgrader 实现连接升级器
//
// 升级流程：
//  1. multistream-select 协商安全协议
//  2. Noise 安全握手（相互认证 + 加密）
//  3. multistream-select 协商多路复用协议
//  4. 建立 yamux 多路复用
//
// 产出的 UpgradedConn 同时携带会话身份信息和多路复用能力。
package upgrader

import (
	"context"
	"fmt"
	"net"

	"github.com/multiformats/go-multistream"

	pkgif "github.com/dmeshnet/go-dmesh/pkg/interfaces"
	"github.com/dmeshnet/go-dmesh/pkg/lib/log"
	"github.com/dmeshnet/go-dmesh/pkg/types"
)

var logger = log.Logger("core/upgrader")

// Upgrader 连接升级器
type Upgrader struct {
	security pkgif.SecureTransport
	muxer    pkgif.MuxerFactory

	// 入站协商处理器（安全协议、多路复用协议各一）
	secMux *multistream.MultistreamMuxer[string]
	muxMux *multistream.MultistreamMuxer[string]
}

// 确保实现接口
var _ pkgif.Upgrader = (*Upgrader)(nil)

// New 创建连接升级器
func New(security pkgif.SecureTransport, muxerFactory pkgif.MuxerFactory) (*Upgrader, error) {
	if security == nil {
		return nil, ErrNoSecurityTransport
	}
	if muxerFactory == nil {
		return nil, ErrNoStreamMuxer
	}

	u := &Upgrader{
		security: security,
		muxer:    muxerFactory,
		secMux:   multistream.NewMultistreamMuxer[string](),
		muxMux:   multistream.NewMultistreamMuxer[string](),
	}
	u.secMux.AddHandler(string(security.ID()), nil)
	u.muxMux.AddHandler(string(muxerFactory.ID()), nil)
	return u, nil
}

// Upgrade 升级一条原始连接
//
// 出站方向必须提供 expected（拨号目标 PeerID）。
// 任何阶段失败都会关闭原始连接。
func (u *Upgrader) Upgrade(ctx context.Context, conn net.Conn, dir types.Direction, expected types.PeerID) (pkgif.UpgradedConn, error) {
	if dir == types.DirOutbound && expected.IsEmpty() {
		conn.Close()
		return nil, ErrNoPeerID
	}
	isServer := dir == types.DirInbound

	// 1. 协商安全协议
	if err := u.negotiate(u.secMux, conn, isServer, string(u.security.ID())); err != nil {
		conn.Close()
		return nil, fmt.Errorf("security negotiation: %w", err)
	}

	// 2. 安全握手
	var sconn pkgif.SecureConn
	var err error
	if isServer {
		sconn, err = u.security.SecureInbound(ctx, conn)
	} else {
		sconn, err = u.security.SecureOutbound(ctx, conn, expected)
	}
	if err != nil {
		// 安全传输已负责关闭连接
		return nil, fmt.Errorf("security handshake: %w", err)
	}

	// 3. 协商多路复用协议
	if err := u.negotiate(u.muxMux, sconn, isServer, string(u.muxer.ID())); err != nil {
		sconn.Close()
		return nil, fmt.Errorf("muxer negotiation: %w", err)
	}

	// 4. 建立多路复用
	mux, err := u.muxer.NewMuxer(sconn, isServer)
	if err != nil {
		sconn.Close()
		return nil, fmt.Errorf("muxer setup: %w", err)
	}

	logger.Debug("连接升级完成",
		"remote", sconn.RemotePeer().ShortString(),
		"direction", dir.String())

	return &upgradedConn{
		Muxer:      mux,
		localPeer:  sconn.LocalPeer(),
		remotePeer: sconn.RemotePeer(),
		remotePub:  sconn.RemotePublicKey(),
		direction:  dir,
	}, nil
}

// negotiate 执行一轮 multistream-select
//
// 服务端用 Negotiate 等待客户端选择，客户端用 SelectOneOf 提议。
func (u *Upgrader) negotiate(msm *multistream.MultistreamMuxer[string], rwc net.Conn, isServer bool, proto string) error {
	if isServer {
		selected, _, err := msm.Negotiate(rwc)
		if err != nil {
			return err
		}
		if selected != proto {
			return fmt.Errorf("unexpected protocol %q", selected)
		}
		return nil
	}

	_, err := multistream.SelectOneOf([]string{proto}, rwc)
	return err
}

// ============================================================================
//                              UpgradedConn
// ============================================================================

// upgradedConn 完成升级的连接
type upgradedConn struct {
	pkgif.Muxer

	localPeer  types.PeerID
	remotePeer types.PeerID
	remotePub  pkgif.PublicKey
	direction  types.Direction
}

// 确保实现接口
var _ pkgif.UpgradedConn = (*upgradedConn)(nil)

// LocalPeer 返回本地节点 ID
func (c *upgradedConn) LocalPeer() types.PeerID {
	return c.localPeer
}

// RemotePeer 返回远程节点 ID
func (c *upgradedConn) RemotePeer() types.PeerID {
	return c.remotePeer
}

// RemotePublicKey 返回远程身份公钥
func (c *upgradedConn) RemotePublicKey() pkgif.PublicKey {
	return c.remotePub
}

// Direction 返回连接方向
func (c *upgradedConn) Direction() types.Direction {
	return c.direction
}
