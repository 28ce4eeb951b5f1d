package interfaces

import (
	"context"
	"net"

	"github.com/dmeshnet/go-dmesh/pkg/types"
)

// SecureConn 经过相互认证和加密的连接
//
// 所有读写透明加解密；被篡改或截断的密文帧导致读操作返回
// 完整性错误并拆除连接，永远不会向上交付部分解密的数据。
type SecureConn interface {
	net.Conn

	// LocalPeer 返回本地节点 ID
	LocalPeer() types.PeerID

	// RemotePeer 返回握手验证过的远程节点 ID
	RemotePeer() types.PeerID

	// RemotePublicKey 返回远程身份公钥
	RemotePublicKey() PublicKey
}

// SecureTransport 连接安全升级能力
type SecureTransport interface {
	// ID 返回 multistream 协商用的协议 ID
	ID() types.ProtocolID

	// SecureOutbound 升级出站连接
	//
	// expected 为拨号目标的 PeerID，握手得到的远程身份与其
	// 不符时返回身份不匹配错误。
	SecureOutbound(ctx context.Context, conn net.Conn, expected types.PeerID) (SecureConn, error)

	// SecureInbound 升级入站连接（远程身份由握手得出）
	SecureInbound(ctx context.Context, conn net.Conn) (SecureConn, error)
}
