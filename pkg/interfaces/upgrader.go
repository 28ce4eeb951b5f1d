package interfaces

import (
	"context"
	"net"

	"github.com/dmeshnet/go-dmesh/pkg/types"
)

// UpgradedConn 完成安全与多路复用升级的连接
type UpgradedConn interface {
	Muxer

	// LocalPeer 返回本地节点 ID
	LocalPeer() types.PeerID

	// RemotePeer 返回握手验证过的远程节点 ID
	RemotePeer() types.PeerID

	// RemotePublicKey 返回远程身份公钥
	RemotePublicKey() PublicKey

	// Direction 返回连接方向
	Direction() types.Direction
}

// Upgrader 连接升级能力
//
// 升级流程：multistream 协商安全协议 → 安全握手 →
// multistream 协商多路复用协议 → 建立多路复用。
type Upgrader interface {
	// Upgrade 升级一条原始连接
	//
	// 出站方向必须提供 expected（拨号目标 PeerID）。
	Upgrade(ctx context.Context, conn net.Conn, dir types.Direction, expected types.PeerID) (UpgradedConn, error)
}
