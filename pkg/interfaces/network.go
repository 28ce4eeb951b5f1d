package interfaces

import (
	"context"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/dmeshnet/go-dmesh/pkg/types"
)

// Stream 绑定到某个协议的逻辑流
type Stream interface {
	MuxedStream

	// Protocol 返回流打开时协商的协议 ID
	Protocol() types.ProtocolID

	// RemotePeer 返回流对端节点 ID
	RemotePeer() types.PeerID

	// Direction 返回所属连接的方向
	Direction() types.Direction
}

// StreamHandler 入站流处理函数
//
// 由连接池在新入站流协议协商完成后调用，处理函数负责关闭流。
type StreamHandler func(s Stream)

// Notifier 连接事件通知接口
//
// 回调在连接池内部 goroutine 上执行，实现必须快速返回且不得
// 反向调用会加锁的池操作。
type Notifier interface {
	// Connected 会话建立
	Connected(p types.PeerID, dir types.Direction)

	// Disconnected 会话销毁
	Disconnected(p types.PeerID, reason string)
}

// Network 连接池
//
// 持有全部活跃会话，负责拨号、接受、退避重试和按节点分配流。
// 不变式：每个 PeerID 至多一个活跃会话。
type Network interface {
	// LocalPeer 返回本地节点 ID
	LocalPeer() types.PeerID

	// Listen 在给定地址上开始接受入站连接
	Listen(addrs ...ma.Multiaddr) error

	// ListenAddrs 返回实际监听地址
	ListenAddrs() []ma.Multiaddr

	// Connect 拨号并升级到目标节点
	//
	// 已连接时立即返回 nil。全部地址失败返回 *DialError
	// 并调度退避重试。
	Connect(ctx context.Context, info types.AddrInfo) error

	// Disconnect 主动断开并停止重试
	Disconnect(p types.PeerID) error

	// NewStream 在已连接节点上打开协议流
	NewStream(ctx context.Context, p types.PeerID, proto types.ProtocolID) (Stream, error)

	// SetStreamHandler 注册协议的入站流处理函数
	SetStreamHandler(proto types.ProtocolID, h StreamHandler)

	// RemoveStreamHandler 移除协议处理函数
	RemoveStreamHandler(proto types.ProtocolID)

	// Peers 返回所有已连接节点
	Peers() []types.PeerID

	// Connectedness 返回节点当前连接状态
	Connectedness(p types.PeerID) types.Connectedness

	// Notify 注册连接事件通知
	Notify(n Notifier)

	// StopNotify 注销连接事件通知
	StopNotify(n Notifier)

	// Close 关闭监听器和所有会话，取消重试定时器
	Close() error
}
