package interfaces

import (
	"context"
	"net"

	ma "github.com/multiformats/go-multiaddr"
)

// Transport 原始字节流传输能力
//
// 只负责建立未加密的原始连接，安全和多路复用由升级器完成。
type Transport interface {
	// Dial 拨号到远程地址
	Dial(ctx context.Context, raddr ma.Multiaddr) (net.Conn, error)

	// Listen 在本地地址监听入站连接
	Listen(laddr ma.Multiaddr) (Listener, error)

	// CanDial 判断本传输层能否拨号该地址
	CanDial(addr ma.Multiaddr) bool
}

// Listener 入站连接监听器
type Listener interface {
	// Accept 等待下一个入站连接
	Accept() (net.Conn, error)

	// Multiaddr 返回实际监听地址（端口 0 时为分配后的端口）
	Multiaddr() ma.Multiaddr

	// Close 关闭监听器，唤醒阻塞中的 Accept
	Close() error
}
