// Package tcp 实现基于 TCP 的原始传输层
//
// 地址使用 multiaddr 格式（/ip4/1.2.3.4/tcp/7650），
// 只负责建立原始连接，安全与多路复用由上层升级器完成。
package tcp

import (
	"context"
	"fmt"
	"net"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"

	pkgif "github.com/dmeshnet/go-dmesh/pkg/interfaces"
)

// DefaultDialTimeout 默认拨号超时
const DefaultDialTimeout = 10 * time.Second

// Transport TCP 传输层
type Transport struct {
	dialTimeout time.Duration
}

// 确保实现接口
var _ pkgif.Transport = (*Transport)(nil)

// Option Transport 配置选项
type Option func(*Transport)

// WithDialTimeout 设置单次拨号超时
func WithDialTimeout(d time.Duration) Option {
	return func(t *Transport) {
		t.dialTimeout = d
	}
}

// New 创建 TCP 传输层
func New(opts ...Option) *Transport {
	t := &Transport{
		dialTimeout: DefaultDialTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// CanDial 判断能否拨号该地址
//
// 只接受 /ip4|ip6|dns4|dns6 + /tcp 组合。
func (t *Transport) CanDial(addr ma.Multiaddr) bool {
	protos := addr.Protocols()
	if len(protos) < 2 {
		return false
	}
	switch protos[0].Code {
	case ma.P_IP4, ma.P_IP6, ma.P_DNS4, ma.P_DNS6, ma.P_DNS:
	default:
		return false
	}
	return protos[1].Code == ma.P_TCP
}

// Dial 拨号到远程地址
func (t *Transport) Dial(ctx context.Context, raddr ma.Multiaddr) (net.Conn, error) {
	if !t.CanDial(raddr) {
		return nil, fmt.Errorf("cannot dial %s: not a tcp multiaddr", raddr)
	}

	network, host, err := manet.DialArgs(raddr)
	if err != nil {
		return nil, fmt.Errorf("resolve dial args: %w", err)
	}

	d := net.Dialer{Timeout: t.dialTimeout}
	conn, err := d.DialContext(ctx, network, host)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", host, err)
	}

	if tc, ok := conn.(*net.TCPConn); ok {
		// 长连接场景下降低小帧延迟
		_ = tc.SetNoDelay(true)
	}
	return conn, nil
}

// Listen 在本地地址监听
func (t *Transport) Listen(laddr ma.Multiaddr) (pkgif.Listener, error) {
	if !t.CanDial(laddr) {
		return nil, fmt.Errorf("cannot listen on %s: not a tcp multiaddr", laddr)
	}

	network, host, err := manet.DialArgs(laddr)
	if err != nil {
		return nil, fmt.Errorf("resolve listen args: %w", err)
	}

	ln, err := net.Listen(network, host)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", host, err)
	}

	actual, err := manet.FromNetAddr(ln.Addr())
	if err != nil {
		ln.Close()
		return nil, fmt.Errorf("convert listen addr: %w", err)
	}

	return &listener{ln: ln, addr: actual}, nil
}

// listener 包装 net.Listener 并携带 multiaddr 形式的监听地址
type listener struct {
	ln   net.Listener
	addr ma.Multiaddr
}

// 确保实现接口
var _ pkgif.Listener = (*listener)(nil)

// Accept 等待下一个入站连接
func (l *listener) Accept() (net.Conn, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	return conn, nil
}

// Multiaddr 返回实际监听地址
func (l *listener) Multiaddr() ma.Multiaddr {
	return l.addr
}

// Close 关闭监听器
func (l *listener) Close() error {
	return l.ln.Close()
}
