package interfaces

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/dmeshnet/go-dmesh/pkg/types"
)

// MuxedStream 多路复用连接上的一条独立逻辑流
//
// 流之间独立流控，一条阻塞的流不会拖住同一连接上的其他流。
// 底层连接关闭时，所有流上阻塞中的读写以连接已关闭错误返回。
type MuxedStream interface {
	io.ReadWriteCloser

	// ID 返回流标识，在连接生命周期内唯一且不复用
	ID() uint32

	// SetDeadline 设置读写截止时间
	SetDeadline(t time.Time) error

	// SetReadDeadline 设置读截止时间
	SetReadDeadline(t time.Time) error

	// SetWriteDeadline 设置写截止时间
	SetWriteDeadline(t time.Time) error
}

// Muxer 将一条安全连接拆分为多条独立逻辑流
type Muxer interface {
	// OpenStream 打开一条新的出站流
	OpenStream(ctx context.Context) (MuxedStream, error)

	// AcceptStream 等待远端打开的下一条入站流
	AcceptStream() (MuxedStream, error)

	// Close 关闭底层连接及其上所有流
	Close() error

	// IsClosed 报告连接是否已关闭
	IsClosed() bool

	// NumStreams 返回当前打开的流数量
	NumStreams() int
}

// MuxerFactory 从安全连接创建多路复用器
type MuxerFactory interface {
	// ID 返回 multistream 协商用的协议 ID
	ID() types.ProtocolID

	// NewMuxer 在安全连接上建立多路复用
	//
	// isServer 指示本端是否为入站方（决定 yamux 客户端/服务端角色）。
	NewMuxer(conn net.Conn, isServer bool) (Muxer, error)
}
