// Package yamux 提供基于 hashicorp/yamux 的多路复用实现
//
// 一条安全连接被拆分为多条独立逻辑流：流之间独立流控
// （yamux 滑动窗口），流 ID 在连接生命周期内唯一且不复用。
// 底层连接关闭时，所有流上阻塞中的读写以 ErrChannelClosed 返回。
package yamux

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/hashicorp/yamux"

	pkgif "github.com/dmeshnet/go-dmesh/pkg/interfaces"
	"github.com/dmeshnet/go-dmesh/pkg/types"
)

// ErrChannelClosed 底层连接已关闭
var ErrChannelClosed = errors.New("channel closed")

// Muxer 封装 yamux.Session
type Muxer struct {
	session *yamux.Session
}

// 确保实现接口
var _ pkgif.Muxer = (*Muxer)(nil)

// Factory 多路复用器工厂
type Factory struct {
	config *Config
}

// 确保实现接口
var _ pkgif.MuxerFactory = (*Factory)(nil)

// NewFactory 创建 yamux 工厂
func NewFactory(cfg *Config) *Factory {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Factory{config: cfg}
}

// ID 返回协商用的协议 ID
func (f *Factory) ID() types.ProtocolID {
	return types.ProtoYamux
}

// NewMuxer 在安全连接上建立多路复用
func (f *Factory) NewMuxer(conn net.Conn, isServer bool) (pkgif.Muxer, error) {
	ycfg := f.config.toYamux()

	var session *yamux.Session
	var err error
	if isServer {
		session, err = yamux.Server(conn, ycfg)
	} else {
		session, err = yamux.Client(conn, ycfg)
	}
	if err != nil {
		return nil, fmt.Errorf("create yamux session: %w", err)
	}
	return &Muxer{session: session}, nil
}

// OpenStream 打开一条新的出站流
func (m *Muxer) OpenStream(ctx context.Context) (pkgif.MuxedStream, error) {
	if m.session.IsClosed() {
		return nil, ErrChannelClosed
	}

	// yamux 的 OpenStream 不接受 context，在独立 goroutine 中等待
	type result struct {
		stream *yamux.Stream
		err    error
	}
	resultCh := make(chan result, 1)
	go func() {
		s, err := m.session.OpenStream()
		select {
		case resultCh <- result{stream: s, err: err}:
		default:
			// context 已取消，关闭孤立的流防止泄漏
			if s != nil {
				_ = s.Close()
			}
		}
	}()

	select {
	case r := <-resultCh:
		if r.err != nil {
			return nil, mapErr(r.err)
		}
		return &stream{s: r.stream}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// AcceptStream 等待远端打开的下一条入站流
func (m *Muxer) AcceptStream() (pkgif.MuxedStream, error) {
	s, err := m.session.AcceptStream()
	if err != nil {
		return nil, mapErr(err)
	}
	return &stream{s: s}, nil
}

// Close 关闭底层连接及其上所有流
func (m *Muxer) Close() error {
	return m.session.Close()
}

// IsClosed 报告连接是否已关闭
func (m *Muxer) IsClosed() bool {
	return m.session.IsClosed()
}

// NumStreams 返回当前打开的流数量
func (m *Muxer) NumStreams() int {
	return m.session.NumStreams()
}

// CloseChan 返回连接关闭通知通道
func (m *Muxer) CloseChan() <-chan struct{} {
	return m.session.CloseChan()
}

// mapErr 将 yamux 的关闭类错误映射为 ErrChannelClosed
func mapErr(err error) error {
	switch {
	case errors.Is(err, yamux.ErrSessionShutdown),
		errors.Is(err, yamux.ErrStreamClosed),
		errors.Is(err, yamux.ErrConnectionReset),
		errors.Is(err, yamux.ErrRemoteGoAway),
		errors.Is(err, io.EOF),
		errors.Is(err, net.ErrClosed):
		return fmt.Errorf("%w: %v", ErrChannelClosed, err)
	default:
		return err
	}
}
