package noise

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	pkgif "github.com/dmeshnet/go-dmesh/pkg/interfaces"
	"github.com/dmeshnet/go-dmesh/pkg/lib/log"
	"github.com/dmeshnet/go-dmesh/pkg/types"
)

var logger = log.Logger("core/security/noise")

// DefaultHandshakeTimeout 默认握手超时
const DefaultHandshakeTimeout = 15 * time.Second

// Transport Noise 安全传输
type Transport struct {
	identity         pkgif.Identity
	handshakeTimeout time.Duration
}

// 确保实现接口
var _ pkgif.SecureTransport = (*Transport)(nil)

// Option Transport 配置选项
type Option func(*Transport)

// WithHandshakeTimeout 设置握手超时
func WithHandshakeTimeout(d time.Duration) Option {
	return func(t *Transport) {
		t.handshakeTimeout = d
	}
}

// New 创建 Noise 安全传输
func New(ident pkgif.Identity, opts ...Option) (*Transport, error) {
	if ident == nil {
		return nil, errors.New("nil identity")
	}
	t := &Transport{
		identity:         ident,
		handshakeTimeout: DefaultHandshakeTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// ID 返回协商用的协议 ID
func (t *Transport) ID() types.ProtocolID {
	return types.ProtoNoise
}

// SecureOutbound 升级出站连接
//
// expected 不能为空：拨号方必须知道目标身份，握手结果与其
// 不符时返回 ErrPeerIDMismatch。
func (t *Transport) SecureOutbound(ctx context.Context, conn net.Conn, expected types.PeerID) (pkgif.SecureConn, error) {
	if expected.IsEmpty() {
		return nil, errors.New("outbound handshake requires expected peer id")
	}
	return t.secure(ctx, conn, expected, true)
}

// SecureInbound 升级入站连接
func (t *Transport) SecureInbound(ctx context.Context, conn net.Conn) (pkgif.SecureConn, error) {
	return t.secure(ctx, conn, types.EmptyPeerID, false)
}

// secure 执行握手并应用超时
func (t *Transport) secure(ctx context.Context, conn net.Conn, expected types.PeerID, isInitiator bool) (pkgif.SecureConn, error) {
	deadline := time.Now().Add(t.handshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set handshake deadline: %w", err)
	}

	sc, err := performHandshake(conn, t.identity.PrivateKey(), expected, isInitiator)
	if err != nil {
		conn.Close()
		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %v", ErrHandshakeTimeout, err)
		}
		return nil, err
	}

	// 清除握手截止时间，后续读写由调用方控制
	if err := conn.SetDeadline(time.Time{}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("clear handshake deadline: %w", err)
	}

	logger.Debug("握手完成",
		"remote", sc.RemotePeer().ShortString(),
		"initiator", isInitiator)
	return sc, nil
}

// isTimeout 判断错误链中是否包含网络超时
func isTimeout(err error) bool {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	return errors.Is(err, os.ErrDeadlineExceeded)
}
