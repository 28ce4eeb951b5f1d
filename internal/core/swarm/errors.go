package swarm

import (
	"errors"
	"fmt"

	"github.com/dmeshnet/go-dmesh/pkg/types"
)

var (
	// ErrSwarmClosed Swarm 已关闭
	ErrSwarmClosed = errors.New("swarm closed")

	// ErrNoAddresses 没有可用地址
	ErrNoAddresses = errors.New("no addresses")

	// ErrNoConnection 没有到该节点的连接
	ErrNoConnection = errors.New("no connection to peer")

	// ErrDialToSelf 尝试拨号自己
	ErrDialToSelf = errors.New("dial to self attempted")

	// ErrNoTransport 没有能拨号该地址的传输层
	ErrNoTransport = errors.New("no transport for address")
)

// DialError 拨号错误，聚合多个地址的失败原因
type DialError struct {
	Peer   types.PeerID
	Errors []error
}

func (e *DialError) Error() string {
	if len(e.Errors) == 0 {
		return fmt.Sprintf("failed to dial %s: unknown error", e.Peer.ShortString())
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("failed to dial %s: %v", e.Peer.ShortString(), e.Errors[0])
	}
	return fmt.Sprintf("failed to dial %s: %d errors: %v", e.Peer.ShortString(), len(e.Errors), e.Errors)
}

// Unwrap 返回第一个错误
func (e *DialError) Unwrap() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e.Errors[0]
}
