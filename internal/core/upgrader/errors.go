package upgrader

import "errors"

var (
	// ErrNoSecurityTransport 缺少安全传输
	ErrNoSecurityTransport = errors.New("no security transport")

	// ErrNoStreamMuxer 缺少多路复用器
	ErrNoStreamMuxer = errors.New("no stream muxer")

	// ErrNoPeerID 出站升级缺少目标 PeerID
	ErrNoPeerID = errors.New("outbound upgrade requires peer id")
)
