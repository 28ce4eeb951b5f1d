package noise

import "errors"

var (
	// ErrPeerIDMismatch 握手得到的远程身份与期望不符
	ErrPeerIDMismatch = errors.New("remote peer id mismatch")

	// ErrHandshakeTimeout 握手超时
	ErrHandshakeTimeout = errors.New("handshake timeout")

	// ErrIntegrity 密文完整性校验失败（被篡改或截断）
	ErrIntegrity = errors.New("integrity check failed")

	// ErrInvalidPayload 握手 payload 编码损坏
	ErrInvalidPayload = errors.New("invalid handshake payload")

	// ErrInvalidSignature 静态密钥与身份公钥的绑定签名无效
	ErrInvalidSignature = errors.New("invalid identity binding signature")
)
