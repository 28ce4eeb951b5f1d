package identity

import "errors"

var (
	// ErrInvalidKeySize 密钥长度错误
	ErrInvalidKeySize = errors.New("invalid key size")

	// ErrNilKey 密钥为空
	ErrNilKey = errors.New("nil key")

	// ErrInvalidKeyFile 密钥文件内容损坏
	ErrInvalidKeyFile = errors.New("invalid key file")
)
