package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/subtle"
	"fmt"

	pkgif "github.com/dmeshnet/go-dmesh/pkg/interfaces"
)

// ============================================================================
//                              Ed25519 密钥封装
// ============================================================================

// PublicKey Ed25519 公钥
type PublicKey struct {
	key ed25519.PublicKey
}

// 确保实现接口
var _ pkgif.PublicKey = (*PublicKey)(nil)

// Raw 返回公钥原始字节（32 字节）
func (p *PublicKey) Raw() ([]byte, error) {
	if p.key == nil {
		return nil, ErrNilKey
	}
	out := make([]byte, len(p.key))
	copy(out, p.key)
	return out, nil
}

// Verify 验证签名
func (p *PublicKey) Verify(data []byte, sig []byte) (bool, error) {
	if p.key == nil {
		return false, ErrNilKey
	}
	return ed25519.Verify(p.key, data, sig), nil
}

// Equals 比较两个公钥是否相同
func (p *PublicKey) Equals(other pkgif.PublicKey) bool {
	if other == nil {
		return false
	}
	a, err := p.Raw()
	if err != nil {
		return false
	}
	b, err := other.Raw()
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

// PrivateKey Ed25519 私钥
type PrivateKey struct {
	key ed25519.PrivateKey
}

// 确保实现接口
var _ pkgif.PrivateKey = (*PrivateKey)(nil)

// Raw 返回私钥原始字节（64 字节，含公钥后缀）
func (p *PrivateKey) Raw() ([]byte, error) {
	if p.key == nil {
		return nil, ErrNilKey
	}
	out := make([]byte, len(p.key))
	copy(out, p.key)
	return out, nil
}

// Sign 对数据签名
func (p *PrivateKey) Sign(data []byte) ([]byte, error) {
	if p.key == nil {
		return nil, ErrNilKey
	}
	return ed25519.Sign(p.key, data), nil
}

// PublicKey 返回对应的公钥
func (p *PrivateKey) PublicKey() pkgif.PublicKey {
	return &PublicKey{key: p.key.Public().(ed25519.PublicKey)}
}

// ============================================================================
//                              密钥构造
// ============================================================================

// GenerateKey 生成新的 Ed25519 密钥对
func GenerateKey() (*PrivateKey, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 key: %w", err)
	}
	return &PrivateKey{key: priv}, nil
}

// UnmarshalPrivateKey 从原始字节恢复私钥
func UnmarshalPrivateKey(raw []byte) (*PrivateKey, error) {
	if len(raw) != ed25519.PrivateKeySize {
		return nil, ErrInvalidKeySize
	}
	key := make(ed25519.PrivateKey, ed25519.PrivateKeySize)
	copy(key, raw)
	return &PrivateKey{key: key}, nil
}

// UnmarshalPublicKey 从原始字节恢复公钥
func UnmarshalPublicKey(raw []byte) (*PublicKey, error) {
	if len(raw) != ed25519.PublicKeySize {
		return nil, ErrInvalidKeySize
	}
	key := make(ed25519.PublicKey, ed25519.PublicKeySize)
	copy(key, raw)
	return &PublicKey{key: key}, nil
}
