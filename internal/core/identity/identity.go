// Package identity 提供节点身份管理
//
// 节点身份由一对 Ed25519 密钥构成，PeerID 为公钥的 SHA256 哈希。
// 派生是纯函数：同一密钥对跨重连、跨进程得到同一 PeerID。
package identity

import (
	"fmt"

	pkgif "github.com/dmeshnet/go-dmesh/pkg/interfaces"
	"github.com/dmeshnet/go-dmesh/pkg/types"
)

// Identity 本地节点身份
type Identity struct {
	priv *PrivateKey
	id   types.PeerID
}

// 确保实现接口
var _ pkgif.Identity = (*Identity)(nil)

// New 生成新身份
func New() (*Identity, error) {
	priv, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	return FromPrivateKey(priv)
}

// FromPrivateKey 从已有私钥构造身份
func FromPrivateKey(priv *PrivateKey) (*Identity, error) {
	if priv == nil {
		return nil, ErrNilKey
	}
	id, err := Derive(priv.PublicKey())
	if err != nil {
		return nil, err
	}
	return &Identity{priv: priv, id: id}, nil
}

// PeerID 返回本地节点 ID
func (i *Identity) PeerID() types.PeerID {
	return i.id
}

// PrivateKey 返回本地私钥
func (i *Identity) PrivateKey() pkgif.PrivateKey {
	return i.priv
}

// PublicKey 返回本地公钥
func (i *Identity) PublicKey() pkgif.PublicKey {
	return i.priv.PublicKey()
}

// ============================================================================
//                              PeerID 派生
// ============================================================================

// Derive 从公钥派生 PeerID
//
// 纯函数，无副作用：PeerID = SHA256(公钥原始字节)。
func Derive(pub pkgif.PublicKey) (types.PeerID, error) {
	raw, err := pub.Raw()
	if err != nil {
		return types.EmptyPeerID, fmt.Errorf("get public key bytes: %w", err)
	}
	return types.PeerIDFromPublicKey(raw), nil
}

// Encode 返回 PeerID 的规范字符串编码
func Encode(id types.PeerID) string {
	return id.String()
}

// Decode 从字符串解析 PeerID
//
// 与 Encode 严格互逆；仅解码格式错误会失败。
func Decode(s string) (types.PeerID, error) {
	return types.ParsePeerID(s)
}
