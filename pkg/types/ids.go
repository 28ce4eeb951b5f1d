// Package types 定义 DMesh 的基础类型
//
// 这是整个系统的最底层包，不依赖任何其他 dmesh 内部包。
// 所有类型都是纯值类型，用于在各模块间传递数据。
package types

import (
	"bytes"
	"crypto/sha256"
	"errors"

	"github.com/mr-tron/base58"
)

// ============================================================================
//                              PeerID - 节点标识
// ============================================================================

// PeerID 节点唯一标识符
// 由公钥派生（Ed25519 公钥的 SHA256 哈希）
//
// 外部表示格式：
//   - String(): Base58 编码（用户可读、可分享）
//   - ShortString(): Base58 前缀（日志简短标识）
type PeerID [32]byte

// EmptyPeerID 空节点ID
var EmptyPeerID PeerID

// ErrInvalidPeerID 无效的节点ID错误
var ErrInvalidPeerID = errors.New("invalid peer ID: must be 32-byte Base58")

// PeerIDFromPublicKey 从 Ed25519 公钥原始字节派生 PeerID
//
// 派生是纯函数：同一公钥永远得到同一 PeerID。
func PeerIDFromPublicKey(pubKey []byte) PeerID {
	return PeerID(sha256.Sum256(pubKey))
}

// String 返回 PeerID 的 Base58 字符串表示
//
// 这是 PeerID 的规范外部表示，用于：
//   - 地址中的 /p2p/<PeerID>
//   - 用户间分享节点身份
//   - 配置文件
func (id PeerID) String() string {
	if id.IsEmpty() {
		return ""
	}
	return base58.Encode(id[:])
}

// ShortString 返回 PeerID 的短字符串表示
//
// 格式：Base58 前 8 个字符，用于日志中的简短标识。
func (id PeerID) ShortString() string {
	s := id.String()
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

// Bytes 返回 PeerID 的字节切片
func (id PeerID) Bytes() []byte {
	return id[:]
}

// Equal 比较两个 PeerID 是否相等
func (id PeerID) Equal(other PeerID) bool {
	return id == other
}

// Less 按字节序比较两个 PeerID
//
// 用于需要确定性排序的场景（如双向同时拨号的去重仲裁）。
func (id PeerID) Less(other PeerID) bool {
	return bytes.Compare(id[:], other[:]) < 0
}

// IsEmpty 检查 PeerID 是否为空
func (id PeerID) IsEmpty() bool {
	return id == EmptyPeerID
}

// PeerIDFromBytes 从字节切片创建 PeerID
func PeerIDFromBytes(b []byte) (PeerID, error) {
	if len(b) != 32 {
		return EmptyPeerID, ErrInvalidPeerID
	}
	var id PeerID
	copy(id[:], b)
	return id, nil
}

// ParsePeerID 从字符串解析 PeerID
//
// 仅支持 Base58 编码（用于用户输入和配置）。
func ParsePeerID(s string) (PeerID, error) {
	if s == "" {
		return EmptyPeerID, ErrInvalidPeerID
	}

	b, err := base58.Decode(s)
	if err != nil {
		return EmptyPeerID, ErrInvalidPeerID
	}
	if len(b) != 32 {
		return EmptyPeerID, ErrInvalidPeerID
	}

	var id PeerID
	copy(id[:], b)
	return id, nil
}
