package interfaces

import (
	"github.com/dmeshnet/go-dmesh/pkg/types"
)

// PublicKey 公钥能力
type PublicKey interface {
	// Raw 返回公钥原始字节
	Raw() ([]byte, error)

	// Verify 验证签名
	Verify(data []byte, sig []byte) (bool, error)

	// Equals 比较两个公钥是否相同
	Equals(PublicKey) bool
}

// PrivateKey 私钥能力
type PrivateKey interface {
	// Raw 返回私钥原始字节
	Raw() ([]byte, error)

	// Sign 对数据签名
	Sign(data []byte) ([]byte, error)

	// PublicKey 返回对应的公钥
	PublicKey() PublicKey
}

// Identity 本地节点身份
//
// PeerID 由公钥确定性派生，同一密钥对跨重连身份不变。
type Identity interface {
	// PeerID 返回本地节点 ID
	PeerID() types.PeerID

	// PrivateKey 返回本地私钥
	PrivateKey() PrivateKey

	// PublicKey 返回本地公钥
	PublicKey() PublicKey
}
