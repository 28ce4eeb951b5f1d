package types

// ProtocolID 流协议标识符
//
// 每条多路复用流在打开时通过 multistream-select 协商一个 ProtocolID，
// 之后流上的所有帧语义由该协议决定。
type ProtocolID string

// String 返回协议 ID 字符串
func (p ProtocolID) String() string {
	return string(p)
}

// DMesh 内置协议
const (
	// ProtoNoise 安全传输协商 ID
	ProtoNoise ProtocolID = "/dmesh/noise/1.0.0"

	// ProtoYamux 多路复用协商 ID
	ProtoYamux ProtocolID = "/dmesh/yamux/1.0.0"

	// ProtoDiscovery 节点发现协议
	ProtoDiscovery ProtocolID = "/dmesh/discovery/1.0.0"

	// ProtoGossip 主题广播协议
	ProtoGossip ProtocolID = "/dmesh/gossip/1.0.0"
)
