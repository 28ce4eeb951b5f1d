package types

// ============================================================================
//                              节点事件
// ============================================================================

// PeerEventKind 节点事件类型
type PeerEventKind int

const (
	// PeerEventConnected 节点连接建立
	PeerEventConnected PeerEventKind = iota
	// PeerEventDisconnected 节点连接断开
	PeerEventDisconnected
)

// String 返回事件类型的字符串表示
func (k PeerEventKind) String() string {
	switch k {
	case PeerEventConnected:
		return "connected"
	case PeerEventDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// PeerEvent 节点连接/断开事件
//
// 由连接池在会话建立/销毁时产生，经 Overlay 门面分发给
// 发现协议和上层订阅者。
type PeerEvent struct {
	// Kind 事件类型
	Kind PeerEventKind

	// Peer 相关节点
	Peer PeerID

	// Direction 连接方向（仅 Connected 事件有意义）
	Direction Direction

	// Reason 断开原因（仅 Disconnected 事件有意义，可为空）
	Reason string
}
