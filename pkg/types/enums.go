package types

// ============================================================================
//                              Direction - 连接方向
// ============================================================================

// Direction 连接方向
type Direction int

const (
	// DirUnknown 未知方向
	DirUnknown Direction = iota
	// DirInbound 入站连接（对方拨号我们）
	DirInbound
	// DirOutbound 出站连接（我们拨号对方）
	DirOutbound
)

// String 返回方向的字符串表示
func (d Direction) String() string {
	switch d {
	case DirInbound:
		return "inbound"
	case DirOutbound:
		return "outbound"
	default:
		return "unknown"
	}
}

// ============================================================================
//                              Connectedness - 连接状态
// ============================================================================

// Connectedness 节点连接状态
//
// 状态机：Unknown → Dialing → Handshaking → Connected → Disconnected
// 拨号或握手失败进入退避重试，重试预算耗尽后回到 Disconnected。
type Connectedness int

const (
	// NotConnected 未连接（含从未接触过的节点）
	NotConnected Connectedness = iota
	// Dialing 正在拨号
	Dialing
	// Handshaking 正在安全握手
	Handshaking
	// Connected 已连接
	Connected
)

// String 返回连接状态的字符串表示
func (c Connectedness) String() string {
	switch c {
	case Dialing:
		return "dialing"
	case Handshaking:
		return "handshaking"
	case Connected:
		return "connected"
	default:
		return "not-connected"
	}
}
