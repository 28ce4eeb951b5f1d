package interfaces

import (
	ma "github.com/multiformats/go-multiaddr"

	"github.com/dmeshnet/go-dmesh/pkg/types"
)

// Peerstore 已知节点表
//
// 被发现协议、连接池和 gossip 引擎并发读写，实现必须并发安全。
// 容量固定，超出时按 LastSeen 最旧优先淘汰。
type Peerstore interface {
	// AddAddrs 合并节点地址（去重）并刷新 LastSeen
	AddAddrs(p types.PeerID, addrs []ma.Multiaddr)

	// Addrs 返回节点的已知地址
	Addrs(p types.PeerID) []ma.Multiaddr

	// Record 返回节点记录的拷贝
	Record(p types.PeerID) (types.PeerRecord, bool)

	// Records 返回全部记录的拷贝
	Records() []types.PeerRecord

	// UpdateLastSeen 刷新节点最近活动时间
	UpdateLastSeen(p types.PeerID)

	// BumpReputation 调整节点信誉（delta 可为负），结果被钳制
	BumpReputation(p types.PeerID, delta int)

	// Reputation 返回节点当前信誉
	Reputation(p types.PeerID) int

	// RemovePeer 删除节点记录
	RemovePeer(p types.PeerID)

	// Len 返回记录数量
	Len() int
}
