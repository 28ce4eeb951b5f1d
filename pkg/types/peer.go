package types

import (
	"errors"
	"fmt"
	"strings"
	"time"

	ma "github.com/multiformats/go-multiaddr"
)

// ============================================================================
//                              AddrInfo - 拨号目标
// ============================================================================

// AddrInfo 节点 ID 与其网络地址的组合
//
// 作为拨号目标在各模块间传递。Addrs 为 multiaddr 格式，
// 例如 /ip4/1.2.3.4/tcp/7650。
type AddrInfo struct {
	ID    PeerID
	Addrs []ma.Multiaddr
}

// ErrInvalidAddrInfo 无法从地址中解析节点信息
var ErrInvalidAddrInfo = errors.New("invalid addr info: missing /p2p suffix")

// p2pSuffix 完整节点地址中 PeerID 部分的分隔符
const p2pSuffix = "/p2p/"

// ParseAddrInfo 从带 /p2p/<PeerID> 后缀的地址字符串解析 AddrInfo
//
// 示例：/ip4/10.0.0.1/tcp/7650/p2p/5Q2STWvB...
//
// PeerID 为 Base58 编码的 32 字节哈希，不是 multihash，
// 因此 /p2p 部分由本函数处理，不交给 multiaddr 解析。
func ParseAddrInfo(s string) (AddrInfo, error) {
	idx := strings.LastIndex(s, p2pSuffix)
	if idx < 0 {
		return AddrInfo{}, ErrInvalidAddrInfo
	}

	id, err := ParsePeerID(s[idx+len(p2pSuffix):])
	if err != nil {
		return AddrInfo{}, err
	}

	info := AddrInfo{ID: id}
	if idx > 0 {
		addr, err := ma.NewMultiaddr(s[:idx])
		if err != nil {
			return AddrInfo{}, fmt.Errorf("parse multiaddr: %w", err)
		}
		info.Addrs = []ma.Multiaddr{addr}
	}
	return info, nil
}

// FullAddrs 返回带 /p2p/<PeerID> 后缀的完整地址字符串列表
//
// 输出可直接喂回 ParseAddrInfo。
func (ai AddrInfo) FullAddrs() []string {
	out := make([]string, 0, len(ai.Addrs))
	for _, a := range ai.Addrs {
		out = append(out, a.String()+p2pSuffix+ai.ID.String())
	}
	return out
}

// String 返回 AddrInfo 的可读表示
func (ai AddrInfo) String() string {
	var sb strings.Builder
	sb.WriteString(ai.ID.ShortString())
	for _, a := range ai.Addrs {
		sb.WriteString(" ")
		sb.WriteString(a.String())
	}
	return sb.String()
}

// ============================================================================
//                              PeerRecord - 已知节点记录
// ============================================================================

// PeerRecord 已知节点的完整记录
//
// 生命周期：首次接触或发现协议提及时创建；每次成功拨号/接受连接
// 或收到发现消息时刷新地址和 LastSeen；长期不可达或表容量压力下
// 按 LastSeen 最旧优先淘汰。
type PeerRecord struct {
	// ID 节点标识
	ID PeerID

	// Addrs 已知网络地址（去重）
	Addrs []ma.Multiaddr

	// LastSeen 最近一次活动时间
	LastSeen time.Time

	// Reputation 信誉计数
	// 成功连接加分，握手失败/协议违规减分；范围被钳制。
	Reputation int
}

// Clone 返回记录的深拷贝
//
// Peerstore 对外返回拷贝，调用方不能借此修改内部状态。
func (r PeerRecord) Clone() PeerRecord {
	out := r
	out.Addrs = make([]ma.Multiaddr, len(r.Addrs))
	copy(out.Addrs, r.Addrs)
	return out
}
