// Package peerstore 实现已知节点表
//
// 表被发现协议、连接池和 gossip 引擎并发读写。容量固定，
// 新记录触发超限时按 LastSeen 最旧优先淘汰。
package peerstore

import (
	"sort"
	"sync"

	"github.com/benbjohnson/clock"
	ma "github.com/multiformats/go-multiaddr"

	pkgif "github.com/dmeshnet/go-dmesh/pkg/interfaces"
	"github.com/dmeshnet/go-dmesh/pkg/lib/log"
	"github.com/dmeshnet/go-dmesh/pkg/types"
)

var logger = log.Logger("core/peerstore")

// 信誉钳制范围
const (
	minReputation = -100
	maxReputation = 100
)

// DefaultMaxPeers 默认已知节点容量
const DefaultMaxPeers = 1024

// Peerstore 已知节点表
type Peerstore struct {
	mu       sync.RWMutex
	records  map[types.PeerID]*types.PeerRecord
	maxPeers int
	clock    clock.Clock
}

// 确保实现接口
var _ pkgif.Peerstore = (*Peerstore)(nil)

// Option Peerstore 配置选项
type Option func(*Peerstore)

// WithMaxPeers 设置容量上限
func WithMaxPeers(n int) Option {
	return func(ps *Peerstore) {
		if n > 0 {
			ps.maxPeers = n
		}
	}
}

// WithClock 注入时钟（测试用）
func WithClock(c clock.Clock) Option {
	return func(ps *Peerstore) {
		ps.clock = c
	}
}

// New 创建节点表
func New(opts ...Option) *Peerstore {
	ps := &Peerstore{
		records:  make(map[types.PeerID]*types.PeerRecord),
		maxPeers: DefaultMaxPeers,
		clock:    clock.New(),
	}
	for _, opt := range opts {
		opt(ps)
	}
	return ps
}

// AddAddrs 合并节点地址并刷新 LastSeen
//
// 地址去重；节点不存在时创建记录，可能触发淘汰。
func (ps *Peerstore) AddAddrs(p types.PeerID, addrs []ma.Multiaddr) {
	if p.IsEmpty() {
		return
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	rec, ok := ps.records[p]
	if !ok {
		ps.evictLocked(1)
		rec = &types.PeerRecord{ID: p}
		ps.records[p] = rec
	}
	rec.LastSeen = ps.clock.Now()

	for _, addr := range addrs {
		if addr == nil {
			continue
		}
		dup := false
		for _, have := range rec.Addrs {
			if have.Equal(addr) {
				dup = true
				break
			}
		}
		if !dup {
			rec.Addrs = append(rec.Addrs, addr)
		}
	}
}

// Addrs 返回节点的已知地址
func (ps *Peerstore) Addrs(p types.PeerID) []ma.Multiaddr {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	rec, ok := ps.records[p]
	if !ok {
		return nil
	}
	out := make([]ma.Multiaddr, len(rec.Addrs))
	copy(out, rec.Addrs)
	return out
}

// Record 返回节点记录的拷贝
func (ps *Peerstore) Record(p types.PeerID) (types.PeerRecord, bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	rec, ok := ps.records[p]
	if !ok {
		return types.PeerRecord{}, false
	}
	return rec.Clone(), true
}

// Records 返回全部记录的拷贝
func (ps *Peerstore) Records() []types.PeerRecord {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	out := make([]types.PeerRecord, 0, len(ps.records))
	for _, rec := range ps.records {
		out = append(out, rec.Clone())
	}
	return out
}

// UpdateLastSeen 刷新节点最近活动时间
func (ps *Peerstore) UpdateLastSeen(p types.PeerID) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if rec, ok := ps.records[p]; ok {
		rec.LastSeen = ps.clock.Now()
	}
}

// BumpReputation 调整节点信誉，结果钳制在 [-100, 100]
func (ps *Peerstore) BumpReputation(p types.PeerID, delta int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	rec, ok := ps.records[p]
	if !ok {
		return
	}
	rec.Reputation += delta
	if rec.Reputation > maxReputation {
		rec.Reputation = maxReputation
	}
	if rec.Reputation < minReputation {
		rec.Reputation = minReputation
	}
}

// Reputation 返回节点当前信誉
func (ps *Peerstore) Reputation(p types.PeerID) int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	if rec, ok := ps.records[p]; ok {
		return rec.Reputation
	}
	return 0
}

// RemovePeer 删除节点记录
func (ps *Peerstore) RemovePeer(p types.PeerID) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	delete(ps.records, p)
}

// Len 返回记录数量
func (ps *Peerstore) Len() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	return len(ps.records)
}

// evictLocked 腾出 need 个空位
//
// 按 LastSeen 升序淘汰最久未活动的记录。调用方持锁。
func (ps *Peerstore) evictLocked(need int) {
	over := len(ps.records) + need - ps.maxPeers
	if over <= 0 {
		return
	}

	victims := make([]*types.PeerRecord, 0, len(ps.records))
	for _, rec := range ps.records {
		victims = append(victims, rec)
	}
	sort.Slice(victims, func(i, j int) bool {
		return victims[i].LastSeen.Before(victims[j].LastSeen)
	})

	for i := 0; i < over && i < len(victims); i++ {
		logger.Debug("淘汰最久未见节点", "peer", victims[i].ID.ShortString())
		delete(ps.records, victims[i].ID)
	}
}
