package pubsub

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dmeshnet/go-dmesh/internal/core/metrics"
)

// seenFilter 近期消息指纹的有界集合
//
// 指纹截断为 8 字节后放入固定容量的 LRU：内存有界、容量满
// 时按近似插入序淘汰。驻留期间无假阴性；截断带来可忽略的
// 假阳性率（约 n/2^64），代价是极小概率丢弃一条合法新消息。
type seenFilter struct {
	mu      sync.Mutex
	cache   *lru.Cache[uint64, struct{}]
	metrics *metrics.Metrics
}

func newSeenFilter(capacity int, m *metrics.Metrics) (*seenFilter, error) {
	cache, err := lru.New[uint64, struct{}](capacity)
	if err != nil {
		return nil, fmt.Errorf("create seen filter: %w", err)
	}
	return &seenFilter{cache: cache, metrics: m}, nil
}

// testAndSet 原子地检查并登记指纹
//
// 返回 true 表示指纹已在过滤器中（重复消息）。
func (f *seenFilter) testAndSet(fp [sha256.Size]byte) bool {
	key := binary.BigEndian.Uint64(fp[:8])

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.cache.Get(key); ok {
		return true
	}
	f.cache.Add(key, struct{}{})
	f.metrics.FilterEntries.Set(float64(f.cache.Len()))
	return false
}

// len 当前条目数
func (f *seenFilter) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cache.Len()
}
