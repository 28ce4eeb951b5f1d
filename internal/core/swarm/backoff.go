package swarm

import (
	"math/rand"
	"sync"
	"time"

	"github.com/dmeshnet/go-dmesh/pkg/types"
)

// backoff 按节点跟踪重试退避状态
//
// 延迟序列为 base * 2^(attempt-1) 加 ±10% 抖动，封顶于 cap。
// 因子 2 大于抖动带宽，连续两次延迟保证非递减。
type backoff struct {
	mu   sync.Mutex
	base time.Duration
	cap  time.Duration

	attempts map[types.PeerID]int
}

// newBackoff 创建退避跟踪器
func newBackoff(base, max time.Duration) *backoff {
	return &backoff{
		base:     base,
		cap:      max,
		attempts: make(map[types.PeerID]int),
	}
}

// next 记录一次失败并返回下次重试前的等待时间
func (b *backoff) next(p types.PeerID) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.attempts[p]++
	d := b.base << (b.attempts[p] - 1)
	if d > b.cap || d <= 0 {
		d = b.cap
	}

	// ±10% 抖动，避免整个 overlay 同步重连
	jitter := time.Duration(rand.Int63n(int64(d)/5+1)) - d/10
	return d + jitter
}

// count 返回节点已累计的失败次数
func (b *backoff) count(p types.PeerID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts[p]
}

// reset 清除节点的退避状态（连接成功后调用）
func (b *backoff) reset(p types.PeerID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.attempts, p)
}
