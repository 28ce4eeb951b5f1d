package swarm

import (
	"sync"
	"sync/atomic"
	"time"

	pkgif "github.com/dmeshnet/go-dmesh/pkg/interfaces"
	"github.com/dmeshnet/go-dmesh/pkg/types"
)

// session 一个已连接节点的全部活跃状态
//
// 由连接池独占持有：其他组件只通过 PeerID 发起请求，
// 不长期持有 session 内部的流引用。
type session struct {
	conn pkgif.UpgradedConn
	peer types.PeerID
	dir  types.Direction

	opened time.Time

	// lastActivity 最近一次流读写时间（unix 纳秒）
	lastActivity atomic.Int64

	closeOnce sync.Once
	closed    chan struct{}
}

// newSession 创建会话
func newSession(conn pkgif.UpgradedConn, now time.Time) *session {
	s := &session{
		conn:   conn,
		peer:   conn.RemotePeer(),
		dir:    conn.Direction(),
		opened: now,
		closed: make(chan struct{}),
	}
	s.lastActivity.Store(now.UnixNano())
	return s
}

// touch 记录一次流活动
func (s *session) touch(now time.Time) {
	s.lastActivity.Store(now.UnixNano())
}

// idleSince 返回最近活动时间
func (s *session) idleSince() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

// close 关闭会话（幂等）
//
// 关闭底层多路复用连接会取消所有流上阻塞中的读写。
func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.closed)
		_ = s.conn.Close()
	})
}
