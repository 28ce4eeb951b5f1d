package swarm

import (
	"time"

	pkgif "github.com/dmeshnet/go-dmesh/pkg/interfaces"
	"github.com/dmeshnet/go-dmesh/pkg/types"
)

// stream 绑定协议的逻辑流
//
// 在多路复用流之上附加协议 ID 和会话信息，并把读写活动
// 反馈给空闲检测。
type stream struct {
	pkgif.MuxedStream

	proto types.ProtocolID
	sess  *session
	sw    *Swarm
}

// 确保实现接口
var _ pkgif.Stream = (*stream)(nil)

// Read 从流读取数据
func (st *stream) Read(p []byte) (int, error) {
	n, err := st.MuxedStream.Read(p)
	if n > 0 {
		st.sess.touch(st.sw.clock.Now())
		st.sw.metrics.IncomingTraffic.WithLabelValues(string(st.proto)).Add(float64(n))
	}
	return n, err
}

// Write 向流写入数据
func (st *stream) Write(p []byte) (int, error) {
	n, err := st.MuxedStream.Write(p)
	if n > 0 {
		st.sess.touch(st.sw.clock.Now())
		st.sw.metrics.OutgoingTraffic.WithLabelValues(string(st.proto)).Add(float64(n))
	}
	return n, err
}

// SetDeadline 设置读写截止时间
func (st *stream) SetDeadline(t time.Time) error {
	return st.MuxedStream.SetDeadline(t)
}

// Protocol 返回协商的协议 ID
func (st *stream) Protocol() types.ProtocolID {
	return st.proto
}

// RemotePeer 返回对端节点 ID
func (st *stream) RemotePeer() types.PeerID {
	return st.sess.peer
}

// Direction 返回所属连接的方向
func (st *stream) Direction() types.Direction {
	return st.sess.dir
}
