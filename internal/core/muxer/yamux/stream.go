package yamux

import (
	"time"

	"github.com/hashicorp/yamux"

	pkgif "github.com/dmeshnet/go-dmesh/pkg/interfaces"
)

// stream 封装 yamux.Stream
type stream struct {
	s *yamux.Stream
}

// 确保实现接口
var _ pkgif.MuxedStream = (*stream)(nil)

// ID 返回流标识
func (st *stream) ID() uint32 {
	return st.s.StreamID()
}

// Read 从流读取数据
func (st *stream) Read(p []byte) (int, error) {
	n, err := st.s.Read(p)
	if err != nil {
		return n, mapErr(err)
	}
	return n, nil
}

// Write 向流写入数据
func (st *stream) Write(p []byte) (int, error) {
	n, err := st.s.Write(p)
	if err != nil {
		return n, mapErr(err)
	}
	return n, nil
}

// Close 关闭流
func (st *stream) Close() error {
	return st.s.Close()
}

// SetDeadline 设置读写截止时间
func (st *stream) SetDeadline(t time.Time) error {
	return st.s.SetDeadline(t)
}

// SetReadDeadline 设置读截止时间
func (st *stream) SetReadDeadline(t time.Time) error {
	return st.s.SetReadDeadline(t)
}

// SetWriteDeadline 设置写截止时间
func (st *stream) SetWriteDeadline(t time.Time) error {
	return st.s.SetWriteDeadline(t)
}
