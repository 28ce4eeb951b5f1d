// Package wire 实现流上的定界消息编解码
//
// 每条消息为 [uvarint 长度][负载字节]。长度前缀超过配置上限的
// 帧被拒绝且不读取帧体——此时帧边界已无法信任，调用方必须
// 丢弃整条连接而不是试图重新同步。
package wire

import (
	"errors"
	"fmt"
	"io"

	"github.com/multiformats/go-varint"
)

// DefaultMaxFrameSize 默认最大帧长（1 MiB）
const DefaultMaxFrameSize = 1 << 20

var (
	// ErrFrameTooLarge 帧长度超过配置上限
	ErrFrameTooLarge = errors.New("frame too large")

	// ErrEmptyFrame 零长度帧
	ErrEmptyFrame = errors.New("empty frame")
)

// WriteFrame 向 w 写入一条带长度前缀的消息
//
// 发送侧同样执行上限检查，本地超限负载不会进入网络。
func WriteFrame(w io.Writer, payload []byte, maxSize uint64) error {
	if uint64(len(payload)) > maxSize {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(payload), maxSize)
	}

	header := varint.ToUvarint(uint64(len(payload)))
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write frame body: %w", err)
	}
	return nil
}

// ReadFrame 从 r 读取一条带长度前缀的消息
//
// 长度声明超过 maxSize 时返回 ErrFrameTooLarge，且不消费帧体。
func ReadFrame(r io.Reader, maxSize uint64) ([]byte, error) {
	length, err := varint.ReadUvarint(&byteReader{r: r})
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read frame header: %w", err)
	}

	if length > maxSize {
		return nil, fmt.Errorf("%w: claimed %d > %d", ErrFrameTooLarge, length, maxSize)
	}
	if length == 0 {
		return nil, ErrEmptyFrame
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read frame body: %w", err)
	}
	return payload, nil
}

// byteReader 在未缓冲的流上按单字节读取 uvarint
//
// 不能用 bufio：多读的字节属于下一帧，会破坏帧边界。
type byteReader struct {
	r io.Reader
}

func (b *byteReader) ReadByte() (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(b.r, buf[:]); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// ============================================================================
//                              Codec
// ============================================================================

// Codec 绑定到一条流的帧编解码器
type Codec struct {
	rw      io.ReadWriter
	maxSize uint64
}

// NewCodec 创建绑定流的编解码器
//
// maxSize 为 0 时使用 DefaultMaxFrameSize。
func NewCodec(rw io.ReadWriter, maxSize uint64) *Codec {
	if maxSize == 0 {
		maxSize = DefaultMaxFrameSize
	}
	return &Codec{rw: rw, maxSize: maxSize}
}

// WriteFrame 写入一条消息
func (c *Codec) WriteFrame(payload []byte) error {
	return WriteFrame(c.rw, payload, c.maxSize)
}

// ReadFrame 读取一条消息
func (c *Codec) ReadFrame() ([]byte, error) {
	return ReadFrame(c.rw, c.maxSize)
}

// MaxSize 返回编解码器的帧长上限
func (c *Codec) MaxSize() uint64 {
	return c.maxSize
}
