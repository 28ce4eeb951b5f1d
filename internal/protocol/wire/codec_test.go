package wire

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/multiformats/go-varint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFrame_RoundTrip 测试帧编解码互逆
func TestFrame_RoundTrip(t *testing.T) {
	payloads := [][]byte{
		[]byte{0x01},
		[]byte("hello"),
		bytes.Repeat([]byte{0xab}, 1<<16),
		bytes.Repeat([]byte{0x00}, DefaultMaxFrameSize),
	}

	for _, p := range payloads {
		var buf bytes.Buffer
		require.NoError(t, WriteFrame(&buf, p, DefaultMaxFrameSize))

		got, err := ReadFrame(&buf, DefaultMaxFrameSize)
		require.NoError(t, err)
		assert.Equal(t, p, got)
		assert.Zero(t, buf.Len(), "frame should be fully consumed")
	}
}

// TestFrame_SenderRejects 测试发送侧超限拒绝
func TestFrame_SenderRejects(t *testing.T) {
	var buf bytes.Buffer
	err := WriteFrame(&buf, bytes.Repeat([]byte{0x01}, 11), 10)
	require.ErrorIs(t, err, ErrFrameTooLarge)
	assert.Zero(t, buf.Len(), "nothing should reach the wire")
}

// TestFrame_OversizedClaim 测试超限长度声明
//
// 声明 10 MiB 而上限 1 MiB 的帧必须被拒绝，且帧体不被消费，
// 由调用方丢弃连接。
func TestFrame_OversizedClaim(t *testing.T) {
	var buf bytes.Buffer
	buf.Write(varint.ToUvarint(10 << 20))
	buf.Write([]byte("garbage that must not be consumed"))
	bodyLen := buf.Len() - varint.UvarintSize(10<<20)

	_, err := ReadFrame(&buf, 1<<20)
	require.ErrorIs(t, err, ErrFrameTooLarge)
	assert.Equal(t, bodyLen, buf.Len(), "frame body must not be consumed")
}

// TestFrame_Truncated 测试截断帧
func TestFrame_Truncated(t *testing.T) {
	var full bytes.Buffer
	require.NoError(t, WriteFrame(&full, []byte("truncate me"), DefaultMaxFrameSize))

	trunc := bytes.NewReader(full.Bytes()[:full.Len()-3])
	_, err := ReadFrame(trunc, DefaultMaxFrameSize)
	require.Error(t, err)
}

// TestFrame_EOF 测试流结束
func TestFrame_EOF(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader(nil), DefaultMaxFrameSize)
	require.ErrorIs(t, err, io.EOF)
}

// TestCodec 测试绑定流的编解码器
func TestCodec(t *testing.T) {
	var buf bytes.Buffer
	c := NewCodec(&buf, 0)
	assert.EqualValues(t, DefaultMaxFrameSize, c.MaxSize())

	require.NoError(t, c.WriteFrame([]byte("ping")))
	got, err := c.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, []byte("ping"), got)
}

// TestFields_RoundTrip 测试帧内字段编解码
func TestFields_RoundTrip(t *testing.T) {
	buf := AppendString(nil, "blocks")
	buf = AppendBytes(buf, []byte{0xde, 0xad})
	buf = AppendUvarint(buf, 42)

	topic, rest, err := ConsumeString(buf)
	require.NoError(t, err)
	assert.Equal(t, "blocks", topic)

	field, rest, err := ConsumeBytes(rest)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xde, 0xad}, field)

	n, rest, err := ConsumeUvarint(rest)
	require.NoError(t, err)
	assert.EqualValues(t, 42, n)
	assert.Empty(t, rest)
}

// TestFields_Truncated 测试字段声明长度超出缓冲
func TestFields_Truncated(t *testing.T) {
	buf := AppendUvarint(nil, 100)
	buf = append(buf, []byte("short")...)

	_, _, err := ConsumeBytes(buf)
	require.True(t, errors.Is(err, ErrShortBuffer))
}
