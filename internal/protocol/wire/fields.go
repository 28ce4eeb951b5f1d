package wire

import (
	"errors"

	"github.com/multiformats/go-varint"
)

// 帧内字段编码辅助。协议消息（发现、gossip）把字段按
// [uvarint 长度][字节] 顺序排进一个帧里，这里提供 append/consume 对。

// ErrShortBuffer 字段声明长度超出剩余缓冲
var ErrShortBuffer = errors.New("short buffer: truncated field")

// AppendUvarint 追加一个 uvarint
func AppendUvarint(buf []byte, x uint64) []byte {
	return append(buf, varint.ToUvarint(x)...)
}

// ConsumeUvarint 读取一个 uvarint，返回剩余缓冲
func ConsumeUvarint(buf []byte) (uint64, []byte, error) {
	x, n, err := varint.FromUvarint(buf)
	if err != nil {
		return 0, nil, err
	}
	return x, buf[n:], nil
}

// AppendBytes 追加一个长度前缀字段
func AppendBytes(buf []byte, field []byte) []byte {
	buf = AppendUvarint(buf, uint64(len(field)))
	return append(buf, field...)
}

// ConsumeBytes 读取一个长度前缀字段，返回剩余缓冲
//
// 返回的字段是对输入缓冲的切片引用，调用方需要时自行拷贝。
func ConsumeBytes(buf []byte) ([]byte, []byte, error) {
	length, rest, err := ConsumeUvarint(buf)
	if err != nil {
		return nil, nil, err
	}
	if uint64(len(rest)) < length {
		return nil, nil, ErrShortBuffer
	}
	return rest[:length], rest[length:], nil
}

// AppendString 追加一个长度前缀字符串
func AppendString(buf []byte, s string) []byte {
	return AppendBytes(buf, []byte(s))
}

// ConsumeString 读取一个长度前缀字符串
func ConsumeString(buf []byte) (string, []byte, error) {
	b, rest, err := ConsumeBytes(buf)
	if err != nil {
		return "", nil, err
	}
	return string(b), rest, nil
}
