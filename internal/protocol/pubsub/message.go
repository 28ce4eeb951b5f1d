package pubsub

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"github.com/dmeshnet/go-dmesh/internal/protocol/wire"
)

// seedSize 指纹种子长度
const seedSize = 8

// message gossip 线上消息
//
// 指纹 = SHA-256(编码后的完整消息)，永远由接收方本地计算，
// 不信任发送方声称的任何摘要。种子由原始发布者随机生成，
// 让相同负载的两次发布得到不同指纹。
type message struct {
	Topic   string
	Seed    []byte
	Payload []byte
}

// newMessage 为本地发布构造消息
func newMessage(topic string, payload []byte) (*message, error) {
	seed := make([]byte, seedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("generate seed: %w", err)
	}
	return &message{Topic: topic, Seed: seed, Payload: payload}, nil
}

// marshal 编码消息
func (m *message) marshal() []byte {
	buf := wire.AppendString(nil, m.Topic)
	buf = wire.AppendBytes(buf, m.Seed)
	buf = wire.AppendBytes(buf, m.Payload)
	return buf
}

// unmarshal 解码消息
func (m *message) unmarshal(data []byte) error {
	topic, rest, err := wire.ConsumeString(data)
	if err != nil {
		return fmt.Errorf("decode topic: %w", err)
	}
	seed, rest, err := wire.ConsumeBytes(rest)
	if err != nil {
		return fmt.Errorf("decode seed: %w", err)
	}
	payload, rest, err := wire.ConsumeBytes(rest)
	if err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if len(rest) != 0 {
		return fmt.Errorf("trailing bytes in message")
	}
	m.Topic = topic
	m.Seed = seed
	m.Payload = payload
	return nil
}

// fingerprint 计算消息指纹
//
// 对长度定界的编码整体取哈希，避免字段拼接歧义。
func (m *message) fingerprint() [sha256.Size]byte {
	return sha256.Sum256(m.marshal())
}
