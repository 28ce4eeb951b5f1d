package interfaces

import (
	"context"

	"github.com/dmeshnet/go-dmesh/pkg/types"
)

// Message 一条送达本地订阅者的广播消息
type Message struct {
	// From 直接转发方（不一定是原始发布者）
	From types.PeerID

	// Topic 主题
	Topic string

	// Data 上层负载（对本层不透明）
	Data []byte
}

// Subscription 主题订阅
type Subscription interface {
	// Topic 返回订阅的主题
	Topic() string

	// Next 阻塞等待下一条消息
	//
	// 订阅被取消后返回订阅已取消错误。
	Next(ctx context.Context) (*Message, error)

	// Cancel 取消订阅
	Cancel()
}

// PubSub 主题广播引擎
//
// 洪泛转发 + 去重抑制：消息转发给除来源外的所有已连接节点，
// 指纹在 seen 过滤器驻留期间不会二次转发。不保证送达与顺序。
type PubSub interface {
	// Publish 向主题发布消息
	Publish(topic string, data []byte) error

	// Subscribe 订阅主题
	Subscribe(topic string) (Subscription, error)

	// Topics 返回当前有本地订阅者的主题
	Topics() []string
}
