package pubsub

import (
	"context"
	"sync"

	pkgif "github.com/dmeshnet/go-dmesh/pkg/interfaces"
)

// subscription 一个本地订阅
type subscription struct {
	topic  string
	ch     chan *pkgif.Message
	engine *PubSub

	cancelOnce sync.Once
	cancelled  chan struct{}
}

// 确保实现接口
var _ pkgif.Subscription = (*subscription)(nil)

// Topic 返回订阅的主题
func (s *subscription) Topic() string {
	return s.topic
}

// Next 阻塞等待下一条消息
func (s *subscription) Next(ctx context.Context) (*pkgif.Message, error) {
	select {
	case msg := <-s.ch:
		return msg, nil
	case <-s.cancelled:
		// 取消后先排空已缓冲的消息
		select {
		case msg := <-s.ch:
			return msg, nil
		default:
			return nil, ErrSubscriptionCancelled
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel 取消订阅（幂等）
func (s *subscription) Cancel() {
	s.cancelOnce.Do(func() {
		close(s.cancelled)
		s.engine.removeSubscription(s)
	})
}

// deliver 投递消息，通道满时丢最旧
//
// 本地慢订阅者永远不会反压引擎。
func (s *subscription) deliver(msg *pkgif.Message) {
	for {
		select {
		case s.ch <- msg:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}
