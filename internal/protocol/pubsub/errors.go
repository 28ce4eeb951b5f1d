package pubsub

import "errors"

var (
	// ErrPubSubClosed 引擎已关闭
	ErrPubSubClosed = errors.New("pubsub closed")

	// ErrSubscriptionCancelled 订阅已取消
	ErrSubscriptionCancelled = errors.New("subscription cancelled")

	// ErrOversizedPayload 负载超过主题上限
	ErrOversizedPayload = errors.New("payload exceeds topic limit")

	// ErrEmptyTopic 主题不能为空
	ErrEmptyTopic = errors.New("topic cannot be empty")
)
