package pubsub

import "time"

// Config gossip 引擎配置
type Config struct {
	// FilterCapacity seen 过滤器容量（条）
	FilterCapacity int

	// DefaultMaxPayload 主题负载默认上限（字节）
	DefaultMaxPayload int

	// TopicMaxPayload 按主题覆盖的负载上限
	TopicMaxPayload map[string]int

	// RateLimit 单个对端的出站消息速率（条/秒）
	RateLimit float64

	// RateBurst 令牌桶突发容量
	RateBurst int

	// BacklogSize 单个对端的出站积压队列长度，溢出即丢弃
	BacklogSize int

	// SubscriberBuffer 本地订阅通道缓冲，写满时丢最旧
	SubscriberBuffer int

	// WriteTimeout 单条消息的流写入超时
	WriteTimeout time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		FilterCapacity:    8192,
		DefaultMaxPayload: 512 * 1024,
		RateLimit:         256,
		RateBurst:         64,
		BacklogSize:       128,
		SubscriberBuffer:  64,
		WriteTimeout:      10 * time.Second,
	}
}

// maxPayload 返回主题的负载上限
func (c *Config) maxPayload(topic string) int {
	if limit, ok := c.TopicMaxPayload[topic]; ok {
		return limit
	}
	return c.DefaultMaxPayload
}
