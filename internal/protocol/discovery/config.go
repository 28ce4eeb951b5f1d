package discovery

import "time"

const (
	// maxEntriesPerMessage 单条响应允许的最大记录数（解码侧防护）
	maxEntriesPerMessage = 256

	// maxAddrsPerEntry 单条记录允许的最大地址数
	maxAddrsPerEntry = 16

	// maxMessageSize 发现协议帧大小上限
	maxMessageSize = 64 * 1024
)

// Config 发现服务配置
type Config struct {
	// Interval 发现轮询间隔
	Interval time.Duration

	// Jitter 间隔抖动比例（0~1），避免全网轮询同步
	Jitter float64

	// RequestTimeout 单个节点的请求超时
	RequestTimeout time.Duration

	// MaxPeersPerResponse 响应中携带的最大记录数
	MaxPeersPerResponse int

	// TargetPeers 期望维持的连接数，不足时从已知表补拨
	TargetPeers int

	// AllowPrivateAddrs 是否接受回环/内网地址
	//
	// 生产环境应关闭；本机多节点部署和测试需要打开。
	AllowPrivateAddrs bool
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Interval:            30 * time.Second,
		Jitter:              0.2,
		RequestTimeout:      10 * time.Second,
		MaxPeersPerResponse: 32,
		TargetPeers:         8,
		AllowPrivateAddrs:   false,
	}
}
