package swarm

import "time"

// Config 连接池配置
//
// 数值默认值偏保守；调小退避/加大并发会换来更快的收敛
// 和更高的带宽占用。
type Config struct {
	// MaxPeers 活跃会话上限，超出触发淘汰
	MaxPeers int

	// DialTimeout 单地址拨号超时
	DialTimeout time.Duration

	// BackoffBase 首次重试延迟
	BackoffBase time.Duration

	// BackoffMax 重试延迟上限
	BackoffMax time.Duration

	// MaxRetryAttempts 重试预算，耗尽后放弃该节点
	MaxRetryAttempts int

	// IdleTimeout 无流量会话的空闲超时，0 表示禁用
	IdleTimeout time.Duration

	// IdleCheckInterval 空闲扫描间隔
	IdleCheckInterval time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		MaxPeers:          128,
		DialTimeout:       10 * time.Second,
		BackoffBase:       time.Second,
		BackoffMax:        2 * time.Minute,
		MaxRetryAttempts:  8,
		IdleTimeout:       10 * time.Minute,
		IdleCheckInterval: 30 * time.Second,
	}
}
