// Package config 定义节点的文件级配置
//
// 各组件自带 Config + Option；本包把它们汇总成一份可以整体
// 从 JSON 加载、整体校验的节点配置。零值字段在校验前由
// Default 填充，调用方只需覆盖关心的项。
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	ma "github.com/multiformats/go-multiaddr"
)

// Config 节点配置
type Config struct {
	Identity  IdentityConfig  `json:"identity"`
	Transport TransportConfig `json:"transport"`
	Swarm     SwarmConfig     `json:"swarm"`
	Discovery DiscoveryConfig `json:"discovery"`
	PubSub    PubSubConfig    `json:"pubsub"`

	// ShutdownGrace 关闭时等待在途操作的宽限期
	ShutdownGrace Duration `json:"shutdown_grace"`
}

// IdentityConfig 身份配置
type IdentityConfig struct {
	// KeyFile 私钥文件路径，为空则每次启动生成临时身份
	KeyFile string `json:"key_file"`
}

// TransportConfig 传输层配置
type TransportConfig struct {
	// ListenAddrs 监听地址（multiaddr 格式）
	ListenAddrs []string `json:"listen_addrs"`

	// DialTimeout 单地址拨号超时
	DialTimeout Duration `json:"dial_timeout"`
}

// SwarmConfig 连接池配置
type SwarmConfig struct {
	MaxPeers          int      `json:"max_peers"`
	BackoffBase       Duration `json:"backoff_base"`
	BackoffMax        Duration `json:"backoff_max"`
	MaxRetryAttempts  int      `json:"max_retry_attempts"`
	IdleTimeout       Duration `json:"idle_timeout"`
	IdleCheckInterval Duration `json:"idle_check_interval"`
}

// DiscoveryConfig 发现配置
type DiscoveryConfig struct {
	Interval            Duration `json:"interval"`
	Jitter              float64  `json:"jitter"`
	RequestTimeout      Duration `json:"request_timeout"`
	MaxPeersPerResponse int      `json:"max_peers_per_response"`
	TargetPeers         int      `json:"target_peers"`
	AllowPrivateAddrs   bool     `json:"allow_private_addrs"`

	// Bootstrap 启动时主动连接的种子节点（含 /p2p/ 后缀）
	Bootstrap []string `json:"bootstrap"`
}

// PubSubConfig gossip 配置
type PubSubConfig struct {
	FilterCapacity    int            `json:"filter_capacity"`
	DefaultMaxPayload int            `json:"default_max_payload"`
	TopicMaxPayload   map[string]int `json:"topic_max_payload"`
	RateLimit         float64        `json:"rate_limit"`
	RateBurst         int            `json:"rate_burst"`
	BacklogSize       int            `json:"backlog_size"`
	SubscriberBuffer  int            `json:"subscriber_buffer"`
	WriteTimeout      Duration       `json:"write_timeout"`
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Transport: TransportConfig{
			ListenAddrs: []string{"/ip4/0.0.0.0/tcp/0"},
			DialTimeout: Duration(10 * time.Second),
		},
		Swarm: SwarmConfig{
			MaxPeers:          128,
			BackoffBase:       Duration(time.Second),
			BackoffMax:        Duration(2 * time.Minute),
			MaxRetryAttempts:  8,
			IdleTimeout:       Duration(10 * time.Minute),
			IdleCheckInterval: Duration(30 * time.Second),
		},
		Discovery: DiscoveryConfig{
			Interval:            Duration(30 * time.Second),
			Jitter:              0.2,
			RequestTimeout:      Duration(10 * time.Second),
			MaxPeersPerResponse: 32,
			TargetPeers:         8,
		},
		PubSub: PubSubConfig{
			FilterCapacity:    8192,
			DefaultMaxPayload: 512 * 1024,
			RateLimit:         256,
			RateBurst:         64,
			BacklogSize:       128,
			SubscriberBuffer:  64,
			WriteTimeout:      Duration(10 * time.Second),
		},
		ShutdownGrace: Duration(15 * time.Second),
	}
}

// FromFile 从 JSON 文件加载配置
//
// 未出现的字段保持默认值。
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	for _, addr := range c.Transport.ListenAddrs {
		if _, err := ma.NewMultiaddr(addr); err != nil {
			return fmt.Errorf("invalid listen addr %q: %w", addr, err)
		}
	}
	if c.Transport.DialTimeout <= 0 {
		return fmt.Errorf("transport.dial_timeout must be positive")
	}
	if c.Swarm.MaxPeers <= 0 {
		return fmt.Errorf("swarm.max_peers must be positive")
	}
	if c.Swarm.BackoffBase <= 0 || c.Swarm.BackoffMax < c.Swarm.BackoffBase {
		return fmt.Errorf("swarm backoff range is invalid")
	}
	if c.Swarm.MaxRetryAttempts < 0 {
		return fmt.Errorf("swarm.max_retry_attempts cannot be negative")
	}
	if c.Discovery.Jitter < 0 || c.Discovery.Jitter > 1 {
		return fmt.Errorf("discovery.jitter must be within [0, 1]")
	}
	if c.Discovery.Interval <= 0 || c.Discovery.RequestTimeout <= 0 {
		return fmt.Errorf("discovery intervals must be positive")
	}
	if c.Discovery.MaxPeersPerResponse <= 0 || c.Discovery.TargetPeers < 0 {
		return fmt.Errorf("discovery peer limits are invalid")
	}
	if c.PubSub.FilterCapacity <= 0 {
		return fmt.Errorf("pubsub.filter_capacity must be positive")
	}
	if c.PubSub.DefaultMaxPayload <= 0 {
		return fmt.Errorf("pubsub.default_max_payload must be positive")
	}
	for topic, limit := range c.PubSub.TopicMaxPayload {
		if limit <= 0 {
			return fmt.Errorf("pubsub.topic_max_payload[%q] must be positive", topic)
		}
	}
	if c.PubSub.RateLimit <= 0 || c.PubSub.RateBurst <= 0 {
		return fmt.Errorf("pubsub rate limit is invalid")
	}
	if c.PubSub.BacklogSize <= 0 || c.PubSub.SubscriberBuffer <= 0 {
		return fmt.Errorf("pubsub queue sizes must be positive")
	}
	if c.ShutdownGrace <= 0 {
		return fmt.Errorf("shutdown_grace must be positive")
	}
	return nil
}
