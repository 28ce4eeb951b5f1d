package yamux

import (
	"io"
	"time"

	"github.com/hashicorp/yamux"
)

// Config yamux 多路复用配置
type Config struct {
	// AcceptBacklog 入站流排队上限
	AcceptBacklog int

	// EnableKeepAlive 是否启用保活探测
	EnableKeepAlive bool

	// KeepAliveInterval 保活探测间隔
	KeepAliveInterval time.Duration

	// ConnectionWriteTimeout 单次底层写超时
	ConnectionWriteTimeout time.Duration

	// MaxStreamWindowSize 单流接收窗口（流控粒度）
	MaxStreamWindowSize uint32
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		AcceptBacklog:          256,
		EnableKeepAlive:        true,
		KeepAliveInterval:      30 * time.Second,
		ConnectionWriteTimeout: 10 * time.Second,
		MaxStreamWindowSize:    1 << 20,
	}
}

// toYamux 转换为 yamux 库配置
//
// yamux 自带的文本日志输出被丢弃，连接级错误在调用方
// 以结构化日志记录。
func (c *Config) toYamux() *yamux.Config {
	ycfg := yamux.DefaultConfig()
	ycfg.AcceptBacklog = c.AcceptBacklog
	ycfg.EnableKeepAlive = c.EnableKeepAlive
	ycfg.KeepAliveInterval = c.KeepAliveInterval
	ycfg.ConnectionWriteTimeout = c.ConnectionWriteTimeout
	ycfg.MaxStreamWindowSize = c.MaxStreamWindowSize
	ycfg.LogOutput = io.Discard
	return ycfg
}
