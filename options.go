package dmesh

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dmeshnet/go-dmesh/config"
	"github.com/dmeshnet/go-dmesh/internal/core/identity"
)

// Option 节点配置选项
type Option func(*Node)

// WithConfig 使用完整配置
//
// 未设置时使用 config.Default()。
func WithConfig(cfg *config.Config) Option {
	return func(n *Node) {
		if cfg != nil {
			n.cfg = cfg
		}
	}
}

// WithIdentity 使用现成身份
//
// 优先于配置中的密钥文件。
func WithIdentity(ident *identity.Identity) Option {
	return func(n *Node) {
		n.identity = ident
	}
}

// WithListenAddrs 覆盖监听地址
func WithListenAddrs(addrs ...string) Option {
	return func(n *Node) {
		n.cfg.Transport.ListenAddrs = addrs
	}
}

// WithRegisterer 注册指标到给定的 Registerer
//
// 不设置时指标仍会采集但不对外暴露，同进程多节点互不冲突。
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(n *Node) {
		n.registerer = reg
	}
}
