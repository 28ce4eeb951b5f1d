package dmesh

import "errors"

var (
	// ErrNodeClosed 节点已关闭
	ErrNodeClosed = errors.New("node closed")

	// ErrNodeNotStarted 节点尚未启动
	ErrNodeNotStarted = errors.New("node not started")

	// ErrNoSuchPeer 目标节点完全未知（已知表中也没有记录）
	ErrNoSuchPeer = errors.New("no such peer")

	// ErrNotConnected 目标节点已知但当前未连接
	ErrNotConnected = errors.New("peer not connected")

	// ErrShutdownTimeout 关闭宽限期内未能完成清理
	ErrShutdownTimeout = errors.New("shutdown grace period exceeded")
)
