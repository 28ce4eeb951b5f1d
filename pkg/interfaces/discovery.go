package interfaces

import (
	"github.com/dmeshnet/go-dmesh/pkg/types"
)

// Discovery 节点发现能力
//
// 周期性地与已连接节点交换节点列表，扩充并刷新本地已知节点表。
// 单个节点的一轮交换失败不影响其他节点。
type Discovery interface {
	// Start 启动周期发现任务
	Start() error

	// Stop 停止发现任务，取消进行中的轮次
	Stop() error

	// KnownPeers 返回当前已知节点记录
	KnownPeers() []types.PeerRecord
}
