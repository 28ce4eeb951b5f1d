// Package interfaces 定义 DMesh 各模块之间的能力接口
//
// 接口在这里集中声明，实现分散在 internal/core 和 internal/protocol 下。
// 上层只依赖本包和 pkg/types，不直接依赖任何实现包，
// 以便在测试中替换传输层、安全层等能力。
package interfaces
