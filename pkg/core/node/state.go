package node

// State 节点生命周期状态（对外导出）
// Idle -> Running -> Complete，Complete 为终态
type State int32

const (
	// Idle 尚未执行
	Idle State = iota
	// Running 正在执行
	Running
	// Complete 已执行完成且结果已写入存储
	Complete
)

// String 返回状态名称
func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Running:
		return "Running"
	case Complete:
		return "Complete"
	default:
		return "Unknown"
	}
}
