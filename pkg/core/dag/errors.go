package dag

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCycle 添加的边会形成环
	ErrCycle = errors.New("检测到循环依赖")
	// ErrNotInGraph 查询的节点不属于该图
	ErrNotInGraph = errors.New("节点不属于该图")
	// ErrDisconnected 非空图中添加的边两端都不在图中
	ErrDisconnected = errors.New("边的两个端点都不在图中")
	// ErrDuplicateLabel 不同节点实例使用了相同标签
	ErrDuplicateLabel = errors.New("节点标签重复")
)

// CycleError 循环依赖错误，Cycle 为环上的节点标签（首尾相同）
type CycleError struct {
	Cycle []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCycle.Error(), strings.Join(e.Cycle, " -> "))
}

// Is 支持 errors.Is(err, ErrCycle)
func (e *CycleError) Is(target error) bool {
	return target == ErrCycle
}
