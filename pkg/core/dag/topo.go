package dag

import "github.com/LENAX/conduit/pkg/core/node"

// 三色标记：白色（未访问），灰色（正在访问），黑色（已访问）
const (
	white = iota
	gray
	black
)

type frame struct {
	n    *node.Node
	next int // 下一个待访问的出边下标
}

// TopologicalSort 对边集合做拓扑排序（对外导出）
// 不修改入参，可用于提交前的候选图校验；存在环时返回 *CycleError
func TopologicalSort(arcs []Arc) ([]*node.Node, error) {
	nodes := nodesOf(arcs)
	out := adjacency(arcs)

	color := make(map[*node.Node]int, len(nodes))
	post := make([]*node.Node, 0, len(nodes))

	for _, root := range nodes {
		if color[root] != white {
			continue
		}
		color[root] = gray
		stack := []frame{{n: root}}

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			children := out[top.n]
			if top.next == len(children) {
				color[top.n] = black
				post = append(post, top.n)
				stack = stack[:len(stack)-1]
				continue
			}

			child := children[top.next]
			top.next++
			switch color[child] {
			case white:
				color[child] = gray
				stack = append(stack, frame{n: child})
			case gray:
				return nil, cycleFromStack(stack, child)
			}
		}
	}

	// 后序的逆序即拓扑序
	order := make([]*node.Node, len(post))
	for i, n := range post {
		order[len(post)-1-i] = n
	}
	return order, nil
}

// cycleFromStack 从DFS栈中截取环路径
func cycleFromStack(stack []frame, back *node.Node) *CycleError {
	start := 0
	for i, f := range stack {
		if f.n == back {
			start = i
			break
		}
	}
	cycle := make([]string, 0, len(stack)-start+1)
	for _, f := range stack[start:] {
		cycle = append(cycle, f.n.Label())
	}
	cycle = append(cycle, back.Label()) // 闭合循环
	return &CycleError{Cycle: cycle}
}

// adjacency 构建出边邻接表，保持边的插入顺序
func adjacency(arcs []Arc) map[*node.Node][]*node.Node {
	out := make(map[*node.Node][]*node.Node)
	for _, a := range arcs {
		out[a.Src] = append(out[a.Src], a.Dst)
	}
	return out
}

// nodesOf 按首次出现顺序返回去重后的端点：先所有起点，再所有终点
func nodesOf(arcs []Arc) []*node.Node {
	seen := make(map[*node.Node]bool, len(arcs))
	nodes := make([]*node.Node, 0, len(arcs))
	add := func(n *node.Node) {
		if !seen[n] {
			seen[n] = true
			nodes = append(nodes, n)
		}
	}
	for _, a := range arcs {
		add(a.Src)
	}
	for _, a := range arcs {
		add(a.Dst)
	}
	return nodes
}
