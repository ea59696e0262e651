package dag

import (
	"fmt"

	"github.com/LENAX/conduit/pkg/core/node"
)

// Arc 有向边：Src 完成后 Dst 才能开始
type Arc struct {
	Src *node.Node
	Dst *node.Node
}

// Dag 以边集合表示的有向无环图（对外导出）
// 节点、起点、终点均由边推导，不单独存储；每次添加边都会重新校验无环
// 图在调度期间视为只读，构建过程不支持并发
type Dag struct {
	arcs []Arc
}

// New 创建空图
func New() *Dag {
	return &Dag{}
}

// AddArc 添加一条边（对外导出）
// 非空图要求至少一个端点已在图中；形成环时返回 *CycleError，且边集合保持不变
func (d *Dag) AddArc(src, dst *node.Node) (*Dag, error) {
	if len(d.arcs) > 0 {
		members := d.labelIndex()
		if err := checkLabel(members, src); err != nil {
			return d, err
		}
		if err := checkLabel(members, dst); err != nil {
			return d, err
		}
		if members[src.Label()] != src && members[dst.Label()] != dst {
			return d, fmt.Errorf("%w: %s -> %s", ErrDisconnected, src.Label(), dst.Label())
		}
	} else if src != dst && src.Label() == dst.Label() {
		return d, fmt.Errorf("%w: %s", ErrDuplicateLabel, src.Label())
	}

	candidate := make([]Arc, len(d.arcs), len(d.arcs)+1)
	copy(candidate, d.arcs)
	candidate = append(candidate, Arc{Src: src, Dst: dst})

	if _, err := TopologicalSort(candidate); err != nil {
		return d, err
	}
	d.arcs = candidate
	return d, nil
}

// MustAddArc 添加边，失败时 panic，用于静态构建的图
func (d *Dag) MustAddArc(src, dst *node.Node) *Dag {
	if _, err := d.AddArc(src, dst); err != nil {
		panic(err)
	}
	return d
}

func checkLabel(members map[string]*node.Node, n *node.Node) error {
	if existing, ok := members[n.Label()]; ok && existing != n {
		return fmt.Errorf("%w: %s", ErrDuplicateLabel, n.Label())
	}
	return nil
}

func (d *Dag) labelIndex() map[string]*node.Node {
	index := make(map[string]*node.Node)
	for _, n := range d.Nodes() {
		index[n.Label()] = n
	}
	return index
}

// TopologicalSort 返回当前图的拓扑序
func (d *Dag) TopologicalSort() ([]*node.Node, error) {
	return TopologicalSort(d.arcs)
}

// Arcs 返回边集合的副本
func (d *Dag) Arcs() []Arc {
	out := make([]Arc, len(d.arcs))
	copy(out, d.arcs)
	return out
}

// Len 返回节点数
func (d *Dag) Len() int {
	return len(d.Nodes())
}

// Nodes 返回所有节点，去重并保持首次出现顺序
func (d *Dag) Nodes() []*node.Node {
	return nodesOf(d.arcs)
}

// Labels 返回所有节点标签
func (d *Dag) Labels() []string {
	nodes := d.Nodes()
	labels := make([]string, len(nodes))
	for i, n := range nodes {
		labels[i] = n.Label()
	}
	return labels
}

// Contains 判断节点实例是否在图中
func (d *Dag) Contains(n *node.Node) bool {
	for _, a := range d.arcs {
		if a.Src == n || a.Dst == n {
			return true
		}
	}
	return false
}

// NodeByLabel 按标签查找节点
func (d *Dag) NodeByLabel(label string) (*node.Node, bool) {
	n, ok := d.labelIndex()[label]
	return n, ok
}

// Sources 返回没有入边的节点
func (d *Dag) Sources() []*node.Node {
	hasIn := make(map[*node.Node]bool)
	for _, a := range d.arcs {
		hasIn[a.Dst] = true
	}
	var out []*node.Node
	for _, n := range d.Nodes() {
		if !hasIn[n] {
			out = append(out, n)
		}
	}
	return out
}

// Sinks 返回没有出边的节点
func (d *Dag) Sinks() []*node.Node {
	hasOut := make(map[*node.Node]bool)
	for _, a := range d.arcs {
		hasOut[a.Src] = true
	}
	var out []*node.Node
	for _, n := range d.Nodes() {
		if !hasOut[n] {
			out = append(out, n)
		}
	}
	return out
}

func (d *Dag) mustContain(n *node.Node) error {
	if !d.Contains(n) {
		return fmt.Errorf("%w: %s", ErrNotInGraph, n.Label())
	}
	return nil
}

// DirectDependencies 返回指向 n 的节点
func (d *Dag) DirectDependencies(n *node.Node) ([]*node.Node, error) {
	if err := d.mustContain(n); err != nil {
		return nil, err
	}
	return d.directDependencies(n), nil
}

func (d *Dag) directDependencies(n *node.Node) []*node.Node {
	var out []*node.Node
	for _, a := range d.arcs {
		if a.Dst == n {
			out = append(out, a.Src)
		}
	}
	return out
}

// Neighbors 返回 n 指向的节点
func (d *Dag) Neighbors(n *node.Node) ([]*node.Node, error) {
	if err := d.mustContain(n); err != nil {
		return nil, err
	}
	return adjacency(d.arcs)[n], nil
}

// EnumeratePaths 深度优先枚举所有起点到终点的路径
// 路径数随分支数指数增长，仅适用于小规模图
func (d *Dag) EnumeratePaths() [][]*node.Node {
	out := adjacency(d.arcs)
	var paths [][]*node.Node

	var dfs func(n *node.Node, path []*node.Node)
	dfs = func(n *node.Node, path []*node.Node) {
		next := make([]*node.Node, len(path)+1)
		copy(next, path)
		next[len(path)] = n

		children := out[n]
		if len(children) == 0 {
			paths = append(paths, next)
			return
		}
		for _, child := range children {
			dfs(child, next)
		}
	}

	for _, src := range d.Sources() {
		dfs(src, nil)
	}
	return paths
}

// AllDependencies 返回 n 的所有传递依赖（去重，保持路径中的出现顺序）
// 基于 EnumeratePaths，代价同样是指数级
func (d *Dag) AllDependencies(n *node.Node) ([]*node.Node, error) {
	if err := d.mustContain(n); err != nil {
		return nil, err
	}

	seen := make(map[*node.Node]bool)
	var out []*node.Node
	for _, path := range d.EnumeratePaths() {
		idx := indexOf(path, n)
		if idx < 0 {
			continue
		}
		for _, dep := range path[:idx] {
			if !seen[dep] {
				seen[dep] = true
				out = append(out, dep)
			}
		}
	}
	return out, nil
}

// Level 返回 n 在给定路径中的下标，不在路径中返回 -1
func (d *Dag) Level(n *node.Node, path []*node.Node) (int, error) {
	if err := d.mustContain(n); err != nil {
		return -1, err
	}
	return indexOf(path, n), nil
}

func indexOf(path []*node.Node, n *node.Node) int {
	for i, p := range path {
		if p == n {
			return i
		}
	}
	return -1
}

// Reset 将所有节点重置为 Idle
func (d *Dag) Reset() {
	for _, n := range d.Nodes() {
		n.Reset()
	}
}

// DependencyIndex 返回 节点 -> 直接依赖 的映射，供调度引擎在运行前一次性构建
func (d *Dag) DependencyIndex() map[*node.Node][]*node.Node {
	index := make(map[*node.Node][]*node.Node)
	for _, n := range d.Nodes() {
		index[n] = d.directDependencies(n)
	}
	return index
}
