package dag

import (
	"crypto/sha256"
	"fmt"

	godag "github.com/begmaroman/go-dag"

	"github.com/LENAX/conduit/pkg/core/node"
)

// Levels 按层划分节点（Kahn算法），同一层的节点互不依赖，可以并行执行
// 层内顺序与 Nodes() 一致
func (d *Dag) Levels() ([][]*node.Node, error) {
	nodes := d.Nodes()
	if len(nodes) == 0 {
		return nil, nil
	}

	g, err := d.index()
	if err != nil {
		return nil, err
	}

	order := make(map[string]int, len(nodes))
	for i, n := range nodes {
		order[n.ID()] = i
	}

	// 1. 计算每个节点的入度
	inDegree := make(map[string]int, len(nodes))
	for _, n := range nodes {
		parents, err := g.GetParents(n.ID())
		if err != nil {
			return nil, fmt.Errorf("获取父节点失败: %s: %w", n.ID(), err)
		}
		inDegree[n.ID()] = len(parents)
	}

	// 2. 入度为0的节点为第一层
	var queue []*node.Node
	for _, n := range nodes {
		if inDegree[n.ID()] == 0 {
			queue = append(queue, n)
		}
	}

	// 3. 逐层移除入度为0的节点，并更新其子节点的入度
	var levels [][]*node.Node
	visited := 0
	for len(queue) > 0 {
		levels = append(levels, queue)
		visited += len(queue)

		next := make([]*node.Node, len(nodes))
		for _, n := range queue {
			children, err := g.GetChildren(n.ID())
			if err != nil {
				return nil, fmt.Errorf("获取子节点失败: %s: %w", n.ID(), err)
			}
			for id := range children {
				inDegree[id]--
				if inDegree[id] == 0 {
					next[order[id]] = nodes[order[id]]
				}
			}
		}

		queue = nil
		for _, n := range next {
			if n != nil {
				queue = append(queue, n)
			}
		}
	}

	if visited != len(nodes) {
		return nil, fmt.Errorf("%w: 分层时存在未处理的节点", ErrCycle)
	}
	return levels, nil
}

// Width 返回图的最大层宽，即理论上可同时执行的最大节点数
func (d *Dag) Width() (int, error) {
	levels, err := d.Levels()
	if err != nil {
		return 0, err
	}
	width := 0
	for _, level := range levels {
		if len(level) > width {
			width = len(level)
		}
	}
	return width, nil
}

// index 将边集合导入 go-dag，重复边只添加一次
func (d *Dag) index() (*godag.DAG[*node.Node], error) {
	g := godag.NewDAG[*node.Node]()
	// 默认按 JSON 序列化计算哈希，节点字段均未导出，需按ID计算
	g.Options(godag.Options[*node.Node]{VertexHashFunc: vertexHash})
	for _, n := range d.Nodes() {
		if err := g.AddVertexByID(n.ID(), n); err != nil {
			return nil, fmt.Errorf("添加节点失败: %s: %w", n.ID(), err)
		}
	}

	type edge struct{ src, dst string }
	added := make(map[edge]bool, len(d.arcs))
	for _, a := range d.arcs {
		e := edge{a.Src.ID(), a.Dst.ID()}
		if added[e] {
			continue
		}
		added[e] = true
		if err := g.AddEdge(e.src, e.dst); err != nil {
			return nil, fmt.Errorf("添加边失败: %s -> %s: %w", e.src, e.dst, err)
		}
	}
	return g, nil
}

func vertexHash(n *node.Node) godag.VHash {
	return sha256.Sum256([]byte(n.ID()))
}
