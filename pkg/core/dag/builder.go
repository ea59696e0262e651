package dag

import (
	"errors"
	"fmt"

	"github.com/LENAX/conduit/pkg/core/node"
)

// ErrIsolatedNode 节点既无依赖也无下游，无法用边表示
var ErrIsolatedNode = errors.New("节点没有任何边")

// Builder 按标签声明依赖关系来构建图（对外导出）
// 保证同一标签只对应一个节点实例，并调整加边顺序使每条边都与已有图相连
type Builder struct {
	nodes map[string]*node.Node
	order []string
	deps  map[string][]string
	err   error
}

// NewBuilder 创建图构建器
func NewBuilder() *Builder {
	return &Builder{
		nodes: make(map[string]*node.Node),
		deps:  make(map[string][]string),
	}
}

// Add 注册节点及其依赖标签，依赖可在之后注册
func (b *Builder) Add(n *node.Node, dependsOn ...string) *Builder {
	if b.err != nil {
		return b
	}
	if _, exists := b.nodes[n.Label()]; exists {
		b.err = fmt.Errorf("%w: %s", ErrDuplicateLabel, n.Label())
		return b
	}
	b.nodes[n.Label()] = n
	b.order = append(b.order, n.Label())
	b.deps[n.Label()] = append([]string(nil), dependsOn...)
	return b
}

// Build 生成图
func (b *Builder) Build() (*Dag, error) {
	if b.err != nil {
		return nil, b.err
	}

	var pending []Arc
	touched := make(map[string]bool)
	for _, label := range b.order {
		for _, depLabel := range b.deps[label] {
			dep, ok := b.nodes[depLabel]
			if !ok {
				return nil, fmt.Errorf("%w: %s 依赖未注册的节点 %s", ErrNotInGraph, label, depLabel)
			}
			pending = append(pending, Arc{Src: dep, Dst: b.nodes[label]})
			touched[label] = true
			touched[depLabel] = true
		}
	}
	for _, label := range b.order {
		if !touched[label] {
			return nil, fmt.Errorf("%w: %s", ErrIsolatedNode, label)
		}
	}

	d := New()
	// 每轮加入所有与当前图相连的边，直到没有进展
	for len(pending) > 0 {
		var rest []Arc
		for _, a := range pending {
			if len(d.arcs) > 0 && !d.Contains(a.Src) && !d.Contains(a.Dst) {
				rest = append(rest, a)
				continue
			}
			if _, err := d.AddArc(a.Src, a.Dst); err != nil {
				return nil, err
			}
		}
		if len(rest) == len(pending) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrDisconnected, rest[0].Src.Label(), rest[0].Dst.Label())
		}
		pending = rest
	}
	return d, nil
}
