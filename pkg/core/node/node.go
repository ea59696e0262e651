package node

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync/atomic"

	"github.com/LENAX/conduit/pkg/core/result"
	"github.com/LENAX/conduit/pkg/storage"
)

// ErrResultTypeMismatch 回调返回值类型与节点声明的结果类型不一致
var ErrResultTypeMismatch = errors.New("结果类型不匹配")

// Callback 节点回调（对外导出）
// deps: 依赖节点标签 -> 依赖结果；args: WithArgs 绑定的额外参数
type Callback[R result.Result] func(ctx context.Context, n *Node, deps map[string]result.Result, args ...any) (R, error)

// DynamicCallback 运行时才确定结果类型的回调，返回值在执行后校验
type DynamicCallback func(ctx context.Context, n *Node, deps map[string]result.Result, args ...any) (result.Result, error)

// TransitionHook 状态变更回调
type TransitionHook func(n *Node, from, to State)

// Node 调度图中的一个执行单元（对外导出）
// 以标签标识，图中的边引用同一个 *Node 实例
type Node struct {
	label   string
	kind    result.Kind
	run     DynamicCallback
	args    []any
	useDeps bool
	hooks   []TransitionHook
	state   atomic.Int32
}

// Option 节点配置选项
type Option func(*Node)

// WithArgs 绑定回调的额外参数
func WithArgs(args ...any) Option {
	return func(n *Node) {
		n.args = append(n.args, args...)
	}
}

// WithoutDependencyResults 不读取依赖结果，回调收到空映射
// 适用于只需要执行顺序、不需要依赖数据的节点
func WithoutDependencyResults() Option {
	return func(n *Node) {
		n.useDeps = false
	}
}

// WithTransitionHook 注册状态变更回调
func WithTransitionHook(hook TransitionHook) Option {
	return func(n *Node) {
		n.hooks = append(n.hooks, hook)
	}
}

// New 创建节点，结果类型由回调的类型参数在编译期确定（对外导出）
func New[R result.Result](label string, cb Callback[R], opts ...Option) *Node {
	n := newNode(label, result.KindOf[R](), opts...)
	n.run = func(ctx context.Context, self *Node, deps map[string]result.Result, args ...any) (result.Result, error) {
		return cb(ctx, self, deps, args...)
	}
	return n
}

// NewDynamic 创建节点，回调返回值在运行时与 kind 比对
func NewDynamic(label string, kind result.Kind, cb DynamicCallback, opts ...Option) *Node {
	n := newNode(label, kind, opts...)
	n.run = func(ctx context.Context, self *Node, deps map[string]result.Result, args ...any) (result.Result, error) {
		res, err := cb(ctx, self, deps, args...)
		if err != nil {
			return nil, err
		}
		if res == nil || reflect.TypeOf(res) != kind.Type() {
			return nil, fmt.Errorf("%w: 节点 %s 声明 %s，实际返回 %T", ErrResultTypeMismatch, self.label, kind.Name(), res)
		}
		return res, nil
	}
	return n
}

func newNode(label string, kind result.Kind, opts ...Option) *Node {
	n := &Node{label: label, kind: kind, useDeps: true}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Label 返回节点标签
func (n *Node) Label() string {
	return n.label
}

// ID 返回节点标识（与标签相同）
func (n *Node) ID() string {
	return n.label
}

// Kind 返回节点声明的结果类型
func (n *Node) Kind() result.Kind {
	return n.kind
}

// Args 返回绑定的额外参数
func (n *Node) Args() []any {
	return n.args
}

// UsesDependencyResults 是否读取依赖结果
func (n *Node) UsesDependencyResults() bool {
	return n.useDeps
}

// State 返回当前状态
func (n *Node) State() State {
	return State(n.state.Load())
}

// Reset 将节点重置为 Idle，用于重复执行同一张图
func (n *Node) Reset() {
	n.setState(Idle)
}

func (n *Node) setState(to State) {
	from := State(n.state.Swap(int32(to)))
	for _, hook := range n.hooks {
		hook(n, from, to)
	}
}

// String 实现 fmt.Stringer
func (n *Node) String() string {
	return fmt.Sprintf("Node(%s, %s)", n.label, n.State())
}

// Start 执行节点（对外导出）
// 调用方保证所有依赖已处于 Complete，且同一节点不会被并发调用
// 失败时节点停留在 Running，由引擎终止整个运行
func (n *Node) Start(ctx context.Context, deps []*Node, store storage.Store) error {
	n.setState(Running)

	depResults := make(map[string]result.Result, len(deps))
	if n.useDeps && len(deps) > 0 {
		// 依赖结果按依赖自身声明的类型反序列化
		kinds := make(map[string]result.Kind, len(deps))
		for _, dep := range deps {
			kinds[dep.label] = dep.kind
		}
		read, err := storage.ReadResults(ctx, store, kinds)
		if err != nil {
			return fmt.Errorf("读取依赖结果失败: node=%s: %w", n.label, err)
		}
		depResults = read
	}

	res, err := n.run(ctx, n, depResults, n.args...)
	if err != nil {
		return fmt.Errorf("节点执行失败: node=%s: %w", n.label, err)
	}

	if err := store.WriteResult(ctx, res, n.label); err != nil {
		return fmt.Errorf("写入节点结果失败: node=%s: %w", n.label, err)
	}

	n.setState(Complete)
	return nil
}
