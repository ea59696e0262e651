package pipeline

import (
	"fmt"

	"github.com/LENAX/conduit/pkg/core/dag"
	"github.com/LENAX/conduit/pkg/core/node"
)

// BuildOption 构建选项
type BuildOption func(*buildSettings)

type buildSettings struct {
	registry *Registry
	params   map[string]string
	nodeOpts []node.Option
}

// WithRegistry 使用指定的函数注册表，默认为 NewRegistry()
func WithRegistry(r *Registry) BuildOption {
	return func(s *buildSettings) {
		s.registry = r
	}
}

// WithParams 覆盖定义中的参数默认值
func WithParams(params map[string]string) BuildOption {
	return func(s *buildSettings) {
		s.params = params
	}
}

// WithNodeOptions 为所有节点追加选项，例如状态变更回调
func WithNodeOptions(opts ...node.Option) BuildOption {
	return func(s *buildSettings) {
		s.nodeOpts = append(s.nodeOpts, opts...)
	}
}

// Build 由定义构建图（对外导出）
// 每次调用都创建全新的节点实例，适合为每次运行单独建图
func (d *Definition) Build(opts ...BuildOption) (*dag.Dag, error) {
	s := buildSettings{}
	for _, opt := range opts {
		opt(&s)
	}
	if s.registry == nil {
		s.registry = NewRegistry()
	}

	resolved, err := d.Resolve(s.params)
	if err != nil {
		return nil, err
	}

	b := dag.NewBuilder()
	for _, spec := range resolved.Nodes {
		n, err := resolved.newNode(spec, s)
		if err != nil {
			return nil, err
		}
		b.Add(n, spec.DependsOn...)
	}
	graph, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("构建流水线 %s 失败: %w", d.Name, err)
	}
	return graph, nil
}

func (d *Definition) newNode(spec NodeSpec, s buildSettings) (*node.Node, error) {
	opts := append([]node.Option(nil), s.nodeOpts...)
	if !spec.usesDependencyResults() {
		opts = append(opts, node.WithoutDependencyResults())
	}

	if spec.Func == "" {
		return commandNode(spec, d.Env, opts...), nil
	}

	f, ok := s.registry.Lookup(spec.Func)
	if !ok {
		return nil, fmt.Errorf("%w: 节点 %s 引用 %s", ErrFuncNotFound, spec.Name, spec.Func)
	}
	args := make([]any, len(spec.Args))
	for i, a := range spec.Args {
		args[i] = a
	}
	opts = append(opts, node.WithArgs(args...))
	return node.NewDynamic(spec.Name, f.Kind, f.Callback, opts...), nil
}
