package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/LENAX/conduit/pkg/core/node"
	"github.com/LENAX/conduit/pkg/core/result"
)

// ErrFuncNotFound func 节点引用了未注册的函数
var ErrFuncNotFound = errors.New("函数未注册")

// Func 可在流水线中按名称引用的函数
type Func struct {
	Kind     result.Kind
	Callback node.DynamicCallback
}

// Registry 函数注册表（对外导出）
// 节点的 args 会作为字符串参数绑定到回调
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewRegistry 创建包含内置函数的注册表
func NewRegistry() *Registry {
	r := &Registry{funcs: make(map[string]Func)}
	_ = r.Register("sleep", result.KindOf[result.Empty](), sleepFunc)
	_ = r.Register("collect", result.KindOf[CommandResult](), collectFunc)
	return r
}

// Register 注册函数，名称不能重复
func (r *Registry) Register(name string, kind result.Kind, cb node.DynamicCallback) error {
	if name == "" || kind == nil || cb == nil {
		return fmt.Errorf("注册函数参数不完整: name=%q", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.funcs[name]; exists {
		return fmt.Errorf("函数 %s 已注册", name)
	}
	r.funcs[name] = Func{Kind: kind, Callback: cb}
	return nil
}

// Lookup 按名称查找函数
func (r *Registry) Lookup(name string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.funcs[name]
	return f, ok
}

// Names 返回已注册的函数名称（排序）
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// sleepFunc 等待 args[0] 指定的时长
func sleepFunc(ctx context.Context, n *node.Node, deps map[string]result.Result, args ...any) (result.Result, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("sleep 需要一个时长参数")
	}
	d, err := time.ParseDuration(fmt.Sprint(args[0]))
	if err != nil {
		return nil, fmt.Errorf("sleep 参数无效: %w", err)
	}
	select {
	case <-time.After(d):
		return result.Empty{}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// collectFunc 按依赖名称顺序拼接命令依赖的标准输出
func collectFunc(ctx context.Context, n *node.Node, deps map[string]result.Result, args ...any) (result.Result, error) {
	labels := make([]string, 0, len(deps))
	for l := range deps {
		labels = append(labels, l)
	}
	sort.Strings(labels)

	var sb strings.Builder
	for _, l := range labels {
		if cr, ok := deps[l].(CommandResult); ok {
			sb.WriteString(cr.Stdout)
		}
	}
	return CommandResult{Stdout: sb.String()}, nil
}
