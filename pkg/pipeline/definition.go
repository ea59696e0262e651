// Package pipeline 以 YAML 声明节点与依赖，构建可调度的图
package pipeline

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	// ErrInvalidDefinition 流水线定义不合法
	ErrInvalidDefinition = errors.New("流水线定义不合法")
	// ErrCommandFailed 命令以非零退出码结束
	ErrCommandFailed = errors.New("命令执行失败")
)

// Definition 流水线定义（对外导出）
type Definition struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Params      map[string]string `yaml:"params"` // ${name} 占位符的默认值
	Env         map[string]string `yaml:"env"`    // 所有命令节点共享的环境变量
	Nodes       []NodeSpec        `yaml:"nodes"`
}

// NodeSpec 节点定义，run / command / func 三选一
type NodeSpec struct {
	Name      string            `yaml:"name"`
	Run       string            `yaml:"run"`     // 交给 sh -c 执行
	Command   []string          `yaml:"command"` // 直接执行，不经过 shell
	Func      string            `yaml:"func"`    // 注册表中的函数名
	Args      []string          `yaml:"args"`    // func 节点的绑定参数
	Dir       string            `yaml:"dir"`
	Env       map[string]string `yaml:"env"`
	DependsOn []string          `yaml:"depends_on"`
	Timeout   time.Duration     `yaml:"timeout"`

	// UseDependencyResults 为 false 时不读取依赖结果，只保证执行顺序
	UseDependencyResults *bool `yaml:"use_dependency_results"`
	// AllowFailure 为 true 时非零退出码只记录在结果中，不中止运行
	AllowFailure bool `yaml:"allow_failure"`
}

// usesDependencyResults 默认读取依赖结果
func (s NodeSpec) usesDependencyResults() bool {
	return s.UseDependencyResults == nil || *s.UseDependencyResults
}

// Parse 解析 YAML 流水线定义并校验
func Parse(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("解析流水线定义失败: %w", err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// LoadFile 读取并解析流水线文件
func LoadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取流水线文件失败: %w", err)
	}
	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return def, nil
}

// Validate 校验节点名称唯一、动作唯一且依赖均已声明
func (d *Definition) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: 缺少 name", ErrInvalidDefinition)
	}
	if len(d.Nodes) == 0 {
		return fmt.Errorf("%w: %s 没有节点", ErrInvalidDefinition, d.Name)
	}

	names := make(map[string]bool, len(d.Nodes))
	for i, n := range d.Nodes {
		if n.Name == "" {
			return fmt.Errorf("%w: 第 %d 个节点缺少 name", ErrInvalidDefinition, i)
		}
		if names[n.Name] {
			return fmt.Errorf("%w: 节点 %s 重复", ErrInvalidDefinition, n.Name)
		}
		names[n.Name] = true

		actions := 0
		if n.Run != "" {
			actions++
		}
		if len(n.Command) > 0 {
			actions++
		}
		if n.Func != "" {
			actions++
		}
		if actions != 1 {
			return fmt.Errorf("%w: 节点 %s 必须且只能设置 run、command、func 之一", ErrInvalidDefinition, n.Name)
		}
		if n.Timeout < 0 {
			return fmt.Errorf("%w: 节点 %s 的 timeout 不能为负数", ErrInvalidDefinition, n.Name)
		}
	}

	for _, n := range d.Nodes {
		for _, dep := range n.DependsOn {
			if !names[dep] {
				return fmt.Errorf("%w: 节点 %s 依赖未声明的节点 %s", ErrInvalidDefinition, n.Name, dep)
			}
			if dep == n.Name {
				return fmt.Errorf("%w: 节点 %s 依赖自身", ErrInvalidDefinition, n.Name)
			}
		}
	}
	return nil
}

// Node 按名称查找节点定义
func (d *Definition) Node(name string) (NodeSpec, bool) {
	for _, n := range d.Nodes {
		if n.Name == name {
			return n, true
		}
	}
	return NodeSpec{}, false
}
