package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"
	"unicode"

	"github.com/LENAX/conduit/pkg/core/node"
	"github.com/LENAX/conduit/pkg/core/result"
)

const (
	// NodeEnv 命令节点中当前节点名称的环境变量
	NodeEnv = "CONDUIT_NODE"
	// DepEnvPrefix 依赖命令标准输出的环境变量前缀，例如 CONDUIT_DEP_FETCH
	DepEnvPrefix = "CONDUIT_DEP_"
)

// CommandResult 命令节点的执行结果
type CommandResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
}

// Serialize 实现 result.Result 接口
func (r CommandResult) Serialize() ([]byte, error) {
	return json.Marshal(r)
}

// commandNode 创建执行外部命令的节点
// 依赖结果以 JSON 对象写入标准输入，依赖为命令时其标准输出同时以环境变量传入
func commandNode(spec NodeSpec, sharedEnv map[string]string, opts ...node.Option) *node.Node {
	return node.New(spec.Name, func(ctx context.Context, n *node.Node, deps map[string]result.Result, args ...any) (CommandResult, error) {
		if spec.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, spec.Timeout)
			defer cancel()
		}

		var cmd *exec.Cmd
		if spec.Run != "" {
			cmd = exec.CommandContext(ctx, "sh", "-c", spec.Run)
		} else {
			cmd = exec.CommandContext(ctx, spec.Command[0], spec.Command[1:]...)
		}
		cmd.Dir = spec.Dir
		cmd.Env = commandEnv(n.Label(), sharedEnv, spec.Env, deps)

		stdin, err := encodeDependencies(deps)
		if err != nil {
			return CommandResult{}, err
		}
		cmd.Stdin = bytes.NewReader(stdin)

		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr

		exitCode := 0
		if err := cmd.Run(); err != nil {
			var exitErr *exec.ExitError
			if !errors.As(err, &exitErr) || ctx.Err() != nil {
				return CommandResult{}, fmt.Errorf("执行命令失败: node=%s: %w", n.Label(), err)
			}
			exitCode = exitErr.ExitCode()
		}

		res := CommandResult{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: exitCode}
		if exitCode != 0 && !spec.AllowFailure {
			return res, fmt.Errorf("%w: node=%s, exit=%d: %s", ErrCommandFailed, n.Label(), exitCode, strings.TrimSpace(res.Stderr))
		}
		return res, nil
	}, opts...)
}

// commandEnv 宿主环境 + 流水线环境 + 节点环境 + 依赖输出，后者覆盖前者
func commandEnv(label string, shared, own map[string]string, deps map[string]result.Result) []string {
	env := os.Environ()
	env = appendSorted(env, shared)
	env = appendSorted(env, own)
	env = append(env, NodeEnv+"="+label)

	labels := make([]string, 0, len(deps))
	for l := range deps {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	for _, l := range labels {
		if cr, ok := deps[l].(CommandResult); ok {
			env = append(env, DepEnvPrefix+EnvName(l)+"="+strings.TrimSpace(cr.Stdout))
		}
	}
	return env
}

func appendSorted(env []string, vars map[string]string) []string {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+vars[k])
	}
	return env
}

// EnvName 将节点名称转换为环境变量名：大写，非字母数字替换为下划线
func EnvName(label string) string {
	return strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return unicode.ToUpper(r)
		}
		return '_'
	}, label)
}

func encodeDependencies(deps map[string]result.Result) ([]byte, error) {
	raw := make(map[string]json.RawMessage, len(deps))
	for label, res := range deps {
		data, err := res.Serialize()
		if err != nil {
			return nil, fmt.Errorf("序列化依赖结果失败: %s: %w", label, err)
		}
		raw[label] = data
	}
	return json.Marshal(raw)
}
