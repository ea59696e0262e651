package pipeline

import (
	"fmt"
	"regexp"
	"sort"
)

var placeholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_.-]*)\}`)

// ReplacePlaceholders 替换字符串中所有 ${name} 占位符
// 返回替换后的字符串与未找到取值的占位符名称
func ReplacePlaceholders(value string, params map[string]string) (string, []string) {
	var missing []string
	out := placeholder.ReplaceAllStringFunc(value, func(m string) string {
		name := placeholder.FindStringSubmatch(m)[1]
		if v, ok := params[name]; ok {
			return v
		}
		missing = append(missing, name)
		return m
	})
	return out, missing
}

// mergeParams 覆盖参数优先于定义中的默认值
func mergeParams(defaults, overrides map[string]string) map[string]string {
	merged := make(map[string]string, len(defaults)+len(overrides))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}

// Resolve 返回占位符替换后的定义副本，原定义不变
func (d *Definition) Resolve(overrides map[string]string) (*Definition, error) {
	params := mergeParams(d.Params, overrides)
	missing := make(map[string]bool)

	replace := func(s string) string {
		out, miss := ReplacePlaceholders(s, params)
		for _, m := range miss {
			missing[m] = true
		}
		return out
	}
	replaceMap := func(m map[string]string) map[string]string {
		if m == nil {
			return nil
		}
		out := make(map[string]string, len(m))
		for k, v := range m {
			out[k] = replace(v)
		}
		return out
	}
	replaceSlice := func(s []string) []string {
		if s == nil {
			return nil
		}
		out := make([]string, len(s))
		for i, v := range s {
			out[i] = replace(v)
		}
		return out
	}

	resolved := *d
	resolved.Params = params
	resolved.Env = replaceMap(d.Env)
	resolved.Nodes = make([]NodeSpec, len(d.Nodes))
	for i, n := range d.Nodes {
		n.Run = replace(n.Run)
		n.Command = replaceSlice(n.Command)
		n.Args = replaceSlice(n.Args)
		n.Dir = replace(n.Dir)
		n.Env = replaceMap(n.Env)
		n.DependsOn = append([]string(nil), n.DependsOn...)
		resolved.Nodes[i] = n
	}

	if len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for m := range missing {
			names = append(names, m)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("%w: 以下占位符未找到对应的参数值: %v", ErrInvalidDefinition, names)
	}
	return &resolved, nil
}
