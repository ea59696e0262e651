// Package result 定义节点结果的序列化能力与结果类型描述
package result

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
)

var (
	// ErrMissing 依赖结果映射中不存在指定标签
	ErrMissing = errors.New("依赖结果不存在")
	// ErrUnexpectedKind 依赖结果的实际类型与期望类型不一致
	ErrUnexpectedKind = errors.New("依赖结果类型不匹配")
)

// Result 节点结果接口（对外导出）
// 每个具体结果类型自行实现序列化，反序列化由对应的 Kind 负责
type Result interface {
	Serialize() ([]byte, error)
}

// Deserializer 自定义反序列化接口（可选）
// 结果类型的指针实现该接口时，KindOf 优先使用它而不是 JSON
type Deserializer interface {
	Deserialize(data []byte) error
}

// Kind 结果类型描述（对外导出）
type Kind interface {
	// Name 类型名称，用于日志与持久化
	Name() string
	// Type 结果的 Go 类型
	Type() reflect.Type
	// Deserialize 将序列化数据还原为该类型的结果
	Deserialize(data []byte) (Result, error)
}

type typedKind[T Result] struct {
	typ reflect.Type
}

// KindOf 返回结果类型 T 的 Kind（对外导出）
// T 必须是具体类型（结构体或结构体指针），不能是接口
func KindOf[T Result]() Kind {
	return typedKind[T]{typ: reflect.TypeFor[T]()}
}

func (k typedKind[T]) Name() string {
	return k.typ.String()
}

func (k typedKind[T]) Type() reflect.Type {
	return k.typ
}

func (k typedKind[T]) Deserialize(data []byte) (Result, error) {
	var out T
	var target any
	if k.typ.Kind() == reflect.Pointer {
		out = reflect.New(k.typ.Elem()).Interface().(T)
		target = out
	} else {
		target = &out
	}

	if d, ok := target.(Deserializer); ok {
		if err := d.Deserialize(data); err != nil {
			return nil, fmt.Errorf("反序列化结果失败: kind=%s: %w", k.Name(), err)
		}
		return out, nil
	}
	if err := json.Unmarshal(data, target); err != nil {
		return nil, fmt.Errorf("反序列化结果失败: kind=%s: %w", k.Name(), err)
	}
	return out, nil
}

// As 从依赖结果映射中取出指定标签的结果并断言为 T（对外导出）
func As[T Result](deps map[string]Result, label string) (T, error) {
	var zero T
	res, ok := deps[label]
	if !ok {
		return zero, fmt.Errorf("%w: %s", ErrMissing, label)
	}
	typed, ok := res.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s 期望 %T，实际 %T", ErrUnexpectedKind, label, zero, res)
	}
	return typed, nil
}

// Empty 空结果，用于只需要顺序、不产生数据的节点
type Empty struct{}

// Serialize 实现 Result 接口
func (Empty) Serialize() ([]byte, error) {
	return []byte("{}"), nil
}

// Text 纯文本结果
type Text struct {
	Value string `json:"value"`
}

// Serialize 实现 Result 接口
func (t Text) Serialize() ([]byte, error) {
	return json.Marshal(t)
}
