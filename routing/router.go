// Package routing 提供按消息具体类型分发的路由表
//
// 处理函数在注册时显式声明其负责的消息类型，分发按类型精确匹配，
// 不做接口匹配或父类型回退。重复注册在构建期即报错。
package routing

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"loom/errors"
)

// MissPolicy 未命中处理器时的策略
type MissPolicy int

const (
	// MissError 未命中时返回 NoHandlerError（命令、查询）
	MissError MissPolicy = iota

	// MissIgnore 未命中时静默忽略（事件应用、事件处理）
	MissIgnore
)

// HandlerFunc 统一的处理函数签名
//
// 参数为消息载荷或完整信封（取决于注册选项），返回值对无结果的
// 处理器为 nil。
type HandlerFunc func(ctx context.Context, msg any) (any, error)

// NoHandlerError 没有处理器匹配消息类型
type NoHandlerError struct {
	Table       string
	MessageType reflect.Type
}

func (e *NoHandlerError) Error() string {
	return fmt.Sprintf("%s: no handler registered for %v", e.Table, e.MessageType)
}

func (e *NoHandlerError) Code() errors.ErrorCode { return errors.ErrCodeNoHandler }

// DuplicateHandlerError 同一消息类型被注册了两次
type DuplicateHandlerError struct {
	Table       string
	MessageType reflect.Type
}

func (e *DuplicateHandlerError) Error() string {
	return fmt.Sprintf("%s: handler already registered for %v", e.Table, e.MessageType)
}

func (e *DuplicateHandlerError) Code() errors.ErrorCode { return errors.ErrCodeDuplicate }

type entry struct {
	fn            HandlerFunc
	wantsEnvelope bool
}

// Table 类型分发表
//
// 注册阶段完成后只读，分发阶段无锁并发安全。
type Table struct {
	name    string
	miss    MissPolicy
	entries map[reflect.Type]entry
}

// NewTable 创建分发表
//
// 参数:
//   - name: 表名，用于错误与日志
//   - miss: 未命中策略
func NewTable(name string, miss MissPolicy) *Table {
	return &Table{
		name:    name,
		miss:    miss,
		entries: make(map[reflect.Type]entry),
	}
}

// Register 注册处理函数
//
// wantsEnvelope 为 true 时分发传入完整信封而非载荷。
// 重复注册返回 DuplicateHandlerError。
func (t *Table) Register(msgType reflect.Type, fn HandlerFunc, wantsEnvelope bool) error {
	if msgType == nil {
		return fmt.Errorf("%s: message type is nil", t.name)
	}
	if fn == nil {
		return fmt.Errorf("%s: handler for %v is nil", t.name, msgType)
	}
	if _, exists := t.entries[msgType]; exists {
		return &DuplicateHandlerError{Table: t.name, MessageType: msgType}
	}
	t.entries[msgType] = entry{fn: fn, wantsEnvelope: wantsEnvelope}
	return nil
}

// MustRegister 注册处理函数，失败即 panic（用于构建期装配）
func (t *Table) MustRegister(msgType reflect.Type, fn HandlerFunc, wantsEnvelope bool) {
	if err := t.Register(msgType, fn, wantsEnvelope); err != nil {
		panic(err)
	}
}

// Has 查询类型是否已注册
func (t *Table) Has(msgType reflect.Type) bool {
	_, ok := t.entries[msgType]
	return ok
}

// Types 返回已注册的消息类型（按名称排序）
func (t *Table) Types() []reflect.Type {
	types := make([]reflect.Type, 0, len(t.entries))
	for typ := range t.entries {
		types = append(types, typ)
	}
	sort.Slice(types, func(i, j int) bool {
		return types[i].String() < types[j].String()
	})
	return types
}

// Dispatch 按载荷的具体类型分发
//
// envelope 为可选的完整信封；处理器声明 wantsEnvelope 且信封非 nil
// 时传入信封，否则传入载荷。
func (t *Table) Dispatch(ctx context.Context, payload any, envelope any) (any, error) {
	msgType := reflect.TypeOf(payload)
	e, ok := t.entries[msgType]
	if !ok {
		if t.miss == MissIgnore {
			return nil, nil
		}
		return nil, &NoHandlerError{Table: t.name, MessageType: msgType}
	}
	arg := payload
	if e.wantsEnvelope && envelope != nil {
		arg = envelope
	}
	return e.fn(ctx, arg)
}

// TypeOf 返回 T 的 reflect.Type（注册辅助）
func TypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}
