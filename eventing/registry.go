package eventing

import (
	"encoding/json"
	"reflect"
	"sync"

	"loom/errors"
)

// PayloadRegistry 载荷类型注册表
//
// 序列化型后端（SQLite、NATS）依赖注册表在类型名与 Go 类型之间转换。
// 纯内存运行无需注册。
type PayloadRegistry struct {
	mu      sync.RWMutex
	byName  map[string]reflect.Type
	byType  map[reflect.Type]string
}

// NewPayloadRegistry 创建空注册表
func NewPayloadRegistry() *PayloadRegistry {
	return &PayloadRegistry{
		byName: make(map[string]reflect.Type),
		byType: make(map[reflect.Type]string),
	}
}

// Register 以名称注册载荷类型，重复注册返回错误
func (r *PayloadRegistry) Register(name string, prototype any) error {
	if name == "" {
		return errors.NewError(errors.ErrCodeInvalidInput, "payload name is empty")
	}
	typ := reflect.TypeOf(prototype)
	if typ == nil {
		return errors.NewError(errors.ErrCodeInvalidInput, "payload prototype is nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byName[name]; ok && existing != typ {
		return errors.NewErrorf(errors.ErrCodeDuplicate, "payload name %q already registered for %v", name, existing)
	}
	if existing, ok := r.byType[typ]; ok && existing != name {
		return errors.NewErrorf(errors.ErrCodeDuplicate, "payload type %v already registered as %q", typ, existing)
	}
	r.byName[name] = typ
	r.byType[typ] = name
	return nil
}

// MustRegister 注册载荷类型，失败即 panic（用于构建期装配）
func (r *PayloadRegistry) MustRegister(name string, prototype any) {
	if err := r.Register(name, prototype); err != nil {
		panic(err)
	}
}

// NameOf 查询载荷的注册名
func (r *PayloadRegistry) NameOf(payload any) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.byType[reflect.TypeOf(payload)]
	return name, ok
}

// Marshal 将载荷序列化为 (类型名, JSON)
func (r *PayloadRegistry) Marshal(payload any) (string, []byte, error) {
	name, ok := r.NameOf(payload)
	if !ok {
		return "", nil, errors.NewErrorf(errors.ErrCodeSerialization, "payload type %T not registered", payload)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", nil, errors.WrapError(err, errors.ErrCodeSerialization, "marshal payload")
	}
	return name, data, nil
}

// Unmarshal 按类型名反序列化载荷，返回注册类型的值
func (r *PayloadRegistry) Unmarshal(name string, data []byte) (any, error) {
	r.mu.RLock()
	typ, ok := r.byName[name]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.NewErrorf(errors.ErrCodeSerialization, "payload name %q not registered", name)
	}
	value := reflect.New(typ)
	if err := json.Unmarshal(data, value.Interface()); err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeSerialization, "unmarshal payload "+name)
	}
	return value.Elem().Interface(), nil
}

// RegisterPayload 泛型注册辅助：以 T 的零值为原型
func RegisterPayload[T any](r *PayloadRegistry, name string) error {
	var zero T
	return r.Register(name, zero)
}
