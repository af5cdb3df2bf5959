// Package di 提供按类型名注册、惰性构造的依赖注入容器
//
// 容器只建议在装配阶段使用：应用启动时注册工厂与实例、一次性
// ResolveAll 构建完整对象图，业务代码仍通过构造函数显式接收依赖。
package di

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"loom/errors"
)

// IContainer 依赖注入容器接口
type IContainer interface {
	// RegisterConstructor 注册构造函数，以首个返回值类型名作为服务名
	RegisterConstructor(constructor any) error

	// RegisterFactory 以指定名字注册工厂，解析时惰性构造并缓存
	RegisterFactory(name string, factory any) error

	// RegisterInstance 以指定名字注册现成实例
	RegisterInstance(name string, instance any) error

	// Resolve 解析服务，递归构造其依赖
	Resolve(name string) (any, error)

	// ResolveTo 解析服务并写入 target 指向的位置
	ResolveTo(name string, target any) error

	// ResolveAll 拓扑解析全部注册项，失败时报告缺失或循环依赖
	ResolveAll() error

	// IsRegistered 查询名字是否已注册
	IsRegistered(name string) bool

	// RegisteredNames 已注册的服务名（排序后）
	RegisteredNames() []string

	// Invoke 调用函数，参数按类型名从容器注入
	Invoke(function any) error
}

// Container 容器实现
type Container struct {
	mu        sync.Mutex
	factories map[string]any
	instances map[string]any
	resolving map[string]bool
}

// New 创建容器
func New() *Container {
	return &Container{
		factories: make(map[string]any),
		instances: make(map[string]any),
		resolving: make(map[string]bool),
	}
}

var _ IContainer = (*Container)(nil)

func (c *Container) RegisterConstructor(constructor any) error {
	if constructor == nil {
		return errors.NewError(errors.ErrCodeInvalidInput, "constructor is nil")
	}
	t := reflect.TypeOf(constructor)
	if t.Kind() != reflect.Func {
		return errors.NewError(errors.ErrCodeInvalidInput, "constructor must be a function")
	}
	if t.NumOut() == 0 {
		return errors.NewError(errors.ErrCodeInvalidInput, "constructor must return a value")
	}
	return c.RegisterFactory(t.Out(0).String(), constructor)
}

func (c *Container) RegisterFactory(name string, factory any) error {
	if name == "" {
		return errors.NewError(errors.ErrCodeInvalidInput, "service name is empty")
	}
	if factory == nil {
		return errors.NewError(errors.ErrCodeInvalidInput, "factory is nil")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.registered(name) {
		return errors.NewErrorf(errors.ErrCodeConflict, "service %s already registered", name)
	}
	c.factories[name] = factory
	return nil
}

func (c *Container) RegisterInstance(name string, instance any) error {
	if name == "" {
		return errors.NewError(errors.ErrCodeInvalidInput, "service name is empty")
	}
	if instance == nil {
		return errors.NewError(errors.ErrCodeInvalidInput, "instance is nil")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.registered(name) {
		return errors.NewErrorf(errors.ErrCodeConflict, "service %s already registered", name)
	}
	c.instances[name] = instance
	return nil
}

func (c *Container) registered(name string) bool {
	if _, ok := c.factories[name]; ok {
		return true
	}
	_, ok := c.instances[name]
	return ok
}

func (c *Container) IsRegistered(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registered(name)
}

func (c *Container) RegisteredNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.factories)+len(c.instances))
	for name := range c.factories {
		names = append(names, name)
	}
	for name := range c.instances {
		if _, ok := c.factories[name]; !ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (c *Container) Resolve(name string) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resolve(name)
}

// resolve 在持锁状态下递归解析；resolving 集合侦测循环
func (c *Container) resolve(name string) (any, error) {
	if inst, ok := c.instances[name]; ok {
		return inst, nil
	}
	factory, ok := c.factories[name]
	if !ok {
		return nil, errors.NewErrorf(errors.ErrCodeNotFound, "service %s not registered", name)
	}
	if c.resolving[name] {
		return nil, errors.NewErrorf(errors.ErrCodeResolution, "circular dependency on service %s", name)
	}
	c.resolving[name] = true
	defer delete(c.resolving, name)

	inst, err := c.construct(factory)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeResolution, fmt.Sprintf("construct service %s failed", name))
	}
	c.instances[name] = inst
	return inst, nil
}

func (c *Container) construct(factory any) (any, error) {
	fv := reflect.ValueOf(factory)
	ft := fv.Type()
	args := make([]reflect.Value, ft.NumIn())
	for i := 0; i < ft.NumIn(); i++ {
		inst, err := c.resolveParameter(ft.In(i))
		if err != nil {
			return nil, err
		}
		args[i] = reflect.ValueOf(inst)
	}
	results := fv.Call(args)
	if len(results) == 0 {
		return nil, errors.NewError(errors.ErrCodeResolution, "factory returned nothing")
	}
	if last := results[len(results)-1]; last.Type() == errType && !last.IsNil() {
		return nil, last.Interface().(error)
	}
	return results[0].Interface(), nil
}

var errType = reflect.TypeOf((*error)(nil)).Elem()

// resolveParameter 参数按完整类型名匹配；指针参数退而匹配元素
// 类型名，接口参数退而匹配裸接口名
func (c *Container) resolveParameter(paramType reflect.Type) (any, error) {
	if c.registered(paramType.String()) {
		return c.resolve(paramType.String())
	}
	if paramType.Kind() == reflect.Ptr && c.registered(paramType.Elem().String()) {
		return c.resolve(paramType.Elem().String())
	}
	if paramType.Kind() == reflect.Interface && c.registered(paramType.Name()) {
		return c.resolve(paramType.Name())
	}
	return nil, errors.NewErrorf(errors.ErrCodeNotFound, "no service for parameter type %s", paramType)
}

func (c *Container) ResolveTo(name string, target any) error {
	inst, err := c.Resolve(name)
	if err != nil {
		return err
	}
	if target == nil {
		return errors.NewError(errors.ErrCodeInvalidInput, "target is nil")
	}
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Ptr {
		return errors.NewError(errors.ErrCodeInvalidInput, "target must be a pointer")
	}
	iv := reflect.ValueOf(inst)
	if !iv.Type().AssignableTo(v.Elem().Type()) {
		return errors.NewErrorf(errors.ErrCodeInvalidInput, "cannot assign %s to %s", iv.Type(), v.Elem().Type())
	}
	v.Elem().Set(iv)
	return nil
}

// ResolveAll 反复解析所有尚未实例化的注册项，一轮没有任何进展
// 时停止，并点名仍缺依赖或构成循环的服务
func (c *Container) ResolveAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	lastErrs := make(map[string]error)
	for {
		progressed := false
		pending := make([]string, 0, len(c.factories))
		for name := range c.factories {
			if _, done := c.instances[name]; !done {
				pending = append(pending, name)
			}
		}
		if len(pending) == 0 {
			return nil
		}
		sort.Strings(pending)

		for _, name := range pending {
			if _, err := c.resolve(name); err != nil {
				lastErrs[name] = err
				continue
			}
			progressed = true
			delete(lastErrs, name)
		}
		if !progressed {
			break
		}
	}

	names := make([]string, 0, len(lastErrs))
	for name := range lastErrs {
		names = append(names, name)
	}
	sort.Strings(names)
	details := make([]string, 0, len(names))
	for _, name := range names {
		details = append(details, fmt.Sprintf("%s: %v", name, lastErrs[name]))
	}
	return errors.NewErrorf(errors.ErrCodeResolution,
		"unresolved services: %s", strings.Join(details, "; "))
}

func (c *Container) Invoke(function any) error {
	if function == nil {
		return errors.NewError(errors.ErrCodeInvalidInput, "function is nil")
	}
	fv := reflect.ValueOf(function)
	if fv.Type().Kind() != reflect.Func {
		return errors.NewError(errors.ErrCodeInvalidInput, "parameter must be a function")
	}

	c.mu.Lock()
	args := make([]reflect.Value, fv.Type().NumIn())
	for i := 0; i < fv.Type().NumIn(); i++ {
		inst, err := c.resolveParameter(fv.Type().In(i))
		if err != nil {
			c.mu.Unlock()
			return errors.WrapError(err, errors.ErrCodeResolution,
				fmt.Sprintf("resolve parameter %s failed", fv.Type().In(i)))
		}
		args[i] = reflect.ValueOf(inst)
	}
	c.mu.Unlock()

	results := fv.Call(args)
	if len(results) > 0 {
		if last := results[len(results)-1]; last.Type() == errType && !last.IsNil() {
			return last.Interface().(error)
		}
	}
	return nil
}
