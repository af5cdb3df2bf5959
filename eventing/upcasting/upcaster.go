// Package upcasting 提供事件模式升级管道
//
// 升级器将旧版本载荷转换为新版本，管道按源类型索引并链式推进，
// 直至没有升级器匹配为止。
package upcasting

import (
	"context"
	"fmt"
	"reflect"
)

// IUpcaster 单步载荷升级器
//
// 源类型与目标类型在构造时显式声明，管道据此索引与防环。
type IUpcaster interface {
	SourceType() reflect.Type
	TargetType() reflect.Type
	Upcast(ctx context.Context, payload any) (any, error)
}

// funcUpcaster 基于函数的升级器实现
type funcUpcaster struct {
	source reflect.Type
	target reflect.Type
	fn     func(ctx context.Context, payload any) (any, error)
}

func (u *funcUpcaster) SourceType() reflect.Type { return u.source }
func (u *funcUpcaster) TargetType() reflect.Type { return u.target }

func (u *funcUpcaster) Upcast(ctx context.Context, payload any) (any, error) {
	if reflect.TypeOf(payload) != u.source {
		return nil, fmt.Errorf("upcaster for %v received %T", u.source, payload)
	}
	return u.fn(ctx, payload)
}

// New 以转换函数创建升级器，源与目标类型取自函数签名
func New[S any, T any](fn func(ctx context.Context, old S) (T, error)) IUpcaster {
	return &funcUpcaster{
		source: reflect.TypeOf((*S)(nil)).Elem(),
		target: reflect.TypeOf((*T)(nil)).Elem(),
		fn: func(ctx context.Context, payload any) (any, error) {
			return fn(ctx, payload.(S))
		},
	}
}
