// Package query 提供查询模型与带中间件的查询总线
package query

import (
	"context"
	"reflect"

	"loom/errors"
	"loom/ident"
	"loom/routing"
)

// IQuery 查询接口
type IQuery interface {
	GetQueryID() string
}

// Query 查询基础字段，内嵌进具体查询类型
type Query struct {
	ID string
}

// NewQuery 创建查询基础字段
func NewQuery() Query {
	return Query{ID: ident.New()}
}

func (q Query) GetQueryID() string { return q.ID }

// HandlerFunc 查询处理函数
type HandlerFunc func(ctx context.Context, q IQuery) (any, error)

// IMiddleware 查询中间件
//
// 可观察、改写结果或不调用 next 直接短路（如结果缓存）。
type IMiddleware interface {
	Intercept(ctx context.Context, q IQuery, next HandlerFunc) (any, error)
}

// Bus 查询总线，中间件语义与命令总线一致：先注册的在最外层
type Bus struct {
	handler HandlerFunc
}

// NewBus 创建查询总线
func NewBus(root HandlerFunc, middlewares ...IMiddleware) (*Bus, error) {
	if root == nil {
		return nil, errors.NewError(errors.ErrCodeConfiguration, "query bus root handler is nil")
	}
	handler := root
	for i := len(middlewares) - 1; i >= 0; i-- {
		mw := middlewares[i]
		next := handler
		handler = func(ctx context.Context, q IQuery) (any, error) {
			return mw.Intercept(ctx, q, next)
		}
	}
	return &Bus{handler: handler}, nil
}

// Dispatch 派发查询
func (b *Bus) Dispatch(ctx context.Context, q IQuery) (any, error) {
	if q == nil {
		return nil, errors.NewError(errors.ErrCodeInvalidInput, "query is nil")
	}
	return b.handler(ctx, q)
}

// Router 查询路由器：按查询具体类型分发，未命中报错
type Router struct {
	table *routing.Table
}

// NewRouter 创建查询路由器
func NewRouter() *Router {
	return &Router{table: routing.NewTable("query.router", routing.MissError)}
}

// Handle 作为总线根处理器使用
func (r *Router) Handle(ctx context.Context, q IQuery) (any, error) {
	return r.table.Dispatch(ctx, q, nil)
}

// Handles 查询此路由器是否注册了该查询类型（多投影装配用）
func (r *Router) Handles(q IQuery) bool {
	return r.table.Has(reflect.TypeOf(q))
}

// Register 注册查询处理器（非泛型入口，投影装配用）
//
// queryType 传查询类型的零值实例。
func (r *Router) Register(queryType any, fn HandlerFunc) error {
	return r.table.Register(reflect.TypeOf(queryType), func(ctx context.Context, msg any) (any, error) {
		return fn(ctx, msg.(IQuery))
	}, false)
}

// RegisterHandler 注册类型化查询处理器，重复注册返回错误
func RegisterHandler[Q IQuery](r *Router, fn func(ctx context.Context, q Q) (any, error)) error {
	return r.table.Register(routing.TypeOf[Q](), func(ctx context.Context, msg any) (any, error) {
		return fn(ctx, msg.(Q))
	}, false)
}

// MustRegisterHandler 注册类型化查询处理器，失败即 panic
func MustRegisterHandler[Q IQuery](r *Router, fn func(ctx context.Context, q Q) (any, error)) {
	if err := RegisterHandler(r, fn); err != nil {
		panic(err)
	}
}
