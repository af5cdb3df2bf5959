// Package ident 提供框架内统一的标识符生成
//
// 标识符为 ULID：128 位、字典序即时间序，用于聚合、命令、查询、
// 事件以及关联/因果标识。
package ident

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// New 生成新的排序友好标识符
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	return id.String()
}

// NewAt 以指定时间生成标识符（用于回放与测试）
func NewAt(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	id := ulid.MustNew(ulid.Timestamp(t), entropy)
	return id.String()
}

// IsValid 校验标识符格式
func IsValid(id string) bool {
	_, err := ulid.ParseStrict(id)
	return err == nil
}

// Timestamp 提取标识符中的时间戳，解析失败返回零值
func Timestamp(id string) time.Time {
	parsed, err := ulid.ParseStrict(id)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(int64(parsed.Time())).UTC()
}
