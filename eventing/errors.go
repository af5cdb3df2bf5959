package eventing

import (
	stderrors "errors"
	"fmt"
)

// ErrEndOfStream 订阅底层流已关闭且无更多事件
var ErrEndOfStream = stderrors.New("eventing: end of stream")

// ErrAggregateNotFound 聚合不存在（既无快照也无事件）
var ErrAggregateNotFound = stderrors.New("eventing: aggregate not found")

// ConcurrencyError 乐观并发冲突
//
// 期望版本与存储中的实际版本不一致时由事件存储返回。
// 调用方用 errors.As 识别并决定重试。
type ConcurrencyError struct {
	AggregateID     string
	ExpectedVersion int64
	ActualVersion   int64
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("concurrency conflict on aggregate %s: expected version %d, actual %d",
		e.AggregateID, e.ExpectedVersion, e.ActualVersion)
}

// IsConcurrencyError 判断错误链中是否包含并发冲突
func IsConcurrencyError(err error) bool {
	var ce *ConcurrencyError
	return stderrors.As(err, &ce)
}

// StoreError 事件存储内部错误
type StoreError struct {
	Op    string
	Cause error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("event store %s: %v", e.Op, e.Cause)
}

func (e *StoreError) Unwrap() error {
	return e.Cause
}
