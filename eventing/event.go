// Package eventing 定义事件模型、事件存储与事件传输的核心抽象
package eventing

import (
	"time"

	"loom/errors"
	"loom/ident"
)

// Event 领域事件信封，创建后不可变
//
// SequenceNumber 为聚合内从 1 开始的连续序号；
// CorrelationID/CausationID 记录事件所属流程与直接起因，可为空。
type Event struct {
	ID             string
	AggregateID    string
	SequenceNumber int64
	Timestamp      time.Time
	Payload        any
	CorrelationID  string
	CausationID    string
}

// NewEvent 创建事件，自动生成标识并以 UTC 打时间戳
func NewEvent(aggregateID string, sequenceNumber int64, payload any, correlationID, causationID string) Event {
	return Event{
		ID:             ident.New(),
		AggregateID:    aggregateID,
		SequenceNumber: sequenceNumber,
		Timestamp:      time.Now().UTC(),
		Payload:        payload,
		CorrelationID:  correlationID,
		CausationID:    causationID,
	}
}

// WithPayload 返回载荷被替换、其余身份字段保持不变的副本
//
// 升级管道用它保证升级不会改变事件身份。
func (e Event) WithPayload(payload any) Event {
	e.Payload = payload
	return e
}

// Validate 校验事件完整性
func (e Event) Validate() error {
	if e.ID == "" {
		return errors.NewError(errors.ErrCodeInvalidInput, "event id is empty")
	}
	if e.AggregateID == "" {
		return errors.NewError(errors.ErrCodeInvalidInput, "event aggregate id is empty")
	}
	if e.SequenceNumber < 1 {
		return errors.NewErrorf(errors.ErrCodeInvalidInput, "event sequence number %d is not positive", e.SequenceNumber)
	}
	if e.Payload == nil {
		return errors.NewError(errors.ErrCodeInvalidInput, "event payload is nil")
	}
	return nil
}
