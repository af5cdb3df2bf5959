package processing

import "time"

// Lag 处理器的积压度量
type Lag struct {
	// Unprocessed 订阅中尚未消费的事件数
	Unprocessed int

	// AverageEventAge 上一批派发事件的平均事件年龄
	AverageEventAge time.Duration
}

// ICatchupCondition 判断是否需要触发追赶
type ICatchupCondition interface {
	ShouldCatchup(lag Lag) bool
}

// NeverCondition 永不追赶
type NeverCondition struct{}

func (NeverCondition) ShouldCatchup(Lag) bool { return false }

// AfterNEvents 积压事件数超过阈值时追赶
type AfterNEvents struct {
	Threshold int
}

func (c AfterNEvents) ShouldCatchup(lag Lag) bool {
	return lag.Unprocessed > c.Threshold
}

// AfterNAge 平均事件年龄超过阈值时追赶
type AfterNAge struct {
	Threshold time.Duration
}

func (c AfterNAge) ShouldCatchup(lag Lag) bool {
	return lag.AverageEventAge > c.Threshold
}

// AnyOf 任一子条件满足即追赶
type AnyOf []ICatchupCondition

func (c AnyOf) ShouldCatchup(lag Lag) bool {
	for _, cond := range c {
		if cond.ShouldCatchup(lag) {
			return true
		}
	}
	return false
}

// AllOf 全部子条件满足才追赶
type AllOf []ICatchupCondition

func (c AllOf) ShouldCatchup(lag Lag) bool {
	if len(c) == 0 {
		return false
	}
	for _, cond := range c {
		if !cond.ShouldCatchup(lag) {
			return false
		}
	}
	return true
}
