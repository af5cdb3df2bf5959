// Package loomtest 聚合测试辅助
//
// 以 given-events / when-command / then-events 的方式描述聚合行为：
//
//	loomtest.New(t, newAccount("acc-1")).
//		Given(accountOpened{Owner: "alice"}).
//		When(depositMoney{Amount: 50}).
//		ThenEmits(moneyDeposited{Amount: 50})
//
// 场景直接驱动聚合实例，不经过仓储与事件存储。
package loomtest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"loom/aggregate"
	"loom/errors"
	"loom/eventing"
)

// Scenario 单个聚合的行为场景
type Scenario struct {
	t   *testing.T
	ctx context.Context
	agg aggregate.IAggregate

	errs []error
}

// New 创建场景
func New(t *testing.T, agg aggregate.IAggregate) *Scenario {
	t.Helper()
	require.NotNil(t, agg, "scenario aggregate is nil")
	return &Scenario{t: t, ctx: context.Background(), agg: agg}
}

// WithContext 替换命令执行使用的上下文
func (s *Scenario) WithContext(ctx context.Context) *Scenario {
	s.ctx = ctx
	return s
}

// Given 回放既有历史事件，不产生未提交事件
func (s *Scenario) Given(payloads ...any) *Scenario {
	s.t.Helper()
	for _, payload := range payloads {
		event := eventing.NewEvent(s.agg.AggregateID(), s.agg.Version()+1, payload, "", "")
		require.NoError(s.t, s.agg.Replay(s.ctx, []eventing.Event{event}),
			"given event %T does not apply", payload)
	}
	return s
}

// When 依次执行命令，收集错误供 Then 断言
func (s *Scenario) When(commands ...any) *Scenario {
	s.t.Helper()
	for _, command := range commands {
		if err := s.agg.HandleCommand(s.ctx, command); err != nil {
			s.errs = append(s.errs, err)
		}
	}
	return s
}

// ThenEmits 断言命令恰好按序产生这些事件载荷
func (s *Scenario) ThenEmits(payloads ...any) *Scenario {
	s.t.Helper()
	s.requireNoErrors()

	emitted := s.agg.UncommittedEvents()
	require.Len(s.t, emitted, len(payloads), "emitted event count mismatch")
	for i, want := range payloads {
		require.Equal(s.t, want, emitted[i].Payload, "emitted event %d mismatch", i)
	}
	return s
}

// ThenEmitsNothing 断言命令未产生任何事件
func (s *Scenario) ThenEmitsNothing() *Scenario {
	s.t.Helper()
	s.requireNoErrors()
	require.Empty(s.t, s.agg.UncommittedEvents(), "expected no emitted events")
	return s
}

// ThenFails 断言至少一个命令失败
func (s *Scenario) ThenFails() *Scenario {
	s.t.Helper()
	require.NotEmpty(s.t, s.errs, "expected a command to fail")
	return s
}

// ThenFailsWith 断言至少一个命令以该错误代码失败
func (s *Scenario) ThenFailsWith(code errors.ErrorCode) *Scenario {
	s.t.Helper()
	s.ThenFails()
	for _, err := range s.errs {
		if errors.IsErrorCode(err, code) {
			return s
		}
	}
	require.Failf(s.t, "error code mismatch",
		"no command failed with code %s, got %v", code, s.errs)
	return s
}

// ThenState 对命令执行后的聚合状态做断言
func (s *Scenario) ThenState(fn func(t *testing.T, agg aggregate.IAggregate)) *Scenario {
	s.t.Helper()
	fn(s.t, s.agg)
	return s
}

// Aggregate 场景内的聚合实例
func (s *Scenario) Aggregate() aggregate.IAggregate {
	return s.agg
}

// Errors 命令执行期间收集到的错误
func (s *Scenario) Errors() []error {
	return s.errs
}

func (s *Scenario) requireNoErrors() {
	s.t.Helper()
	require.Empty(s.t, s.errs, "commands failed unexpectedly")
}
