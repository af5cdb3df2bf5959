package middleware

import (
	"context"
	"reflect"

	"loom/command"
	"loom/execctx"
	"loom/logging"
)

// LoggingMiddleware 命令日志中间件
//
// 只记录命令类型、目标聚合与上下文标识，绝不记录命令载荷。
type LoggingMiddleware struct {
	logger logging.Logger
	level  logging.Level
}

// NewLoggingMiddleware 创建日志中间件
//
// level 为成功路径的日志级别，失败总是以 Error 记录。
func NewLoggingMiddleware(logger logging.Logger, level logging.Level) *LoggingMiddleware {
	if logger == nil {
		logger = logging.ComponentLogger("command.logging")
	}
	return &LoggingMiddleware{logger: logger, level: level}
}

func (m *LoggingMiddleware) Intercept(ctx context.Context, cmd command.ICommand, next command.HandlerFunc) error {
	fields := m.fields(ctx, cmd)
	m.logger.Log(ctx, m.level, "command dispatching", fields...)

	err := next(ctx, cmd)
	if err != nil {
		m.logger.Error(ctx, "command failed", append(fields, logging.Error(err))...)
		return err
	}
	m.logger.Log(ctx, m.level, "command handled", fields...)
	return nil
}

func (m *LoggingMiddleware) fields(ctx context.Context, cmd command.ICommand) []logging.Field {
	fields := []logging.Field{
		logging.String("command_type", reflect.TypeOf(cmd).String()),
		logging.String("aggregate_id", cmd.GetAggregateID()),
		logging.String("command_id", cmd.GetCommandID()),
	}
	if ec, ok := execctx.FromContext(ctx); ok {
		fields = append(fields,
			logging.String("correlation_id", ec.CorrelationID),
			logging.String("causation_id", ec.CausationID))
	}
	return fields
}

var _ command.IMiddleware = (*LoggingMiddleware)(nil)
