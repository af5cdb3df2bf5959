// Package logging 提供框架内统一的日志接口抽象
package logging

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Level 日志级别
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// Logger 日志接口，框架内所有组件通过它输出日志
type Logger interface {
	// Debug 调试日志
	Debug(ctx context.Context, msg string, fields ...Field)

	// Info 信息日志
	Info(ctx context.Context, msg string, fields ...Field)

	// Warn 警告日志
	Warn(ctx context.Context, msg string, fields ...Field)

	// Error 错误日志
	Error(ctx context.Context, msg string, fields ...Field)

	// Log 按级别输出日志
	Log(ctx context.Context, level Level, msg string, fields ...Field)

	// WithFields 追加字段，返回新的Logger
	WithFields(fields ...Field) Logger
}

// Field 日志字段
type Field struct {
	Key   string
	Value any
}

// 字段构造函数
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

func Uint64(key string, value uint64) Field {
	return Field{Key: key, Value: value}
}

func Float64(key string, value float64) Field {
	return Field{Key: key, Value: value}
}

func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

func Any(key string, value any) Field {
	return Field{Key: key, Value: value}
}

func Error(err error) Field {
	return Field{Key: "error", Value: err}
}

// Duration 以 time.Duration 作为字段值
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value}
}

// Time 以 time.Time 作为字段值，RFC3339 输出
func Time(key string, value time.Time) Field {
	return Field{Key: key, Value: value.Format(time.RFC3339Nano)}
}

// StdLogger 标准库log实现，支持最低级别过滤
type StdLogger struct {
	prefix   string
	minLevel Level
	fields   []Field
}

// NewStdLogger 创建标准库Logger
func NewStdLogger(prefix string) *StdLogger {
	return &StdLogger{prefix: prefix, minLevel: DebugLevel}
}

// NewStdLoggerAt 创建带最低级别的标准库Logger
func NewStdLoggerAt(prefix string, min Level) *StdLogger {
	return &StdLogger{prefix: prefix, minLevel: min}
}

func (l *StdLogger) format(msg string, fields ...Field) string {
	result := msg
	if l.prefix != "" {
		result = l.prefix + " " + msg
	}
	for _, f := range l.fields {
		result += " " + f.Key + "=" + formatValue(f.Value)
	}
	for _, f := range fields {
		result += " " + f.Key + "=" + formatValue(f.Value)
	}
	return result
}

func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case error:
		return val.Error()
	default:
		return fmt.Sprint(val)
	}
}

func levelTag(level Level) string {
	switch level {
	case DebugLevel:
		return "[DEBUG]"
	case InfoLevel:
		return "[INFO]"
	case WarnLevel:
		return "[WARN]"
	default:
		return "[ERROR]"
	}
}

func (l *StdLogger) Log(ctx context.Context, level Level, msg string, fields ...Field) {
	if level < l.minLevel {
		return
	}
	log.Println(levelTag(level), l.format(msg, fields...))
}

func (l *StdLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.Log(ctx, DebugLevel, msg, fields...)
}

func (l *StdLogger) Info(ctx context.Context, msg string, fields ...Field) {
	l.Log(ctx, InfoLevel, msg, fields...)
}

func (l *StdLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.Log(ctx, WarnLevel, msg, fields...)
}

func (l *StdLogger) Error(ctx context.Context, msg string, fields ...Field) {
	l.Log(ctx, ErrorLevel, msg, fields...)
}

func (l *StdLogger) WithFields(fields ...Field) Logger {
	merged := make([]Field, 0, len(l.fields)+len(fields))
	merged = append(merged, l.fields...)
	merged = append(merged, fields...)
	return &StdLogger{prefix: l.prefix, minLevel: l.minLevel, fields: merged}
}

// NoopLogger 空日志实现（用于测试）
type NoopLogger struct{}

func NewNoopLogger() *NoopLogger {
	return &NoopLogger{}
}

func (l *NoopLogger) Debug(ctx context.Context, msg string, fields ...Field)            {}
func (l *NoopLogger) Info(ctx context.Context, msg string, fields ...Field)             {}
func (l *NoopLogger) Warn(ctx context.Context, msg string, fields ...Field)             {}
func (l *NoopLogger) Error(ctx context.Context, msg string, fields ...Field)            {}
func (l *NoopLogger) Log(ctx context.Context, level Level, msg string, fields ...Field) {}
func (l *NoopLogger) WithFields(fields ...Field) Logger                                 { return l }

var _ Logger = (*StdLogger)(nil)
var _ Logger = (*NoopLogger)(nil)

// 全局Logger
var globalLogger Logger = NewStdLogger("")

// SetLogger 设置全局Logger
func SetLogger(logger Logger) {
	globalLogger = logger
}

// GetLogger 获取全局Logger
func GetLogger() Logger {
	return globalLogger
}

// ComponentLogger 获取带组件名字段的全局Logger
func ComponentLogger(name string) Logger {
	return globalLogger.WithFields(String("component", name))
}
