package logger

import (
	"context"
	"log/slog"
	"math"
	"slices"
	"time"
)

const (
	moduleKey = "module"
	runIDKey  = "run_id"
)

type contextKey struct{}

// WithRunID returns a context whose run ID is attached by Logger.WithContext.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, contextKey{}, runID)
}

// moduleLogger is the Logger handed out by CentralLogger.Module
type moduleLogger struct {
	module string
	out    *slog.Logger
	level  slog.Level
	fields []Field
}

func (m *moduleLogger) derive(module string, fields []Field) Logger {
	return &moduleLogger{module: module, out: m.out, level: m.level, fields: fields}
}

func (m *moduleLogger) Module(name string) Logger {
	if m == nil {
		return nil
	}
	return m.derive(m.module+"."+name, slices.Clone(m.fields))
}

func (m *moduleLogger) With(fields ...Field) Logger {
	if m == nil {
		return nil
	}
	return m.derive(m.module, slices.Concat(m.fields, fields))
}

func (m *moduleLogger) WithContext(ctx context.Context) Logger {
	if m == nil || ctx == nil {
		return m
	}
	if id, _ := ctx.Value(contextKey{}).(string); id != "" {
		return m.With(String(runIDKey, id))
	}
	return m
}

func (m *moduleLogger) Trace(msg string, fields ...Field) { m.emit(levelTrace, msg, fields) }
func (m *moduleLogger) Debug(msg string, fields ...Field) { m.emit(slog.LevelDebug, msg, fields) }
func (m *moduleLogger) Info(msg string, fields ...Field)  { m.emit(slog.LevelInfo, msg, fields) }
func (m *moduleLogger) Warn(msg string, fields ...Field)  { m.emit(slog.LevelWarn, msg, fields) }

// Error is never filtered by the module level.
func (m *moduleLogger) Error(msg string, fields ...Field) {
	if m == nil {
		return
	}
	m.write(slog.LevelError, msg, fields)
}

func (m *moduleLogger) Log(level LogLevel, msg string, fields ...Field) {
	m.emit(parseLogLevel(string(level)), msg, fields)
}

// Flush is a no-op; the CentralLogger owns the file.
func (m *moduleLogger) Flush() error { return nil }

func (m *moduleLogger) emit(level slog.Level, msg string, fields []Field) {
	if m == nil || level < m.level {
		return
	}
	m.write(level, msg, fields)
}

func (m *moduleLogger) write(level slog.Level, msg string, fields []Field) {
	attrs := make([]slog.Attr, 0, 1+len(m.fields)+len(fields))
	if m.module != "" {
		attrs = append(attrs, slog.String(moduleKey, m.module))
	}
	for _, f := range slices.Concat(m.fields, fields) {
		attrs = append(attrs, toAttr(f))
	}
	m.out.LogAttrs(context.Background(), level, msg, attrs...)
}

// toAttr converts a Field, rounding floats to three decimals.
func toAttr(f Field) slog.Attr {
	switch v := f.Value.(type) {
	case string:
		return slog.String(f.Key, v)
	case int:
		return slog.Int(f.Key, v)
	case int64:
		return slog.Int64(f.Key, v)
	case uint64:
		return slog.Uint64(f.Key, v)
	case float32:
		return slog.Float64(f.Key, round3(float64(v)))
	case float64:
		return slog.Float64(f.Key, round3(v))
	case bool:
		return slog.Bool(f.Key, v)
	case time.Time:
		return slog.Time(f.Key, v)
	default:
		return slog.Any(f.Key, v)
	}
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
