package logging

import (
	"context"
)

// Context keys for common log fields.
type contextKey string

const (
	// RequestIDKey is the context key for query request IDs.
	RequestIDKey contextKey = "request_id"

	// ShardIDKey is the context key for shard ids.
	ShardIDKey contextKey = "shard"

	// WorkerIDKey is the context key for worker ids.
	WorkerIDKey contextKey = "worker_id"

	// OpKey is the context key for query operation names.
	OpKey contextKey = "op"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// WithShardID adds a shard id to the context.
func WithShardID(ctx context.Context, shard uint32) context.Context {
	return context.WithValue(ctx, ShardIDKey, shard)
}

// GetShardID retrieves the shard id from the context.
func GetShardID(ctx context.Context) (uint32, bool) {
	shard, ok := ctx.Value(ShardIDKey).(uint32)
	return shard, ok
}

// WithWorkerID adds a worker id to the context.
func WithWorkerID(ctx context.Context, worker uint32) context.Context {
	return context.WithValue(ctx, WorkerIDKey, worker)
}

// GetWorkerID retrieves the worker id from the context.
func GetWorkerID(ctx context.Context) (uint32, bool) {
	worker, ok := ctx.Value(WorkerIDKey).(uint32)
	return worker, ok
}

// WithOp adds a query operation name to the context.
func WithOp(ctx context.Context, op string) context.Context {
	return context.WithValue(ctx, OpKey, op)
}

// GetOp retrieves the query operation name from the context.
func GetOp(ctx context.Context) string {
	if op, ok := ctx.Value(OpKey).(string); ok {
		return op
	}
	return ""
}

// extractContextFields extracts common fields from context for logging.
// Returns a slice of key-value pairs suitable for logger.With().
func extractContextFields(ctx context.Context) []any {
	var fields []any

	if requestID := GetRequestID(ctx); requestID != "" {
		fields = append(fields, "request_id", requestID)
	}
	if shard, ok := GetShardID(ctx); ok {
		fields = append(fields, "shard", shard)
	}
	if worker, ok := GetWorkerID(ctx); ok {
		fields = append(fields, "worker_id", worker)
	}
	if op := GetOp(ctx); op != "" {
		fields = append(fields, "op", op)
	}

	return fields
}

// ContextLogger is a logger that automatically includes context fields.
type ContextLogger struct {
	logger *Logger
	ctx    context.Context
}

// NewContextLogger creates a logger that automatically includes context fields.
func NewContextLogger(logger *Logger, ctx context.Context) *ContextLogger {
	return &ContextLogger{
		logger: logger.WithContext(ctx),
		ctx:    ctx,
	}
}

// Debug logs a debug message with context fields.
func (cl *ContextLogger) Debug(msg string, args ...any) {
	cl.logger.Debug(msg, args...)
}

// Info logs an info message with context fields.
func (cl *ContextLogger) Info(msg string, args ...any) {
	cl.logger.Info(msg, args...)
}

// Warn logs a warning message with context fields.
func (cl *ContextLogger) Warn(msg string, args ...any) {
	cl.logger.Warn(msg, args...)
}

// Error logs an error message with context fields.
func (cl *ContextLogger) Error(msg string, args ...any) {
	cl.logger.Error(msg, args...)
}

// With creates a new context logger with additional fields.
func (cl *ContextLogger) With(args ...any) *ContextLogger {
	return &ContextLogger{
		logger: cl.logger.With(args...),
		ctx:    cl.ctx,
	}
}
