package middleware

import (
	"context"
	"maps"

	"github.com/shrek82/jdb/core"
)

type traceFieldsKey struct{}

// WithTraceFields returns a context whose helper calls carry fields (a
// request id, a user address) into their SQL log lines. Fields already on
// ctx are kept unless overridden.
func WithTraceFields(ctx context.Context, fields map[string]any) context.Context {
	merged := make(map[string]any)
	if prev, ok := ctx.Value(traceFieldsKey{}).(map[string]any); ok {
		maps.Copy(merged, prev)
	}
	maps.Copy(merged, fields)
	return context.WithValue(ctx, traceFieldsKey{}, merged)
}

// TracingMiddleware attaches the fields set with WithTraceFields to the
// call, so the statement is logged with them.
type TracingMiddleware struct{}

func NewTracing() *TracingMiddleware {
	return &TracingMiddleware{}
}

func (m *TracingMiddleware) Name() string {
	return "Tracing"
}

func (m *TracingMiddleware) Init(db *core.DB) error {
	return nil
}

func (m *TracingMiddleware) Shutdown() error {
	return nil
}

func (m *TracingMiddleware) Process(ctx context.Context, call *core.Call, next core.CallFunc) (*core.Result, error) {
	if fields, ok := ctx.Value(traceFieldsKey{}).(map[string]any); ok && len(fields) > 0 {
		if call.Fields == nil {
			call.Fields = make(map[string]any, len(fields))
		}
		maps.Copy(call.Fields, fields)
	}
	return next(ctx, call)
}
