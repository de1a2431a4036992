package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ctxKey int

const (
	scanIDKey ctxKey = iota
	requestIDKey
)

// WithScanID tags ctx with the id of the current scan pass.
func WithScanID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, scanIDKey, id)
}

// WithRequestID tags ctx with an HTTP request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// contextFields returns the correlation fields carried by ctx.
func contextFields(ctx context.Context) []zap.Field {
	if ctx == nil {
		return nil
	}
	var fields []zap.Field
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.Stringer("trace_id", sc.TraceID()),
			zap.Stringer("span_id", sc.SpanID()))
	}
	if id, _ := ctx.Value(scanIDKey).(string); id != "" {
		fields = append(fields, zap.String("scan.id", id))
	}
	if id, _ := ctx.Value(requestIDKey).(string); id != "" {
		fields = append(fields, zap.String("request.id", id))
	}
	return fields
}
