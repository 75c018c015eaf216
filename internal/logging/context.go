package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Run identifies one analysis, apply or config test invocation.
type Run struct {
	ID          string
	ProjectID   string
	ProjectName string
	Ref         string
	Commit      string
}

type runCtxKey struct{}
type loggerCtxKey struct{}

// WithRun attaches run correlation data to ctx.
func WithRun(ctx context.Context, run Run) context.Context {
	return context.WithValue(ctx, runCtxKey{}, run)
}

// RunFromContext returns the run attached to ctx, if any.
func RunFromContext(ctx context.Context) (Run, bool) {
	run, ok := ctx.Value(runCtxKey{}).(Run)
	return run, ok
}

// ContextFields extracts trace and run correlation fields from ctx.
func ContextFields(ctx context.Context) []zap.Field {
	if ctx == nil {
		return nil
	}
	var fields []zap.Field

	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}

	if run, ok := RunFromContext(ctx); ok {
		if run.ID != "" {
			fields = append(fields, zap.String("run.id", run.ID))
		}
		if run.ProjectID != "" {
			fields = append(fields, zap.String("project.id", run.ProjectID))
		}
		if run.ProjectName != "" {
			fields = append(fields, zap.String("project.name", run.ProjectName))
		}
		if run.Ref != "" {
			fields = append(fields, zap.String("run.ref", run.Ref))
		}
		if run.Commit != "" {
			fields = append(fields, zap.String("run.commit", run.Commit))
		}
	}
	return fields
}

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext returns the logger stored in ctx, or a nop logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok && l != nil {
		return l
	}
	return Nop()
}
