package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type actorCtxKey struct{}
type featureCtxKey struct{}
type requestCtxKey struct{}

// WithActor records the calling agent in the context.
func WithActor(ctx context.Context, actor string) context.Context {
	if actor == "" {
		return ctx
	}
	return context.WithValue(ctx, actorCtxKey{}, actor)
}

// ActorFromContext returns the agent recorded by WithActor, or "".
func ActorFromContext(ctx context.Context) string {
	if a, ok := ctx.Value(actorCtxKey{}).(string); ok {
		return a
	}
	return ""
}

// WithFeature records the feature an operation works on.
func WithFeature(ctx context.Context, slug string) context.Context {
	if slug == "" {
		return ctx
	}
	return context.WithValue(ctx, featureCtxKey{}, slug)
}

// FeatureFromContext returns the feature recorded by WithFeature, or "".
func FeatureFromContext(ctx context.Context) string {
	if f, ok := ctx.Value(featureCtxKey{}).(string); ok {
		return f
	}
	return ""
}

// WithRequestID records an HTTP request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestCtxKey{}, id)
}

// RequestIDFromContext returns the request ID, or "".
func RequestIDFromContext(ctx context.Context) string {
	if r, ok := ctx.Value(requestCtxKey{}).(string); ok {
		return r
	}
	return ""
}

// ContextFields extracts the correlation fields carried by a context:
// the active trace, the calling agent, the feature, and the request ID.
func ContextFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 6)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		sc := span.SpanContext()
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if actor := ActorFromContext(ctx); actor != "" {
		fields = append(fields, zap.String("actor", actor))
	}
	if feature := FeatureFromContext(ctx); feature != "" {
		fields = append(fields, zap.String("feature", feature))
	}
	if id := RequestIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	return fields
}
