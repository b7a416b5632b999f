package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromContext_NoLogger(t *testing.T) {
	logger := FromContext(context.Background())

	require.NotNil(t, logger)
	assert.NotPanics(t, func() {
		logger.Info("no-op")
	})
}

func TestWithContext_RoundTrip(t *testing.T) {
	base := zap.NewNop()
	ctx := WithContext(context.Background(), base)

	assert.Equal(t, base, FromContext(ctx))
}

func TestWithRequestID(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	ctx, enriched := WithRequestID(context.Background(), base, "req-123")

	assert.Equal(t, "req-123", GetRequestID(ctx))
	assert.Equal(t, enriched, FromContext(ctx))

	enriched.Info("handling")
	logs := recorded.All()
	require.Len(t, logs, 1)
	assert.Equal(t, "req-123", logs[0].ContextMap()["request_id"])
}

func TestWithRunID(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	ctx, enriched := WithRunID(context.Background(), base, "0f5b0f8a")

	assert.Equal(t, "0f5b0f8a", GetRunID(ctx))

	enriched.Info("page committed")
	logs := recorded.All()
	require.Len(t, logs, 1)
	assert.Equal(t, "0f5b0f8a", logs[0].ContextMap()["run_id"])
}

func TestWithSource(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	ctx, enriched := WithSource(context.Background(), base, "feed")

	assert.Equal(t, "feed", GetSource(ctx))

	enriched.Info("file received")
	logs := recorded.All()
	require.Len(t, logs, 1)
	assert.Equal(t, "feed", logs[0].ContextMap()["source"])
}

func TestGetters_EmptyContext(t *testing.T) {
	ctx := context.Background()

	assert.Empty(t, GetRequestID(ctx))
	assert.Empty(t, GetRunID(ctx))
	assert.Empty(t, GetSource(ctx))
}

func TestChainedEnrichment(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	ctx := context.Background()
	ctx, logger := WithRequestID(ctx, base, "req-1")
	ctx, logger = WithRunID(ctx, logger, "run-1")
	_, logger = WithSource(ctx, logger, "document")

	logger.Info("chained")

	logs := recorded.All()
	require.Len(t, logs, 1)
	fields := logs[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "run-1", fields["run_id"])
	assert.Equal(t, "document", fields["source"])
}

// =============================================================================
// Trace Correlation Tests
// =============================================================================

// contextWithSpan builds a context carrying a valid remote span context.
func contextWithSpan(t *testing.T) context.Context {
	t.Helper()

	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)

	spanCtx := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})

	return trace.ContextWithSpanContext(context.Background(), spanCtx)
}

func TestGetTraceID_NoSpan(t *testing.T) {
	assert.Empty(t, GetTraceID(context.Background()))
}

func TestGetSpanID_NoSpan(t *testing.T) {
	assert.Empty(t, GetSpanID(context.Background()))
}

func TestGetTraceID_WithSpan(t *testing.T) {
	ctx := contextWithSpan(t)

	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", GetTraceID(ctx))
}

func TestGetSpanID_WithSpan(t *testing.T) {
	ctx := contextWithSpan(t)

	assert.Equal(t, "00f067aa0ba902b7", GetSpanID(ctx))
}

func TestWithTraceContext_NoSpan(t *testing.T) {
	base := zap.NewNop()

	enriched := WithTraceContext(context.Background(), base)

	// Without a span the original logger comes back unchanged
	assert.Equal(t, base, enriched)
}

func TestWithTraceContext_WithSpan(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	enriched := WithTraceContext(contextWithSpan(t), base)
	enriched.Info("traced")

	logs := recorded.All()
	require.Len(t, logs, 1)
	fields := logs[0].ContextMap()
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", fields["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", fields["span_id"])
}

// =============================================================================
// ContextLogger Tests
// =============================================================================

func TestL_ReturnsContextLogger(t *testing.T) {
	cl := L(context.Background())

	require.NotNil(t, cl)
	assert.NotPanics(t, func() {
		cl.Info("no logger attached")
	})
}

func TestL_UsesLoggerFromContext(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	ctx := WithContext(context.Background(), zap.New(core))

	L(ctx).Info("from context")

	assert.Equal(t, 1, recorded.Len())
}

func TestContextLogger_InjectsCorrelationFields(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	ctx := contextWithSpan(t)
	ctx = context.WithValue(ctx, RequestIDKey, "req-9")
	ctx = context.WithValue(ctx, RunIDKey, "run-9")
	ctx = context.WithValue(ctx, SourceKey, "manual")

	WithLogger(ctx, base).Info("correlated")

	logs := recorded.All()
	require.Len(t, logs, 1)
	fields := logs[0].ContextMap()
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", fields["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", fields["span_id"])
	assert.Equal(t, "req-9", fields["request_id"])
	assert.Equal(t, "run-9", fields["run_id"])
	assert.Equal(t, "manual", fields["source"])
}

func TestContextLogger_With(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	WithLogger(context.Background(), base).
		With(zap.String("sku", "WID-1")).
		Info("with field")

	logs := recorded.All()
	require.Len(t, logs, 1)
	assert.Equal(t, "WID-1", logs[0].ContextMap()["sku"])
}

func TestContextLogger_Levels(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	base := zap.New(core)
	cl := WithLogger(context.Background(), base)

	cl.Debug("d")
	cl.Info("i")
	cl.Warn("w")
	cl.Error("e")

	logs := recorded.All()
	require.Len(t, logs, 4)
	assert.Equal(t, zapcore.DebugLevel, logs[0].Level)
	assert.Equal(t, zapcore.InfoLevel, logs[1].Level)
	assert.Equal(t, zapcore.WarnLevel, logs[2].Level)
	assert.Equal(t, zapcore.ErrorLevel, logs[3].Level)
}

func TestContextLogger_Zap(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	ctx := context.WithValue(context.Background(), RunIDKey, "run-z")
	zl := WithLogger(ctx, base).Zap()

	require.NotNil(t, zl)
	zl.Info("unwrapped")

	logs := recorded.All()
	require.Len(t, logs, 1)
	assert.Equal(t, "run-z", logs[0].ContextMap()["run_id"])
}

func TestContextLogger_Sugar(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	base := zap.New(core)

	WithLogger(context.Background(), base).Sugar().Infow("sugared", "rows", 3)

	assert.Equal(t, 1, recorded.Len())
}
