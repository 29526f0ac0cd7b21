package infrastructure

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"

	"ledgerlens/internal/config"
	"ledgerlens/internal/shared/testutil"
)

func TestInitTracing_Stdout(t *testing.T) {
	var out bytes.Buffer
	logger, _ := testutil.NewTestLogger(t)
	tr, err := initTracing(config.TelemetryConfig{
		TracingEnabled: true,
		TraceExporter:  "stdout",
		ServiceName:    "ledgerlens-test",
	}, &out, logger)
	require.NoError(t, err)

	ctx, span := tr.Tracer().Start(context.Background(), "ingest")
	assert.NotEmpty(t, TraceIDFromContext(ctx))
	SetSpanAttributes(ctx, attribute.String("dataset", "ledger"))
	RecordError(ctx, errors.New("boom"))
	span.End()

	require.NoError(t, tr.Shutdown(context.Background()))
	assert.Contains(t, out.String(), `"Name":"ingest"`)
	assert.Contains(t, out.String(), "ledger")
	assert.Contains(t, out.String(), "boom")
}

func TestInitTracing_Disabled(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	for _, cfg := range []config.TelemetryConfig{
		{TracingEnabled: false, TraceExporter: "stdout"},
		{TracingEnabled: true, TraceExporter: "none"},
	} {
		tr, err := initTracing(cfg, &bytes.Buffer{}, logger)
		require.NoError(t, err)

		ctx, span := tr.Tracer().Start(context.Background(), "noop")
		assert.False(t, span.IsRecording())
		assert.Empty(t, TraceIDFromContext(ctx))
		span.End()
		assert.NoError(t, tr.Shutdown(context.Background()))
	}
}

func TestInitTracing_UnknownExporter(t *testing.T) {
	logger, _ := testutil.NewTestLogger(t)
	_, err := initTracing(config.TelemetryConfig{TracingEnabled: true, TraceExporter: "otlp"}, &bytes.Buffer{}, logger)
	assert.ErrorContains(t, err, "unsupported trace exporter")
}
