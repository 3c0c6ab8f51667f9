package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

func TestSetupTracingDisabled(t *testing.T) {
	logger, hook := test.NewNullLogger()
	shutdown, err := SetupTracing(context.Background(), TraceConfig{Exporter: "none"}, logger)
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
	assert.Equal(t, "tracing exporter disabled", hook.LastEntry().Message)
}

func TestSetupTracingStdout(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := test.NewNullLogger()
	shutdown, err := SetupTracing(context.Background(), TraceConfig{
		ServiceName: "pim-test",
		Exporter:    "stdout",
		Writer:      &buf,
	}, logger)
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "normalize")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, buf.String(), `"Name": "normalize"`)
	assert.Contains(t, buf.String(), "pim-test")
}

func TestSetupTracingRejectsUnknownExporter(t *testing.T) {
	_, err := SetupTracing(context.Background(), TraceConfig{Exporter: "zipkin"}, nil)
	assert.Error(t, err)

	_, err = SetupTracing(context.Background(), TraceConfig{Exporter: "otlp"}, nil)
	assert.Error(t, err)
}

func TestNewResourceMergesWithSDKDefaults(t *testing.T) {
	res, err := newResource("pim-worker")
	require.NoError(t, err)
	assert.Equal(t, semconv.SchemaURL, res.SchemaURL())

	name, ok := res.Set().Value(semconv.ServiceNameKey)
	require.True(t, ok)
	assert.Equal(t, "pim-worker", name.AsString())

	_, ok = res.Set().Value(semconv.TelemetrySDKNameKey)
	assert.True(t, ok)
}
