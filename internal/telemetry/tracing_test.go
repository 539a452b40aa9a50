package telemetry

import (
	"context"
	"testing"

	"github.com/dunamismax/photoflow/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSetupTracingDisabled(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), config.TelemetryConfig{Exporter: "none"}, zap.NewNop())
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetupTracingStdout(t *testing.T) {
	shutdown, err := SetupTracing(context.Background(), config.TelemetryConfig{ServiceName: "photoflow-test", Exporter: "stdout"}, nil)
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestSetupTracingRejectsUnknownExporter(t *testing.T) {
	_, err := SetupTracing(context.Background(), config.TelemetryConfig{Exporter: "jaeger"}, nil)
	assert.Error(t, err)

	_, err = SetupTracing(context.Background(), config.TelemetryConfig{Exporter: "otlp"}, nil)
	assert.Error(t, err)
}
