package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/Flowpack/Flowpack.ElasticSearch.ContentRepositoryQueueIndexer/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestSetup_Disabled(t *testing.T) {
	for _, tracing := range []string{"", "none"} {
		shutdown, err := setup(config.TelemetryConfig{Tracing: tracing}, "development", &bytes.Buffer{})
		require.NoError(t, err)
		assert.NoError(t, shutdown(context.Background()))
	}
}

func TestSetup_UnknownExporter(t *testing.T) {
	_, err := setup(config.TelemetryConfig{Tracing: "zipkin"}, "production", &bytes.Buffer{})
	assert.ErrorIs(t, err, ErrUnknownExporter)
}

func TestSetup_Stdout(t *testing.T) {
	previous := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	var out bytes.Buffer
	shutdown, err := setup(config.TelemetryConfig{Tracing: "stdout", ServiceName: "indexer-test"}, "development", &out)
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "execute job")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	assert.Contains(t, out.String(), "execute job")
	assert.Contains(t, out.String(), "indexer-test")
}
