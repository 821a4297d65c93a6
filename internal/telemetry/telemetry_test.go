package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"library-circulation/internal/config"
)

func Test_Setup_WithoutEndpoint(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.ObservabilityConfig{
		ServiceName:     "test",
		MetricsInterval: time.Second,
	})
	require.NoError(t, err)

	counter, err := otel.Meter("test").Int64Counter("test_total")
	require.NoError(t, err)
	counter.Add(context.Background(), 1)

	assert.NoError(t, shutdown(context.Background()))
}
