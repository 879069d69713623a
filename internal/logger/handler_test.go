package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docquery/internal/middleware"
)

func TestContextHandler(t *testing.T) {
	t.Run("Adds Correlation ID From Context", func(t *testing.T) {
		var buf bytes.Buffer
		log := slog.New(NewContextHandler(slog.NewJSONHandler(&buf, nil)))

		ctx := middleware.WithCorrelationID(context.Background(), "corr-1")
		log.InfoContext(ctx, "hello")

		var record map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
		assert.Equal(t, "corr-1", record["correlation_id"])
	})

	t.Run("No Correlation ID Without Context Value", func(t *testing.T) {
		var buf bytes.Buffer
		log := slog.New(NewContextHandler(slog.NewJSONHandler(&buf, nil)))

		log.InfoContext(context.Background(), "hello")

		var record map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
		_, ok := record["correlation_id"]
		assert.False(t, ok)
	})
}
