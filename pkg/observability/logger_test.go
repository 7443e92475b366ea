package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/shopfront/pkg/contextkeys"
)

func TestNewLogger(t *testing.T) {
	t.Run("json output", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := NewLogger("debug", "json", &buf)
		require.NoError(t, err)

		logger.WithField("role_id", 2).Info("Permission added to role")

		var line map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
		assert.Equal(t, "Permission added to role", line["msg"])
		assert.Equal(t, float64(2), line["role_id"])
		assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	})

	t.Run("invalid level", func(t *testing.T) {
		_, err := NewLogger("loud", "json", nil)
		assert.Error(t, err)
	})

	t.Run("invalid format", func(t *testing.T) {
		_, err := NewLogger("info", "xml", nil)
		assert.Error(t, err)
	})
}

func TestLoggerFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger("info", "json", &buf)
	require.NoError(t, err)

	t.Run("falls back without request logger", func(t *testing.T) {
		assert.Equal(t, logger, LoggerFromContext(context.Background(), logger))
	})

	t.Run("uses request logger", func(t *testing.T) {
		ctx := contextkeys.WithLogger(context.Background(), logger.WithField("request_id", "r-1"))
		buf.Reset()
		LoggerFromContext(ctx, logger).Info("hello")

		var line map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
		assert.Equal(t, "r-1", line["request_id"])
	})
}
