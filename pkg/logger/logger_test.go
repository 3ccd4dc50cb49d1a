package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterLoggerEmitsFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, "debug").With(String("component", "forecast"))

	l.Info("fitted", String("product_id", "P001"), Int("rows", 42), Float64("rmse", 1.5), Error(errors.New("boom")))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "info", got["level"])
	assert.Equal(t, "fitted", got["message"])
	assert.Equal(t, "forecast", got["component"])
	assert.Equal(t, "P001", got["product_id"])
	assert.EqualValues(t, 42, got["rows"])
	assert.EqualValues(t, 1.5, got["rmse"])
	assert.Equal(t, "boom", got["error"])
}

func TestWriterLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, "warn")
	l.Info("dropped")
	assert.Zero(t, buf.Len())
	l.Warn("kept")
	assert.NotZero(t, buf.Len())
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(&Config{Level: "loud"})
	assert.Error(t, err)
}
