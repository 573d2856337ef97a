package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "warn", "json")
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Warn("kept", "order_id", "A")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "kept", record["msg"])
	assert.Equal(t, "A", record["order_id"])
	assert.Equal(t, "lineplan", record["service"])
}

func TestNew_Text(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "DEBUG", "")
	require.NoError(t, err)
	logger.Debug("detail", "line_id", "L1")
	assert.Contains(t, buf.String(), "line_id=L1")
}

func TestNew_Invalid(t *testing.T) {
	_, err := New(&bytes.Buffer{}, "chatty", "text")
	assert.Error(t, err)
	_, err = New(&bytes.Buffer{}, "info", "xml")
	assert.Error(t, err)
}
