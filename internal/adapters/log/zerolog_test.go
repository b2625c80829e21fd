package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/meshlink/internal/ports"
)

func TestZerologAdapter_Fields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, zerolog.DebugLevel).Component("sendqueue")

	logger.Warn("low memory",
		ports.Uint32("node", 7),
		ports.Int("discarded", 3),
		ports.Uint64("free_bytes", 4096),
		ports.Bool("priority", true),
		ports.String("type", "Single"),
		ports.Duration("waited", time.Second),
		ports.Err(errors.New("boom")),
	)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "low memory", line["message"])
	assert.Equal(t, "sendqueue", line["component"])
	assert.EqualValues(t, 7, line["node"])
	assert.EqualValues(t, 3, line["discarded"])
	assert.EqualValues(t, 4096, line["free_bytes"])
	assert.Equal(t, true, line["priority"])
	assert.Equal(t, "Single", line["type"])
	assert.Equal(t, "boom", line["error"])
	assert.Contains(t, line, "waited")
	assert.Contains(t, line, "time")
}

func TestZerologAdapter_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger(&buf, zerolog.InfoLevel)

	logger.Debug("hidden", ports.Int("n", 1))
	assert.Zero(t, buf.Len())

	logger.Info("shown")
	assert.Contains(t, buf.String(), `"message":"shown"`)
}

func TestNoopLogger(t *testing.T) {
	var l ports.Logger = NewNoopLogger()
	l.Debug("x")
	l.Info("x")
	l.Warn("x")
	l.Error("x", ports.Err(errors.New("ignored")))
}
