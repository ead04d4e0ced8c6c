package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"device-hub-server/internal/config"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, logrus.WarnLevel, ParseLevel("warn"))
	assert.Equal(t, logrus.InfoLevel, ParseLevel("chatty"))
	assert.Equal(t, logrus.InfoLevel, ParseLevel(""))
}

func TestNewJSONWithComponent(t *testing.T) {
	log := New(config.LoggingConfig{Level: "info", Format: "json"})
	var buf bytes.Buffer
	log.SetOutput(&buf)

	WithComponent(log, "cleanup").Info("sweep finished")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "cleanup", entry["component"])
	assert.Equal(t, "sweep finished", entry["msg"])
}

func TestNewFiltersBelowLevel(t *testing.T) {
	log := New(config.LoggingConfig{Level: "error", Format: "text"})
	var buf bytes.Buffer
	log.SetOutput(&buf)

	log.Info("dropped")
	assert.Empty(t, buf.String())
}
