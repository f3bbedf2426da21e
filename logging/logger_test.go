package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{JSON: true, Output: &buf})

	logger.Debug("hidden")
	logger.WithField("cycle_id", "abc").Info("visible")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "visible", line["msg"])
	assert.Equal(t, "abc", line["cycle_id"])
}

func TestConfigure_Debug(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Output: &buf})
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())

	Configure(logger, Options{Debug: true})
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	logger.Debug("now visible")
	assert.Contains(t, buf.String(), "now visible")
}
