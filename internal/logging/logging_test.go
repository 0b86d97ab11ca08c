// ABOUTME: Tests for logging setup
// ABOUTME: Checks level parsing, formatters and file output
package logging

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sendspin/sendspin-voice/internal/config"
)

func TestSetupWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voice.log")
	logger := logrus.New()

	closer, err := Setup(logger, config.LoggingConfig{Level: "debug", Format: "json", File: path}, true)
	require.NoError(t, err)

	logger.WithField("speaker", 7).Debug("hello")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"speaker":7`)
	assert.Contains(t, string(data), `"msg":"hello"`)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
}

func TestSetupTextFormatter(t *testing.T) {
	logger := logrus.New()
	closer, err := Setup(logger, config.LoggingConfig{Level: "warn", Format: "text"}, false)
	require.NoError(t, err)
	defer closer.Close()

	_, ok := logger.Formatter.(*logrus.TextFormatter)
	assert.True(t, ok)
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())
	assert.Equal(t, os.Stdout, logger.Out)
}

func TestSetupTUIWithoutFileDiscards(t *testing.T) {
	logger := logrus.New()
	_, err := Setup(logger, config.LoggingConfig{Level: "info", Format: "text"}, true)
	require.NoError(t, err)
	assert.Equal(t, io.Discard, logger.Out)
}

func TestSetupRejectsBadLevel(t *testing.T) {
	_, err := Setup(logrus.New(), config.LoggingConfig{Level: "chatty", Format: "text"}, false)
	assert.Error(t, err)
}

func TestSetupRejectsUnwritableFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "voice.log")
	_, err := Setup(logrus.New(), config.LoggingConfig{Level: "info", Format: "text", File: path}, false)
	assert.Error(t, err)
}
