package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupLoggerWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")

	require.NoError(t, SetupLogger(Options{FilePath: path, JSON: true}))
	defer CloseLogger()

	LogWarning("cache at %s is slow", "/tmp/cache")
	LogImageProcessed(WithComponent("test"), "/img/a.png", errors.New("bad header"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "cache at /tmp/cache is slow")
	assert.Contains(t, string(data), `"component":"test"`)
	assert.Contains(t, string(data), "bad header")
}

func TestSetupLoggerDebugLevel(t *testing.T) {
	require.NoError(t, SetupLogger(Options{Debug: true}))
	defer func() {
		CloseLogger()
		Logger().SetLevel(logrus.InfoLevel)
	}()

	assert.Equal(t, logrus.DebugLevel, Logger().GetLevel())
}

func TestSetupLoggerBadPath(t *testing.T) {
	err := SetupLogger(Options{FilePath: filepath.Join(t.TempDir(), "missing", "run.log")})
	assert.Error(t, err)
	CloseLogger()
}
