package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "echostock.log")
	require.NoError(t, Init(Config{Level: "debug", OutputFile: path, MaxSize: 1}))
	t.Cleanup(func() {
		_ = Close()
		logrus.SetOutput(os.Stderr)
		logrus.SetLevel(logrus.InfoLevel)
	})

	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())
	logrus.WithField("symbol", "TEST.US").Info("Trigger fired")
	require.NoError(t, Close())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "Trigger fired")
	assert.Contains(t, string(content), "symbol=TEST.US")
}

func TestInit_UnknownLevelFallsBackToInfo(t *testing.T) {
	require.NoError(t, Init(Config{Level: "verbose"}))
	t.Cleanup(func() { logrus.SetOutput(os.Stderr) })
	assert.Equal(t, logrus.InfoLevel, logrus.GetLevel())
}
