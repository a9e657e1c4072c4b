package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCustomFormatter(t *testing.T) {
	entry := &logrus.Entry{
		Logger:  logrus.New(),
		Time:    time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Level:   logrus.WarnLevel,
		Message: "帖子生成失败",
		Data:    logrus.Fields{"post_id": "abc", "attempt": 2},
		Caller:  &runtime.Frame{File: "/src/engine/engine.go", Line: 42},
	}
	entry.Logger.SetReportCaller(true)

	out, err := (&CustomFormatter{}).Format(entry)
	require.NoError(t, err)
	assert.Equal(t, "[2024-01-02 03:04:05] [WARN] [engine.go:42] 帖子生成失败 attempt=2 post_id=abc\n", string(out))
}

func TestInitLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "run.log")
	require.NoError(t, InitLogger("debug", path, "text"))
	t.Cleanup(func() { Log = logrus.New() })

	Log.Debug("hello")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[DEBU]")
	assert.Contains(t, string(data), "hello")
	assert.False(t, bytes.Contains(data, []byte("\x1b[")))
}

func TestInitLoggerFallsBackToInfo(t *testing.T) {
	require.NoError(t, InitLogger("loud", "", "json"))
	t.Cleanup(func() { Log = logrus.New() })

	assert.Equal(t, logrus.InfoLevel, Log.GetLevel())
	_, ok := Log.Formatter.(*logrus.JSONFormatter)
	assert.True(t, ok)
}
