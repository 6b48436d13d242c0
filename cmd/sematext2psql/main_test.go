package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/oicur0t/sematext2psql/internal/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestInitLogger(t *testing.T) {
	logger, err := initLogger("warn", "json")
	require.NoError(t, err)

	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
}

func TestInitLogger_InvalidLevel(t *testing.T) {
	_, err := initLogger("loud", "console")

	assert.ErrorContains(t, err, "invalid log level")
}

func TestOpenSource(t *testing.T) {
	src, err := openSource("", zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &source.ReaderSource{}, src)

	src, err = openSource("-", zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &source.ReaderSource{}, src)

	_, err = openSource(filepath.Join(t.TempDir(), "missing.json"), zap.NewNop())
	assert.Error(t, err)
}

func TestPrintConfig(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"--print-config", "--host", "db.internal", "--batch-size", "500"})
	t.Cleanup(func() {
		printConfig = false
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())

	assert.Contains(t, out.String(), "host: db.internal")
	assert.Contains(t, out.String(), "max_size: 500")
	assert.NotContains(t, out.String(), "password: password")
}

func TestRejectsPositionalArgs(t *testing.T) {
	rootCmd.SetArgs([]string{"filtered_logs.json"})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	assert.Error(t, rootCmd.Execute())
}
