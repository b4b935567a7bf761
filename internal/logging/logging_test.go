package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/jrsteele09/go-authkit-session/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestWriter_JSONToConsole(t *testing.T) {
	var buf bytes.Buffer
	w, err := writer(config.Logging{Level: "info", Format: "json"}, &buf)
	require.NoError(t, err)

	logger := zerolog.New(w)
	logger.Info().Str("flow", "sign-in").Msg("hello")
	require.Contains(t, buf.String(), `"flow":"sign-in"`)
	require.Contains(t, buf.String(), `"message":"hello"`)
}

func TestWriter_RotatingFile(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	w, err := writer(config.Logging{Level: "info", Format: "json", File: filepath.Join(dir, "authkit.%Y%m%d.log")}, &buf)
	require.NoError(t, err)

	logger := zerolog.New(w)
	logger.Warn().Msg("refresh failed")

	matches, err := filepath.Glob(filepath.Join(dir, "authkit.*.log"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	contents, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	require.Contains(t, string(contents), "refresh failed")
	require.Contains(t, buf.String(), "refresh failed")
}

func TestInit_InvalidLevel(t *testing.T) {
	err := Init(config.Logging{Level: "loud", Format: "json"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid log level")
}
