package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "navbuild.log")
	cfg := DefaultConfig()
	cfg.Level = "debug"
	cfg.File = path

	l, err := New(cfg)
	require.NoError(t, err)
	l.Debug("tile built")
	_ = l.Sync()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	line := strings.TrimSpace(string(raw))
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	require.Equal(t, "tile built", entry["msg"])
	require.Equal(t, "debug", entry["level"])
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Config{Level: "chatty"})
	require.Error(t, err)
}

func TestOrNop(t *testing.T) {
	require.NotNil(t, OrNop(nil))
}
